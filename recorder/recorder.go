package recorder

import (
	"os"
	"sync"
	"time"

	"github.com/st-keller/timer-watch/types"
)

// FileRecorder is a types.EventSink appending every event to a CBOR file.
// It is safe for concurrent use.
type FileRecorder struct {
	mu      sync.Mutex
	file    *os.File
	closed  bool
	written int

	session func() string
	now     func() time.Time
}

// NewFileRecorder opens path for appending, creating it with 0644 if needed.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{
		file: f,
		now:  time.Now,
	}, nil
}

// SetSessionSource sets where error and log events take their session id
// from. State changes always carry their own.
func (r *FileRecorder) SetSessionSource(fn func() string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = fn
}

// OnStateChanged implements types.EventSink.
func (r *FileRecorder) OnStateChanged(change types.StateChange) {
	r.record(Event{
		SessionID: change.SessionID,
		Kind:      KindState,
		State:     stateEvent(change),
	})
}

// OnError implements types.EventSink.
func (r *FileRecorder) OnError(message string) {
	r.record(Event{Kind: KindError, Message: message})
}

// OnLog implements types.EventSink.
func (r *FileRecorder) OnLog(message string) {
	r.record(Event{Kind: KindLog, Message: message})
}

// Written returns the number of events successfully encoded.
func (r *FileRecorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

func (r *FileRecorder) record(event Event) {
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()

	// Resolve outside the lock, the source may take its own locks
	if event.SessionID == "" && session != nil {
		event.SessionID = session()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	event.Timestamp = r.now().UTC()

	// Errors are dropped: recording must not disturb polling.
	// One write per event keeps a failed encode out of the file.
	data, err := encodeEvent(event)
	if err != nil {
		return
	}
	if _, err := r.file.Write(data); err == nil {
		r.written++
	}
}

// Close closes the file. Safe to call more than once; later events are ignored.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

var _ types.EventSink = (*FileRecorder)(nil)
