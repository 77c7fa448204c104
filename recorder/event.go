// Package recorder captures watcher events into a CBOR file and reads them back.
//
// Recordings make the remote API's inconsistent encodings reproducible: every
// raw response and parsing decision goes through the log channel, so a
// recording holds the full history of a session.
package recorder

import (
	"time"

	"github.com/st-keller/timer-watch/types"
)

// Event is one recorded sink call. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event was recorded.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID of the polling session, empty if unknown.
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Kind selects which of the payload fields is set.
	Kind Kind `cbor:"3,keyasint"`

	State   *StateEvent `cbor:"4,keyasint,omitempty"` // KindState
	Message string      `cbor:"5,keyasint,omitempty"` // KindError, KindLog
}

// Kind is the sink channel an event arrived on.
type Kind uint8

const (
	KindState Kind = 0
	KindError Kind = 1
	KindLog   Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindState:
		return "STATE"
	case KindError:
		return "ERROR"
	case KindLog:
		return "LOG"
	default:
		return "UNKNOWN"
	}
}

// StateEvent is the recorded form of a types.StateChange.
type StateEvent struct {
	Running    bool      `cbor:"1,keyasint"`
	TaskID     string    `cbor:"2,keyasint,omitempty"`
	TaskName   string    `cbor:"3,keyasint,omitempty"`
	StartTime  time.Time `cbor:"4,keyasint"`
	ObservedAt time.Time `cbor:"5,keyasint"`
}

func stateEvent(change types.StateChange) *StateEvent {
	return &StateEvent{
		Running:    change.Running,
		TaskID:     change.TaskID,
		TaskName:   change.TaskName,
		StartTime:  change.StartTime,
		ObservedAt: change.ObservedAt,
	}
}

// Snapshot converts the recorded state back into a snapshot.
func (s *StateEvent) Snapshot() types.TimerSnapshot {
	return types.TimerSnapshot{
		Running:   s.Running,
		TaskID:    s.TaskID,
		TaskName:  s.TaskName,
		StartTime: s.StartTime,
	}
}
