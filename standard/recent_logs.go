// Package standard provides stock sinks and trackers for the watcher.
package standard

import (
	"log"
	"sync"
	"time"

	"github.com/st-keller/timer-watch/types"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LevelError LogLevel = "ERROR"
	LevelWarn  LogLevel = "WARN"
	LevelInfo  LogLevel = "INFO"
	LevelDebug LogLevel = "DEBUG"
)

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// RecentLogs keeps the last N log messages (the log window).
// It implements types.EventSink so it can be registered next to other sinks.
type RecentLogs struct {
	mu         sync.Mutex
	entries    []LogEntry
	maxEntries int
	mirror     bool // also write to stdout/journald
}

// NewRecentLogs creates a new RecentLogs tracker that mirrors to stdout.
func NewRecentLogs(maxEntries int) *RecentLogs {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RecentLogs{
		entries:    make([]LogEntry, 0, maxEntries),
		maxEntries: maxEntries,
		mirror:     true,
	}
}

// SetMirror enables or disables writing every entry to the standard logger.
func (r *RecentLogs) SetMirror(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirror = enabled
}

// Log adds a log entry with context.
// Context must be non-empty to ensure structured logging.
func (r *RecentLogs) Log(level LogLevel, message string, context map[string]interface{}) {
	if len(context) == 0 {
		panic("RecentLogs.Log: context must be non-empty (use structured logging!)")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   context,
	})

	// Keep only last N entries (ringbuffer)
	if len(r.entries) > r.maxEntries {
		r.entries = r.entries[len(r.entries)-r.maxEntries:]
	}

	if r.mirror {
		log.Printf("[%s] %s %v", level, message, context)
	}
}

// Error logs an error message with context.
func (r *RecentLogs) Error(message string, context map[string]interface{}) {
	r.Log(LevelError, message, context)
}

// Warn logs a warning message with context.
func (r *RecentLogs) Warn(message string, context map[string]interface{}) {
	r.Log(LevelWarn, message, context)
}

// Info logs an info message with context.
func (r *RecentLogs) Info(message string, context map[string]interface{}) {
	r.Log(LevelInfo, message, context)
}

// Debug logs a debug message with context.
func (r *RecentLogs) Debug(message string, context map[string]interface{}) {
	r.Log(LevelDebug, message, context)
}

// OnStateChanged records a timer transition.
func (r *RecentLogs) OnStateChanged(change types.StateChange) {
	ctx := map[string]interface{}{
		"running":    change.Running,
		"session_id": change.SessionID,
	}
	if change.TaskID != "" {
		ctx["task_id"] = change.TaskID
	}
	if change.TaskName != "" {
		ctx["task_name"] = change.TaskName
	}
	if !change.StartTime.IsZero() {
		ctx["start_time"] = change.StartTime.Format(time.RFC3339)
	}

	if change.Running {
		r.Info("Timer running", ctx)
	} else {
		r.Info("Timer stopped", ctx)
	}
}

// OnError records a user-facing error.
func (r *RecentLogs) OnError(message string) {
	r.Error(message, map[string]interface{}{"channel": "error"})
}

// OnLog records a diagnostic line.
func (r *RecentLogs) OnLog(message string) {
	r.Debug(message, map[string]interface{}{"channel": "log"})
}

// Entries returns a copy of the buffered entries, oldest first.
func (r *RecentLogs) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear drops all buffered entries.
func (r *RecentLogs) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

// GetData returns the buffered entries plus per-level stats.
func (r *RecentLogs) GetData() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Calculate stats inline (avoid double-locking)
	var errorCount, warnCount, infoCount, debugCount int
	for _, entry := range r.entries {
		switch entry.Level {
		case LevelError:
			errorCount++
		case LevelWarn:
			warnCount++
		case LevelInfo:
			infoCount++
		case LevelDebug:
			debugCount++
		}
	}

	entries := make([]LogEntry, len(r.entries))
	copy(entries, r.entries)

	return map[string]interface{}{
		"entries": entries,
		"stats": map[string]interface{}{
			"total_count":    len(entries),
			"errors_count":   errorCount,
			"warnings_count": warnCount,
			"info_count":     infoCount,
			"debug_count":    debugCount,
			"max_entries":    r.maxEntries,
		},
	}
}

var _ types.EventSink = (*RecentLogs)(nil)
