// Package types defines the core value types and the event sink contract of timer-watch.
package types

import "time"

// TimerSnapshot is one normalized observation of the remote timer, produced per poll.
// TaskID, TaskName and StartTime are only meaningful when Running is true.
// An empty TaskID/TaskName means "absent", a zero StartTime means "unknown".
type TimerSnapshot struct {
	Running   bool
	TaskID    string
	TaskName  string
	StartTime time.Time
}

// Elapsed returns how long the timer has been running at now (0 if stopped or unknown).
func (s TimerSnapshot) Elapsed(now time.Time) time.Duration {
	if !s.Running || s.StartTime.IsZero() {
		return 0
	}
	d := now.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// StateChange is delivered to sinks whenever the engine surfaces a transition.
type StateChange struct {
	SessionID  string
	ObservedAt time.Time
	TimerSnapshot
}

// EventSink receives engine events (three channels: state, error, log).
//
// All methods are called sequentially from the engine's polling goroutine,
// never concurrently for one session. Consumers that touch UI state must
// redispatch to their own goroutine.
//
// A sink must not call StartPolling or StopPolling synchronously: the stop
// waits for the very loop that is delivering and only returns after the
// stop grace. Use `go w.StopPolling()` instead.
type EventSink interface {
	OnStateChanged(change StateChange)
	OnError(message string)
	OnLog(message string)
}

// SinkFuncs adapts plain functions to EventSink. Nil fields are ignored.
type SinkFuncs struct {
	StateChanged func(change StateChange)
	Error        func(message string)
	Log          func(message string)
}

// OnStateChanged implements EventSink.
func (f SinkFuncs) OnStateChanged(change StateChange) {
	if f.StateChanged != nil {
		f.StateChanged(change)
	}
}

// OnError implements EventSink.
func (f SinkFuncs) OnError(message string) {
	if f.Error != nil {
		f.Error(message)
	}
}

// OnLog implements EventSink.
func (f SinkFuncs) OnLog(message string) {
	if f.Log != nil {
		f.Log(message)
	}
}

// Discard is a sink that drops every event.
var Discard EventSink = SinkFuncs{}
