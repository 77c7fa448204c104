package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/st-keller/timer-watch/types"
)

// console prints state changes and errors for a human.
// The log channel is left to the recent-logs window.
type console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func newConsole(out, errOut io.Writer) *console {
	return &console{out: out, err: errOut}
}

func (c *console) OnStateChanged(change types.StateChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", change.ObservedAt.Format("15:04:05"), describe(change.TimerSnapshot, change.ObservedAt))
}

func (c *console) OnError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "❌ %s\n", message)
}

func (c *console) OnLog(string) {}

// describe renders a snapshot as one line.
func describe(snap types.TimerSnapshot, now time.Time) string {
	if !snap.Running {
		return "⏸  No timer running"
	}
	name := snap.TaskName
	if name == "" {
		name = "(no task)"
	}
	if snap.TaskID != "" {
		name = fmt.Sprintf("%s [%s]", name, snap.TaskID)
	}
	return fmt.Sprintf("▶  %s - %s", name, formatElapsed(snap.Elapsed(now)))
}

// formatElapsed renders d as HH:MM:SS.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

var _ types.EventSink = (*console)(nil)
