// Package registry implements named event-sink registration with ordered fan-out.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/st-keller/timer-watch/types"
)

// Registry is itself a types.EventSink: every event is delivered to each
// registered sink, one after another, in registration order.
type Registry struct {
	mu sync.RWMutex

	// order keeps registration order, entries hold the sinks by name
	order   []string
	entries map[string]*entry
}

type entry struct {
	sink         types.EventSink
	delivered    int       // events handed to this sink
	lastDelivery time.Time // zero until the first event
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a sink under a unique name.
func (r *Registry) Register(name string, sink types.EventSink) error {
	if name == "" {
		return fmt.Errorf("name required")
	}
	if sink == nil {
		return fmt.Errorf("sink required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check duplicate
	if r.entries[name] != nil {
		return fmt.Errorf("sink %s already registered", name)
	}

	r.entries[name] = &entry{sink: sink}
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a sink. Returns false if name was not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[name] == nil {
		return false
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Names returns the registered sink names in delivery order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// OnStateChanged implements types.EventSink.
func (r *Registry) OnStateChanged(change types.StateChange) {
	r.fanOut(func(s types.EventSink) { s.OnStateChanged(change) })
}

// OnError implements types.EventSink.
func (r *Registry) OnError(message string) {
	r.fanOut(func(s types.EventSink) { s.OnError(message) })
}

// OnLog implements types.EventSink.
func (r *Registry) OnLog(message string) {
	r.fanOut(func(s types.EventSink) { s.OnLog(message) })
}

// fanOut snapshots the sinks and calls them without holding the lock,
// so a sink may register or unregister others.
func (r *Registry) fanOut(deliver func(types.EventSink)) {
	r.mu.RLock()
	targets := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		targets = append(targets, r.entries[name])
	}
	r.mu.RUnlock()

	for _, e := range targets {
		deliver(e.sink)

		r.mu.Lock()
		e.delivered++
		e.lastDelivery = time.Now().UTC()
		r.mu.Unlock()
	}
}

// GetData returns per-sink delivery counters.
func (r *Registry) GetData() interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]map[string]interface{}, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		item := map[string]interface{}{
			"name":      name,
			"delivered": e.delivered,
		}
		if !e.lastDelivery.IsZero() {
			item["last_delivery"] = e.lastDelivery.Format(time.RFC3339)
		}
		sinks = append(sinks, item)
	}

	return map[string]interface{}{
		"sinks": sinks,
	}
}

var _ types.EventSink = (*Registry)(nil)
