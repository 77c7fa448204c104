// Package timerwatch watches a remote time-tracking API for the currently
// running timer and reports transitions to an event sink.
//
// The library is split into independent parts:
//  1. Client   - one authenticated GET, errors classified (package timeentry)
//  2. Parser   - total conversion of a raw body into a snapshot (package snapshot)
//  3. Watcher  - Idle/Running polling engine with debounce and auth auto-stop
//  4. Sinks    - state, error and log channels (packages types, registry, standard, recorder)
//
// Architecture: hosts provide credentials and a sink, the watcher handles
// scheduling, cancellation and error policy. Configuration changes are applied
// by calling StopPolling followed by StartPolling.
package timerwatch
