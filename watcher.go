package timerwatch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/st-keller/timer-watch/snapshot"
	"github.com/st-keller/timer-watch/standard"
	"github.com/st-keller/timer-watch/timeentry"
	"github.com/st-keller/timer-watch/transport"
	"github.com/st-keller/timer-watch/types"
	"github.com/st-keller/timer-watch/update"
)

// MaxConsecutiveAuthErrors is the number of back-to-back auth failures after
// which the watcher stops itself.
const MaxConsecutiveAuthErrors = 3

// DefaultStopGrace bounds how long StopPolling waits for the loop to exit.
const DefaultStopGrace = 5 * time.Second

// connectivityService is the service name used in connectivity statistics.
const connectivityService = "clickup"

// User-facing auth messages.
const (
	msgInvalidToken = "Invalid API token. Please check your configuration."
	msgAuthStopped  = "Invalid API token. Polling stopped. Please check your configuration."
)

// Config holds engine-wide settings. Zero values select the defaults.
type Config struct {
	BaseURL        string        // API root, timeentry.DefaultBaseURL if empty
	RequestTimeout time.Duration // per request, transport.DefaultTimeout if zero
	StopGrace      time.Duration // StopPolling wait bound, DefaultStopGrace if zero
	CAPath         string        // optional PEM bundle replacing the system roots
}

// Validate checks the config for values that cannot be defaulted.
func (c Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("BaseURL invalid: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("BaseURL must be http or https (got %q)", c.BaseURL)
		}
		if u.Host == "" {
			return fmt.Errorf("BaseURL host required")
		}
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("RequestTimeout must be >= 0")
	}
	if c.StopGrace < 0 {
		return fmt.Errorf("StopGrace must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = timeentry.DefaultBaseURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = transport.DefaultTimeout
	}
	if c.StopGrace == 0 {
		c.StopGrace = DefaultStopGrace
	}
	return c
}

// Session holds the per-session settings supplied to StartPolling.
type Session struct {
	Credential      string // raw API token
	AccountID       string // team id
	IntervalSeconds int    // 0 = update.DefaultInterval, clamped to update.MinInterval
}

// Validate checks if all required session fields are present.
func (s Session) Validate() error {
	if s.Credential == "" {
		return fmt.Errorf("Credential required")
	}
	if s.AccountID == "" {
		return fmt.Errorf("AccountID required")
	}
	if s.IntervalSeconds < 0 {
		return fmt.Errorf("IntervalSeconds must be >= 0")
	}
	if s.IntervalSeconds > update.MaxInterval.Seconds() {
		return fmt.Errorf("IntervalSeconds must be <= %d", update.MaxInterval.Seconds())
	}
	return nil
}

// Interval returns the effective poll interval.
func (s Session) Interval() update.Interval {
	if s.IntervalSeconds == 0 {
		return update.DefaultInterval
	}
	return update.FromSeconds(s.IntervalSeconds)
}

// session is the state of one polling loop.
type session struct {
	id       string
	client   *timeentry.Client
	interval update.Interval
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	// Guarded by Watcher.mu, written only by the loop.
	lastKnownRunning  bool
	lastTaskID        string
	consecutiveErrors int
}

// Watcher is the polling engine: Idle when session is nil, Running otherwise.
type Watcher struct {
	config       Config
	sink         types.EventSink
	connectivity *standard.ConnectivityTracker

	ctlMu sync.Mutex // serializes StartPolling/StopPolling

	mu      sync.Mutex // guards session and its counters
	session *session

	emitMu sync.Mutex // sink calls are sequential

	now     func() time.Time
	waitFor func(update.Interval) time.Duration
	newHTTP func() (*http.Client, error)
}

// New creates an idle watcher reporting to sink.
func New(config Config, sink types.EventSink) (*Watcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("invalid config: sink required")
	}
	config = config.withDefaults()

	w := &Watcher{
		config:       config,
		sink:         sink,
		connectivity: standard.NewConnectivityTracker(),
		now:          time.Now,
		waitFor:      update.Interval.Duration,
	}
	w.newHTTP = func() (*http.Client, error) {
		return transport.BuildHTTP2Client(transport.Options{
			Timeout: w.config.RequestTimeout,
			CAPath:  w.config.CAPath,
		})
	}

	log.Printf("✅ Timer watcher initialized (api: %s, timeout: %s)", config.BaseURL, config.RequestTimeout)
	return w, nil
}

// Sink returns the sink the watcher reports to.
func (w *Watcher) Sink() types.EventSink {
	return w.sink
}

// GetConnectivity returns the tracker holding statistics of every API call.
func (w *Watcher) GetConnectivity() *standard.ConnectivityTracker {
	return w.connectivity
}

// IsPolling reports whether a session is active.
func (w *Watcher) IsPolling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session != nil
}

// SessionID returns the id of the active session, "" when idle.
func (w *Watcher) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return ""
	}
	return w.session.id
}

// StartPolling starts a new session. A running session is stopped first.
// An invalid session returns an error and leaves the current state untouched.
func (w *Watcher) StartPolling(sess Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	w.ctlMu.Lock()
	defer w.ctlMu.Unlock()

	w.stopLocked()

	// Fresh client per session: credentials are never mutated in place
	httpClient, err := w.newHTTP()
	if err != nil {
		return fmt.Errorf("failed to build HTTP client: %w", err)
	}
	client, err := timeentry.New(timeentry.Config{
		BaseURL:    w.config.BaseURL,
		Credential: sess.Credential,
		AccountID:  sess.AccountID,
		HTTP:       httpClient,
	})
	if err != nil {
		httpClient.CloseIdleConnections()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.NewString(),
		client:   client,
		interval: sess.Interval(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	w.mu.Lock()
	w.session = s
	w.mu.Unlock()

	go w.run(s, sess.AccountID)

	log.Printf("✅ Polling started (session: %s, %s)", s.id, s.interval)
	return nil
}

// StopPolling cancels the active session and waits up to the stop grace
// for its loop to exit. Safe to call when idle and from any goroutine.
// Called from inside a sink callback it returns only after the full grace.
func (w *Watcher) StopPolling() {
	w.ctlMu.Lock()
	defer w.ctlMu.Unlock()
	w.stopLocked()
}

// stopLocked requires ctlMu.
func (w *Watcher) stopLocked() {
	w.mu.Lock()
	s := w.session
	w.session = nil
	w.mu.Unlock()

	if s == nil {
		return
	}

	s.cancel()

	grace := time.NewTimer(w.config.StopGrace)
	defer grace.Stop()
	select {
	case <-s.done:
	case <-grace.C:
		log.Printf("⚠️  Polling loop did not exit within %s (session: %s), releasing anyway", w.config.StopGrace, s.id)
	}

	s.client.Close()
	log.Printf("🛑 Polling stopped (session: %s)", s.id)
}

// ============================================================================
// POLLING LOOP
// ============================================================================

// run is the only goroutine of a session.
func (w *Watcher) run(s *session, accountID string) {
	defer close(s.done)

	w.logf(s, "Starting polling (interval: %s, team: %s)", s.interval, accountID)

	for {
		if s.ctx.Err() != nil {
			return
		}

		if !w.poll(s) {
			return
		}

		wait := time.NewTimer(w.waitFor(s.interval))
		select {
		case <-s.ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
		}
	}
}

// poll performs one iteration. It returns false when the loop must end.
func (w *Watcher) poll(s *session) bool {
	started := time.Now()
	payload, err := s.client.FetchCurrent(s.ctx)
	latency := time.Since(started)

	if s.ctx.Err() != nil {
		return false
	}

	switch timeentry.ClassOf(err) {
	case timeentry.ClassTransport, timeentry.ClassClientError:
		w.connectivity.TrackFailure(connectivityService, s.client.URL(), latency, err.Error())
		w.logf(s, "Poll failed, keeping last known state: %v", err)
		return true

	case timeentry.ClassAuthFailure:
		w.connectivity.TrackFailure(connectivityService, s.client.URL(), latency, err.Error())

		w.mu.Lock()
		s.consecutiveErrors++
		count := s.consecutiveErrors
		w.mu.Unlock()

		w.logf(s, "Authentication failed (%d/%d): %v", count, MaxConsecutiveAuthErrors, err)

		if count >= MaxConsecutiveAuthErrors {
			w.emitError(s, msgAuthStopped)
			w.autoStop(s)
			return false
		}
		if count == 1 {
			w.emitError(s, msgInvalidToken)
		}
		return true
	}

	if payload.Class == timeentry.ClassServerError {
		w.connectivity.TrackFailure(connectivityService, s.client.URL(), latency, fmt.Sprintf("HTTP %d", payload.StatusCode))
	} else {
		w.connectivity.TrackSuccess(connectivityService, s.client.URL(), latency)
	}

	w.logf(s, "API Response (HTTP %d): %s", payload.StatusCode, payload.Body)

	now := w.now()
	snap := snapshot.Parse(payload.Body, now, func(msg string) { w.logf(s, "%s", msg) })

	w.mu.Lock()
	s.consecutiveErrors = 0
	// A rename under a stable task id is not a change.
	emit := snap.Running != s.lastKnownRunning ||
		(snap.Running && snap.TaskID != "" && snap.TaskID != s.lastTaskID)
	s.lastKnownRunning = snap.Running
	s.lastTaskID = snap.TaskID
	w.mu.Unlock()

	if emit {
		w.emitState(s, types.StateChange{
			SessionID:     s.id,
			ObservedAt:    now,
			TimerSnapshot: snap,
		})
	}
	return true
}

// autoStop releases a session from inside its own loop. It never takes
// ctlMu, so a StopPolling caller waiting on the loop cannot deadlock.
func (w *Watcher) autoStop(s *session) {
	w.mu.Lock()
	if w.session == s {
		w.session = nil
	}
	w.mu.Unlock()

	s.cancel()
	s.client.Close()
	log.Printf("🛑 Polling stopped after %d authentication failures (session: %s)", MaxConsecutiveAuthErrors, s.id)
}

// ============================================================================
// SINK DELIVERY
// ============================================================================

// deliver calls fn unless the session was cancelled. A cancelled session
// never emits, even when its loop outlived the stop grace.
func (w *Watcher) deliver(s *session, fn func(types.EventSink)) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	fn(w.sink)
}

func (w *Watcher) emitState(s *session, change types.StateChange) {
	w.deliver(s, func(sink types.EventSink) { sink.OnStateChanged(change) })
}

func (w *Watcher) emitError(s *session, message string) {
	w.deliver(s, func(sink types.EventSink) { sink.OnError(message) })
}

func (w *Watcher) logf(s *session, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	w.deliver(s, func(sink types.EventSink) { sink.OnLog(message) })
}
