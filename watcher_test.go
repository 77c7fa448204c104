package timerwatch

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st-keller/timer-watch/types"
	"github.com/st-keller/timer-watch/update"
)

var testNow = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

const (
	bodyIdle    = `{"data":null}`
	bodyRunning = `{"data":{"duration":-5000}}`
	bodyTask    = `{"data":{"task":{"id":"t1","name":"Review"},"duration":-60000}}`
)

type step struct {
	code int
	body string
}

// scriptedAPI replays steps in order and repeats the last one forever.
type scriptedAPI struct {
	mu    sync.Mutex
	steps []step
	hits  int
	auth  []string
}

func (a *scriptedAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	i := a.hits
	a.hits++
	a.auth = append(a.auth, r.Header.Get("Authorization"))
	if i >= len(a.steps) {
		i = len(a.steps) - 1
	}
	st := a.steps[i]
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(st.code)
	_, _ = w.Write([]byte(st.body))
}

func (a *scriptedAPI) Hits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits
}

func (a *scriptedAPI) LastAuth() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.auth) == 0 {
		return ""
	}
	return a.auth[len(a.auth)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	states []types.StateChange
	errors []string
	logs   []string
}

func (s *recordingSink) OnStateChanged(change types.StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, change)
}

func (s *recordingSink) OnError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
}

func (s *recordingSink) OnLog(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, message)
}

func (s *recordingSink) States() []types.StateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.StateChange(nil), s.states...)
}

func (s *recordingSink) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

func (s *recordingSink) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

func newAPI(t *testing.T, steps ...step) (*scriptedAPI, *httptest.Server) {
	t.Helper()
	api := &scriptedAPI{steps: steps}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func newTestWatcher(t *testing.T, baseURL string, sink types.EventSink) *Watcher {
	t.Helper()
	w, err := New(Config{BaseURL: baseURL, StopGrace: time.Second}, sink)
	require.NoError(t, err)
	w.now = func() time.Time { return testNow }
	w.waitFor = func(update.Interval) time.Duration { return 5 * time.Millisecond }
	t.Cleanup(w.StopPolling)
	return w
}

var testSession = Session{Credential: "pk_1_SECRET", AccountID: "9001", IntervalSeconds: 5}

func waitForHits(t *testing.T, api *scriptedAPI, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return api.Hits() >= n }, 3*time.Second, 2*time.Millisecond)
}

func TestWatcher_EmitsOnceWhenTimerStarts(t *testing.T) {
	api, srv := newAPI(t,
		step{200, bodyIdle},
		step{200, bodyIdle},
		step{200, bodyRunning},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	id := w.SessionID()
	waitForHits(t, api, 8)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 1)
	assert.True(t, states[0].Running)
	assert.Empty(t, states[0].TaskID)
	assert.Equal(t, id, states[0].SessionID)
	assert.Equal(t, testNow, states[0].ObservedAt)
	assert.Equal(t, testNow.Add(-5*time.Second), states[0].StartTime)
	assert.Empty(t, sink.Errors())
}

func TestWatcher_NoEventWhileIdle(t *testing.T) {
	api, srv := newAPI(t, step{200, bodyIdle})
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 5)
	w.StopPolling()

	assert.Empty(t, sink.States())
	assert.NotEmpty(t, sink.Logs())
}

func TestWatcher_ReportsStartAndStop(t *testing.T) {
	api, srv := newAPI(t,
		step{200, bodyRunning},
		step{200, bodyRunning},
		step{200, bodyIdle},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 6)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 2)
	assert.True(t, states[0].Running)
	assert.False(t, states[1].Running)
}

func TestWatcher_StableTaskEmitsOnce(t *testing.T) {
	api, srv := newAPI(t, step{200, bodyTask})
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 5)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 1)
	assert.True(t, states[0].Running)
	assert.Equal(t, "t1", states[0].TaskID)
	assert.Equal(t, "Review", states[0].TaskName)
	assert.Equal(t, testNow.Add(-time.Minute), states[0].StartTime)
}

func TestWatcher_TaskSwitchEmits(t *testing.T) {
	api, srv := newAPI(t,
		step{200, bodyTask},
		step{200, bodyTask},
		step{200, `{"data":{"task":{"id":"t2","name":"Deploy"},"duration":-1000}}`},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 6)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 2)
	assert.Equal(t, "t1", states[0].TaskID)
	assert.Equal(t, "t2", states[1].TaskID)
	assert.Equal(t, "Deploy", states[1].TaskName)
}

func TestWatcher_RenameUnderSameTaskIsSilent(t *testing.T) {
	api, srv := newAPI(t,
		step{200, `{"data":{"task":{"id":"t1","name":"A"},"duration":-1000}}`},
		step{200, `{"data":{"task":{"id":"t1","name":"B"},"duration":-6000}}`},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 5)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 1)
	assert.Equal(t, "A", states[0].TaskName)
}

func TestWatcher_TaskReemitsAfterStop(t *testing.T) {
	api, srv := newAPI(t,
		step{200, bodyTask},
		step{200, bodyIdle},
		step{200, bodyTask},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 6)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 3)
	assert.True(t, states[0].Running)
	assert.False(t, states[1].Running)
	assert.True(t, states[2].Running)
	assert.Equal(t, "t1", states[2].TaskID)
}

func TestWatcher_AuthFailureAutoStop(t *testing.T) {
	api, srv := newAPI(t, step{401, ""})
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	require.Eventually(t, func() bool { return !w.IsPolling() }, 3*time.Second, 2*time.Millisecond)

	// no further calls once stopped
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, MaxConsecutiveAuthErrors, api.Hits())
	assert.Equal(t, []string{msgInvalidToken, msgAuthStopped}, sink.Errors())
	assert.Empty(t, sink.States())
	assert.Empty(t, w.SessionID())

	// StopPolling after auto-stop is a no-op
	w.StopPolling()
	assert.False(t, w.IsPolling())
}

func TestWatcher_ForbiddenCountsAsAuthFailure(t *testing.T) {
	api, srv := newAPI(t, step{403, `{"err":"forbidden"}`})
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	require.Eventually(t, func() bool { return !w.IsPolling() }, 3*time.Second, 2*time.Millisecond)

	assert.Equal(t, MaxConsecutiveAuthErrors, api.Hits())
	assert.Len(t, sink.Errors(), 2)
}

func TestWatcher_SuccessResetsAuthCounter(t *testing.T) {
	api, srv := newAPI(t,
		step{401, ""},
		step{401, ""},
		step{200, bodyIdle},
		step{401, ""},
		step{401, ""},
		step{200, bodyIdle},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 8)

	assert.True(t, w.IsPolling())
	w.StopPolling()
	assert.Equal(t, []string{msgInvalidToken, msgInvalidToken}, sink.Errors())
}

func TestWatcher_TransientErrorsHoldState(t *testing.T) {
	api, srv := newAPI(t,
		step{200, bodyRunning},
		step{404, `{"err":"Team not found"}`},
		step{429, `{"err":"rate limited"}`},
		step{502, `<html>bad gateway</html>`},
		step{200, bodyRunning},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 7)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 1)
	assert.True(t, states[0].Running)
	assert.Empty(t, sink.Errors())

	stats, ok := w.GetConnectivity().Stats(connectivityService)
	require.True(t, ok)
	assert.GreaterOrEqual(t, stats.TotalCalls, 6)
	assert.Less(t, stats.SuccessRate, 1.0)
}

func TestWatcher_ServerErrorWithJSONIsParsed(t *testing.T) {
	api, srv := newAPI(t,
		step{200, bodyRunning},
		step{503, bodyIdle},
	)
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 4)
	w.StopPolling()

	states := sink.States()
	require.Len(t, states, 2)
	assert.False(t, states[1].Running)
}

func TestWatcher_StopWhenIdle(t *testing.T) {
	w, err := New(Config{}, types.Discard)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		w.StopPolling()
		w.StopPolling()
	})
	assert.False(t, w.IsPolling())
	assert.Empty(t, w.SessionID())
}

func TestWatcher_StopDuringInFlightPoll(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)
	require.NoError(t, w.StartPolling(testSession))

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("poll never reached the server")
	}

	started := time.Now()
	w.StopPolling()
	assert.Less(t, time.Since(started), time.Second)
	assert.False(t, w.IsPolling())
	assert.Empty(t, sink.States())
	assert.Empty(t, sink.Errors())
}

func TestWatcher_StopGraceBoundsWait(t *testing.T) {
	_, srv := newAPI(t, step{200, bodyIdle})

	blocked := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	sink := types.SinkFuncs{
		Log: func(message string) {
			once.Do(func() {
				close(blocked)
				<-unblock
			})
		},
	}

	w, err := New(Config{BaseURL: srv.URL, StopGrace: 100 * time.Millisecond}, sink)
	require.NoError(t, err)
	w.waitFor = func(update.Interval) time.Duration { return 5 * time.Millisecond }

	require.NoError(t, w.StartPolling(testSession))
	<-blocked

	started := time.Now()
	w.StopPolling()
	elapsed := time.Since(started)
	close(unblock)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.False(t, w.IsPolling())
}

func TestWatcher_SinkStoppingSynchronously(t *testing.T) {
	api, srv := newAPI(t, step{200, bodyRunning})

	var w *Watcher
	stopped := make(chan time.Duration, 1)
	var states int
	var mu sync.Mutex
	sink := types.SinkFuncs{
		StateChanged: func(types.StateChange) {
			mu.Lock()
			states++
			mu.Unlock()
			started := time.Now()
			w.StopPolling()
			stopped <- time.Since(started)
		},
	}

	w, err := New(Config{BaseURL: srv.URL, StopGrace: 100 * time.Millisecond}, sink)
	require.NoError(t, err)
	w.waitFor = func(update.Interval) time.Duration { return 5 * time.Millisecond }

	require.NoError(t, w.StartPolling(testSession))

	select {
	case elapsed := <-stopped:
		assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
		assert.Less(t, elapsed, 2*time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("StopPolling from a sink never returned")
	}
	assert.False(t, w.IsPolling())

	hits := api.Hits()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, hits, api.Hits())
	mu.Lock()
	assert.Equal(t, 1, states)
	mu.Unlock()
}

func TestWatcher_StartReplacesSession(t *testing.T) {
	api, srv := newAPI(t, step{200, bodyIdle})
	sink := &recordingSink{}
	w := newTestWatcher(t, srv.URL, sink)

	require.NoError(t, w.StartPolling(testSession))
	first := w.SessionID()
	waitForHits(t, api, 2)

	next := testSession
	next.Credential = "pk_2_ROTATED"
	require.NoError(t, w.StartPolling(next))
	second := w.SessionID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
	assert.True(t, w.IsPolling())

	hits := api.Hits()
	waitForHits(t, api, hits+2)
	assert.Equal(t, "pk_2_ROTATED", api.LastAuth())
}

func TestWatcher_InvalidSessionKeepsState(t *testing.T) {
	api, srv := newAPI(t, step{200, bodyIdle})
	w := newTestWatcher(t, srv.URL, types.Discard)

	err := w.StartPolling(Session{AccountID: "9001"})
	assert.ErrorContains(t, err, "Credential required")
	assert.False(t, w.IsPolling())

	require.NoError(t, w.StartPolling(testSession))
	id := w.SessionID()

	err = w.StartPolling(Session{Credential: "pk"})
	assert.ErrorContains(t, err, "AccountID required")
	assert.Equal(t, id, w.SessionID())
	waitForHits(t, api, 1)
}

func TestWatcher_SendsRawCredential(t *testing.T) {
	api, srv := newAPI(t, step{200, bodyIdle})
	w := newTestWatcher(t, srv.URL, types.Discard)

	require.NoError(t, w.StartPolling(testSession))
	waitForHits(t, api, 1)
	assert.Equal(t, "pk_1_SECRET", api.LastAuth())
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "bad scheme", config: Config{BaseURL: "ftp://api.example.com"}, wantErr: "BaseURL must be http or https"},
		{name: "no host", config: Config{BaseURL: "https://"}, wantErr: "BaseURL host required"},
		{name: "negative timeout", config: Config{RequestTimeout: -time.Second}, wantErr: "RequestTimeout must be >= 0"},
		{name: "negative grace", config: Config{StopGrace: -time.Second}, wantErr: "StopGrace must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config, types.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := New(Config{}, nil)
	assert.ErrorContains(t, err, "sink required")
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(Config{}, types.Discard)
	require.NoError(t, err)
	assert.Equal(t, "https://api.clickup.com/api", w.config.BaseURL)
	assert.Equal(t, 10*time.Second, w.config.RequestTimeout)
	assert.Equal(t, DefaultStopGrace, w.config.StopGrace)
}

func TestSession_Interval(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{seconds: 0, want: 5 * time.Second},
		{seconds: 1, want: 2 * time.Second},
		{seconds: 2, want: 2 * time.Second},
		{seconds: 30, want: 30 * time.Second},
	}
	for _, tt := range tests {
		got := Session{IntervalSeconds: tt.seconds}.Interval()
		assert.Equal(t, tt.want, got.Duration(), "IntervalSeconds=%d", tt.seconds)
	}

	assert.ErrorContains(t, Session{Credential: "x", AccountID: "y", IntervalSeconds: -1}.Validate(), "IntervalSeconds")
	assert.ErrorContains(t, Session{Credential: "x", AccountID: "y", IntervalSeconds: 10_000_000_000}.Validate(), "IntervalSeconds must be <=")
	assert.NoError(t, Session{Credential: "x", AccountID: "y", IntervalSeconds: 86400}.Validate())
}
