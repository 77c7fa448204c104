package standard

import (
	"sort"
	"sync"
	"time"
)

// ConnectionCall represents a single call to the remote API.
type ConnectionCall struct {
	Timestamp time.Time
	Success   bool
	Latency   time.Duration
	Error     string
}

// Connection tracks connectivity to a single remote service.
type Connection struct {
	Service string
	URL     string
	calls   []ConnectionCall
	mu      sync.Mutex
}

// ConnectivityTracker tracks connectivity to remote services.
type ConnectivityTracker struct {
	mu          sync.Mutex
	connections map[string]*Connection
	window      time.Duration
}

// NewConnectivityTracker creates a tracker that keeps one hour of calls.
func NewConnectivityTracker() *ConnectivityTracker {
	return &ConnectivityTracker{
		connections: make(map[string]*Connection),
		window:      time.Hour,
	}
}

// TrackSuccess records a successful call.
func (t *ConnectivityTracker) TrackSuccess(service, url string, latency time.Duration) {
	t.track(service, url, ConnectionCall{
		Timestamp: time.Now().UTC(),
		Success:   true,
		Latency:   latency,
	})
}

// TrackFailure records a failed call.
func (t *ConnectivityTracker) TrackFailure(service, url string, latency time.Duration, errorMsg string) {
	t.track(service, url, ConnectionCall{
		Timestamp: time.Now().UTC(),
		Success:   false,
		Latency:   latency,
		Error:     errorMsg,
	})
}

func (t *ConnectivityTracker) track(service, url string, call ConnectionCall) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn := t.getOrCreateConnection(service, url)
	conn.mu.Lock()
	defer conn.mu.Unlock()

	// Credential changes may point the same service at a new team URL
	conn.URL = url
	conn.calls = append(conn.calls, call)
	t.pruneOldCalls(conn)
}

// getOrCreateConnection returns existing connection or creates new one.
func (t *ConnectivityTracker) getOrCreateConnection(service, url string) *Connection {
	if conn, exists := t.connections[service]; exists {
		return conn
	}

	conn := &Connection{
		Service: service,
		URL:     url,
		calls:   make([]ConnectionCall, 0),
	}
	t.connections[service] = conn
	return conn
}

// pruneOldCalls removes calls older than the tracking window.
func (t *ConnectivityTracker) pruneOldCalls(conn *Connection) {
	cutoff := time.Now().Add(-t.window)
	for i, call := range conn.calls {
		if call.Timestamp.After(cutoff) {
			conn.calls = conn.calls[i:]
			return
		}
	}
	conn.calls = []ConnectionCall{}
}

// Stats summarizes the calls of one service.
type Stats struct {
	Service      string
	URL          string
	Status       string // healthy, degraded, unhealthy
	TotalCalls   int
	SuccessRate  float64
	LastCall     time.Time
	P50, P95     time.Duration
	P99          time.Duration
	RecentErrors []string // at most 5
}

// Stats returns the summary for service; ok is false if nothing was tracked.
func (t *ConnectivityTracker) Stats(service string) (Stats, bool) {
	t.mu.Lock()
	conn, exists := t.connections[service]
	t.mu.Unlock()
	if !exists {
		return Stats{}, false
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.calls) == 0 {
		return Stats{}, false
	}
	return summarize(conn), true
}

func summarize(conn *Connection) Stats {
	var successCount int
	var lastCall time.Time
	latencies := make([]float64, 0, len(conn.calls))
	recentErrors := make([]string, 0)

	for _, call := range conn.calls {
		if call.Success {
			successCount++
		} else if len(recentErrors) < 5 {
			recentErrors = append(recentErrors, call.Error)
		}

		latencies = append(latencies, float64(call.Latency))

		if call.Timestamp.After(lastCall) {
			lastCall = call.Timestamp
		}
	}

	successRate := float64(successCount) / float64(len(conn.calls))

	sort.Float64s(latencies)

	status := "healthy"
	if successRate < 0.9 {
		status = "unhealthy"
	} else if successRate < 0.95 {
		status = "degraded"
	}

	return Stats{
		Service:      conn.Service,
		URL:          conn.URL,
		Status:       status,
		TotalCalls:   len(conn.calls),
		SuccessRate:  successRate,
		LastCall:     lastCall,
		P50:          time.Duration(percentile(latencies, 0.50)),
		P95:          time.Duration(percentile(latencies, 0.95)),
		P99:          time.Duration(percentile(latencies, 0.99)),
		RecentErrors: recentErrors,
	}
}

// GetData returns all tracked connections as plain data.
func (t *ConnectivityTracker) GetData() interface{} {
	t.mu.Lock()
	conns := make([]*Connection, 0, len(t.connections))
	for _, conn := range t.connections {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].Service < conns[j].Service })

	outboundConnections := make([]map[string]interface{}, 0)
	for _, conn := range conns {
		conn.mu.Lock()
		if len(conn.calls) == 0 {
			conn.mu.Unlock()
			continue
		}
		s := summarize(conn)
		conn.mu.Unlock()

		outboundConnections = append(outboundConnections, map[string]interface{}{
			"service":         s.Service,
			"url":             s.URL,
			"status":          s.Status,
			"last_call":       s.LastCall.Format(time.RFC3339),
			"total_calls_1h":  s.TotalCalls,
			"success_rate_1h": s.SuccessRate,
			"latency_ms": map[string]interface{}{
				"p50": s.P50.Milliseconds(),
				"p95": s.P95.Milliseconds(),
				"p99": s.P99.Milliseconds(),
			},
			"recent_errors": s.RecentErrors,
		})
	}

	return map[string]interface{}{
		"outbound_connections": outboundConnections,
	}
}

// percentile calculates the percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
