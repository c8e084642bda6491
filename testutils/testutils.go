package testutils

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// TestTimeout is the default timeout for operations in tests.
const TestTimeout = 5 * time.Second

// TestInterval is the default interval for polling in tests.
const TestInterval = 100 * time.Millisecond

// ScriptedTarget is an HTTP server that plays back a configured sequence of
// responses, one per request, then repeats the last entry. Probe and
// controller tests use it to stage target behavior like "healthy, healthy,
// then blocking".
type ScriptedTarget struct {
	server *httptest.Server

	mu     sync.Mutex
	script []ScriptedResponse
	calls  int
}

// ScriptedResponse is one staged target response.
type ScriptedResponse struct {
	Status int
	Body   string
	Delay  time.Duration
}

// NewScriptedTarget starts a ScriptedTarget. An empty script answers 200 OK.
func NewScriptedTarget(script ...ScriptedResponse) *ScriptedTarget {
	t := &ScriptedTarget{script: script}
	t.server = httptest.NewServer(http.HandlerFunc(t.handle))
	return t
}

func (t *ScriptedTarget) handle(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	idx := t.calls
	t.calls++
	if idx >= len(t.script) {
		idx = len(t.script) - 1
	}
	var resp ScriptedResponse
	if idx >= 0 {
		resp = t.script[idx]
	} else {
		resp = ScriptedResponse{Status: http.StatusOK}
	}
	t.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}

// URL returns the server's base URL.
func (t *ScriptedTarget) URL() string {
	return t.server.URL
}

// Calls returns how many requests the target has served.
func (t *ScriptedTarget) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Close stops the server.
func (t *ScriptedTarget) Close() {
	t.server.Close()
}

// ManualClock is a test clock whose current time only moves when Advance is
// called.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock pinned at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since reports the time elapsed since t on this clock.
func (c *ManualClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
