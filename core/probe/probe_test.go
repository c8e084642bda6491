package probe

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProbeConfig() config.Probe {
	return config.Probe{
		Interval:         time.Second,
		Timeout:          2 * time.Second,
		BaselineMultiple: 3.0,
		Window:           10,
	}
}

func newTestProber(t *testing.T, target string) *Prober {
	t.Helper()
	p, err := NewProber(testProbeConfig(), target, nil, testutils.NewTestLogger(), events.NewNopSink())
	require.NoError(t, err)
	return p
}

func TestProbe_healthy_target_is_ok(t *testing.T) {
	target := testutils.NewScriptedTarget()
	defer target.Close()

	p := newTestProber(t, target.URL())
	res := p.Probe(context.Background())
	assert.Equal(t, SignalOK, res.Signal)
	assert.Greater(t, res.Latency, time.Duration(0))
}

func TestProbe_unreachable_target_is_timeout_not_error(t *testing.T) {
	p := newTestProber(t, "http://127.0.0.1:1") // nothing listens there
	res := p.Probe(context.Background())
	assert.Equal(t, SignalTimeout, res.Signal)
	assert.NotEmpty(t, res.RawIndicator)
}

func TestProbe_seeds_baseline_from_ok_results(t *testing.T) {
	target := testutils.NewScriptedTarget()
	defer target.Close()

	p := newTestProber(t, target.URL())
	for i := 0; i < 5; i++ {
		p.Probe(context.Background())
	}
	baseline, ok := p.BaselineValue()
	assert.True(t, ok)
	assert.Greater(t, baseline, time.Duration(0))
}

func TestDefaultClassifier(t *testing.T) {
	c := &DefaultClassifier{BaselineMultiple: 3.0}

	tests := []struct {
		name        string
		status      int
		body        string
		latency     time.Duration
		baseline    time.Duration
		hasBaseline bool
		want        Signal
	}{
		{"forbidden_is_blocked", http.StatusForbidden, "", 10 * time.Millisecond, 0, false, SignalBlocked},
		{"unauthorized_is_blocked", http.StatusUnauthorized, "", 10 * time.Millisecond, 0, false, SignalBlocked},
		{"too_many_requests_is_blocked", http.StatusTooManyRequests, "slow down", 10 * time.Millisecond, 0, false, SignalBlocked},
		{"too_many_requests_with_captcha_is_challenge", http.StatusTooManyRequests, "solve this CAPTCHA", 10 * time.Millisecond, 0, false, SignalChallenge},
		{"unavailable_challenge_page", http.StatusServiceUnavailable, "Just a moment...", 10 * time.Millisecond, 0, false, SignalChallenge},
		{"unavailable_without_markers_is_rate_limited", http.StatusServiceUnavailable, "", 10 * time.Millisecond, 0, false, SignalRateLimited},
		{"slow_response_is_rate_limited", http.StatusOK, "", 400 * time.Millisecond, 100 * time.Millisecond, true, SignalRateLimited},
		{"fast_response_is_ok", http.StatusOK, "", 120 * time.Millisecond, 100 * time.Millisecond, true, SignalOK},
		{"no_baseline_latency_rule_silent", http.StatusOK, "", 10 * time.Second, 0, false, SignalOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, raw := c.Classify(tt.status, tt.body, tt.latency, tt.baseline, tt.hasBaseline)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, raw)
		})
	}
}

func TestBaseline_trimmed_median_resists_outliers(t *testing.T) {
	var b Baseline
	for i := 0; i < 18; i++ {
		b.Observe(100 * time.Millisecond)
	}
	// A couple of spikes must not drag the baseline up.
	b.Observe(5 * time.Second)
	b.Observe(5 * time.Second)

	v, ok := b.Value()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, v)
}

func TestBaseline_unseeded_reports_absent(t *testing.T) {
	var b Baseline
	_, ok := b.Value()
	assert.False(t, ok)

	b.Observe(time.Millisecond)
	_, ok = b.Value()
	assert.False(t, ok)
}

func TestNewProber_requires_target(t *testing.T) {
	_, err := NewProber(testProbeConfig(), "", nil, testutils.NewTestLogger(), nil)
	assert.Error(t, err)
}
