// Package probe measures target responsiveness on a fixed cadence decoupled
// from attack traffic. Each probe is a minimal legitimate-looking request
// whose outcome is classified into the signal set the adaptation loop
// consumes. Probe failures are themselves signals, never errors.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/pkg/logging"

	"golang.org/x/net/http2"
)

// Signal is the classified outcome of one probe.
type Signal string

const (
	SignalOK          Signal = "ok"
	SignalRateLimited Signal = "rateLimited"
	SignalBlocked     Signal = "blocked"
	SignalTimeout     Signal = "timeout"
	SignalChallenge   Signal = "challenge"
)

// Result is one probe observation.
type Result struct {
	Timestamp    time.Time
	Latency      time.Duration
	Signal       Signal
	RawIndicator string
}

// Classifier maps a raw probe outcome to a Signal. The mapping from target
// responses to blocked/challenge/rateLimited markers is deployment-specific,
// so it is pluggable; DefaultClassifier encodes the common rules.
type Classifier interface {
	Classify(status int, body string, latency time.Duration, baseline time.Duration, hasBaseline bool) (Signal, string)
}

// DefaultClassifier implements the standard classification rules.
type DefaultClassifier struct {
	// BaselineMultiple flags latency above baseline*multiple as rate
	// limiting.
	BaselineMultiple float64
}

var challengeMarkers = []string{"captcha", "challenge", "cf-chl", "just a moment"}

// Classify applies, in order: explicit blocking markers, challenge markers,
// then the latency rule.
func (c *DefaultClassifier) Classify(status int, body string, latency, baseline time.Duration, hasBaseline bool) (Signal, string) {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return SignalBlocked, fmt.Sprintf("status=%d", status)
	case status == http.StatusTooManyRequests:
		for _, marker := range challengeMarkers {
			if strings.Contains(lower, marker) {
				return SignalChallenge, fmt.Sprintf("status=%d marker=%s", status, marker)
			}
		}
		return SignalBlocked, fmt.Sprintf("status=%d", status)
	case status == http.StatusServiceUnavailable:
		for _, marker := range challengeMarkers {
			if strings.Contains(lower, marker) {
				return SignalChallenge, fmt.Sprintf("status=%d marker=%s", status, marker)
			}
		}
		return SignalRateLimited, fmt.Sprintf("status=%d", status)
	}
	if hasBaseline && latency > time.Duration(float64(baseline)*c.BaselineMultiple) {
		return SignalRateLimited, fmt.Sprintf("latency=%v baseline=%v", latency, baseline)
	}
	return SignalOK, fmt.Sprintf("status=%d", status)
}

// Prober issues probes against the configured target.
type Prober struct {
	cfg        config.Probe
	target     string
	client     *http.Client
	classifier Classifier
	baseline   Baseline
	logger     logging.Logger
	sink       events.Sink
}

// NewProber builds a prober for the target URL. A nil classifier selects
// DefaultClassifier.
func NewProber(cfg config.Probe, target string, classifier Classifier, logger logging.Logger, sink events.Sink) (*Prober, error) {
	if target == "" {
		return nil, fmt.Errorf("prober requires a target URL")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	if classifier == nil {
		classifier = &DefaultClassifier{BaselineMultiple: cfg.BaselineMultiple}
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: cfg.Timeout,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, // lab targets use self-signed certs
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to configure probe transport: %w", err)
	}

	return &Prober{
		cfg:    cfg,
		target: target,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		classifier: classifier,
		logger:     logger.With("component", "probe"),
		sink:       sink,
	}, nil
}

// Probe sends one minimal request and classifies the outcome. Network
// failures and expirations come back as timeout results; Probe never
// returns an error.
func (p *Prober) Probe(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return p.finish(Result{Timestamp: time.Now(), Signal: SignalTimeout, RawIndicator: err.Error()})
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return p.finish(Result{
			Timestamp:    time.Now(),
			Latency:      latency,
			Signal:       SignalTimeout,
			RawIndicator: err.Error(),
		})
	}
	defer func() { _ = resp.Body.Close() }()

	// Only the head of the body matters for marker detection.
	bodyHead, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	baseline, hasBaseline := p.baseline.Value()
	signal, raw := p.classifier.Classify(resp.StatusCode, string(bodyHead), latency, baseline, hasBaseline)
	if signal == SignalOK {
		p.baseline.Observe(latency)
	}
	return p.finish(Result{
		Timestamp:    time.Now(),
		Latency:      latency,
		Signal:       signal,
		RawIndicator: raw,
	})
}

func (p *Prober) finish(res Result) Result {
	p.logger.Debug("probe completed", "signal", string(res.Signal), "latency", res.Latency, "raw", res.RawIndicator)
	events.Emit(p.sink, "probe", events.TypeProbeResult, map[string]interface{}{
		"signal":  string(res.Signal),
		"latency": res.Latency.String(),
	})
	return res
}

// BaselineValue exposes the current latency baseline for status reporting.
func (p *Prober) BaselineValue() (time.Duration, bool) {
	return p.baseline.Value()
}
