// Package security enforces the engine's containment policy at runtime: every
// synthesized source identity must fall inside an RFC1918 private range, and
// every emission must be directed at the single configured lab target.
package security

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"sync"
	"time"

	"github.com/gofeint/gofeint/pkg/logging"
)

// PrivateRanges are the only prefixes a synthesized source address may be
// drawn from.
var PrivateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// InPrivateRange reports whether addr falls inside one of the three RFC1918
// prefixes.
func InPrivateRange(addr netip.Addr) bool {
	for _, p := range PrivateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Violation records one rejected address or destination.
type Violation struct {
	Kind    string // "source" or "destination"
	Value   string
	Time    time.Time
	Blocked bool
}

// EgressGuard validates sources and destinations before traffic is built or
// emitted. In strict mode violations return errors the engine treats as
// invariant violations; otherwise they are recorded and logged only.
type EgressGuard struct {
	logger logging.Logger
	strict bool

	targetHost string

	mutex          sync.RWMutex
	history        []Violation
	maxHistorySize int
	alertCallback  func(Violation)
}

// GuardOptions tunes an EgressGuard.
type GuardOptions struct {
	Strict         bool
	MaxHistorySize int
	AlertCallback  func(Violation)
}

// DefaultGuardOptions returns the options production runs use.
func DefaultGuardOptions() *GuardOptions {
	return &GuardOptions{
		Strict:         true,
		MaxHistorySize: 100,
	}
}

// NewEgressGuard builds a guard bound to the configured target URL. The
// target's host is the only destination the guard admits.
func NewEgressGuard(target string, logger logging.Logger, opts *GuardOptions) (*EgressGuard, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if opts == nil {
		opts = DefaultGuardOptions()
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("egress guard requires a valid target URL, got '%s'", target)
	}
	host := u.Hostname()
	return &EgressGuard{
		logger:         logger.With("component", "egress_guard"),
		strict:         opts.Strict,
		targetHost:     host,
		maxHistorySize: opts.MaxHistorySize,
		alertCallback:  opts.AlertCallback,
	}, nil
}

// TargetHost returns the single admitted destination host.
func (g *EgressGuard) TargetHost() string {
	return g.targetHost
}

// CheckSource validates a synthesized source address. Public addresses are
// recorded as violations; in strict mode they are also rejected.
func (g *EgressGuard) CheckSource(addr netip.Addr) error {
	if InPrivateRange(addr) {
		return nil
	}
	g.record(Violation{Kind: "source", Value: addr.String(), Time: time.Now(), Blocked: g.strict})
	if g.strict {
		return fmt.Errorf("source address %s is outside the private ranges", addr)
	}
	return nil
}

// CheckDestination validates an emission destination, given as host or
// host:port. Anything other than the configured target is a violation.
func (g *EgressGuard) CheckDestination(dest string) error {
	host := dest
	if h, _, err := net.SplitHostPort(dest); err == nil {
		host = h
	}
	if host == g.targetHost {
		return nil
	}
	g.record(Violation{Kind: "destination", Value: dest, Time: time.Now(), Blocked: g.strict})
	if g.strict {
		return fmt.Errorf("destination %s is not the configured target %s", dest, g.targetHost)
	}
	return nil
}

func (g *EgressGuard) record(v Violation) {
	g.mutex.Lock()
	g.history = append(g.history, v)
	if len(g.history) > g.maxHistorySize {
		g.history = g.history[len(g.history)-g.maxHistorySize:]
	}
	cb := g.alertCallback
	g.mutex.Unlock()

	g.logger.Warn("egress policy violation",
		"kind", v.Kind, "value", v.Value, "blocked", v.Blocked)
	if cb != nil {
		cb(v)
	}
}

// Violations returns a copy of the recorded violation history.
func (g *EgressGuard) Violations() []Violation {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]Violation, len(g.history))
	copy(out, g.history)
	return out
}
