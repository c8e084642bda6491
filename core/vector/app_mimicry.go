package vector

import (
	"context"
	"fmt"

	"github.com/gofeint/gofeint/core/behavior"
	"github.com/gofeint/gofeint/core/emit"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/fingerprint"
	"github.com/gofeint/gofeint/core/metrics"
	"github.com/gofeint/gofeint/pkg/entropy"
	"github.com/gofeint/gofeint/pkg/logging"
)

// AppMimicry emits application-layer requests that reuse one stable session
// identity at a time, opening each new session with a browser-matched TLS
// ClientHello.
type AppMimicry struct {
	*loop
	target   Target
	sessions *fingerprint.Manager

	// lastToken detects session rotation so the next unit re-opens with a
	// fresh ClientHello.
	lastToken string
}

// NewAppMimicry wires the technique from its leaves.
func NewAppMimicry(target Target, sessions *fingerprint.Manager, timing *behavior.Model,
	emitter emit.Emitter, counters *metrics.Vector, logger logging.Logger,
	sink events.Sink, rng *entropy.Source) (*AppMimicry, error) {
	if sessions == nil {
		return nil, fmt.Errorf("app-layer-mimicry requires a session manager")
	}
	l, err := newLoop(NameAppMimicry, timing, emitter, counters, logger, sink, rng)
	if err != nil {
		return nil, err
	}
	return &AppMimicry{loop: l, target: target, sessions: sessions}, nil
}

// Name implements Vector.
func (v *AppMimicry) Name() string {
	return NameAppMimicry
}

// Run implements Vector.
func (v *AppMimicry) Run(ctx context.Context, state StateReader) {
	v.loop.run(ctx, state, v.step)
}

func (v *AppMimicry) step(_ context.Context, _ Snapshot, attack bool) (*emit.Unit, error) {
	profile := v.sessions.Current()
	attrs := fingerprint.ForSession(profile)

	// A new session opens with the ClientHello its browser family would
	// send; subsequent units ride the simulated connection.
	if profile.IdentityToken != v.lastToken {
		v.lastToken = profile.IdentityToken
		hello, err := emit.BuildClientHello(attrs, v.target.Hostname)
		if err != nil {
			return nil, err
		}
		return &emit.Unit{Kind: emit.KindHello, Payload: hello, Dest: v.target.Host}, nil
	}

	v.sessions.OnRequest(profile)

	var path string
	if attack {
		// Attack units hammer the session's preferred paths with
		// cache-busting queries so every request does origin work.
		path = fmt.Sprintf("%s?t=%d", entropy.Pick(v.rng, profile.PreferredPaths), v.rng.Uint32())
	} else {
		path = "/"
	}

	cookie := ""
	if attrs.CookieEnabled {
		cookie = profile.CookieState
	}
	payload := emit.BuildRequest(attrs, v.target.Host, path, cookie)

	kind := emit.KindRequest
	if !attack {
		kind = emit.KindFiller
	}
	return &emit.Unit{Kind: kind, Payload: payload, Dest: v.target.Host}, nil
}
