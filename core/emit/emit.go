//go:generate mockgen -package=emitmock -destination=../../testutils/emitmock/mock_emitter.go github.com/gofeint/gofeint/core/emit Emitter

// Package emit is the engine's traffic boundary. Vectors build Units and
// hand them to an Emitter; the environment supplies its own Emitter or
// selects one of the reference implementations. Emission failures surface as
// TransientIOError so callers can retry a bounded number of times and then
// drop the unit.
package emit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/gofeint/gofeint/core/config"
)

// Kind classifies what a Unit represents on the wire.
type Kind string

const (
	// KindSYN is a crafted half-open handshake segment.
	KindSYN Kind = "syn"
	// KindRequest is an application-layer request.
	KindRequest Kind = "request"
	// KindHello is a TLS ClientHello opening a simulated connection.
	KindHello Kind = "hello"
	// KindChunk is one tiny slow-read body chunk.
	KindChunk Kind = "chunk"
	// KindFiller is a legitimate-looking unit emitted on skipped attack
	// iterations.
	KindFiller Kind = "filler"
)

// Unit is one emitted piece of traffic.
type Unit struct {
	Vector  string
	Kind    Kind
	Payload []byte
	Source  netip.Addr
	Dest    string
}

// Emitter consumes built traffic units. Implementations must be safe for
// concurrent use; every vector shares one emitter chain.
type Emitter interface {
	Emit(ctx context.Context, unit *Unit) error
	Close() error
}

// TransientIOError marks an emission failure worth retrying. It never
// escapes the vector loop; after bounded retries the unit is dropped and
// counted.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient emission failure during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}

// discardEmitter counts nothing and writes nowhere; the simulation default.
type discardEmitter struct{}

// NewDiscard returns the emitter used when traffic only needs to be built,
// not delivered anywhere.
func NewDiscard() Emitter {
	return discardEmitter{}
}

func (discardEmitter) Emit(ctx context.Context, unit *Unit) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (discardEmitter) Close() error { return nil }

// udpEmitter datagrams unit payloads to a lab sink socket. Write failures
// are transient; the socket is re-dialed on the next emission.
type udpEmitter struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// NewUDP returns an emitter writing payloads to the given lab sink address.
func NewUDP(addr string) (Emitter, error) {
	if addr == "" {
		return nil, fmt.Errorf("udp emitter requires an address")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("udp emitter address '%s' is invalid: %w", addr, err)
	}
	return &udpEmitter{addr: addr}, nil
}

func (e *udpEmitter) Emit(ctx context.Context, unit *Unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		conn, err := net.Dial("udp", e.addr)
		if err != nil {
			return &TransientIOError{Op: "dial", Err: err}
		}
		e.conn = conn
	}
	if _, err := e.conn.Write(unit.Payload); err != nil {
		_ = e.conn.Close()
		e.conn = nil
		return &TransientIOError{Op: "write", Err: err}
	}
	return nil
}

func (e *udpEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

// NewFromConfig selects a reference emitter from validated config.
func NewFromConfig(cfg config.Emitter) (Emitter, error) {
	switch cfg.Kind {
	case "", "discard":
		return NewDiscard(), nil
	case "udp":
		return NewUDP(cfg.Addr)
	default:
		return nil, fmt.Errorf("emitter kind '%s' is not supported", cfg.Kind)
	}
}
