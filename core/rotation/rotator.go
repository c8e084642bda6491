// Package rotation supplies the rotating pool of private-range source
// identities attack vectors stamp onto their traffic. Identities are sticky
// for a small randomized number of uses, then rotate either to a previously
// seen pool entry or to a freshly synthesized address, so the source mix
// looks like a stable population of hosts rather than a random spray.
package rotation

import (
	"container/list"
	"fmt"
	"net/netip"
	"sync"

	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/security"
	"github.com/gofeint/gofeint/pkg/entropy"
)

// Origin tags how a SourceAddress was obtained.
type Origin string

const (
	// OriginPooled marks an address reused from the pool.
	OriginPooled Origin = "pooled"
	// OriginFresh marks a newly synthesized address.
	OriginFresh Origin = "fresh"
)

// SourceAddress is one source identity drawn from the rotator.
type SourceAddress struct {
	Addr   netip.Addr
	Origin Origin
}

// Rotation thresholds: a fresh threshold is drawn from this inclusive range
// after every rotation, so rotation happens at least once per 20 and at most
// once per 10 calls.
const (
	thresholdMin = 10
	thresholdMax = 20
)

// reuseProbability is the chance a rotation reuses a pooled address instead
// of synthesizing a fresh one.
const reuseProbability = 0.7

// Rotator hands out source addresses, rotating the active identity on a
// randomized call cadence. It is owned by a single vector and is not safe
// for concurrent use.
type Rotator struct {
	rng   *entropy.Source
	guard *security.EgressGuard
	sink  events.Sink

	capacity int
	pool     *list.List // of netip.Addr, front = most recently used

	current        SourceAddress
	callsSinceRoll int
	threshold      int
	speed          float64

	mu sync.Mutex
}

// NewRotator builds a rotator with the given pool capacity. The guard may be
// nil when range enforcement is handled elsewhere (tests).
func NewRotator(capacity int, rng *entropy.Source, guard *security.EgressGuard, sink events.Sink) (*Rotator, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("rotator pool capacity must be positive, got %d", capacity)
	}
	if rng == nil {
		return nil, fmt.Errorf("rotator requires an entropy source")
	}
	return &Rotator{
		rng:      rng,
		guard:    guard,
		sink:     sink,
		capacity: capacity,
		pool:     list.New(),
		speed:    1.0,
	}, nil
}

// SetSpeed scales how quickly the rotator cycles identities. Speeds above
// 1.0 shrink the rotation thresholds proportionally; the adaptation loop
// raises it when the target starts blocking.
func (r *Rotator) SetSpeed(speed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if speed < 1.0 {
		speed = 1.0
	}
	r.speed = speed
}

// Next returns the source address for the next traffic unit, rotating the
// active identity when the per-rotation call threshold is exceeded.
func (r *Rotator) Next() SourceAddress {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.threshold == 0 || r.callsSinceRoll >= r.threshold {
		r.rotate()
	}
	r.callsSinceRoll++
	return r.current
}

func (r *Rotator) rotate() {
	if r.pool.Len() > 0 && r.rng.Chance(reuseProbability) {
		idx := r.rng.Intn(r.pool.Len())
		e := r.pool.Front()
		for i := 0; i < idx; i++ {
			e = e.Next()
		}
		r.pool.MoveToFront(e)
		r.current = SourceAddress{Addr: e.Value.(netip.Addr), Origin: OriginPooled}
	} else {
		addr := r.synthesize()
		r.pool.PushFront(addr)
		if r.pool.Len() > r.capacity {
			r.pool.Remove(r.pool.Back())
		}
		r.current = SourceAddress{Addr: addr, Origin: OriginFresh}
	}

	r.callsSinceRoll = 0
	effMin, effMax := r.effectiveThresholds()
	r.threshold = r.rng.IntRange(effMin, effMax)

	events.Emit(r.sink, "rotator", events.TypeRotation, map[string]interface{}{
		"address":   r.current.Addr.String(),
		"origin":    string(r.current.Origin),
		"threshold": r.threshold,
		"pool_size": r.pool.Len(),
	})
}

func (r *Rotator) effectiveThresholds() (int, int) {
	min := int(float64(thresholdMin) / r.speed)
	max := int(float64(thresholdMax) / r.speed)
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return min, max
}

// synthesize draws an address uniformly from one of the three private
// ranges. Host bits avoid .0 and .255 in the final octet so the addresses
// read as plausible hosts.
func (r *Rotator) synthesize() netip.Addr {
	var b [4]byte
	switch r.rng.Intn(3) {
	case 0: // 10.0.0.0/8
		b = [4]byte{10, byte(r.rng.Intn(256)), byte(r.rng.Intn(256)), byte(r.rng.IntRange(1, 254))}
	case 1: // 172.16.0.0/12
		b = [4]byte{172, byte(r.rng.IntRange(16, 31)), byte(r.rng.Intn(256)), byte(r.rng.IntRange(1, 254))}
	default: // 192.168.0.0/16
		b = [4]byte{192, 168, byte(r.rng.Intn(256)), byte(r.rng.IntRange(1, 254))}
	}
	addr := netip.AddrFrom4(b)
	if r.guard != nil {
		// Synthesis is range-correct by construction; the guard records
		// anything that slips through as an invariant breach.
		_ = r.guard.CheckSource(addr)
	}
	return addr
}

// PoolSize reports how many distinct addresses the pool currently holds.
func (r *Rotator) PoolSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Len()
}
