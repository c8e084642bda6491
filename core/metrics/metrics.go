// Package metrics tracks per-vector emission counters and probe/adaptation
// tallies. Counters are plain atomics so status snapshots are cheap; the Set
// doubles as a prometheus.Collector for optional scraping.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// VectorCounters are the per-technique emission tallies reported by status.
type VectorCounters struct {
	Emitted uint64 `json:"emitted"`
	Filler  uint64 `json:"filler"`
	Dropped uint64 `json:"dropped"`
	Retries uint64 `json:"retries"`
}

type vectorCounters struct {
	emitted atomic.Uint64
	filler  atomic.Uint64
	dropped atomic.Uint64
	retries atomic.Uint64
}

// Set aggregates all engine counters for one run. The zero value is not
// usable; construct with NewSet.
type Set struct {
	mu      sync.Mutex
	vectors map[string]*vectorCounters

	probeBySignal sync.Map // signal string -> *atomic.Uint64
	decisions     sync.Map // reason string -> *atomic.Uint64

	descEmitted   *prometheus.Desc
	descFiller    *prometheus.Desc
	descDropped   *prometheus.Desc
	descRetries   *prometheus.Desc
	descProbes    *prometheus.Desc
	descDecisions *prometheus.Desc
}

// NewSet returns an empty counter set.
func NewSet() *Set {
	return &Set{
		vectors: make(map[string]*vectorCounters),
		descEmitted: prometheus.NewDesc("gofeint_units_emitted_total",
			"Attack units emitted, per vector.", []string{"vector"}, nil),
		descFiller: prometheus.NewDesc("gofeint_units_filler_total",
			"Filler units emitted, per vector.", []string{"vector"}, nil),
		descDropped: prometheus.NewDesc("gofeint_units_dropped_total",
			"Units dropped after exhausting retries, per vector.", []string{"vector"}, nil),
		descRetries: prometheus.NewDesc("gofeint_emission_retries_total",
			"Emission retries, per vector.", []string{"vector"}, nil),
		descProbes: prometheus.NewDesc("gofeint_probe_results_total",
			"Probe results, per classified signal.", []string{"signal"}, nil),
		descDecisions: prometheus.NewDesc("gofeint_adaptation_decisions_total",
			"Adaptation decisions, per reason code.", []string{"reason"}, nil),
	}
}

// Vector returns the counter handle for a technique, creating it on first
// use. Handles are stable and safe to retain.
func (s *Set) Vector(name string) *Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	vc, ok := s.vectors[name]
	if !ok {
		vc = &vectorCounters{}
		s.vectors[name] = vc
	}
	return &Vector{name: name, c: vc}
}

// Vector is one technique's counter handle.
type Vector struct {
	name string
	c    *vectorCounters
}

// Name returns the technique name the handle counts for.
func (v *Vector) Name() string { return v.name }

// Emitted records one successfully emitted attack unit.
func (v *Vector) Emitted() { v.c.emitted.Add(1) }

// Filler records one emitted filler unit.
func (v *Vector) Filler() { v.c.filler.Add(1) }

// Dropped records one unit abandoned after retries.
func (v *Vector) Dropped() { v.c.dropped.Add(1) }

// Retry records one emission retry.
func (v *Vector) Retry() { v.c.retries.Add(1) }

func counter(m *sync.Map, key string) *atomic.Uint64 {
	if v, ok := m.Load(key); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := m.LoadOrStore(key, &atomic.Uint64{})
	return v.(*atomic.Uint64)
}

// ProbeResult tallies one classified probe outcome.
func (s *Set) ProbeResult(signal string) {
	counter(&s.probeBySignal, signal).Add(1)
}

// Decision tallies one adaptation decision by reason code.
func (s *Set) Decision(reason string) {
	counter(&s.decisions, reason).Add(1)
}

// ByVector returns a point-in-time copy of all per-vector counters.
func (s *Set) ByVector() map[string]VectorCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]VectorCounters, len(s.vectors))
	for name, vc := range s.vectors {
		out[name] = VectorCounters{
			Emitted: vc.emitted.Load(),
			Filler:  vc.filler.Load(),
			Dropped: vc.dropped.Load(),
			Retries: vc.retries.Load(),
		}
	}
	return out
}

// Describe implements prometheus.Collector.
func (s *Set) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.descEmitted
	ch <- s.descFiller
	ch <- s.descDropped
	ch <- s.descRetries
	ch <- s.descProbes
	ch <- s.descDecisions
}

// Collect implements prometheus.Collector, exporting the atomics as counter
// metrics at scrape time.
func (s *Set) Collect(ch chan<- prometheus.Metric) {
	s.mu.Lock()
	names := make([]string, 0, len(s.vectors))
	for name := range s.vectors {
		names = append(names, name)
	}
	sort.Strings(names)
	snapshot := make(map[string]VectorCounters, len(names))
	for _, name := range names {
		vc := s.vectors[name]
		snapshot[name] = VectorCounters{
			Emitted: vc.emitted.Load(),
			Filler:  vc.filler.Load(),
			Dropped: vc.dropped.Load(),
			Retries: vc.retries.Load(),
		}
	}
	s.mu.Unlock()

	for _, name := range names {
		vc := snapshot[name]
		ch <- prometheus.MustNewConstMetric(s.descEmitted, prometheus.CounterValue, float64(vc.Emitted), name)
		ch <- prometheus.MustNewConstMetric(s.descFiller, prometheus.CounterValue, float64(vc.Filler), name)
		ch <- prometheus.MustNewConstMetric(s.descDropped, prometheus.CounterValue, float64(vc.Dropped), name)
		ch <- prometheus.MustNewConstMetric(s.descRetries, prometheus.CounterValue, float64(vc.Retries), name)
	}
	s.probeBySignal.Range(func(k, v interface{}) bool {
		ch <- prometheus.MustNewConstMetric(s.descProbes, prometheus.CounterValue,
			float64(v.(*atomic.Uint64).Load()), k.(string))
		return true
	})
	s.decisions.Range(func(k, v interface{}) bool {
		ch <- prometheus.MustNewConstMetric(s.descDecisions, prometheus.CounterValue,
			float64(v.(*atomic.Uint64).Load()), k.(string))
		return true
	})
}
