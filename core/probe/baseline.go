package probe

import (
	"sort"
	"time"
)

// baselineSampleCap bounds how many healthy latencies the baseline keeps.
const baselineSampleCap = 32

// trimFraction is the share of outliers removed from each end before the
// median is taken.
const trimFraction = 0.1

// Baseline tracks the target's healthy round-trip latency as a trimmed
// median over a bounded sliding sample. Until enough samples exist it
// reports no baseline and the latency rule stays quiet.
type Baseline struct {
	samples []time.Duration
}

// minBaselineSamples is how many healthy observations are needed before the
// baseline is considered seeded.
const minBaselineSamples = 3

// Observe records one healthy-probe latency.
func (b *Baseline) Observe(latency time.Duration) {
	b.samples = append(b.samples, latency)
	if len(b.samples) > baselineSampleCap {
		b.samples = b.samples[len(b.samples)-baselineSampleCap:]
	}
}

// Value returns the trimmed-median baseline, or false while unseeded.
func (b *Baseline) Value() (time.Duration, bool) {
	if len(b.samples) < minBaselineSamples {
		return 0, false
	}
	sorted := make([]time.Duration, len(b.samples))
	copy(sorted, b.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	trim := int(float64(len(sorted)) * trimFraction)
	trimmed := sorted[trim : len(sorted)-trim]
	return trimmed[len(trimmed)/2], true
}
