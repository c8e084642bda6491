package emit

import (
	"fmt"
	"time"

	"github.com/gofeint/gofeint/pkg/entropy"
)

// Chunk plan bounds: slow-read bodies trickle in pieces of a few bytes with
// long gaps between them.
const (
	chunkSizeMin = 1
	chunkSizeMax = 8
	chunkGapMin  = 300 * time.Millisecond
	chunkGapMax  = 900 * time.Millisecond
)

// ChunkPlan schedules how a slow-read body is dribbled to the target.
type ChunkPlan struct {
	Sizes []int
	Gaps  []time.Duration
}

// TotalBytes is the declared content length the plan will eventually fill.
func (p *ChunkPlan) TotalBytes() int {
	var total int
	for _, s := range p.Sizes {
		total += s
	}
	return total
}

// PlanChunks splits totalBytes into tiny chunks with randomized gaps. The
// gap before chunk i is Gaps[i]; gaps stay short enough that cancellation is
// observed within the engine's polling bound.
func PlanChunks(rng *entropy.Source, totalBytes int) (*ChunkPlan, error) {
	if rng == nil {
		return nil, fmt.Errorf("chunk planning requires an entropy source")
	}
	if totalBytes <= 0 {
		return nil, fmt.Errorf("chunk plan requires a positive byte count, got %d", totalBytes)
	}
	plan := &ChunkPlan{}
	remaining := totalBytes
	for remaining > 0 {
		size := rng.IntRange(chunkSizeMin, chunkSizeMax)
		if size > remaining {
			size = remaining
		}
		plan.Sizes = append(plan.Sizes, size)
		plan.Gaps = append(plan.Gaps, rng.Duration(chunkGapMin, chunkGapMax))
		remaining -= size
	}
	return plan, nil
}

// ChunkPayload renders the bytes for one chunk. The content is neutral
// form-data filler; what matters is the size and pacing.
func ChunkPayload(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = 'a' + byte(i%26)
	}
	return b
}
