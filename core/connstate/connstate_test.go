package connstate

import (
	"net/netip"
	"testing"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/rotation"
	"github.com/gofeint/gofeint/pkg/entropy"
	"github.com/gofeint/gofeint/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddr() rotation.SourceAddress {
	return rotation.SourceAddress{
		Addr:   netip.MustParseAddr("10.1.2.3"),
		Origin: rotation.OriginFresh,
	}
}

func testConns() config.Connections {
	return config.Connections{
		MaxTracked:      4,
		MaxAge:          30 * time.Second,
		ResponseTimeout: 5 * time.Second,
		WindowMin:       1024,
		WindowMax:       65535,
	}
}

func newTestSimulator(t *testing.T, clk *testutils.ManualClock) *Simulator {
	t.Helper()
	sim, err := NewSimulator(testConns(), entropy.New(11), clk, events.NewNopSink())
	require.NoError(t, err)
	return sim
}

func TestOpen_advances_to_syn_sent_with_randomized_fields(t *testing.T) {
	clk := testutils.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	sim := newTestSimulator(t, clk)

	rec := sim.Open(testAddr())
	assert.Equal(t, StateSynSent, rec.State)
	assert.GreaterOrEqual(t, int(rec.TTL), 64)
	assert.LessOrEqual(t, int(rec.TTL), 128)
	assert.GreaterOrEqual(t, int(rec.WindowSize), 1024)
	assert.Equal(t, clk.Now(), rec.CreatedAt)
}

func TestOnResponse_ack_moves_to_half_open_and_no_further(t *testing.T) {
	clk := testutils.NewManualClock(time.Now())
	sim := newTestSimulator(t, clk)

	rec := sim.Open(testAddr())
	sim.OnResponse(rec, SignalAck)
	assert.Equal(t, StateHalfOpen, rec.State)

	// Further signals never advance a half-open record.
	sim.OnResponse(rec, SignalAck)
	assert.Equal(t, StateHalfOpen, rec.State)
}

func TestSweep_times_out_unanswered_syn_sent(t *testing.T) {
	clk := testutils.NewManualClock(time.Now())
	sim := newTestSimulator(t, clk)

	rec := sim.Open(testAddr())
	clk.Advance(6 * time.Second)
	sim.Sweep()
	assert.Equal(t, StateTimedOut, rec.State)

	// A timed-out record no longer reacts to responses.
	sim.OnResponse(rec, SignalAck)
	assert.Equal(t, StateTimedOut, rec.State)
}

func TestStates_never_leave_the_simulated_set(t *testing.T) {
	clk := testutils.NewManualClock(time.Now())
	sim := newTestSimulator(t, clk)
	rng := entropy.New(5)

	valid := map[State]bool{
		StateInit: true, StateSynSent: true, StateHalfOpen: true, StateTimedOut: true,
	}

	var records []*Record
	for i := 0; i < 200; i++ {
		rec := sim.Open(testAddr())
		records = append(records, rec)
		if rng.Chance(0.4) {
			sim.OnResponse(rec, SignalAck)
		}
		if rng.Chance(0.2) {
			clk.Advance(2 * time.Second)
			sim.Sweep()
		}
	}
	for _, rec := range records {
		assert.True(t, valid[rec.State], "record escaped to state %v", rec.State)
	}
}

func TestTracking_evicts_oldest_beyond_cap(t *testing.T) {
	clk := testutils.NewManualClock(time.Now())
	sim := newTestSimulator(t, clk)

	for i := 0; i < 10; i++ {
		sim.Open(testAddr())
	}
	assert.Equal(t, 4, sim.Tracked())
}

func TestSweep_evicts_past_age_cap(t *testing.T) {
	clk := testutils.NewManualClock(time.Now())
	sim := newTestSimulator(t, clk)

	sim.Open(testAddr())
	clk.Advance(31 * time.Second)
	sim.Sweep()
	assert.Equal(t, 0, sim.Tracked())
}
