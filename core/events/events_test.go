package events

import (
	"testing"

	"github.com/gofeint/gofeint/testutils"

	"github.com/stretchr/testify/assert"
)

func TestChannelSink_buffers_and_drops(t *testing.T) {
	sink := NewChannelSink(2)

	Emit(sink, "rotator", TypeRotation, map[string]interface{}{"origin": "fresh"})
	Emit(sink, "rotator", TypeRotation, map[string]interface{}{"origin": "pooled"})
	Emit(sink, "rotator", TypeRotation, nil)

	got := sink.Drain()
	assert.Len(t, got, 2)
	assert.Equal(t, 1, sink.Dropped())
	assert.Equal(t, TypeRotation, got[0].Type)
	assert.Equal(t, "rotator", got[0].Component)
	assert.Equal(t, "fresh", got[0].Details["origin"])
}

func TestLogSink_does_not_panic_on_nil_details(t *testing.T) {
	sink := NewLogSink(testutils.NewTestLogger())
	assert.NotPanics(t, func() {
		Emit(sink, "coordinator", TypeEngineState, nil)
	})
}

func TestEmit_nil_sink_is_noop(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, "probe", TypeProbeResult, nil)
	})
}
