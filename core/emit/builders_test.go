package emit_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/connstate"
	"github.com/gofeint/gofeint/core/emit"
	"github.com/gofeint/gofeint/core/fingerprint"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/rotation"
	"github.com/gofeint/gofeint/pkg/entropy"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(t *testing.T) *connstate.Record {
	t.Helper()
	sim, err := connstate.NewSimulator(config.Connections{
		MaxTracked:      16,
		MaxAge:          time.Minute,
		ResponseTimeout: 5 * time.Second,
		WindowMin:       1024,
		WindowMax:       65535,
	}, entropy.New(4), nil, events.NewNopSink())
	require.NoError(t, err)
	return sim.Open(rotation.SourceAddress{
		Addr:   netip.MustParseAddr("10.20.30.40"),
		Origin: rotation.OriginFresh,
	})
}

func TestBuildSYN_round_trips_through_gopacket(t *testing.T) {
	b, err := emit.NewSYNBuilder(entropy.New(9))
	require.NoError(t, err)

	rec := testRecord(t)
	payload, err := b.BuildSYN(rec, netip.MustParseAddr("192.168.56.10"), 80)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	pkt := gopacket.NewPacket(payload, layers.LayerTypeIPv4, gopacket.Default)
	ipLayer, ok := pkt.NetworkLayer().(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, "10.20.30.40", ipLayer.SrcIP.String())
	assert.Equal(t, "192.168.56.10", ipLayer.DstIP.String())
	assert.Equal(t, rec.TTL, ipLayer.TTL)

	tcpLayer, ok := pkt.TransportLayer().(*layers.TCP)
	require.True(t, ok)
	assert.True(t, tcpLayer.SYN)
	assert.False(t, tcpLayer.ACK)
	assert.Equal(t, rec.SequenceNumber, tcpLayer.Seq)
	assert.Equal(t, rec.WindowSize, tcpLayer.Window)
}

func TestBuildAck_is_a_plain_ack_segment(t *testing.T) {
	b, err := emit.NewSYNBuilder(entropy.New(9))
	require.NoError(t, err)

	payload, err := b.BuildAck(testRecord(t), netip.MustParseAddr("192.168.56.10"), 80)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(payload, layers.LayerTypeIPv4, gopacket.Default)
	tcpLayer, ok := pkt.TransportLayer().(*layers.TCP)
	require.True(t, ok)
	assert.True(t, tcpLayer.ACK)
	assert.False(t, tcpLayer.SYN)
}

func TestBuildRequest_carries_session_attributes(t *testing.T) {
	attrs := fingerprint.Attributes{
		UserAgent:      "agent-x",
		Accept:         "text/html",
		AcceptLanguage: "en-US",
		Referrer:       "https://www.google.com/",
		CookieEnabled:  true,
	}
	raw := string(emit.BuildRequest(attrs, "192.168.56.10:8080", "/products", "sid=abcd1234"))

	assert.Contains(t, raw, "GET /products HTTP/1.1\r\n")
	assert.Contains(t, raw, "Host: 192.168.56.10:8080\r\n")
	assert.Contains(t, raw, "User-Agent: agent-x\r\n")
	assert.Contains(t, raw, "Referer: https://www.google.com/\r\n")
	assert.Contains(t, raw, "Cookie: sid=abcd1234\r\n")
	assert.Contains(t, raw, "\r\n\r\n")
}

func TestBuildRequest_omits_referrer_and_cookie_when_absent(t *testing.T) {
	attrs := fingerprint.Attributes{UserAgent: "agent-y", Accept: "*/*", AcceptLanguage: "en"}
	raw := string(emit.BuildRequest(attrs, "192.168.56.10", "/", ""))
	assert.NotContains(t, raw, "Referer:")
	assert.NotContains(t, raw, "Cookie:")
}

func TestBuildSlowPost_declares_content_length(t *testing.T) {
	attrs := fingerprint.Attributes{UserAgent: "agent-z", Accept: "*/*", AcceptLanguage: "en"}
	raw := string(emit.BuildSlowPost(attrs, "192.168.56.10", "/api/v1/items", 4096))
	assert.Contains(t, raw, "POST /api/v1/items HTTP/1.1\r\n")
	assert.Contains(t, raw, "Content-Length: 4096\r\n")
}

func TestBuildClientHello_matches_fingerprint_family(t *testing.T) {
	chrome := fingerprint.Attributes{UserAgent: "Mozilla/5.0 Chrome/120.0.0.0"}
	firefox := fingerprint.Attributes{UserAgent: "Mozilla/5.0 Firefox/121.0"}

	chromeHello, err := emit.BuildClientHello(chrome, "192.168.56.10")
	require.NoError(t, err)
	firefoxHello, err := emit.BuildClientHello(firefox, "192.168.56.10")
	require.NoError(t, err)

	assert.NotEmpty(t, chromeHello)
	assert.NotEmpty(t, firefoxHello)
	// Different browser families produce different handshake shapes.
	assert.NotEqual(t, chromeHello, firefoxHello)

	_, err = emit.BuildClientHello(chrome, "")
	assert.Error(t, err)
}

func TestPlanChunks_covers_total_bytes_in_tiny_pieces(t *testing.T) {
	plan, err := emit.PlanChunks(entropy.New(6), 64)
	require.NoError(t, err)

	assert.Equal(t, 64, plan.TotalBytes())
	require.Equal(t, len(plan.Sizes), len(plan.Gaps))
	for i, size := range plan.Sizes {
		assert.GreaterOrEqual(t, size, 1)
		assert.LessOrEqual(t, size, 8)
		assert.Greater(t, plan.Gaps[i], time.Duration(0))
		assert.Less(t, plan.Gaps[i], time.Second)
	}

	_, err = emit.PlanChunks(entropy.New(6), 0)
	assert.Error(t, err)
}

func TestChunkPayload_has_requested_size(t *testing.T) {
	assert.Len(t, emit.ChunkPayload(5), 5)
}
