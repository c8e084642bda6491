package emit

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gofeint/gofeint/core/connstate"
	"github.com/gofeint/gofeint/pkg/entropy"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Ephemeral source port range for crafted segments.
const (
	ephemeralPortMin = 1024
	ephemeralPortMax = 65534
)

// SYNBuilder serializes half-open handshake segments from connection
// records.
type SYNBuilder struct {
	rng *entropy.Source
}

// NewSYNBuilder returns a builder drawing ephemeral ports from rng.
func NewSYNBuilder(rng *entropy.Source) (*SYNBuilder, error) {
	if rng == nil {
		return nil, fmt.Errorf("syn builder requires an entropy source")
	}
	return &SYNBuilder{rng: rng}, nil
}

// BuildSYN serializes an IPv4/TCP SYN segment carrying the record's
// sequence number, window size, and TTL, with checksums computed.
func (b *SYNBuilder) BuildSYN(rec *connstate.Record, dst netip.Addr, dstPort uint16) ([]byte, error) {
	ipLayer := &layers.IPv4{
		Version:  4,
		TTL:      rec.TTL,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP(rec.Source.Addr.AsSlice()),
		DstIP:    net.IP(dst.AsSlice()),
	}
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(b.rng.IntRange(ephemeralPortMin, ephemeralPortMax)),
		DstPort: layers.TCPPort(dstPort),
		Seq:     rec.SequenceNumber,
		SYN:     true,
		Window:  rec.WindowSize,
	}
	if err := tcpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, fmt.Errorf("failed to bind checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ipLayer, tcpLayer); err != nil {
		return nil, fmt.Errorf("failed to serialize syn segment: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildAck serializes a bare ACK segment for the record, used as filler that
// resembles an established flow's keepalive.
func (b *SYNBuilder) BuildAck(rec *connstate.Record, dst netip.Addr, dstPort uint16) ([]byte, error) {
	ipLayer := &layers.IPv4{
		Version:  4,
		TTL:      rec.TTL,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP(rec.Source.Addr.AsSlice()),
		DstIP:    net.IP(dst.AsSlice()),
	}
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(b.rng.IntRange(ephemeralPortMin, ephemeralPortMax)),
		DstPort: layers.TCPPort(dstPort),
		Seq:     rec.SequenceNumber + 1,
		Ack:     b.rng.Uint32(),
		ACK:     true,
		Window:  rec.WindowSize,
	}
	if err := tcpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, fmt.Errorf("failed to bind checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ipLayer, tcpLayer); err != nil {
		return nil, fmt.Errorf("failed to serialize ack segment: %w", err)
	}
	return buf.Bytes(), nil
}
