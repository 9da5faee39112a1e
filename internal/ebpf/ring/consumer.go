// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ring drains the classifier's per-CPU perf event array and decodes
// each record into an AppPacket for the rest of user space to consume.
package ring

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/perf"

	"oryx.sh/oryx/internal/diag"
	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/ebpf/types"
	"oryx.sh/oryx/internal/logging"
)

// DefaultPerCPUBufferBytes sizes each CPU's slice of the perf ring.
const DefaultPerCPUBufferBytes = 1 << 20 // 1 MiB per CPU

// Consumer drains a perf event array, round-robining across CPUs the way
// perf.Reader already does internally, and emits decoded AppPackets on Out.
type Consumer struct {
	reader *perf.Reader
	out    chan types.AppPacket

	logger *logging.Logger
	meter  *diag.Meter
}

// NewConsumer opens a perf reader over m. bufferBytes is the per-CPU ring
// size; 0 selects DefaultPerCPUBufferBytes.
func NewConsumer(m *ebpf.Map, bufferBytes int, logger *logging.Logger, meter *diag.Meter) (*Consumer, error) {
	if bufferBytes <= 0 {
		bufferBytes = DefaultPerCPUBufferBytes
	}

	rd, err := perf.NewReader(m, bufferBytes)
	if err != nil {
		return nil, oryxerrors.Setup(fmt.Errorf("open perf reader: %w", err))
	}

	return &Consumer{
		reader: rd,
		out:    make(chan types.AppPacket, 4096),
		logger: logger,
		meter:  meter,
	}, nil
}

// Out returns the channel decoded packets are published to. Closed once Run
// returns.
func (c *Consumer) Out() <-chan types.AppPacket { return c.out }

// Run drains the ring until ctx is cancelled or the reader is closed. It
// blocks, so callers should invoke it from its own goroutine.
func (c *Consumer) Run(ctx context.Context) error {
	defer close(c.out)

	go func() {
		<-ctx.Done()
		c.reader.Close()
	}()

	for {
		record, err := c.reader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return nil
			}
			c.meter.Record(oryxerrors.Runtime(fmt.Errorf("perf read: %w", err)))
			continue
		}

		if record.LostSamples > 0 {
			c.logger.Warn("ring buffer dropped samples", "lost", record.LostSamples, "cpu", record.CPU)
			continue
		}

		pkt, err := decode(record.RawSample)
		if err != nil {
			c.meter.Record(oryxerrors.Runtime(fmt.Errorf("decode app_packet: %w", err)))
			continue
		}

		select {
		case c.out <- pkt:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the underlying perf reader directly, without waiting for
// ctx cancellation; Run's goroutine sees perf.ErrClosed and exits.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// decode turns a raw ring record into the ergonomic AppPacket type,
// stamping the wall-clock dequeue time since the kernel leaves Timestamp 0.
func decode(raw []byte) (types.AppPacket, error) {
	if len(raw) < types.AppPacketRawSize {
		return types.AppPacket{}, fmt.Errorf("short record: %d bytes, want %d", len(raw), types.AppPacketRawSize)
	}

	var wire types.AppPacketRaw
	if err := binary.Read(bytes.NewReader(raw), types.ByteOrder(), &wire); err != nil {
		return types.AppPacket{}, fmt.Errorf("unmarshal app_packet: %w", err)
	}

	pkt := types.AppPacket{
		Timestamp: uint64(time.Now().Unix()),
		Direction: types.Direction(wire.Direction),
		PID:       wire.PID,
		SrcMAC:    net.HardwareAddr(append([]byte(nil), wire.SrcMAC[:]...)),
		DstMAC:    net.HardwareAddr(append([]byte(nil), wire.DstMAC[:]...)),
		EtherType: wire.EtherType,
	}

	transport := decodeTransport(types.TransportKind(wire.TransportKind), wire)

	switch types.NetworkKind(wire.NetworkKind) {
	case types.NetworkIPv4:
		pkt.Network = types.NetworkPayload{
			Kind: types.NetworkIPv4,
			Ipv4: &types.Ipv4Payload{
				Src:       net.IP(append([]byte(nil), wire.SrcIP[:4]...)),
				Dst:       net.IP(append([]byte(nil), wire.DstIP[:4]...)),
				TTL:       wire.TTLOrHopLimit,
				Protocol:  wire.ProtocolOrNextHdr,
				Transport: transport,
			},
		}
	case types.NetworkIPv6:
		pkt.Network = types.NetworkPayload{
			Kind: types.NetworkIPv6,
			Ipv6: &types.Ipv6Payload{
				Src:       net.IP(append([]byte(nil), wire.SrcIP[:]...)),
				Dst:       net.IP(append([]byte(nil), wire.DstIP[:]...)),
				HopLimit:  wire.TTLOrHopLimit,
				NextHdr:   wire.ProtocolOrNextHdr,
				Transport: transport,
			},
		}
	case types.NetworkARP:
		pkt.Network = types.NetworkPayload{
			Kind: types.NetworkARP,
			Arp: &types.ArpPayload{
				SenderHW: net.HardwareAddr(append([]byte(nil), wire.ArpSenderHW[:]...)),
				SenderIP: net.IP(append([]byte(nil), wire.ArpSenderIP[:]...)),
				TargetHW: net.HardwareAddr(append([]byte(nil), wire.ArpTargetHW[:]...)),
				TargetIP: net.IP(append([]byte(nil), wire.ArpTargetIP[:]...)),
				Op:       wire.ArpOp,
			},
		}
	}

	return pkt, nil
}

func decodeTransport(kind types.TransportKind, wire types.AppPacketRaw) types.TransportPayload {
	switch kind {
	case types.TransportTCP:
		return types.TransportPayload{Kind: kind, Tcp: &types.TcpPayload{
			SPort: wire.SPort, DPort: wire.DPort, Flags: wire.TCPFlags,
			Seq: wire.TCPSeq, Ack: wire.TCPAck, Window: wire.TCPWindow,
		}}
	case types.TransportUDP:
		return types.TransportPayload{Kind: kind, Udp: &types.UdpPayload{
			SPort: wire.SPort, DPort: wire.DPort, Length: wire.UDPLength,
		}}
	case types.TransportICMP:
		return types.TransportPayload{Kind: kind, Icmp: &types.IcmpPayload{
			Type: wire.ICMPType, Code: wire.ICMPCode,
		}}
	case types.TransportICMPv6:
		return types.TransportPayload{Kind: kind, Icmpv6: &types.IcmpPayload{
			Type: wire.ICMPType, Code: wire.ICMPCode,
		}}
	case types.TransportSCTP:
		return types.TransportPayload{Kind: kind, Sctp: &types.SctpPayload{
			SPort: wire.SPort, DPort: wire.DPort, VerificationTag: wire.SCTPVerificationTag,
		}}
	default:
		return types.TransportPayload{Kind: types.TransportUnknown, Unknown: &types.UnknownPayload{
			ProtocolNumber: wire.UnknownProtocolNumber,
		}}
	}
}
