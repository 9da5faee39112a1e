// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package export is the Export Writer: it keeps a bounded ring of recently
// observed packets, subscribed through the Packet Bus like any other
// consumer, and appends a tab-separated snapshot to disk on command.
package export

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"oryx.sh/oryx/internal/bus"
	"oryx.sh/oryx/internal/diag"
	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/ebpf/types"
)

// DefaultRingSize bounds how many recent packets the writer keeps available
// for the next Export call.
const DefaultRingSize = 10000

// DefaultPath is where snapshots are appended, per spec.md §6.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "oryx", "capture")
}

// Writer holds the last N packets seen and appends them to disk on demand.
type Writer struct {
	mu   sync.Mutex
	ring []types.AppPacket
	head int
	size int

	meter *diag.Meter
}

// New creates a Writer with the given ring capacity (0 selects
// DefaultRingSize).
func New(capacity int, meter *diag.Meter) *Writer {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &Writer{
		ring:  make([]types.AppPacket, capacity),
		meter: meter,
	}
}

// Run subscribes to b and keeps the ring current until ctx is cancelled.
func (w *Writer) Run(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for {
		pkt, _, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		w.observe(pkt)
	}
}

func (w *Writer) observe(pkt types.AppPacket) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.ring[w.head%len(w.ring)] = pkt
	w.head++
	if w.size < len(w.ring) {
		w.size++
	}
}

// Export appends every currently buffered packet to path (DefaultPath() if
// empty) in oldest-first order and returns the path written. The file is
// never truncated; each call appends a new snapshot.
func (w *Writer) Export(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}

	w.mu.Lock()
	snapshot := make([]types.AppPacket, w.size)
	start := w.head - w.size
	for i := 0; i < w.size; i++ {
		snapshot[i] = w.ring[(start+i)%len(w.ring)]
	}
	w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		err = oryxerrors.Wrap(oryxerrors.ErrFilesystemIO, oryxerrors.KindRuntime, err.Error())
		w.recordFailure(err)
		return "", err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		err = oryxerrors.Wrap(oryxerrors.ErrFilesystemIO, oryxerrors.KindRuntime, err.Error())
		w.recordFailure(err)
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, pkt := range snapshot {
		sb.WriteString(formatLine(pkt))
		sb.WriteByte('\n')
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		err = oryxerrors.Wrap(oryxerrors.ErrFilesystemIO, oryxerrors.KindRuntime, err.Error())
		w.recordFailure(err)
		return "", err
	}

	return path, nil
}

func (w *Writer) recordFailure(err error) {
	if w.meter != nil {
		w.meter.Record(err)
	}
}

// formatLine renders pkt per spec.md §6:
// TIMESTAMP\tDIR\tPID\tSRC_MAC\tDST_MAC\tETH\tSRC_IP\tDST_IP\tPROTO\tSPORT\tDPORT\tFLAGS\tLEN
func formatLine(pkt types.AppPacket) string {
	var srcIP, dstIP net.IP
	var proto uint8
	var sport, dport uint16
	var flags uint8
	var length uint16

	switch pkt.Network.Kind {
	case types.NetworkIPv4:
		if p := pkt.Network.Ipv4; p != nil {
			srcIP, dstIP, proto = p.Src, p.Dst, p.Protocol
			sport, dport, flags, length = transportFields(p.Transport)
		}
	case types.NetworkIPv6:
		if p := pkt.Network.Ipv6; p != nil {
			srcIP, dstIP, proto = p.Src, p.Dst, p.NextHdr
			sport, dport, flags, length = transportFields(p.Transport)
		}
	case types.NetworkARP:
		if p := pkt.Network.Arp; p != nil {
			srcIP, dstIP = p.SenderIP, p.TargetIP
		}
	}

	fields := []string{
		strconv.FormatUint(pkt.Timestamp, 10),
		pkt.Direction.String(),
		strconv.FormatUint(uint64(pkt.PID), 10),
		pkt.SrcMAC.String(),
		pkt.DstMAC.String(),
		strconv.FormatUint(uint64(pkt.EtherType), 10),
		ipString(srcIP),
		ipString(dstIP),
		strconv.FormatUint(uint64(proto), 10),
		strconv.FormatUint(uint64(sport), 10),
		strconv.FormatUint(uint64(dport), 10),
		strconv.FormatUint(uint64(flags), 10),
		strconv.FormatUint(uint64(length), 10),
	}
	return strings.Join(fields, "\t")
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "-"
	}
	return ip.String()
}

func transportFields(t types.TransportPayload) (sport, dport uint16, flags uint8, length uint16) {
	switch t.Kind {
	case types.TransportTCP:
		if t.Tcp != nil {
			return t.Tcp.SPort, t.Tcp.DPort, t.Tcp.Flags, 0
		}
	case types.TransportUDP:
		if t.Udp != nil {
			return t.Udp.SPort, t.Udp.DPort, 0, t.Udp.Length
		}
	case types.TransportSCTP:
		if t.Sctp != nil {
			return t.Sctp.SPort, t.Sctp.DPort, 0, 0
		}
	}
	return 0, 0, 0, 0
}
