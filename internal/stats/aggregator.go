// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package stats is the Statistics Aggregator: the sole writer of rolling
// per-protocol and per-endpoint counters, exposed to readers only through
// read-only snapshot accessors guarded by a read-mostly lock.
package stats

import (
	"context"
	"net"
	"sort"
	"sync"

	"oryx.sh/oryx/internal/bus"
	"oryx.sh/oryx/internal/ebpf/types"
)

// TopN is the depth of the top-N source/destination/host tables.
const TopN = 10

// ProtocolCounters holds packet/byte totals for one link/network/transport
// protocol value.
type ProtocolCounters struct {
	Packets uint64
	Bytes   uint64
}

// saturatingAdd adds n to *c without wrapping past math.MaxUint64.
func saturatingAdd(c *uint64, n uint64) {
	if *c+n < *c {
		*c = ^uint64(0)
		return
	}
	*c += n
}

type endpointCount struct {
	key   string
	count uint64
	seq   uint64 // last-seen sequence number, for tie-break by recency
}

// Snapshot is an immutable copy of the aggregator's current state, safe to
// read without any lock.
type Snapshot struct {
	TotalPackets uint64
	TotalBytes   uint64

	ByTransport map[types.TransportKind]ProtocolCounters
	ByNetwork   map[types.NetworkKind]ProtocolCounters

	TopSourceIPs []Entry
	TopDestIPs   []Entry
	TopHosts     []Entry
}

// Entry is one row of a top-N table.
type Entry struct {
	Key   string
	Count uint64
}

// Aggregator is the only writer of these counters; every other task reads
// through Snapshot.
type Aggregator struct {
	mu sync.RWMutex

	totalPackets uint64
	totalBytes   uint64

	byTransport map[types.TransportKind]*ProtocolCounters
	byNetwork   map[types.NetworkKind]*ProtocolCounters

	sourceIPs map[string]*endpointCount
	destIPs   map[string]*endpointCount
	hosts     map[string]*endpointCount
	seq       uint64

	resolver  *Resolver
	hostnames map[string]string // dest IP -> resolved hostname, "" until resolved
}

// New creates an empty Aggregator. resolver may be nil to disable reverse
// DNS (the "visited host" table then shows literal addresses only).
func New(resolver *Resolver) *Aggregator {
	return &Aggregator{
		byTransport: make(map[types.TransportKind]*ProtocolCounters),
		byNetwork:   make(map[types.NetworkKind]*ProtocolCounters),
		sourceIPs:   make(map[string]*endpointCount),
		destIPs:     make(map[string]*endpointCount),
		hosts:       make(map[string]*endpointCount),
		resolver:    resolver,
		hostnames:   make(map[string]string),
	}
}

// Run subscribes to bus and folds every packet into the counters until ctx
// is cancelled. Intended to run in its own goroutine.
func (a *Aggregator) Run(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	var resolutions <-chan Resolution
	if a.resolver != nil {
		resolutions = a.resolver.Results()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-resolutions:
			a.applyResolution(res)
		default:
		}

		pkt, _, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		a.Observe(pkt)
	}
}

// Observe folds one packet into the counters. Exported so tests can drive
// it directly without a live bus.
func (a *Aggregator) Observe(pkt types.AppPacket) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	size := estimateSize(pkt)

	saturatingAdd(&a.totalPackets, 1)
	saturatingAdd(&a.totalBytes, size)

	switch pkt.Network.Kind {
	case types.NetworkIPv4:
		a.bumpNetwork(types.NetworkIPv4, size)
		if pkt.Network.Ipv4 != nil {
			a.bumpTransportKind(pkt.Network.Ipv4.Transport.Kind, size)
			a.bumpEndpoint(a.sourceIPs, pkt.Network.Ipv4.Src, size)
			a.bumpEndpoint(a.destIPs, pkt.Network.Ipv4.Dst, size)
			a.bumpHost(pkt.Network.Ipv4.Dst)
		}
	case types.NetworkIPv6:
		a.bumpNetwork(types.NetworkIPv6, size)
		if pkt.Network.Ipv6 != nil {
			a.bumpTransportKind(pkt.Network.Ipv6.Transport.Kind, size)
			a.bumpEndpoint(a.sourceIPs, pkt.Network.Ipv6.Src, size)
			a.bumpEndpoint(a.destIPs, pkt.Network.Ipv6.Dst, size)
			a.bumpHost(pkt.Network.Ipv6.Dst)
		}
	case types.NetworkARP:
		a.bumpNetwork(types.NetworkARP, size)
	}
}

func (a *Aggregator) bumpNetwork(kind types.NetworkKind, size uint64) {
	c, ok := a.byNetwork[kind]
	if !ok {
		c = &ProtocolCounters{}
		a.byNetwork[kind] = c
	}
	saturatingAdd(&c.Packets, 1)
	saturatingAdd(&c.Bytes, size)
}

func (a *Aggregator) bumpTransportKind(kind types.TransportKind, size uint64) {
	c, ok := a.byTransport[kind]
	if !ok {
		c = &ProtocolCounters{}
		a.byTransport[kind] = c
	}
	saturatingAdd(&c.Packets, 1)
	saturatingAdd(&c.Bytes, size)
}

func (a *Aggregator) bumpEndpoint(table map[string]*endpointCount, ip net.IP, size uint64) {
	if ip == nil {
		return
	}
	key := ip.String()
	e, ok := table[key]
	if !ok {
		e = &endpointCount{key: key}
		table[key] = e
	}
	saturatingAdd(&e.count, 1)
	e.seq = a.seq

	if len(table) > trimThreshold {
		trim(table, TopN*4)
	}
}

func (a *Aggregator) bumpHost(ip net.IP) {
	if ip == nil {
		return
	}
	key := ip.String()
	e, ok := a.hosts[key]
	if !ok {
		e = &endpointCount{key: key}
		a.hosts[key] = e
		if a.resolver != nil {
			a.resolver.Lookup(ip)
		}
	}
	e.count++
	e.seq = a.seq
}

func (a *Aggregator) applyResolution(res Resolution) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hostnames[res.IP.String()] = res.Hostname
}

// trimThreshold is how large an endpoint table grows before it is trimmed
// back down, so a long-running capture doesn't retain every address ever
// seen.
const trimThreshold = TopN * 50

func trim(table map[string]*endpointCount, keep int) {
	entries := make([]*endpointCount, 0, len(table))
	for _, e := range table {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].seq > entries[j].seq
	})
	if len(entries) <= keep {
		return
	}
	for _, e := range entries[keep:] {
		delete(table, e.key)
	}
}

// estimateSize approximates on-wire size from header fields captured in
// AppPacket; Oryx does not carry the full frame, only parsed headers, so
// byte totals are a lower bound dominated by payload length fields where
// available and a fixed per-packet estimate otherwise.
func estimateSize(pkt types.AppPacket) uint64 {
	const baseEstimate = 64 // Ethernet + IP header floor

	if pkt.Network.Ipv4 != nil && pkt.Network.Ipv4.Transport.Udp != nil {
		return uint64(pkt.Network.Ipv4.Transport.Udp.Length) + 14
	}
	if pkt.Network.Ipv6 != nil && pkt.Network.Ipv6.Transport.Udp != nil {
		return uint64(pkt.Network.Ipv6.Transport.Udp.Length) + 14 + 40
	}
	return baseEstimate
}

func topEntries(table map[string]*endpointCount) []Entry {
	entries := make([]*endpointCount, 0, len(table))
	for _, e := range table {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].seq > entries[j].seq
	})
	if len(entries) > TopN {
		entries = entries[:TopN]
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Key: e.key, Count: e.count}
	}
	return out
}

// Snapshot returns an immutable copy of the current counters. Safe to call
// concurrently with Observe.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		TotalPackets: a.totalPackets,
		TotalBytes:   a.totalBytes,
		ByTransport:  make(map[types.TransportKind]ProtocolCounters, len(a.byTransport)),
		ByNetwork:    make(map[types.NetworkKind]ProtocolCounters, len(a.byNetwork)),
	}
	for k, v := range a.byTransport {
		snap.ByTransport[k] = *v
	}
	for k, v := range a.byNetwork {
		snap.ByNetwork[k] = *v
	}

	snap.TopSourceIPs = topEntries(a.sourceIPs)
	snap.TopDestIPs = topEntries(a.destIPs)

	hostTable := make(map[string]*endpointCount, len(a.hosts))
	for k, v := range a.hosts {
		label := k
		if resolved, ok := a.hostnames[k]; ok && resolved != "" {
			label = resolved
		}
		hostTable[label] = v
	}
	snap.TopHosts = topEntries(hostTable)

	return snap
}

// Reset zeroes every counter (Ctrl-R in the UI).
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalPackets = 0
	a.totalBytes = 0
	a.byTransport = make(map[types.TransportKind]*ProtocolCounters)
	a.byNetwork = make(map[types.NetworkKind]*ProtocolCounters)
	a.sourceIPs = make(map[string]*endpointCount)
	a.destIPs = make(map[string]*endpointCount)
	a.hosts = make(map[string]*endpointCount)
	a.hostnames = make(map[string]string)
	a.seq = 0
}
