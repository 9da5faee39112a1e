// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package bus implements the Packet Bus: a bounded ring shared by every
// subscriber. The publisher never blocks on a slow reader — a reader that
// falls behind by more than the ring's capacity has its tail jumped forward
// and is told how many records it lost.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"oryx.sh/oryx/internal/diag"
	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/ebpf/types"
)

// DefaultCapacity is the ring depth used when callers pass 0 to New.
const DefaultCapacity = 4096

// Bus is a single-writer, multi-reader ring of AppPacket. It never blocks
// Publish; readers that fall behind skip forward and are notified via
// Subscriber.Lagged.
type Bus struct {
	ring     []types.AppPacket
	capacity int64
	head     atomic.Int64 // index of the next slot Publish will write

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}

	notifyMu sync.Mutex
	notify   chan struct{} // closed and replaced on every Publish; lets Recv block

	meter *diag.Meter
}

// New creates a Bus with the given ring capacity (0 selects DefaultCapacity).
func New(capacity int, meter *diag.Meter) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring:        make([]types.AppPacket, capacity),
		capacity:    int64(capacity),
		subscribers: make(map[*Subscriber]struct{}),
		notify:      make(chan struct{}),
		meter:       meter,
	}
}

// Publish writes pkt into the ring and advances head. Never blocks.
func (b *Bus) Publish(pkt types.AppPacket) {
	head := b.head.Load()
	b.ring[head%b.capacity] = pkt
	b.head.Store(head + 1)

	b.notifyMu.Lock()
	close(b.notify)
	b.notify = make(chan struct{})
	b.notifyMu.Unlock()
}

// waitChan returns the channel that closes on the next Publish.
func (b *Bus) waitChan() chan struct{} {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	return b.notify
}

// Subscribe registers a new Subscriber whose tail starts at the current
// head, so it only sees packets published from this point on.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{bus: b}
	s.tail.Store(b.head.Load())

	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()

	return s
}

// Unsubscribe removes s from the bus. Safe to call more than once.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Subscriber reads from a Bus at its own pace. It is not safe for concurrent
// use by multiple goroutines.
type Subscriber struct {
	bus  *Bus
	tail atomic.Int64
}

// Next returns the next packet this subscriber has not yet seen, and the
// number of records it was forced to skip because the writer lapped it
// (0 when nothing was lost). ok is false only when there is nothing new to
// read yet — callers should poll or select on an external readiness signal.
func (s *Subscriber) Next() (pkt types.AppPacket, lagged int, ok bool) {
	head := s.bus.head.Load()
	tail := s.tail.Load()

	if tail >= head {
		return types.AppPacket{}, 0, false
	}

	if head-tail > s.bus.capacity {
		lost := head - tail - s.bus.capacity
		tail = head - s.bus.capacity
		lagged = int(lost)
		if s.bus.meter != nil {
			s.bus.meter.Record(oryxerrors.Runtime(oryxerrors.ErrBusLagged))
		}
	}

	pkt = s.bus.ring[tail%s.bus.capacity]
	s.tail.Store(tail + 1)
	return pkt, lagged, true
}

// Pending reports how many unread records this subscriber currently has
// available, useful for UI backlog indicators.
func (s *Subscriber) Pending() int64 {
	return s.bus.head.Load() - s.tail.Load()
}

// Recv blocks until a packet is available or ctx is cancelled; it is the
// bus-receive suspension point (awaits the next publish or a lag signal).
// It never holds any lock while waiting.
func (s *Subscriber) Recv(ctx context.Context) (pkt types.AppPacket, lagged int, err error) {
	for {
		// Taken before Next so a Publish landing between the two still
		// closes the channel being waited on.
		wait := s.bus.waitChan()
		if pkt, lagged, ok := s.Next(); ok {
			return pkt, lagged, nil
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return types.AppPacket{}, 0, ctx.Err()
		}
	}
}
