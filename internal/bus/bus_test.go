// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oryx.sh/oryx/internal/ebpf/types"
)

func TestSubscribeOnlySeesFuturePackets(t *testing.T) {
	b := New(8, nil)
	b.Publish(types.AppPacket{PID: 1})

	sub := b.Subscribe()
	_, _, ok := sub.Next()
	require.False(t, ok, "subscriber must not see packets published before it subscribed")

	b.Publish(types.AppPacket{PID: 2})
	pkt, lagged, ok := sub.Next()
	require.True(t, ok)
	require.Equal(t, 0, lagged)
	require.Equal(t, uint32(2), pkt.PID)
}

func TestSlowSubscriberLagsInsteadOfBlockingProducer(t *testing.T) {
	b := New(4, nil)
	sub := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(types.AppPacket{PID: uint32(i)})
	}

	pkt, lagged, ok := sub.Next()
	require.True(t, ok)
	require.Greater(t, lagged, 0, "subscriber should have lost records")
	require.Equal(t, uint32(6), pkt.PID, "tail should jump to head-capacity")
}

func TestRecvUnblocksOnPublish(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe()

	done := make(chan types.AppPacket, 1)
	go func() {
		pkt, _, err := sub.Recv(context.Background())
		require.NoError(t, err)
		done <- pkt
	}()

	time.Sleep(10 * time.Millisecond)
	b.Publish(types.AppPacket{PID: 42})

	select {
	case pkt := <-done:
		require.Equal(t, uint32(42), pkt.PID)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock on Publish")
	}
}

func TestRecvRespectsContextCancellation(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := sub.Recv(ctx)
	require.Error(t, err)
}

func TestUnsubscribeRemovesFromCount(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())
}
