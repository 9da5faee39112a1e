// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oryx.sh/oryx/internal/ebpf/types"
)

func synPacket() types.AppPacket {
	return types.AppPacket{
		Network: types.NetworkPayload{
			Kind: types.NetworkIPv4,
			Ipv4: &types.Ipv4Payload{
				Transport: types.TransportPayload{
					Kind: types.TransportTCP,
					Tcp:  &types.TcpPayload{Flags: types.TCPFlagSYN},
				},
			},
		},
	}
}

func TestDetectorRaisesOnSustainedHighRate(t *testing.T) {
	d := New()
	d.threshold = 10 // lower for a fast deterministic test
	d.window = time.Second

	base := time.Now()
	for i := 0; i < 20; i++ {
		d.Observe(synPacket(), base)
	}
	d.evaluate(base)

	alert, active := d.Current()
	require.True(t, active)
	require.Equal(t, KindSynFlood, alert.Kind)
}

func TestDetectorClearsAfterQuietPeriod(t *testing.T) {
	d := New()
	d.threshold = 10
	d.window = time.Second
	d.quiet = 2 * time.Second

	base := time.Now()
	for i := 0; i < 20; i++ {
		d.Observe(synPacket(), base)
	}
	d.evaluate(base)
	_, active := d.Current()
	require.True(t, active)

	d.evaluate(base.Add(time.Second))
	_, active = d.Current()
	require.True(t, active, "must stay active until quiet period elapses")

	// base+2s is the first evaluation that finds the window empty; the
	// quiet period is measured from there.
	d.evaluate(base.Add(2 * time.Second))
	_, active = d.Current()
	require.True(t, active, "must stay active until quiet period elapses")

	d.evaluate(base.Add(4 * time.Second))
	_, active = d.Current()
	require.False(t, active, "must clear after quiet period of low rate")
}

func TestDetectorIgnoresNonSynPackets(t *testing.T) {
	d := New()
	d.threshold = 1

	ackPkt := synPacket()
	ackPkt.Network.Ipv4.Transport.Tcp.Flags = types.TCPFlagACK
	d.Observe(ackPkt, time.Now())
	d.evaluate(time.Now())

	_, active := d.Current()
	require.False(t, active)
}
