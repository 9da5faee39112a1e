// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package stats

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"oryx.sh/oryx/internal/ebpf/types"
)

func tcpPacket(src, dst string) types.AppPacket {
	return types.AppPacket{
		Network: types.NetworkPayload{
			Kind: types.NetworkIPv4,
			Ipv4: &types.Ipv4Payload{
				Src: net.ParseIP(src),
				Dst: net.ParseIP(dst),
				Transport: types.TransportPayload{
					Kind: types.TransportTCP,
					Tcp:  &types.TcpPayload{SPort: 5555, DPort: 443},
				},
			},
		},
	}
}

func TestObserveTalliesTotalsAndProtocolCounters(t *testing.T) {
	agg := New(nil)
	agg.Observe(tcpPacket("10.0.0.1", "10.0.0.2"))
	agg.Observe(tcpPacket("10.0.0.1", "10.0.0.2"))

	snap := agg.Snapshot()
	require.EqualValues(t, 2, snap.TotalPackets)
	require.EqualValues(t, 2, snap.ByTransport[types.TransportTCP].Packets)
	require.EqualValues(t, 2, snap.ByNetwork[types.NetworkIPv4].Packets)
}

func TestTopSourceIPsOrderedByCountThenRecency(t *testing.T) {
	agg := New(nil)
	for i := 0; i < 5; i++ {
		agg.Observe(tcpPacket("10.0.0.9", "10.0.0.2"))
	}
	for i := 0; i < 3; i++ {
		agg.Observe(tcpPacket("10.0.0.8", "10.0.0.2"))
	}

	snap := agg.Snapshot()
	require.NotEmpty(t, snap.TopSourceIPs)
	require.Equal(t, "10.0.0.9", snap.TopSourceIPs[0].Key)
	require.EqualValues(t, 5, snap.TopSourceIPs[0].Count)
}

func TestResetClearsAllCounters(t *testing.T) {
	agg := New(nil)
	agg.Observe(tcpPacket("10.0.0.1", "10.0.0.2"))
	agg.Reset()

	snap := agg.Snapshot()
	require.Zero(t, snap.TotalPackets)
	require.Empty(t, snap.TopSourceIPs)
}

func TestSaturatingAddNeverWraps(t *testing.T) {
	c := ^uint64(0) - 1
	saturatingAdd(&c, 5)
	require.Equal(t, ^uint64(0), c)
}
