// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package types

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppPacketRawSizeMatchesWireConstant(t *testing.T) {
	require.Equal(t, AppPacketRawSize, binary.Size(AppPacketRaw{}),
		"AppPacketRaw must stay byte-identical to common.h's struct app_packet")
}

func TestFilterStateAllows(t *testing.T) {
	f := FilterState{Direction: DirectionMaskIngress}
	require.True(t, f.Allows(DirectionIngress))
	require.False(t, f.Allows(DirectionEgress))

	both := FilterState{Direction: DirectionMaskBoth}
	require.True(t, both.Allows(DirectionIngress))
	require.True(t, both.Allows(DirectionEgress))
}

func TestBlockMaskCovers(t *testing.T) {
	var protocols ProtocolSet
	protocols.Add(6) // TCP

	mask := BlockMask{
		AnyPort:       0,
		PortMask:      1 << 9,
		ProtocolMask:  protocols,
		DirectionMask: DirectionMaskIngress,
	}

	require.True(t, mask.Covers(9, 6, DirectionIngress))
	require.False(t, mask.Covers(9, 6, DirectionEgress), "direction not covered")
	require.False(t, mask.Covers(80, 6, DirectionIngress), "port not covered")
	require.False(t, mask.Covers(9, 17, DirectionIngress), "protocol not covered")

	anyPort := BlockMask{AnyPort: 1, DirectionMask: DirectionMaskBoth}
	require.True(t, anyPort.Covers(443, 6, DirectionEgress))
}

func TestBlockMaskCoversRejectsWidePortRegardlessOfBitmask(t *testing.T) {
	// A rule scoped to port 22 must never match a packet on a port the
	// 64-bit port_mask cannot represent (>=64) just because the bound
	// check has nothing to compare against.
	mask := BlockMask{PortMask: 1 << 22, DirectionMask: DirectionMaskBoth}
	require.False(t, mask.Covers(443, 6, DirectionIngress))
	require.True(t, mask.Covers(22, 6, DirectionIngress))
}

func TestProtocolSetHandlesProtocolNumbersAbove31(t *testing.T) {
	var set ProtocolSet
	require.True(t, set.IsAny())

	set.Add(132) // SCTP
	require.False(t, set.IsAny())
	require.True(t, set.Has(132))
	require.False(t, set.Has(58)) // ICMPv6

	var other ProtocolSet
	other.Add(58)
	set.Merge(other)
	require.True(t, set.Has(132))
	require.True(t, set.Has(58))
}

func TestIPv4KeyRejectsIPv6(t *testing.T) {
	_, err := IPv4Key(net.ParseIP("::1"))
	require.Error(t, err)

	key, err := IPv4Key(net.ParseIP("192.0.2.1"))
	require.NoError(t, err)
	require.Equal(t, BlockMaskV4Key{192, 0, 2, 1}, key)
}

func TestIPv6KeyRejectsIPv4(t *testing.T) {
	_, err := IPv6Key(net.ParseIP("192.0.2.1"))
	require.Error(t, err)

	key, err := IPv6Key(net.ParseIP("2001:db8::1"))
	require.NoError(t, err)
	require.Equal(t, byte(0x20), key[0])
}

func TestLinkNetworkTransportFilterBits(t *testing.T) {
	require.Equal(t, uint32(1<<0), LinkLayerFilterBit(0x0800))
	require.Equal(t, uint32(1<<1), LinkLayerFilterBit(0x86DD))
	require.Equal(t, uint32(1<<2), LinkLayerFilterBit(0x0806))
	require.Equal(t, uint32(0), LinkLayerFilterBit(0x88CC))

	require.Equal(t, uint32(1<<0), NetworkFilterBit(NetworkIPv4))
	require.Equal(t, uint32(1<<4), TransportFilterBit(TransportSCTP))
}
