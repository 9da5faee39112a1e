// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package export

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"oryx.sh/oryx/internal/ebpf/types"
)

func TestExportWritesTabSeparatedLines(t *testing.T) {
	w := New(16, nil)
	w.observe(types.AppPacket{
		Timestamp: 1700000000,
		Direction: types.DirectionIngress,
		SrcMAC:    net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:    net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EtherType: 0x0800,
		Network: types.NetworkPayload{
			Kind: types.NetworkIPv4,
			Ipv4: &types.Ipv4Payload{
				Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("10.0.0.2"), Protocol: 6,
				Transport: types.TransportPayload{Kind: types.TransportTCP, Tcp: &types.TcpPayload{SPort: 1234, DPort: 443}},
			},
		},
	})

	path := filepath.Join(t.TempDir(), "capture")
	written, err := w.Export(path)
	require.NoError(t, err)
	require.Equal(t, path, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	fields := strings.Split(strings.TrimSpace(string(data)), "\t")
	require.Len(t, fields, 13)
	require.Equal(t, "ingress", fields[1])
	require.Equal(t, "10.0.0.1", fields[6])
	require.Equal(t, "10.0.0.2", fields[7])
}

func TestExportAppendsRatherThanTruncates(t *testing.T) {
	w := New(16, nil)
	w.observe(types.AppPacket{Direction: types.DirectionEgress})

	path := filepath.Join(t.TempDir(), "capture")
	_, err := w.Export(path)
	require.NoError(t, err)
	_, err = w.Export(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
}

func TestRingDropsOldestBeyondCapacity(t *testing.T) {
	w := New(2, nil)
	for i := 0; i < 5; i++ {
		w.observe(types.AppPacket{PID: uint32(i)})
	}
	require.Equal(t, 2, w.size)
}
