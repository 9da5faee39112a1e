// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firewall.json")

	rules := []BlockRule{
		{ID: newRuleID(), IP: net.ParseIP("192.0.2.1"), Port: 22, Protocol: 6, Direction: DirectionIngress, Enabled: true},
		{ID: newRuleID(), IP: net.ParseIP("2001:db8::1"), Enabled: false, Direction: DirectionBoth},
	}

	require.NoError(t, save(path, rules))

	loaded, skipped, err := load(path)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, loaded, 2)
	require.Equal(t, rules[0].IP.String(), loaded[0].IP.String())
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firewall.json")
	require.NoError(t, save(path, nil))

	// Manually write an entry with an unparsable/unspecified IP alongside a good one.
	raw := `[{"id":"a","ip":"not-an-ip","enabled":true},{"id":"b","ip":"10.0.0.1","enabled":true}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	loaded, skipped, err := load(path)
	require.NoError(t, err)
	require.Equal(t, 1, skipped)
	require.Len(t, loaded, 1)
}

func TestLoadSkipsUnrepresentablePort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firewall.json")

	raw := `[{"id":"a","ip":"10.0.0.1","port":443,"enabled":true},{"id":"b","ip":"10.0.0.2","port":22,"enabled":true}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	loaded, skipped, err := load(path)
	require.NoError(t, err)
	require.Equal(t, 1, skipped, "port 443 exceeds the 64-bit block-mask range and must be skipped, not silently widened")
	require.Len(t, loaded, 1)
	require.Equal(t, uint16(22), loaded[0].Port)
}
