// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"oryx.sh/oryx/internal/ebpf/types"
)

type fakeBlockMap struct {
	mu      sync.Mutex
	entries map[string]types.BlockMask
	failPut bool
}

func newFakeBlockMap() *fakeBlockMap {
	return &fakeBlockMap{entries: make(map[string]types.BlockMask)}
}

func (f *fakeBlockMap) Put(ip net.IP, mask types.BlockMask) error {
	if f.failPut {
		return fmt.Errorf("injected failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[ip.String()] = mask
	return nil
}

func (f *fakeBlockMap) Delete(ip net.IP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, ip.String())
	return nil
}

func newTestController() (*Controller, *fakeBlockMap) {
	fake := newFakeBlockMap()
	c := &Controller{
		rules:       make(map[RuleID]BlockRule),
		blockV4:     fake,
		blockV6:     newFakeBlockMap(),
		lastImageV4: make(map[string]types.BlockMask),
		lastImageV6: make(map[string]types.BlockMask),
	}
	return c, fake
}

func TestAddRejectsUnspecifiedAddress(t *testing.T) {
	c, _ := newTestController()
	_, err := c.Add(BlockRule{IP: net.ParseIP("0.0.0.0"), Enabled: true})
	require.Error(t, err)
}

func TestAddRejectsDuplicateTuple(t *testing.T) {
	c, _ := newTestController()
	rule := BlockRule{IP: net.ParseIP("10.0.0.5"), Port: 22, Protocol: 6, Direction: DirectionIngress, Enabled: true}

	_, err := c.Add(rule)
	require.NoError(t, err)

	_, err = c.Add(rule)
	require.Error(t, err)
}

func TestAddEnabledRuleReconcilesIntoMap(t *testing.T) {
	c, fake := newTestController()
	_, err := c.Add(BlockRule{IP: net.ParseIP("10.0.0.5"), Port: 22, Protocol: 6, Direction: DirectionIngress, Enabled: true})
	require.NoError(t, err)

	require.Contains(t, fake.entries, "10.0.0.5")
	mask := fake.entries["10.0.0.5"]
	require.Equal(t, types.DirectionMaskIngress, mask.DirectionMask)
}

func TestToggleRemovesFromMapWhenDisabled(t *testing.T) {
	c, fake := newTestController()
	id, err := c.Add(BlockRule{IP: net.ParseIP("10.0.0.5"), Enabled: true})
	require.NoError(t, err)
	require.Contains(t, fake.entries, "10.0.0.5")

	enabled, err := c.Toggle(id)
	require.NoError(t, err)
	require.False(t, enabled)
	require.NotContains(t, fake.entries, "10.0.0.5")
}

func TestTwoRulesOnSameIPMergeMasks(t *testing.T) {
	c, fake := newTestController()
	_, err := c.Add(BlockRule{IP: net.ParseIP("10.0.0.5"), Port: 22, Protocol: 6, Direction: DirectionIngress, Enabled: true})
	require.NoError(t, err)
	_, err = c.Add(BlockRule{IP: net.ParseIP("10.0.0.5"), Port: 23, Protocol: 6, Direction: DirectionEgress, Enabled: true})
	require.NoError(t, err)

	mask := fake.entries["10.0.0.5"]
	require.Equal(t, types.DirectionMaskBoth, mask.DirectionMask)
	require.NotZero(t, mask.PortMask&(1<<22))
	require.NotZero(t, mask.PortMask&(1<<23))
}

func TestAddRejectsUnrepresentablePort(t *testing.T) {
	c, _ := newTestController()
	_, err := c.Add(BlockRule{IP: net.ParseIP("10.0.0.5"), Port: 443, Enabled: true})
	require.Error(t, err, "port 443 cannot fit the 64-bit block-mask and must be rejected rather than widened to any-port")
}

func TestAddHandlesProtocolNumbersAbove31(t *testing.T) {
	c, fake := newTestController()
	_, err := c.Add(BlockRule{IP: net.ParseIP("10.0.0.5"), Protocol: 132, Direction: DirectionIngress, Enabled: true}) // SCTP
	require.NoError(t, err)

	mask := fake.entries["10.0.0.5"]
	require.True(t, mask.ProtocolMask.Has(132))
	require.False(t, mask.ProtocolMask.Has(6), "rule must not cover protocols it wasn't given")
}

func TestReconcileFailureRollsBackRuleState(t *testing.T) {
	c, fake := newTestController()
	_, err := c.Add(BlockRule{IP: net.ParseIP("10.0.0.5"), Enabled: true})
	require.NoError(t, err)

	fake.failPut = true
	_, err = c.Add(BlockRule{IP: net.ParseIP("10.0.0.6"), Enabled: true})
	require.Error(t, err)
	require.Len(t, c.List(), 1, "failed rule must not remain in memory")
}

func TestDeleteUnknownRuleFails(t *testing.T) {
	c, _ := newTestController()
	err := c.Delete(RuleID("missing"))
	require.Error(t, err)
}
