// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package maps gives type-safe, mutex-guarded access to the three eBPF maps
// the classifier reads: FILTERS, BLOCKLIST_IPV4, and BLOCKLIST_IPV6.
package maps

import (
	"fmt"
	"net"
	"sync"

	"github.com/cilium/ebpf"

	"oryx.sh/oryx/internal/ebpf/types"
)

// filtersKey is the single entry of the FILTERS array map.
const filtersKey uint32 = 0

// FilterMap wraps the FILTERS array map.
type FilterMap struct {
	m     *ebpf.Map
	mutex sync.RWMutex
}

// NewFilterMap wraps m. m must have been created with key/value sizes
// matching types.FilterState.
func NewFilterMap(m *ebpf.Map) *FilterMap {
	return &FilterMap{m: m}
}

// Get reads the current FilterState.
func (f *FilterMap) Get() (types.FilterState, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	var state types.FilterState
	if err := f.m.Lookup(filtersKey, &state); err != nil {
		return types.FilterState{}, fmt.Errorf("lookup filter state: %w", err)
	}
	return state, nil
}

// Set writes a new FilterState, replacing whatever was there.
func (f *FilterMap) Set(state types.FilterState) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.m.Update(filtersKey, &state, ebpf.UpdateAny); err != nil {
		return fmt.Errorf("update filter state: %w", err)
	}
	return nil
}

// BlockMapV4 wraps BLOCKLIST_IPV4.
type BlockMapV4 struct {
	m     *ebpf.Map
	mutex sync.RWMutex
}

func NewBlockMapV4(m *ebpf.Map) *BlockMapV4 { return &BlockMapV4{m: m} }

func (b *BlockMapV4) Put(ip net.IP, mask types.BlockMask) error {
	key, err := types.IPv4Key(ip)
	if err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.m.Update(key, &mask, ebpf.UpdateAny)
}

func (b *BlockMapV4) Delete(ip net.IP) error {
	key, err := types.IPv4Key(ip)
	if err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	err = b.m.Delete(key)
	if err == ebpf.ErrKeyNotExist {
		return nil
	}
	return err
}

// Keys returns every address currently present in the map.
func (b *BlockMapV4) Keys() ([]net.IP, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var (
		key   types.BlockMaskV4Key
		value types.BlockMask
		ips   []net.IP
		iter  = b.m.Iterate()
	)
	for iter.Next(&key, &value) {
		ips = append(ips, net.IP(key[:]))
	}
	return ips, iter.Err()
}

// BlockMapV6 wraps BLOCKLIST_IPV6.
type BlockMapV6 struct {
	m     *ebpf.Map
	mutex sync.RWMutex
}

func NewBlockMapV6(m *ebpf.Map) *BlockMapV6 { return &BlockMapV6{m: m} }

func (b *BlockMapV6) Put(ip net.IP, mask types.BlockMask) error {
	key, err := types.IPv6Key(ip)
	if err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.m.Update(key, &mask, ebpf.UpdateAny)
}

func (b *BlockMapV6) Delete(ip net.IP) error {
	key, err := types.IPv6Key(ip)
	if err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	err = b.m.Delete(key)
	if err == ebpf.ErrKeyNotExist {
		return nil
	}
	return err
}

func (b *BlockMapV6) Keys() ([]net.IP, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var (
		key   types.BlockMaskV6Key
		value types.BlockMask
		ips   []net.IP
		iter  = b.m.Iterate()
	)
	for iter.Next(&key, &value) {
		ips = append(ips, net.IP(key[:]))
	}
	return ips, iter.Err()
}
