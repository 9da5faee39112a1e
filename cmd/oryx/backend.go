// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"oryx.sh/oryx/internal/alert"
	"oryx.sh/oryx/internal/bus"
	"oryx.sh/oryx/internal/ebpf/maps"
	"oryx.sh/oryx/internal/ebpf/types"
	"oryx.sh/oryx/internal/export"
	"oryx.sh/oryx/internal/firewall"
	"oryx.sh/oryx/internal/stats"
	"oryx.sh/oryx/internal/tui"
)

// backend wires the live core (bus, aggregator, detector, firewall
// controller, export writer, filter map) plus the /proc/net/dev sampler into
// the single interface the TUI depends on.
type backend struct {
	bus        *bus.Bus
	aggregator *stats.Aggregator
	detector   *alert.Detector
	firewall   *firewall.Controller
	exporter   *export.Writer
	bandwidth  *bandwidthSampler
	filters    *maps.FilterMap
}

var _ tui.Backend = (*backend)(nil)

func (b *backend) Subscribe() *bus.Subscriber    { return b.bus.Subscribe() }
func (b *backend) Unsubscribe(s *bus.Subscriber) { b.bus.Unsubscribe(s) }

func (b *backend) StatsSnapshot() stats.Snapshot { return b.aggregator.Snapshot() }
func (b *backend) ResetStats()                   { b.aggregator.Reset() }

func (b *backend) CurrentAlert() (alert.Alert, bool)      { return b.detector.Current() }
func (b *backend) AlertNotifications() <-chan alert.Alert { return b.detector.Notifications() }

func (b *backend) BandwidthSamples(iface string) []tui.BandwidthSample {
	return b.bandwidth.Samples(iface)
}
func (b *backend) Interfaces() []string { return b.bandwidth.Interfaces() }

func (b *backend) FirewallRules() []firewall.BlockRule { return b.firewall.List() }

func (b *backend) AddRule(rule firewall.BlockRule) (firewall.RuleID, error) {
	return b.firewall.Add(rule)
}

func (b *backend) EditRule(id firewall.RuleID, rule firewall.BlockRule) error {
	return b.firewall.Edit(id, rule)
}

func (b *backend) DeleteRule(id firewall.RuleID) error { return b.firewall.Delete(id) }

func (b *backend) ToggleRule(id firewall.RuleID) (bool, error) { return b.firewall.Toggle(id) }

func (b *backend) SaveRules() (string, error) { return b.firewall.Save("") }

func (b *backend) ExportCapture() (string, error) { return b.exporter.Export("") }

func (b *backend) FilterState() (types.FilterState, error) { return b.filters.Get() }

func (b *backend) ApplyFilter(preset tui.FilterPreset) error {
	return b.filters.Set(preset.State)
}
