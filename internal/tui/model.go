// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tui is the terminal front end: a bubbletea program with four
// sections (Inspector, Statistics, Bandwidth, Firewall) sharing a single
// Backend that exposes the core's packet bus, stats snapshots, alert feed,
// and firewall CRUD. Nothing in here touches the kernel directly.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"oryx.sh/oryx/internal/alert"
	"oryx.sh/oryx/internal/bus"
	"oryx.sh/oryx/internal/ebpf/types"
	"oryx.sh/oryx/internal/firewall"
	"oryx.sh/oryx/internal/stats"
)

// Section identifies the active view.
type Section int

const (
	SectionInspector Section = iota
	SectionStatistics
	SectionBandwidth
	SectionFirewall
	sectionCount
)

// Backend is everything a view needs from the running core. cmd/oryx
// supplies the concrete implementation, wiring these calls to the live
// bus.Bus, stats.Aggregator, alert.Detector, and firewall.Controller.
type Backend interface {
	Subscribe() *bus.Subscriber
	Unsubscribe(*bus.Subscriber)

	StatsSnapshot() stats.Snapshot
	ResetStats()

	CurrentAlert() (alert.Alert, bool)
	AlertNotifications() <-chan alert.Alert

	BandwidthSamples(iface string) []BandwidthSample
	Interfaces() []string

	FilterState() (types.FilterState, error)
	ApplyFilter(preset FilterPreset) error

	FirewallRules() []firewall.BlockRule
	AddRule(rule firewall.BlockRule) (firewall.RuleID, error)
	EditRule(id firewall.RuleID, rule firewall.BlockRule) error
	DeleteRule(id firewall.RuleID) error
	ToggleRule(id firewall.RuleID) (bool, error)
	SaveRules() (string, error)

	ExportCapture() (string, error)
}

// FilterPreset is one named, ready-to-apply FilterState the "f" keybinding
// cycles through; the core never has to understand UI-level preset naming.
type FilterPreset struct {
	Name  string
	State types.FilterState
}

// filterPresets cycles the transport mask with both directions enabled in
// every preset. "all" admits every network/link layer; "tcp only" and "udp
// only" admit IPv4 and IPv6 only, so ARP is not captured under them. This
// matches spec.md §6's "f apply filter" keybinding without requiring a
// dedicated filter-editing form.
var filterPresets = []FilterPreset{
	{Name: "all", State: types.FilterState{
		Transport: types.TransportFilterBit(types.TransportTCP) | types.TransportFilterBit(types.TransportUDP) |
			types.TransportFilterBit(types.TransportICMP) | types.TransportFilterBit(types.TransportICMPv6) |
			types.TransportFilterBit(types.TransportSCTP),
		Network:   types.NetworkFilterBit(types.NetworkIPv4) | types.NetworkFilterBit(types.NetworkIPv6) | types.NetworkFilterBit(types.NetworkARP),
		Link:      types.NetworkFilterBit(types.NetworkIPv4) | types.NetworkFilterBit(types.NetworkIPv6) | types.NetworkFilterBit(types.NetworkARP),
		Direction: types.DirectionMaskBoth,
	}},
	{Name: "tcp only", State: types.FilterState{
		Transport: types.TransportFilterBit(types.TransportTCP),
		Network:   types.NetworkFilterBit(types.NetworkIPv4) | types.NetworkFilterBit(types.NetworkIPv6),
		Link:      types.NetworkFilterBit(types.NetworkIPv4) | types.NetworkFilterBit(types.NetworkIPv6),
		Direction: types.DirectionMaskBoth,
	}},
	{Name: "udp only", State: types.FilterState{
		Transport: types.TransportFilterBit(types.TransportUDP),
		Network:   types.NetworkFilterBit(types.NetworkIPv4) | types.NetworkFilterBit(types.NetworkIPv6),
		Link:      types.NetworkFilterBit(types.NetworkIPv4) | types.NetworkFilterBit(types.NetworkIPv6),
		Direction: types.DirectionMaskBoth,
	}},
}

// BandwidthSample is one time-bucketed throughput reading for an interface,
// sourced from outside the core (the external collaborator that reads
// /proc/net/dev, per the packet-inspection-only scope of the classifier).
type BandwidthSample struct {
	At    time.Time
	Bytes uint64
}

// Model is the root bubbletea model: top bar plus the active section.
type Model struct {
	Backend Backend

	Active Section
	Width  int
	Height int

	Err string

	Inspector  InspectorModel
	Statistics StatisticsModel
	Bandwidth  BandwidthModel
	Firewall   FirewallModel

	help help.Model
	keys globalKeyMap

	filterIdx int
}

// New builds the root model wired to backend.
func New(backend Backend) Model {
	return Model{
		Backend:    backend,
		Active:     SectionInspector,
		Inspector:  NewInspectorModel(backend),
		Statistics: NewStatisticsModel(backend),
		Bandwidth:  NewBandwidthModel(backend),
		Firewall:   NewFirewallModel(backend),
		help:       help.New(),
		keys:       newGlobalKeyMap(),
	}
}

// errMsg carries a Backend error onto the update loop so a failed action
// shows up in the top bar instead of being swallowed.
type errMsg struct{ err error }

// filterStateMsg reports the FilterState currently loaded in the kernel map,
// used once at startup to align the top bar badge with reality instead of
// always starting on the "all" preset.
type filterStateMsg struct{ state types.FilterState }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.Inspector.Init(),
		m.Statistics.Init(),
		m.Bandwidth.Init(),
		m.Firewall.Init(),
		func() tea.Msg {
			state, err := m.Backend.FilterState()
			if err != nil {
				return nil
			}
			return filterStateMsg{state: state}
		},
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case errMsg:
		if msg.err != nil {
			m.Err = msg.err.Error()
		}
		return m, nil

	case filterStateMsg:
		for i, preset := range filterPresets {
			if preset.State == msg.state {
				m.filterIdx = i
				break
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.Active = (m.Active + 1) % sectionCount
			return m, nil
		case "shift+tab":
			m.Active = (m.Active - 1 + sectionCount) % sectionCount
			return m, nil
		case "?":
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case "f":
			m.filterIdx = (m.filterIdx + 1) % len(filterPresets)
			preset := filterPresets[m.filterIdx]
			if err := m.Backend.ApplyFilter(preset); err != nil {
				m.Err = err.Error()
			}
			return m, nil
		case "ctrl+s":
			if _, err := m.Backend.ExportCapture(); err != nil {
				m.Err = err.Error()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

		var cmd tea.Cmd
		m.Inspector, cmd = m.Inspector.Update(msg)
		cmds = append(cmds, cmd)
		m.Statistics, cmd = m.Statistics.Update(msg)
		cmds = append(cmds, cmd)
		m.Bandwidth, cmd = m.Bandwidth.Update(msg)
		cmds = append(cmds, cmd)
		m.Firewall, cmd = m.Firewall.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	switch m.Active {
	case SectionInspector:
		m.Inspector, cmd = m.Inspector.Update(msg)
	case SectionStatistics:
		m.Statistics, cmd = m.Statistics.Update(msg)
	case SectionBandwidth:
		m.Bandwidth, cmd = m.Bandwidth.Update(msg)
	case SectionFirewall:
		m.Firewall, cmd = m.Firewall.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	doc := m.viewTopBar() + "\n"

	switch m.Active {
	case SectionInspector:
		doc += m.Inspector.View()
	case SectionStatistics:
		doc += m.Statistics.View()
	case SectionBandwidth:
		doc += m.Bandwidth.View()
	case SectionFirewall:
		doc += m.Firewall.View()
	}

	if m.Err != "" {
		doc += "\n" + StyleStatusBad.Render("error: "+m.Err)
	}

	doc += "\n" + m.help.View(m.keys)

	return StyleApp.Render(doc)
}

func (m Model) viewTopBar() string {
	sections := []struct {
		Section Section
		Label   string
	}{
		{SectionInspector, "Inspector"},
		{SectionStatistics, "Statistics"},
		{SectionBandwidth, "Bandwidth"},
		{SectionFirewall, "Firewall"},
	}

	var items []string
	for _, s := range sections {
		label := s.Label
		if m.Active == s.Section {
			items = append(items, StyleMenuItemActive.Render(label))
		} else {
			items = append(items, StyleMenuItem.Render(label))
		}
	}

	brand := StyleTitle.Render("ORYX ")
	alertBadge := ""
	if a, ok := m.Backend.CurrentAlert(); ok && a.Active() {
		alertBadge = " " + StyleStatusBad.Render("[SYN FLOOD]")
	}

	filterBadge := " [" + filterPresets[m.filterIdx].Name + "]"

	bar := lipgloss.JoinHorizontal(lipgloss.Top, append([]string{brand}, items...)...)
	return StyleTopBar.Render(bar + filterBadge + alertBadge)
}
