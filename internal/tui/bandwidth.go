// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// bandwidthTickMsg drives the periodic re-read of the external bandwidth
// sampler (spec.md §1 lists /proc/net/dev reading as an external
// collaborator; BandwidthModel only renders whatever Backend.BandwidthSamples
// returns).
type bandwidthTickMsg time.Time

// BandwidthModel is the per-interface bandwidth/metrics explorer: a list of
// interfaces navigable with j/k and a bar-chart rendering of the selected
// interface's recent throughput samples.
type BandwidthModel struct {
	Backend Backend

	interfaces []string
	selected   int

	Width  int
	Height int
}

func NewBandwidthModel(backend Backend) BandwidthModel {
	return BandwidthModel{Backend: backend}
}

func (m BandwidthModel) Init() tea.Cmd {
	return m.tick()
}

func (m BandwidthModel) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return bandwidthTickMsg(t)
	})
}

func (m BandwidthModel) Update(msg tea.Msg) (BandwidthModel, tea.Cmd) {
	switch msg := msg.(type) {
	case bandwidthTickMsg:
		m.interfaces = m.Backend.Interfaces()
		if m.selected >= len(m.interfaces) {
			m.selected = 0
		}
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if m.selected < len(m.interfaces)-1 {
				m.selected++
			}
		case "k", "up":
			if m.selected > 0 {
				m.selected--
			}
		}
	}
	return m, nil
}

func (m BandwidthModel) View() string {
	header := StyleHeader.Render("BANDWIDTH")

	if len(m.interfaces) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, StyleSubtitle.Render("no interface attached"))
	}

	var ifaceList []string
	for i, iface := range m.interfaces {
		label := iface
		if i == m.selected {
			label = StyleHighlight.Render("> " + iface)
		} else {
			label = "  " + iface
		}
		ifaceList = append(ifaceList, label)
	}
	ifaceCard := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		append([]string{StyleTitle.Render("Interfaces")}, ifaceList...)...))

	iface := m.interfaces[m.selected]
	samples := m.Backend.BandwidthSamples(iface)

	chart := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		append([]string{StyleTitle.Render(fmt.Sprintf("%s throughput", iface))}, renderSparkline(samples)...)...))

	return lipgloss.JoinVertical(lipgloss.Left, header, lipgloss.JoinHorizontal(lipgloss.Top, ifaceCard, chart))
}

// sparkBlocks, low to high, forms the bar-chart glyphs for renderSparkline.
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// renderSparkline turns a run of byte-count samples into a one-line bar
// chart plus the latest numeric reading, tolerating an empty slice.
func renderSparkline(samples []BandwidthSample) []string {
	if len(samples) == 0 {
		return []string{StyleSubtitle.Render("no samples yet")}
	}

	var max uint64
	for _, s := range samples {
		if s.Bytes > max {
			max = s.Bytes
		}
	}
	if max == 0 {
		max = 1
	}

	var sb strings.Builder
	for _, s := range samples {
		idx := int(float64(s.Bytes) / float64(max) * float64(len(sparkBlocks)-1))
		sb.WriteRune(sparkBlocks[idx])
	}

	latest := samples[len(samples)-1]
	return []string{
		sb.String(),
		fmt.Sprintf("latest: %d B/s  at %s", latest.Bytes, latest.At.Format("15:04:05")),
	}
}
