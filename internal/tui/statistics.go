// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"oryx.sh/oryx/internal/ebpf/types"
	"oryx.sh/oryx/internal/stats"
)

// StatisticsModel shows the rolling protocol/endpoint counters. Ctrl-R
// resets the aggregator.
type StatisticsModel struct {
	Backend Backend

	Snapshot stats.Snapshot
	Width    int
	Height   int
}

type statsTickMsg time.Time

func NewStatisticsModel(backend Backend) StatisticsModel {
	return StatisticsModel{Backend: backend}
}

func (m StatisticsModel) Init() tea.Cmd {
	return m.tick()
}

func (m StatisticsModel) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (m StatisticsModel) Update(msg tea.Msg) (StatisticsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case statsTickMsg:
		m.Snapshot = m.Backend.StatsSnapshot()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+r":
			m.Backend.ResetStats()
			m.Snapshot = m.Backend.StatsSnapshot()
		}
	}
	return m, nil
}

func (m StatisticsModel) View() string {
	totals := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Totals"),
		fmt.Sprintf("Packets: %d", m.Snapshot.TotalPackets),
		fmt.Sprintf("Bytes:   %d", m.Snapshot.TotalBytes),
	))

	protoLines := []string{StyleTitle.Render("By transport")}
	for _, k := range []types.TransportKind{
		types.TransportTCP, types.TransportUDP, types.TransportICMP,
		types.TransportICMPv6, types.TransportSCTP, types.TransportUnknown,
	} {
		if c, ok := m.Snapshot.ByTransport[k]; ok {
			protoLines = append(protoLines, fmt.Sprintf("%-6s %8d pkts  %10d B", transportName(k), c.Packets, c.Bytes))
		}
	}
	protoBlock := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, protoLines...))

	top := lipgloss.JoinHorizontal(lipgloss.Top, totals, protoBlock)

	sources := renderTopTable("Top source IPs", m.Snapshot.TopSourceIPs)
	dests := renderTopTable("Top destination IPs", m.Snapshot.TopDestIPs)
	hosts := renderTopTable("Top visited hosts", m.Snapshot.TopHosts)

	tables := lipgloss.JoinHorizontal(lipgloss.Top, sources, dests, hosts)

	return lipgloss.JoinVertical(lipgloss.Left,
		StyleHeader.Render("STATISTICS (Ctrl-R reset)"),
		top,
		tables,
	)
}

func renderTopTable(title string, entries []stats.Entry) string {
	lines := []string{StyleTitle.Render(title)}
	if len(entries) == 0 {
		lines = append(lines, StyleSubtitle.Render("no data yet"))
	}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%-24s %8d", e.Key, e.Count))
	}
	return StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
