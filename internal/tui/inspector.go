// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"oryx.sh/oryx/internal/bus"
	"oryx.sh/oryx/internal/ebpf/types"
)

// inspectorRingSize bounds how many formatted packet lines the Inspector
// keeps available for scrolling and fuzzy search.
const inspectorRingSize = 2000

// InspectorModel is the live packet log with "/" fuzzy search over the
// formatted line text.
type InspectorModel struct {
	Backend Backend

	ctx    context.Context
	cancel context.CancelFunc
	sub    *bus.Subscriber

	lines    []string
	selected int

	searching bool
	query     string
	matches   []fuzzy.Match

	detail bool

	Width  int
	Height int
}

type packetMsg types.AppPacket

func NewInspectorModel(backend Backend) InspectorModel {
	ctx, cancel := context.WithCancel(context.Background())
	return InspectorModel{
		Backend: backend,
		ctx:     ctx,
		cancel:  cancel,
		sub:     backend.Subscribe(),
	}
}

func (m InspectorModel) Init() tea.Cmd {
	return listenForPacket(m.ctx, m.sub)
}

// listenForPacket blocks on the bus and delivers the next packet as a
// bubbletea message. Update re-issues this command after every delivery so
// the stream never stalls.
func listenForPacket(ctx context.Context, sub *bus.Subscriber) tea.Cmd {
	return func() tea.Msg {
		pkt, _, err := sub.Recv(ctx)
		if err != nil {
			return nil
		}
		return packetMsg(pkt)
	}
}

func (m InspectorModel) Update(msg tea.Msg) (InspectorModel, tea.Cmd) {
	switch msg := msg.(type) {
	case packetMsg:
		line := formatInspectorLine(types.AppPacket(msg))
		m.lines = append(m.lines, line)
		if len(m.lines) > inspectorRingSize {
			m.lines = m.lines[len(m.lines)-inspectorRingSize:]
		}
		if !m.searching {
			m.selected = len(m.lines) - 1
		}
		return m, listenForPacket(m.ctx, m.sub)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			switch msg.String() {
			case "esc":
				m.searching = false
				m.query = ""
				m.matches = nil
				return m, nil
			case "enter":
				m.searching = false
				return m, nil
			case "backspace":
				if len(m.query) > 0 {
					m.query = m.query[:len(m.query)-1]
					m.runSearch()
				}
				return m, nil
			default:
				if len(msg.String()) == 1 {
					m.query += msg.String()
					m.runSearch()
				}
				return m, nil
			}
		}

		switch msg.String() {
		case "/":
			m.searching = true
			m.query = ""
			return m, nil
		case "j", "down":
			if m.selected < len(m.visibleLines())-1 {
				m.selected++
			}
		case "k", "up":
			if m.selected > 0 {
				m.selected--
			}
		case "i":
			m.detail = !m.detail
		}
	}
	return m, nil
}

// runSearch re-filters m.lines against m.query with sahilm/fuzzy, the same
// matcher bubbles/list uses internally for its own "/" filter, applied here
// directly against the raw log lines instead of list items.
func (m *InspectorModel) runSearch() {
	if m.query == "" {
		m.matches = nil
		return
	}
	m.matches = fuzzy.Find(m.query, m.lines)
	m.selected = len(m.matches) - 1
}

func (m InspectorModel) visibleLines() []string {
	if m.searching || m.query != "" {
		out := make([]string, len(m.matches))
		for i, mt := range m.matches {
			out[i] = m.lines[mt.Index]
		}
		return out
	}
	return m.lines
}

func (m InspectorModel) View() string {
	visible := m.visibleLines()

	height := m.Height - 8
	if height < 3 {
		height = 10
	}
	start := 0
	if len(visible) > height {
		start = len(visible) - height
	}

	var sb strings.Builder
	for i := start; i < len(visible); i++ {
		style := lipgloss.NewStyle()
		if i == m.selected {
			style = StyleHighlight
		}
		sb.WriteString(style.Render(visible[i]))
		sb.WriteByte('\n')
	}

	header := StyleHeader.Render(fmt.Sprintf("PACKET INSPECTOR (%d buffered)", len(m.lines)))
	searchLine := ""
	if m.searching || m.query != "" {
		searchLine = StyleSubtitle.Render("/"+m.query) + "\n"
	}

	body := StyleCard.Render(sb.String())
	doc := lipgloss.JoinVertical(lipgloss.Left, header, searchLine+body)

	if m.detail && m.selected >= 0 && m.selected < len(visible) {
		doc += "\n" + StyleCard.Render(visible[m.selected])
	}
	return doc
}

func formatInspectorLine(pkt types.AppPacket) string {
	var srcIP, dstIP, proto string
	var sport, dport int

	switch pkt.Network.Kind {
	case types.NetworkIPv4:
		if p := pkt.Network.Ipv4; p != nil {
			srcIP, dstIP = p.Src.String(), p.Dst.String()
			proto = transportName(p.Transport.Kind)
			sport, dport = transportPorts(p.Transport)
		}
	case types.NetworkIPv6:
		if p := pkt.Network.Ipv6; p != nil {
			srcIP, dstIP = p.Src.String(), p.Dst.String()
			proto = transportName(p.Transport.Kind)
			sport, dport = transportPorts(p.Transport)
		}
	case types.NetworkARP:
		proto = "ARP"
		if p := pkt.Network.Arp; p != nil {
			srcIP, dstIP = p.SenderIP.String(), p.TargetIP.String()
		}
	}

	return fmt.Sprintf("%-7s %-5s %-20s -> %-20s %5d -> %5d",
		pkt.Direction.String(), proto, srcIP, dstIP, sport, dport)
}

func transportName(kind types.TransportKind) string {
	switch kind {
	case types.TransportTCP:
		return "tcp"
	case types.TransportUDP:
		return "udp"
	case types.TransportICMP:
		return "icmp"
	case types.TransportICMPv6:
		return "icmp6"
	case types.TransportSCTP:
		return "sctp"
	default:
		return "other"
	}
}

func transportPorts(t types.TransportPayload) (sport, dport int) {
	switch t.Kind {
	case types.TransportTCP:
		if t.Tcp != nil {
			return int(t.Tcp.SPort), int(t.Tcp.DPort)
		}
	case types.TransportUDP:
		if t.Udp != nil {
			return int(t.Udp.SPort), int(t.Udp.DPort)
		}
	case types.TransportSCTP:
		if t.Sctp != nil {
			return int(t.Sctp.SPort), int(t.Sctp.DPort)
		}
	}
	return 0, 0
}
