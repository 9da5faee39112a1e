// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"oryx.sh/oryx/internal/firewall"
)

// firewallField identifies which text field a form (n/e) is currently
// capturing keystrokes for.
type firewallField int

const (
	fieldIP firewallField = iota
	fieldPort
	fieldProtocol
	fieldDirection
	fieldCount
)

func (f firewallField) label() string {
	switch f {
	case fieldIP:
		return "IP"
	case fieldPort:
		return "port (blank = any)"
	case fieldProtocol:
		return "protocol: tcp/udp/icmp/icmpv6/sctp (blank = any)"
	case fieldDirection:
		return "direction: ingress/egress/both"
	default:
		return ""
	}
}

type firewallMode int

const (
	modeIdle firewallMode = iota
	modeAdding
	modeEditing
)

// FirewallModel is the declarative firewall view: a rule list, toggled with
// Space, with n/e driving a sequential-field add/edit form submitted by
// Enter, and s persisting the rule set to disk.
type FirewallModel struct {
	Backend Backend

	rules    []firewall.BlockRule
	selected int

	mode   firewallMode
	editID firewall.RuleID
	field  firewallField
	values [fieldCount]string

	status string

	Width  int
	Height int
}

func NewFirewallModel(backend Backend) FirewallModel {
	return FirewallModel{Backend: backend}
}

func (m FirewallModel) Init() tea.Cmd {
	return func() tea.Msg { return firewallRefreshMsg{} }
}

type firewallRefreshMsg struct{}

func (m FirewallModel) Update(msg tea.Msg) (FirewallModel, tea.Cmd) {
	switch msg := msg.(type) {
	case firewallRefreshMsg:
		m.rules = m.Backend.FirewallRules()
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeIdle {
			return m.updateForm(msg)
		}
		return m.updateIdle(msg)
	}
	return m, nil
}

func (m FirewallModel) updateIdle(msg tea.KeyMsg) (FirewallModel, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.selected < len(m.rules)-1 {
			m.selected++
		}
	case "k", "up":
		if m.selected > 0 {
			m.selected--
		}
	case "n":
		m.mode = modeAdding
		m.field = fieldIP
		m.values = [fieldCount]string{}
		m.status = ""
	case "e":
		if m.selected < len(m.rules) {
			r := m.rules[m.selected]
			m.mode = modeEditing
			m.editID = r.ID
			m.field = fieldIP
			m.values = [fieldCount]string{
				ipString2(r.IP), portString(r.Port), protocolString(r.Protocol), string(r.Direction),
			}
			m.status = ""
		}
	case " ":
		if m.selected < len(m.rules) {
			id := m.rules[m.selected].ID
			if _, err := m.Backend.ToggleRule(id); err != nil {
				m.status = "toggle failed: " + err.Error()
			} else {
				m.rules = m.Backend.FirewallRules()
			}
		}
	case "s":
		if path, err := m.Backend.SaveRules(); err != nil {
			m.status = "save failed: " + err.Error()
		} else {
			m.status = "saved to " + path
		}
	}
	return m, nil
}

func (m FirewallModel) updateForm(msg tea.KeyMsg) (FirewallModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeIdle
		m.status = ""
		return m, nil

	case "enter":
		if m.field < fieldCount-1 {
			m.field++
			return m, nil
		}
		return m.submitForm()

	case "backspace":
		v := m.values[m.field]
		if len(v) > 0 {
			m.values[m.field] = v[:len(v)-1]
		}
		return m, nil

	default:
		if len(msg.String()) == 1 {
			m.values[m.field] += msg.String()
		}
		return m, nil
	}
}

func (m FirewallModel) submitForm() (FirewallModel, tea.Cmd) {
	rule, err := parseRuleForm(m.values)
	if err != nil {
		m.status = err.Error()
		return m, nil
	}

	if m.mode == modeAdding {
		if _, err := m.Backend.AddRule(rule); err != nil {
			m.status = "add failed: " + err.Error()
			return m, nil
		}
		m.status = "rule added"
	} else {
		if err := m.Backend.EditRule(m.editID, rule); err != nil {
			m.status = "edit failed: " + err.Error()
			return m, nil
		}
		m.status = "rule updated"
	}

	m.mode = modeIdle
	m.rules = m.Backend.FirewallRules()
	return m, nil
}

func parseRuleForm(values [fieldCount]string) (firewall.BlockRule, error) {
	ip := net.ParseIP(strings.TrimSpace(values[fieldIP]))
	if ip == nil {
		return firewall.BlockRule{}, fmt.Errorf("invalid IP %q", values[fieldIP])
	}

	var port uint16
	if p := strings.TrimSpace(values[fieldPort]); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return firewall.BlockRule{}, fmt.Errorf("invalid port %q", p)
		}
		port = uint16(n)
	}

	var protocol uint8
	if p := strings.TrimSpace(strings.ToLower(values[fieldProtocol])); p != "" {
		n, ok := protocolNumbers[p]
		if !ok {
			return firewall.BlockRule{}, fmt.Errorf("unknown protocol %q", p)
		}
		protocol = n
	}

	dir := firewall.Direction(strings.TrimSpace(strings.ToLower(values[fieldDirection])))
	switch dir {
	case firewall.DirectionIngress, firewall.DirectionEgress, firewall.DirectionBoth:
	case "":
		dir = firewall.DirectionBoth
	default:
		return firewall.BlockRule{}, fmt.Errorf("unknown direction %q", values[fieldDirection])
	}

	return firewall.BlockRule{IP: ip, Port: port, Protocol: protocol, Direction: dir, Enabled: true}, nil
}

var protocolNumbers = map[string]uint8{
	"tcp": 6, "udp": 17, "icmp": 1, "icmpv6": 58, "sctp": 132,
}

var protocolNames = map[uint8]string{
	6: "tcp", 17: "udp", 1: "icmp", 58: "icmpv6", 132: "sctp",
}

func protocolString(p uint8) string {
	if p == 0 {
		return ""
	}
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

func portString(p uint16) string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(int(p))
}

func ipString2(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func (m FirewallModel) View() string {
	header := StyleHeader.Render("FIREWALL (n add, e edit, Space toggle, s save)")

	var rows []string
	for i, r := range m.rules {
		mark := "[ ]"
		if r.Enabled {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %-20s port=%-6s proto=%-7s %s",
			mark, r.IP.String(), portString(r.Port), protocolString(r.Protocol), r.Direction)
		if i == m.selected {
			line = StyleHighlight.Render(line)
		}
		rows = append(rows, line)
	}
	if len(rows) == 0 {
		rows = []string{StyleSubtitle.Render("no rules yet — press n to add one")}
	}
	list := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	doc := lipgloss.JoinVertical(lipgloss.Left, header, list)

	if m.mode != modeIdle {
		var formRows []string
		for f := firewallField(0); f < fieldCount; f++ {
			prefix := "  "
			if f == m.field {
				prefix = "> "
			}
			formRows = append(formRows, fmt.Sprintf("%s%s: %s", prefix, f.label(), m.values[f]))
		}
		title := "New rule"
		if m.mode == modeEditing {
			title = "Edit rule"
		}
		form := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
			append([]string{StyleTitle.Render(title)}, formRows...)...))
		doc += "\n" + form
	}

	if m.status != "" {
		doc += "\n" + StyleSubtitle.Render(m.status)
	}

	return doc
}
