// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"flag"
	"fmt"
	"strings"

	"oryx.sh/oryx/internal/ebpf/types"
)

// cliFlags is the command-line surface described in the Oryx external
// interfaces: which interface to attach to and which protocol layers the
// initial FILTERS state should admit.
type cliFlags struct {
	iface     string
	transport string
	network   string
	direction string
	rulesPath string
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("oryx", flag.ContinueOnError)

	f := cliFlags{}
	fs.StringVar(&f.iface, "interface", "", "network interface to attach the classifier to (required)")
	fs.StringVar(&f.transport, "transport", "tcp,udp,icmp,icmpv6,sctp", "comma-separated transport protocols to capture")
	fs.StringVar(&f.network, "network", "ipv4,ipv6,arp", "comma-separated network protocols to capture")
	fs.StringVar(&f.direction, "direction", "both", "traffic direction to capture: ingress, egress, or both")
	fs.StringVar(&f.rulesPath, "rules", "", "path to a firewall rules file (defaults to ~/oryx/firewall.json)")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}

	if f.iface == "" {
		return cliFlags{}, fmt.Errorf("-interface is required")
	}

	return f, nil
}

// filterState renders the flags into the FilterState the classifier is
// initialized with.
func (f cliFlags) filterState() (types.FilterState, error) {
	networkMask, err := parseNetworkMask(f.network)
	if err != nil {
		return types.FilterState{}, err
	}

	transportMask, err := parseTransportMask(f.transport)
	if err != nil {
		return types.FilterState{}, err
	}

	dirMask, err := parseDirectionMask(f.direction)
	if err != nil {
		return types.FilterState{}, err
	}

	return types.FilterState{
		Transport: transportMask,
		Network:   networkMask,
		Link:      networkMask, // link-layer EtherType bits mirror NetworkKind bits 1:1 in this design
		Direction: dirMask,
	}, nil
}

func parseNetworkMask(csv string) (uint32, error) {
	var mask uint32
	for _, tok := range splitCSV(csv) {
		switch tok {
		case "ipv4":
			mask |= types.NetworkFilterBit(types.NetworkIPv4)
		case "ipv6":
			mask |= types.NetworkFilterBit(types.NetworkIPv6)
		case "arp":
			mask |= types.NetworkFilterBit(types.NetworkARP)
		default:
			return 0, fmt.Errorf("unknown -network protocol %q", tok)
		}
	}
	return mask, nil
}

func parseTransportMask(csv string) (uint32, error) {
	var mask uint32
	for _, tok := range splitCSV(csv) {
		switch tok {
		case "tcp":
			mask |= types.TransportFilterBit(types.TransportTCP)
		case "udp":
			mask |= types.TransportFilterBit(types.TransportUDP)
		case "icmp":
			mask |= types.TransportFilterBit(types.TransportICMP)
		case "icmpv6":
			mask |= types.TransportFilterBit(types.TransportICMPv6)
		case "sctp":
			mask |= types.TransportFilterBit(types.TransportSCTP)
		default:
			return 0, fmt.Errorf("unknown -transport protocol %q", tok)
		}
	}
	return mask, nil
}

func parseDirectionMask(value string) (uint32, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ingress":
		return types.DirectionMaskIngress, nil
	case "egress":
		return types.DirectionMaskEgress, nil
	case "both", "":
		return types.DirectionMaskBoth, nil
	default:
		return 0, fmt.Errorf("unknown -direction %q", value)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
