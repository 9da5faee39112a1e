// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall is the Firewall Controller: the single in-process
// authority over BlockRules, their persistence, and their reconciliation
// into the shared BLOCKLIST_IPV4/BLOCKLIST_IPV6 maps.
package firewall

import (
	"fmt"
	"net"

	"github.com/google/uuid"

	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/ebpf/types"
)

// Direction is the rule's scope; Both covers ingress and egress.
type Direction string

const (
	DirectionIngress Direction = "ingress"
	DirectionEgress  Direction = "egress"
	DirectionBoth    Direction = "both"
)

func (d Direction) mask() uint32 {
	switch d {
	case DirectionIngress:
		return types.DirectionMaskIngress
	case DirectionEgress:
		return types.DirectionMaskEgress
	default:
		return types.DirectionMaskBoth
	}
}

// RuleID identifies a BlockRule across its lifetime, including through
// toggle, so UI references stay stable (spec.md Open Question (b)).
type RuleID string

// BlockRule is a user-authored drop rule. Port and Protocol are optional:
// zero value means "any". Port is further restricted to 1-63 by
// validatePort — wider ports are rejected by Controller.Add/Edit rather
// than accepted and silently widened to "any port" in the block map.
type BlockRule struct {
	ID        RuleID    `json:"id"`
	IP        net.IP    `json:"ip"`
	Port      uint16    `json:"port,omitempty"`
	Protocol  uint8     `json:"protocol,omitempty"`
	Enabled   bool      `json:"enabled"`
	Direction Direction `json:"direction"`
}

// tuple is the identity used to detect duplicate rules.
type tuple struct {
	ip       string
	port     uint16
	protocol uint8
	dir      Direction
}

func (r BlockRule) tuple() tuple {
	return tuple{ip: r.IP.String(), port: r.Port, protocol: r.Protocol, dir: r.Direction}
}

func newRuleID() RuleID {
	return RuleID(uuid.NewString())
}

// isMeaningless rejects the zero address, which would otherwise match
// every packet under a careless rule.
func isMeaningless(ip net.IP) bool {
	return ip == nil || ip.IsUnspecified()
}

// maxRepresentablePort is one past the highest port BLOCKLIST_IPV4/6's
// block_mask can encode: port_mask is a 64-bit bitmask, one bit per port
// number, so only ports 0-63 fit. A rule naming a wider port is rejected
// here rather than silently widened to "any port" by the reconciler.
const maxRepresentablePort = 64

func validatePort(port uint16) error {
	if port != 0 && port >= maxRepresentablePort {
		return oryxerrors.Wrap(oryxerrors.ErrInvalidRule, oryxerrors.KindUser,
			fmt.Sprintf("port %d is not representable (supported range is 1-%d); use a rule without a port to block the whole address instead", port, maxRepresentablePort-1))
	}
	return nil
}
