// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	oryxerrors "oryx.sh/oryx/internal/errors"
)

// DefaultPath is where rules are persisted, per spec.md §6.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "oryx", "firewall.json")
}

// storedRule is the on-disk shape; IP is a string because net.IP does not
// round-trip through encoding/json the way the wire format wants.
type storedRule struct {
	ID        RuleID    `json:"id"`
	IP        string    `json:"ip"`
	Port      uint16    `json:"port,omitempty"`
	Protocol  uint8     `json:"protocol,omitempty"`
	Enabled   bool      `json:"enabled"`
	Direction Direction `json:"direction"`
}

// save writes rules to path as a JSON array, creating parent directories as
// needed.
func save(path string, rules []BlockRule) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return oryxerrors.Runtime(fmt.Errorf("create %s: %w", filepath.Dir(path), err))
	}

	out := make([]storedRule, len(rules))
	for i, r := range rules {
		out[i] = storedRule{
			ID: r.ID, IP: r.IP.String(), Port: r.Port,
			Protocol: r.Protocol, Enabled: r.Enabled, Direction: r.Direction,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return oryxerrors.Runtime(fmt.Errorf("marshal rules: %w", err))
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return oryxerrors.Wrap(oryxerrors.ErrFilesystemIO, oryxerrors.KindRuntime, err.Error())
	}
	return nil
}

// load reads rules from path. Malformed entries are skipped; skipped counts
// how many, surfaced as a warning rather than failing the whole load.
func load(path string) (rules []BlockRule, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, oryxerrors.Wrap(oryxerrors.ErrFileParse, oryxerrors.KindUser, err.Error())
	}

	var stored []storedRule
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, 0, oryxerrors.Wrap(oryxerrors.ErrFileParse, oryxerrors.KindUser, err.Error())
	}

	for _, s := range stored {
		ip := net.ParseIP(s.IP)
		if ip == nil || isMeaningless(ip) {
			skipped++
			continue
		}
		if validatePort(s.Port) != nil {
			skipped++
			continue
		}
		if s.ID == "" {
			s.ID = newRuleID()
		}
		rules = append(rules, BlockRule{
			ID: s.ID, IP: ip, Port: s.Port, Protocol: s.Protocol,
			Enabled: s.Enabled, Direction: s.Direction,
		})
	}

	return rules, skipped, nil
}
