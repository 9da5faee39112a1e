// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"fmt"
	"net"
	"sync"

	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/ebpf/maps"
	"oryx.sh/oryx/internal/ebpf/types"
	"oryx.sh/oryx/internal/logging"
)

// blockMapWriter is the subset of maps.BlockMapV4/V6 the controller needs;
// satisfied by both, letting tests substitute an in-memory fake.
type blockMapWriter interface {
	Put(ip net.IP, mask types.BlockMask) error
	Delete(ip net.IP) error
}

// Controller is the single in-process authority over BlockRules. All
// mutating operations take the same mutex, matching the teacher's
// one-mutex-per-authority discipline.
type Controller struct {
	mu    sync.Mutex
	rules map[RuleID]BlockRule

	blockV4 blockMapWriter
	blockV6 blockMapWriter

	lastImageV4 map[string]types.BlockMask
	lastImageV6 map[string]types.BlockMask

	logger *logging.Logger
}

// New creates an empty Controller wired to the given map accessors. Either
// may be nil in tests that only exercise CRUD without reconciliation.
func New(blockV4 *maps.BlockMapV4, blockV6 *maps.BlockMapV6, logger *logging.Logger) *Controller {
	return &Controller{
		rules:       make(map[RuleID]BlockRule),
		blockV4:     wrapV4(blockV4),
		blockV6:     wrapV6(blockV6),
		lastImageV4: make(map[string]types.BlockMask),
		lastImageV6: make(map[string]types.BlockMask),
		logger:      logger,
	}
}

func wrapV4(m *maps.BlockMapV4) blockMapWriter {
	if m == nil {
		return nil
	}
	return m
}

func wrapV6(m *maps.BlockMapV6) blockMapWriter {
	if m == nil {
		return nil
	}
	return m
}

// Add validates and inserts rule, assigning it a new RuleID, then
// reconciles. Duplicate (ip, port, protocol, direction) tuples are rejected.
func (c *Controller) Add(rule BlockRule) (RuleID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isMeaningless(rule.IP) {
		return "", oryxerrors.Wrap(oryxerrors.ErrInvalidRule, oryxerrors.KindUser, "rule IP must not be the unspecified address")
	}
	if err := validatePort(rule.Port); err != nil {
		return "", err
	}
	if rule.Direction == "" {
		rule.Direction = DirectionBoth
	}

	for _, existing := range c.rules {
		if existing.tuple() == rule.tuple() {
			return "", oryxerrors.Wrap(oryxerrors.ErrAlreadyExists, oryxerrors.KindUser, "a rule with this ip/port/protocol/direction already exists")
		}
	}

	rule.ID = newRuleID()
	c.rules[rule.ID] = rule

	if err := c.reconcileLocked(); err != nil {
		delete(c.rules, rule.ID)
		return "", err
	}
	return rule.ID, nil
}

// Edit replaces the rule at id with updated, reconciling afterward. On
// reconciliation failure the previous rule is restored.
func (c *Controller) Edit(id RuleID, updated BlockRule) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, ok := c.rules[id]
	if !ok {
		return oryxerrors.Wrap(oryxerrors.ErrInvalidRule, oryxerrors.KindUser, "no such rule")
	}
	if isMeaningless(updated.IP) {
		return oryxerrors.Wrap(oryxerrors.ErrInvalidRule, oryxerrors.KindUser, "rule IP must not be the unspecified address")
	}
	if err := validatePort(updated.Port); err != nil {
		return err
	}

	updated.ID = id
	c.rules[id] = updated

	if err := c.reconcileLocked(); err != nil {
		c.rules[id] = previous
		return err
	}
	return nil
}

// Delete removes the rule at id and reconciles.
func (c *Controller) Delete(id RuleID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, ok := c.rules[id]
	if !ok {
		return oryxerrors.Wrap(oryxerrors.ErrInvalidRule, oryxerrors.KindUser, "no such rule")
	}
	delete(c.rules, id)

	if err := c.reconcileLocked(); err != nil {
		c.rules[id] = previous
		return err
	}
	return nil
}

// Toggle flips the rule's Enabled flag, preserving its ID, and reconciles.
func (c *Controller) Toggle(id RuleID) (enabled bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, ok := c.rules[id]
	if !ok {
		return false, oryxerrors.Wrap(oryxerrors.ErrInvalidRule, oryxerrors.KindUser, "no such rule")
	}

	previous := rule
	rule.Enabled = !rule.Enabled
	c.rules[id] = rule

	if err := c.reconcileLocked(); err != nil {
		c.rules[id] = previous
		return previous.Enabled, err
	}
	return rule.Enabled, nil
}

// List returns a snapshot of every rule, enabled or not.
func (c *Controller) List() []BlockRule {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]BlockRule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r)
	}
	return out
}

// Save persists all rules to path (DefaultPath() if empty) and returns the
// path written.
func (c *Controller) Save(path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path == "" {
		path = DefaultPath()
	}
	rules := make([]BlockRule, 0, len(c.rules))
	for _, r := range c.rules {
		rules = append(rules, r)
	}
	return path, save(path, rules)
}

// Load reads rules from path (DefaultPath() if empty), replacing the
// in-memory set, and reconciles. Returns how many stored entries were
// skipped as malformed.
func (c *Controller) Load(path string) (skipped int, err error) {
	if path == "" {
		path = DefaultPath()
	}

	rules, skipped, err := load(path)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.rules
	c.rules = make(map[RuleID]BlockRule, len(rules))
	for _, r := range rules {
		c.rules[r.ID] = r
	}

	if err := c.reconcileLocked(); err != nil {
		c.rules = previous
		return 0, err
	}
	return skipped, nil
}

// buildImage OR-merges every enabled rule's mask into a per-IP image, split
// by address family.
func (c *Controller) buildImage() (v4, v6 map[string]types.BlockMask) {
	v4 = make(map[string]types.BlockMask)
	v6 = make(map[string]types.BlockMask)

	for _, r := range c.rules {
		if !r.Enabled {
			continue
		}

		// r.Port is guaranteed < maxRepresentablePort by validatePort at
		// Add/Edit time, so it always fits port_mask's 64 bits.
		mask := types.BlockMask{DirectionMask: r.Direction.mask()}
		if r.Port == 0 {
			mask.AnyPort = 1
		} else {
			mask.PortMask = 1 << r.Port
		}
		if r.Protocol != 0 {
			mask.ProtocolMask.Add(r.Protocol)
		}

		var image map[string]types.BlockMask
		if r.IP.To4() != nil {
			image = v4
		} else {
			image = v6
		}

		key := r.IP.String()
		merged := image[key]
		merged.DirectionMask |= mask.DirectionMask
		merged.ProtocolMask.Merge(mask.ProtocolMask)
		merged.PortMask |= mask.PortMask
		if mask.AnyPort != 0 {
			merged.AnyPort = 1
		}
		image[key] = merged
	}

	return v4, v6
}

// reconcileLocked rebuilds the desired block-map image and applies the diff
// (upserts and deletes) to the shared maps. Caller must hold c.mu. On
// failure, already-applied writes for this pass are rolled back to the
// last known-good image, and ReconcileFailed is returned.
func (c *Controller) reconcileLocked() error {
	desiredV4, desiredV6 := c.buildImage()

	if err := diffAndApply(c.blockV4, c.lastImageV4, desiredV4); err != nil {
		rollbackErr := diffAndApply(c.blockV4, desiredV4, c.lastImageV4)
		return reconcileFailure(err, rollbackErr)
	}
	if err := diffAndApply(c.blockV6, c.lastImageV6, desiredV6); err != nil {
		rollbackErr := diffAndApply(c.blockV6, desiredV6, c.lastImageV6)
		diffAndApply(c.blockV4, desiredV4, c.lastImageV4) // also undo the v4 half already applied
		return reconcileFailure(err, rollbackErr)
	}

	c.lastImageV4 = desiredV4
	c.lastImageV6 = desiredV6
	return nil
}

func reconcileFailure(applyErr, rollbackErr error) error {
	if rollbackErr != nil {
		return oryxerrors.Wrap(oryxerrors.ErrReconcileFailed, oryxerrors.KindRuntime,
			fmt.Sprintf("reconcile failed (%v) and rollback also failed (%v)", applyErr, rollbackErr))
	}
	return oryxerrors.Wrap(oryxerrors.ErrReconcileFailed, oryxerrors.KindRuntime, applyErr.Error())
}

// diffAndApply computes the additions/deletions between current and
// desired (keyed by IP string) and applies them to w. Mirrors the
// teacher's AtomicIPSetUpdate diff strategy, minus the nft-specific batching.
func diffAndApply(w blockMapWriter, current, desired map[string]types.BlockMask) error {
	if w == nil {
		return nil
	}

	for key := range current {
		if _, ok := desired[key]; !ok {
			ip := net.ParseIP(key)
			if err := w.Delete(ip); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
	}

	for key, mask := range desired {
		if prev, ok := current[key]; ok && prev == mask {
			continue
		}
		ip := net.ParseIP(key)
		if err := w.Put(ip, mask); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}

	return nil
}
