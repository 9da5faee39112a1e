// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package classifier owns the lifecycle of one interface's classifier:
// capability check, attach, initial FilterState, ring consumer startup, and
// detach. Detach closes the ring reader before the maps; records still
// waiting in the per-CPU rings at that point are discarded, not drained.
package classifier

import (
	"context"
	"fmt"

	"github.com/vishvananda/netlink"

	"oryx.sh/oryx/internal/diag"
	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/ebpf/loader"
	"oryx.sh/oryx/internal/ebpf/maps"
	"oryx.sh/oryx/internal/ebpf/ring"
	"oryx.sh/oryx/internal/ebpf/types"
	"oryx.sh/oryx/internal/host"
	"oryx.sh/oryx/internal/logging"
)

// Controller attaches the classifier to one interface and exposes its maps
// and decoded packet stream to the rest of the process.
type Controller struct {
	Interface string

	loader   *loader.Loader
	filters  *maps.FilterMap
	blockV4  *maps.BlockMapV4
	blockV6  *maps.BlockMapV6
	consumer *ring.Consumer

	logger *logging.Logger
	meter  *diag.Meter
}

// New validates iface and checks the process holds CAP_NET_ADMIN/CAP_BPF,
// but does not attach anything yet.
func New(iface string, logger *logging.Logger, meter *diag.Meter) (*Controller, error) {
	ok, err := host.HasNetworkCapabilities()
	if err != nil {
		return nil, oryxerrors.Setup(fmt.Errorf("check capabilities: %w", err))
	}
	if !ok {
		return nil, oryxerrors.Wrap(oryxerrors.ErrNoCapabilities, oryxerrors.KindSetup, "missing CAP_NET_ADMIN or CAP_BPF")
	}

	tcx, err := host.SupportsTCX()
	if err != nil {
		return nil, oryxerrors.Setup(fmt.Errorf("check kernel TCX support: %w", err))
	}
	if !tcx {
		return nil, oryxerrors.Wrap(oryxerrors.ErrUnsupportedKernel, oryxerrors.KindSetup, "kernel predates TCX (Linux 6.6)")
	}

	if _, err := netlink.LinkByName(iface); err != nil {
		return nil, oryxerrors.Wrapf(oryxerrors.ErrInterfaceNotFound, oryxerrors.KindSetup, "interface %s: %v", iface, err)
	}

	return &Controller{
		Interface: iface,
		logger:    logger,
		meter:     meter,
	}, nil
}

// Attach loads and attaches the classifier, writes the given initial
// FilterState, and starts the ring consumer. Packets are available from
// Packets() once Attach returns. ringBufferBytes sizes the per-CPU perf
// ring; 0 selects ring.DefaultPerCPUBufferBytes.
func (c *Controller) Attach(ctx context.Context, initial types.FilterState, ringBufferBytes int) error {
	l := loader.New()
	if err := l.Attach(c.Interface); err != nil {
		return err
	}

	filters := maps.NewFilterMap(l.FiltersMap())
	if err := filters.Set(initial); err != nil {
		l.Detach()
		return oryxerrors.Setup(fmt.Errorf("write initial filter state: %w", err))
	}

	consumer, err := ring.NewConsumer(l.RingReader(), ringBufferBytes, c.logger, c.meter)
	if err != nil {
		l.Detach()
		return err
	}

	c.loader = l
	c.filters = filters
	c.blockV4 = maps.NewBlockMapV4(l.BlocklistIPv4Map())
	c.blockV6 = maps.NewBlockMapV6(l.BlocklistIPv6Map())
	c.consumer = consumer

	go func() {
		if err := consumer.Run(ctx); err != nil {
			c.logger.Error("ring consumer stopped", "interface", c.Interface, "error", err)
		}
	}()

	c.logger.Info("classifier attached", "interface", c.Interface)
	return nil
}

// Packets returns the decoded packet stream. Valid only after Attach.
func (c *Controller) Packets() <-chan types.AppPacket { return c.consumer.Out() }

// Filters returns the FILTERS map accessor. Valid only after Attach.
func (c *Controller) Filters() *maps.FilterMap { return c.filters }

// BlockV4 returns the BLOCKLIST_IPV4 map accessor. Valid only after Attach.
func (c *Controller) BlockV4() *maps.BlockMapV4 { return c.blockV4 }

// BlockV6 returns the BLOCKLIST_IPV6 map accessor. Valid only after Attach.
func (c *Controller) BlockV6() *maps.BlockMapV6 { return c.blockV6 }

// Detach stops the ring consumer and removes the TCX attachments. Safe to
// call on a Controller that was never attached.
func (c *Controller) Detach() error {
	if c.consumer != nil {
		c.consumer.Close()
	}
	if c.loader == nil {
		return nil
	}
	c.logger.Info("classifier detached", "interface", c.Interface)
	return c.loader.Detach()
}
