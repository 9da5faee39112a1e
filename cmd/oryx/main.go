// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command oryx is the interactive network-traffic observatory: it attaches
// the classifier to one interface, wires the ring consumer into the packet
// bus, starts the statistics/alert/export/firewall subsystems, and presents
// them through a bubbletea TUI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"oryx.sh/oryx/internal/alert"
	busPkg "oryx.sh/oryx/internal/bus"
	"oryx.sh/oryx/internal/classifier"
	"oryx.sh/oryx/internal/diag"
	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/export"
	"oryx.sh/oryx/internal/firewall"
	"oryx.sh/oryx/internal/host"
	"oryx.sh/oryx/internal/logging"
	"oryx.sh/oryx/internal/stats"
	"oryx.sh/oryx/internal/tui"
)

// Exit codes per the Oryx external interfaces.
const (
	exitOK                 = 0
	exitMissingPrivileges  = 1
	exitInterfaceNotFound  = 2
	exitProgramLoadFailure = 3
	exitRulesFileParse     = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "oryx:", err)
		return exitMissingPrivileges
	}

	logger := logging.New(logging.DefaultConfig())
	meter := diag.NewMeter(prometheus.DefaultRegisterer)

	initial, err := flags.filterState()
	if err != nil {
		fmt.Fprintln(os.Stderr, "oryx:", err)
		return exitMissingPrivileges
	}

	ctrl, err := classifier.New(flags.iface, logger, meter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "oryx:", err)
		switch oryxerrors.GetKind(err) {
		case oryxerrors.KindSetup:
			if oryxerrors.Is(err, oryxerrors.ErrNoCapabilities) {
				return exitMissingPrivileges
			}
			if oryxerrors.Is(err, oryxerrors.ErrInterfaceNotFound) {
				return exitInterfaceNotFound
			}
		}
		return exitProgramLoadFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	mem, err := host.GetMemoryInfo()
	if err != nil {
		logger.Warn("reading memory info, using default pipeline sizes", "error", err)
		mem = nil
	}
	ringBufferBytes, busCapacity := pipelineSizes(mem)

	if err := ctrl.Attach(ctx, initial, ringBufferBytes); err != nil {
		fmt.Fprintln(os.Stderr, "oryx:", err)
		return exitProgramLoadFailure
	}
	defer ctrl.Detach()

	fwController := firewall.New(ctrl.BlockV4(), ctrl.BlockV6(), logger)
	rulesPath := flags.rulesPath
	if rulesPath == "" {
		rulesPath = firewall.DefaultPath()
	}
	if _, err := os.Stat(rulesPath); err == nil {
		if _, err := fwController.Load(rulesPath); err != nil {
			fmt.Fprintln(os.Stderr, "oryx: parsing rules file:", err)
			return exitRulesFileParse
		}
	}

	b := busPkg.New(busCapacity, meter)
	go pumpPackets(ctx, ctrl, b)

	resolver := stats.NewResolver(nil, 0, meter)
	go resolver.Run(ctx, 4)

	aggregator := stats.New(resolver)
	go aggregator.Run(ctx, b)

	detector := alert.New()
	go detector.Run(ctx, b)

	exporter := export.New(0, meter)
	go exporter.Run(ctx, b)

	sampler := newBandwidthSampler()
	go sampler.Run(ctx)

	back := &backend{
		bus:        b,
		aggregator: aggregator,
		detector:   detector,
		firewall:   fwController,
		exporter:   exporter,
		bandwidth:  sampler,
		filters:    ctrl.Filters(),
	}

	program := tea.NewProgram(tui.New(back), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "oryx:", err)
		return exitProgramLoadFailure
	}

	return exitOK
}

// pumpPackets forwards decoded packets from the classifier into the shared
// bus until ctx is cancelled or the classifier's channel closes.
func pumpPackets(ctx context.Context, ctrl *classifier.Controller, b *busPkg.Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-ctrl.Packets():
			if !ok {
				return
			}
			b.Publish(pkt)
		}
	}
}
