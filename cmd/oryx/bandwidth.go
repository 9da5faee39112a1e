// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"oryx.sh/oryx/internal/tui"
)

// sampleHistory bounds how many per-interface throughput samples are kept
// for the bandwidth view's chart.
const sampleHistory = 120

// bandwidthSampler is the /proc/net/dev collaborator spec.md places outside
// the core: it periodically diffs cumulative byte counters into per-second
// rates per interface.
type bandwidthSampler struct {
	mu       sync.RWMutex
	samples  map[string][]tui.BandwidthSample
	previous map[string]uint64
}

func newBandwidthSampler() *bandwidthSampler {
	return &bandwidthSampler{
		samples:  make(map[string][]tui.BandwidthSample),
		previous: make(map[string]uint64),
	}
}

// Run samples /proc/net/dev once a second until ctx is cancelled.
func (s *bandwidthSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *bandwidthSampler) tick(now time.Time) {
	totals, err := readProcNetDev()
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for iface, total := range totals {
		prev, ok := s.previous[iface]
		s.previous[iface] = total
		if !ok {
			continue
		}
		rate := total - prev
		if total < prev {
			rate = total // counter reset (interface flap); treat as a fresh baseline
		}

		hist := append(s.samples[iface], tui.BandwidthSample{At: now, Bytes: rate})
		if len(hist) > sampleHistory {
			hist = hist[len(hist)-sampleHistory:]
		}
		s.samples[iface] = hist
	}
}

// Interfaces returns every interface the kernel currently lists, in the
// kernel's own order (so a never-yet-sampled interface still shows up).
func (s *bandwidthSampler) Interfaces() []string {
	links, err := netlink.LinkList()
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	return names
}

// Samples returns a copy of iface's recent throughput history.
func (s *bandwidthSampler) Samples(iface string) []tui.BandwidthSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.samples[iface]
	out := make([]tui.BandwidthSample, len(hist))
	copy(out, hist)
	return out
}

// readProcNetDev parses the cumulative rx+tx byte counters per interface.
func readProcNetDev() (map[string]uint64, error) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	totals := make(map[string]uint64)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue // two header lines
		}

		line := scanner.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		iface := strings.TrimSpace(parts[0])
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}

		rxBytes, _ := strconv.ParseUint(fields[0], 10, 64)
		txBytes, _ := strconv.ParseUint(fields[8], 10, 64)
		totals[iface] = rxBytes + txBytes
	}

	return totals, scanner.Err()
}
