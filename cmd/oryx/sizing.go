// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	busPkg "oryx.sh/oryx/internal/bus"
	"oryx.sh/oryx/internal/ebpf/ring"
	"oryx.sh/oryx/internal/host"
)

// lowMemoryThresholdBytes is the available-memory floor below which the
// per-CPU ring and the packet bus shrink from their defaults.
const lowMemoryThresholdBytes = 512 * 1024 * 1024

// pipelineSizes picks the per-CPU ring buffer size and packet bus capacity
// for this run, shrinking both on memory-constrained hosts as
// internal/host.MemoryInfo's doc comment promises. info may be nil (the
// /proc/meminfo read failed); defaults are used in that case rather than
// failing startup over a sizing decision.
func pipelineSizes(info *host.MemoryInfo) (ringBufferBytes, busCapacity int) {
	if info == nil || info.AvailableBytes >= lowMemoryThresholdBytes {
		return ring.DefaultPerCPUBufferBytes, busPkg.DefaultCapacity
	}

	// Spec's own resource-limit default for the per-CPU ring (256 KiB) is
	// already the constrained-host floor; the bus ring shrinks by the same
	// proportion it does relative to ring.DefaultPerCPUBufferBytes.
	return 256 * 1024, busPkg.DefaultCapacity / 4
}
