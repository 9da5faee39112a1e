// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package diag implements the internal diagnostics meter that Runtime-kind
// errors are counted against (Oryx error handling design §7). It is
// intentionally small: a counter per runtime error cause, exposed both as a
// Prometheus vector for anything scraping the process and as a plain
// snapshot for the TUI notification bar.
package diag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	orxerrors "oryx.sh/oryx/internal/errors"
)

// Meter counts Runtime errors by the sentinel they carry.
type Meter struct {
	mu     sync.Mutex
	counts map[string]uint64

	vec *prometheus.CounterVec
}

// NewMeter creates a Meter and registers its Prometheus vector with reg.
// reg may be nil, in which case the counter is unregistered (tests).
func NewMeter(reg prometheus.Registerer) *Meter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oryx_runtime_errors_total",
		Help: "Count of non-fatal runtime errors observed by the pipeline, by cause.",
	}, []string{"cause"})

	if reg != nil {
		reg.MustRegister(vec)
	}

	return &Meter{
		counts: make(map[string]uint64),
		vec:    vec,
	}
}

// Record increments the counter for err's cause. err should normally be one
// of the Runtime sentinel errors; any other error is recorded under
// "unknown".
func (m *Meter) Record(err error) {
	if err == nil {
		return
	}

	cause := "unknown"
	switch {
	case orxerrors.Is(err, orxerrors.ErrRingReserveExhausted):
		cause = "ring_reserve_exhausted"
	case orxerrors.Is(err, orxerrors.ErrBusLagged):
		cause = "bus_lagged"
	case orxerrors.Is(err, orxerrors.ErrDnsTimeout):
		cause = "dns_timeout"
	case orxerrors.Is(err, orxerrors.ErrFilesystemIO):
		cause = "filesystem_io"
	}

	m.mu.Lock()
	m.counts[cause]++
	m.mu.Unlock()

	m.vec.WithLabelValues(cause).Inc()
}

// Snapshot returns a copy of the current counts, for the UI notification
// bar to poll without touching Prometheus internals.
func (m *Meter) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
