// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package loader loads the generated Classifier eBPF object and attaches its
// two TC programs to an interface's ingress and egress hooks.
package loader

import (
	"fmt"
	"net"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	"oryx.sh/oryx/internal/ebpf/programs"
	oryxerrors "oryx.sh/oryx/internal/errors"
)

// Loader owns one attached Classifier collection on one interface. It is not
// safe to load the same interface twice from independent Loaders.
type Loader struct {
	objects programs.ClassifierObjects

	ingress link.Link
	egress  link.Link

	mu     sync.Mutex
	loaded bool
}

// New returns an unloaded Loader.
func New() *Loader {
	return &Loader{}
}

// Attach loads the Classifier object into the kernel and attaches it at the
// TCX ingress and egress hooks of iface. On any failure it unwinds whatever
// it already attached before returning.
func (l *Loader) Attach(iface string) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return oryxerrors.Setup(fmt.Errorf("loader already attached"))
	}

	ifaceObj, err := net.InterfaceByName(iface)
	if err != nil {
		return oryxerrors.Setup(fmt.Errorf("find interface %s: %w", iface, err))
	}

	if err := programs.LoadClassifierObjects(&l.objects, nil); err != nil {
		return oryxerrors.Setup(fmt.Errorf("load classifier object: %w", err))
	}
	defer func() {
		if err != nil {
			l.objects.Close()
		}
	}()

	l.ingress, err = link.AttachTCX(link.TCXOptions{
		Program:   l.objects.OryxClassifyIngress,
		Attach:    ebpf.AttachTCXIngress,
		Interface: ifaceObj.Index,
	})
	if err != nil {
		return oryxerrors.Setup(fmt.Errorf("attach ingress tcx on %s: %w", iface, err))
	}
	defer func() {
		if err != nil {
			l.ingress.Close()
		}
	}()

	l.egress, err = link.AttachTCX(link.TCXOptions{
		Program:   l.objects.OryxClassifyEgress,
		Attach:    ebpf.AttachTCXEgress,
		Interface: ifaceObj.Index,
	})
	if err != nil {
		return oryxerrors.Setup(fmt.Errorf("attach egress tcx on %s: %w", iface, err))
	}

	l.loaded = true
	return nil
}

// FiltersMap returns the FILTERS array map.
func (l *Loader) FiltersMap() *ebpf.Map { return l.objects.Filters }

// BlocklistIPv4Map returns the BLOCKLIST_IPV4 hash map.
func (l *Loader) BlocklistIPv4Map() *ebpf.Map { return l.objects.BlocklistIpv4 }

// BlocklistIPv6Map returns the BLOCKLIST_IPV6 hash map.
func (l *Loader) BlocklistIPv6Map() *ebpf.Map { return l.objects.BlocklistIpv6 }

// RingReader returns the perf event array the classifier writes app_packet
// records into.
func (l *Loader) RingReader() *ebpf.Map { return l.objects.Data }

// Detach closes the TCX links and the underlying collection. Safe to call on
// an unattached Loader.
func (l *Loader) Detach() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return nil
	}

	var firstErr error
	if l.egress != nil {
		if err := l.egress.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.ingress != nil {
		if err := l.ingress.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.objects.Close()

	l.loaded = false
	return firstErr
}

// Attached reports whether the classifier is currently attached.
func (l *Loader) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}
