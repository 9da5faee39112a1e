// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package stats

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	oryxerrors "oryx.sh/oryx/internal/errors"
	"oryx.sh/oryx/internal/diag"
)

// DefaultCacheSize is the default number of resolved/unresolved entries the
// Resolver keeps before evicting the least recently used.
const DefaultCacheSize = 1024

// DefaultTimeout bounds a single reverse lookup.
const DefaultTimeout = 2 * time.Second

// DefaultQueueDepth bounds the number of pending lookups; excess requests
// are dropped rather than queued unbounded, per the Oryx design notes on
// reverse DNS.
const DefaultQueueDepth = 256

// Resolver is a pure request/response reverse-DNS service: callers submit
// an IP and get a hostname (or the literal address on failure/timeout)
// back through a results channel. It never holds a reference back to its
// callers, breaking the cyclic dependency the design notes call out.
type Resolver struct {
	client  *dns.Client
	servers []string

	mu    sync.Mutex
	cache map[string]string
	order []string // least recently used first, for LRU eviction

	cacheSize int
	requests  chan resolveRequest
	results   chan Resolution

	meter *diag.Meter
}

type resolveRequest struct {
	ip net.IP
}

// Resolution is a completed (or defaulted) reverse lookup.
type Resolution struct {
	IP       net.IP
	Hostname string // equals IP.String() when resolution failed or timed out
}

// NewResolver builds a Resolver using servers (e.g. from /etc/resolv.conf);
// nil or empty uses 127.0.0.53:53, the systemd-resolved stub most Linux
// hosts expose.
func NewResolver(servers []string, cacheSize int, meter *diag.Meter) *Resolver {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if len(servers) == 0 {
		servers = []string{"127.0.0.53:53"}
	}

	return &Resolver{
		client:    &dns.Client{Timeout: DefaultTimeout},
		servers:   servers,
		cache:     make(map[string]string, cacheSize),
		cacheSize: cacheSize,
		requests:  make(chan resolveRequest, DefaultQueueDepth),
		results:   make(chan Resolution, DefaultQueueDepth),
		meter:     meter,
	}
}

// Results returns the channel completed lookups are posted to.
func (r *Resolver) Results() <-chan Resolution { return r.results }

// Lookup enqueues ip for reverse resolution. If the queue is full the
// request is dropped silently (Runtime error, counted) rather than
// blocking the caller.
func (r *Resolver) Lookup(ip net.IP) {
	if host, ok := r.cached(ip); ok {
		r.results <- Resolution{IP: ip, Hostname: host}
		return
	}

	select {
	case r.requests <- resolveRequest{ip: ip}:
	default:
		if r.meter != nil {
			r.meter.Record(oryxerrors.Runtime(oryxerrors.ErrDnsTimeout))
		}
	}
}

func (r *Resolver) cached(ip net.IP) (string, bool) {
	key := ip.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	host, ok := r.cache[key]
	if ok {
		// A hit makes key the most recently used entry.
		for i, k := range r.order {
			if k == key {
				copy(r.order[i:], r.order[i+1:])
				r.order[len(r.order)-1] = key
				break
			}
		}
	}
	return host, ok
}

func (r *Resolver) remember(ip net.IP, host string) {
	key := ip.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cache[key]; !exists {
		r.order = append(r.order, key)
	}
	r.cache[key] = host

	for len(r.order) > r.cacheSize {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.cache, oldest)
	}
}

// Run drains the request queue with a bounded worker pool until ctx is
// cancelled.
func (r *Resolver) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 4
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			r.worker(ctx)
		}()
	}
	wg.Wait()
}

func (r *Resolver) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.requests:
			host := r.resolve(ctx, req.ip)
			r.remember(req.ip, host)
			select {
			case r.results <- Resolution{IP: req.ip, Hostname: host}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Resolver) resolve(ctx context.Context, ip net.IP) string {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return ip.String()
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	type result struct {
		reply *dns.Msg
		err   error
	}
	done := make(chan result, 1)

	go func() {
		reply, _, err := r.client.Exchange(msg, r.servers[0])
		done <- result{reply: reply, err: err}
	}()

	select {
	case <-ctx.Done():
		if r.meter != nil {
			r.meter.Record(oryxerrors.Runtime(oryxerrors.ErrDnsTimeout))
		}
		return ip.String()
	case res := <-done:
		if res.err != nil || res.reply == nil {
			return ip.String()
		}
		for _, ans := range res.reply.Answer {
			if ptr, ok := ans.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, ".")
			}
		}
		return ip.String()
	}
}
