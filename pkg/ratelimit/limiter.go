// Package ratelimit implements per-address fixed-window admission control.
//
// Each address owns a counter that admits at most Capacity requests per Window.
// A request that would exceed the capacity is rejected immediately, never queued.
// Windows are created on first use and dropped once idle for IdleMultiple windows.
package ratelimit

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/creasty/defaults"
)

const shardCount = 32

// Config controls the limiter policy.
type Config struct {
	Capacity     int           `mapstructure:"capacity" default:"100"`
	Window       time.Duration `mapstructure:"window" default:"1s"`
	IdleMultiple int           `mapstructure:"idle_multiple" default:"5"`
}

// Usage is a snapshot of an address's current window.
type Usage struct {
	Limit     int       `json:"limit"`
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Limited   bool      `json:"isRateLimited"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

type window struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

type shard struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

// Limiter is safe for concurrent use. Addresses are spread over independent shards,
// so unrelated addresses never contend on the same lock.
type Limiter struct {
	cfg    Config
	now    func() time.Time
	shards [shardCount]*shard
}

// New creates a Limiter. Zero-valued fields in cfg take their defaults.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply rate limit defaults: %w", err)
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("rate limit capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", cfg.Window)
	}
	if cfg.IdleMultiple < 1 {
		cfg.IdleMultiple = 1
	}

	l := &Limiter{cfg: cfg, now: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TryAdmit records one request for address and reports whether it was admitted.
func (l *Limiter) TryAdmit(address string) bool {
	_, ok := l.Admit(address)
	return ok
}

// Admit records one request for address. It returns the usage after the attempt
// and whether the request was admitted. Rejected requests are not counted.
func (l *Limiter) Admit(address string) (Usage, bool) {
	now := l.now()
	s := l.shardFor(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep(now, l.idleTTL(), l.cfg.Window)

	w := s.windows[address]
	if w == nil || !now.Before(w.start.Add(l.cfg.Window)) {
		w = &window{start: now}
		s.windows[address] = w
	}
	w.lastSeen = now

	if w.count >= l.cfg.Capacity {
		return l.usage(w, true), false
	}
	w.count++
	return l.usage(w, false), true
}

// CurrentUsage returns the address's usage without consuming quota.
func (l *Limiter) CurrentUsage(address string) Usage {
	now := l.now()
	s := l.shardFor(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[address]
	if w == nil || !now.Before(w.start.Add(l.cfg.Window)) {
		return Usage{
			Limit:     l.cfg.Capacity,
			Remaining: l.cfg.Capacity,
			ResetAt:   now.Add(l.cfg.Window),
		}
	}
	return l.usage(w, w.count >= l.cfg.Capacity)
}

// Sweep drops windows idle for longer than IdleMultiple windows and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		removed += s.sweep(now, l.idleTTL())
		s.mu.Unlock()
	}
	return removed
}

// Tracked returns the number of live windows.
func (l *Limiter) Tracked() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

func (l *Limiter) usage(w *window, limited bool) Usage {
	remaining := l.cfg.Capacity - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Limit:     l.cfg.Capacity,
		Count:     w.count,
		Remaining: remaining,
		ResetAt:   w.start.Add(l.cfg.Window),
		Limited:   limited,
	}
}

func (l *Limiter) idleTTL() time.Duration {
	return time.Duration(l.cfg.IdleMultiple) * l.cfg.Window
}

func (l *Limiter) shardFor(address string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(address))
	return l.shards[h.Sum32()%shardCount]
}

// maybeSweep runs at most once per window per shard, so idle windows are reclaimed
// without a background goroutine. Caller holds s.mu.
func (s *shard) maybeSweep(now time.Time, ttl, every time.Duration) {
	if now.Sub(s.lastSweep) < every {
		return
	}
	s.lastSweep = now
	s.sweep(now, ttl)
}

func (s *shard) sweep(now time.Time, ttl time.Duration) int {
	removed := 0
	for addr, w := range s.windows {
		if now.Sub(w.lastSeen) > ttl {
			delete(s.windows, addr)
			removed++
		}
	}
	return removed
}
