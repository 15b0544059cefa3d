// Package ncache implements the neighbor cache (spec.md section 4.2,
// L2): the mapping from IPv6 address to neighbor entry, RFC 4861
// section 7.2.3/7.2.5 state-machine rules, reachable-time reroll, and
// the token bucket the ICMPv6 error responder spends from.
//
// Grounded on AdGuardHome's internal/arpdb package: a mutex-guarded,
// slice/map-backed neighbor table behind a narrow interface, adapted
// from "periodically refreshed ARP snapshot" to "RFC 4861 soft-state
// table driven by per-entry timers".
package ncache

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/mikewadsten/wisun-router/internal/handle"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/mikewadsten/wisun-router/internal/wsalg"
	"golang.org/x/time/rate"
)

// ErrTableFull is returned by [Cache.UpdateUnsolicited] when the table is at
// capacity and no STALE/UNREACHABLE entry could be evicted to make
// room (spec.md section 7: NeighborTableFull).
const ErrTableFull errors.Error = "neighbor table full"

// State is an NCE reachability state, RFC 4861 section 7.3.2.
type State uint8

// State values.
const (
	Incomplete State = iota
	Reachable
	Stale
	Delay
	Probe
	Unreachable
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Incomplete:
		return "INCOMPLETE"
	case Reachable:
		return "REACHABLE"
	case Stale:
		return "STALE"
	case Delay:
		return "DELAY"
	case Probe:
		return "PROBE"
	case Unreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// Entry is a neighbor cache entry (NCE), spec.md section 3.
type Entry struct {
	Addr wsaddr.Addr

	LLAddr    [8]byte
	HasLLAddr bool

	State State

	// ReachableUntil is when this entry's current state (REACHABLE
	// delay window, DELAY, or PROBE) times out.
	ReachableUntil time.Time

	// RegistrationLifetime is non-zero when this address is
	// registered (RFC 8505 EARO), spec.md section 3.
	RegistrationLifetime time.Duration

	// RegistrationOwner is set when we registered THIS address with an
	// upstream router (we sent the ARO), as opposed to having received
	// one from a downstream node.
	RegistrationOwner bool

	// RPLLink back-references the RPL neighbor table entry for this
	// address's EUI-64, if any.
	RPLLink handle.T

	IsRouter bool

	// probeCount counts RetransTimer intervals that have expired while
	// in PROBE state; at MaxMulticastSolicit the entry becomes
	// UNREACHABLE (RFC 4861 section 7.3.3). This package sends no NS
	// probe itself.
	probeCount int
}

// Config holds the tunable timers from spec.md section 3/4.2.
type Config struct {
	// BaseReachableTimeMS is the configured (pre-reroll) reachable
	// time, in milliseconds.  RFC 4861 section 6.3.4 default: 30000.
	BaseReachableTimeMS uint32

	// RetransTimer is the NS retransmission interval used while in
	// DELAY/PROBE.  RFC 4861 section 6.3.2 default: 1s.
	RetransTimer time.Duration

	// MaxMulticastSolicit bounds PROBE retries.  RFC 4861 default: 3.
	MaxMulticastSolicit int

	// Capacity is the maximum number of entries the table holds before
	// eviction is attempted (spec.md section 7: NeighborTableFull).
	// Zero means unbounded.
	Capacity int
}

// DefaultConfig returns RFC 4861 defaults.
func DefaultConfig() Config {
	return Config{
		BaseReachableTimeMS: 30_000,
		RetransTimer:        time.Second,
		MaxMulticastSolicit: 3,
	}
}

// Cache is the neighbor cache.  The zero value is not usable; use
// [New].
type Cache struct {
	mu     sync.Mutex
	logger *slog.Logger
	cfg    Config

	table *wsalg.InsertionMap[wsaddr.Addr, *Entry]

	reachableTimeMS   uint32
	reachableTimeTTL  time.Time
	lastBaseReachable uint32

	bucket *rate.Limiter

	now func() time.Time
}

// New returns an empty Cache.
func New(logger *slog.Logger, cfg Config) *Cache {
	now := time.Now

	return &Cache{
		logger:            logger,
		cfg:               cfg,
		table:             wsalg.NewInsertionMap[wsaddr.Addr, *Entry](),
		reachableTimeMS:   cfg.BaseReachableTimeMS,
		lastBaseReachable: cfg.BaseReachableTimeMS,
		reachableTimeTTL:  now().Add(600 * time.Second),
		bucket:            rate.NewLimiter(rate.Limit(10), 10),
		now:               now,
	}
}

// ReachableTimeMS returns the currently active (post-reroll) reachable
// time, in milliseconds.
func (c *Cache) ReachableTimeMS() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reachableTimeMS
}

// Lookup returns the entry for addr, if any.
func (c *Cache) Lookup(addr wsaddr.Addr) (e *Entry, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.table.Get(addr)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.table.Len()
}

// Range calls f for each entry in insertion order until f returns
// false.
func (c *Cache) Range(f func(e *Entry) (cont bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table.Range(func(_ wsaddr.Addr, e *Entry) bool { return f(e) })
}

// insertLocked adds e, evicting the oldest STALE/UNREACHABLE entry
// once if the table is at capacity (spec.md section 7).  Callers must
// hold c.mu.
func (c *Cache) insertLocked(e *Entry) error {
	if c.cfg.Capacity > 0 && c.table.Len() >= c.cfg.Capacity {
		if !c.evictOldestStaleLocked() {
			return ErrTableFull
		}
	}

	c.table.Set(e.Addr, e)

	return nil
}

func (c *Cache) evictOldestStaleLocked() bool {
	var toEvict wsaddr.Addr
	found := false

	c.table.Range(func(addr wsaddr.Addr, e *Entry) bool {
		if e.State == Stale || e.State == Unreachable {
			toEvict = addr
			found = true

			return false
		}

		return true
	})

	if !found {
		return false
	}

	c.table.Del(toEvict)

	return true
}

// UpdateUnsolicited implements RFC 4861 section 7.2.3: create the
// entry (state STALE) if missing; if present with a different
// link-layer address, mark it STALE.
func (c *Cache) UpdateUnsolicited(addr wsaddr.Addr, llAddr [8]byte) (e *Entry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.table.Get(addr)
	if !ok {
		e = &Entry{
			Addr:      addr,
			LLAddr:    llAddr,
			HasLLAddr: true,
			State:     Stale,
			RPLLink:   handle.Invalid,
		}

		return e, c.insertLocked(e)
	}

	if e.HasLLAddr && e.LLAddr != llAddr {
		e.LLAddr = llAddr
		e.State = Stale
	} else if !e.HasLLAddr {
		e.LLAddr = llAddr
		e.HasLLAddr = true
	}

	return e, nil
}

// NAFlags mirrors the NA flags relevant to RFC 4861 section 7.2.5
// processing.
type NAFlags struct {
	Router    bool
	Solicited bool
	Override  bool
}

// UpdateFromNA applies RFC 4861 section 7.2.5 to an existing entry
// given the NA's flags and link-layer address (if any SLLAO/TLLAO was
// present).
func (c *Cache) UpdateFromNA(addr wsaddr.Addr, flags NAFlags, llAddr [8]byte, hasLLAddr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.table.Get(addr)
	if !ok {
		return
	}

	e.IsRouter = flags.Router

	differs := hasLLAddr && e.HasLLAddr && e.LLAddr != llAddr

	if e.State == Incomplete {
		if hasLLAddr {
			e.LLAddr = llAddr
			e.HasLLAddr = true
		}

		if flags.Solicited && e.HasLLAddr {
			e.State = Reachable
			e.ReachableUntil = c.now().Add(c.reachableTimeDuration())
		} else {
			e.State = Stale
		}

		return
	}

	// Entry is not INCOMPLETE.
	if hasLLAddr && differs && !flags.Override {
		// ll_addr differs and O-flag clear: keep old ll_addr; if
		// unsolicited, mark STALE (table in RFC 4861 section 7.2.5).
		if !flags.Solicited && e.State == Reachable {
			e.State = Stale
		}

		return
	}

	if hasLLAddr && flags.Override {
		e.LLAddr = llAddr
		e.HasLLAddr = true
	}

	switch {
	case flags.Solicited:
		e.State = Reachable
		e.ReachableUntil = c.now().Add(c.reachableTimeDuration())
	case !flags.Solicited && differs && flags.Override:
		e.State = Stale
	}
}

func (c *Cache) reachableTimeDuration() time.Duration {
	return time.Duration(c.reachableTimeMS) * time.Millisecond
}

// Tick drives per-entry expiry and the periodic reachable-time reroll.
// It must be called by the scheduler at least once per second; it is
// safe to call more often.
func (c *Cache) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if !now.Before(c.reachableTimeTTL) || c.lastBaseReachable != c.cfg.BaseReachableTimeMS {
		c.rerollLocked(now)
	}

	var expired []wsaddr.Addr

	c.table.Range(func(addr wsaddr.Addr, e *Entry) bool {
		switch e.State {
		case Reachable:
			if !e.ReachableUntil.IsZero() && !now.Before(e.ReachableUntil) {
				e.State = Stale
			}
		case Delay:
			if !e.ReachableUntil.IsZero() && !now.Before(e.ReachableUntil) {
				e.State = Probe
				e.ReachableUntil = now.Add(c.cfg.RetransTimer)
				e.probeCount = 0
			}
		case Probe:
			if !e.ReachableUntil.IsZero() && !now.Before(e.ReachableUntil) {
				e.probeCount++
				if e.probeCount >= c.cfg.MaxMulticastSolicit {
					e.State = Unreachable
					expired = append(expired, addr)
				} else {
					e.ReachableUntil = now.Add(c.cfg.RetransTimer)
				}
			}
		}

		return true
	})

	for _, addr := range expired {
		if e, ok := c.table.Get(addr); ok {
			c.logger.Debug("neighbor unreachable", "addr", e.Addr)
		}
	}
}

// rerollLocked re-rolls reachableTimeMS uniformly in [0.5x, 1.5x] the
// base (spec.md section 4.2).  Callers must hold c.mu.
func (c *Cache) rerollLocked(now time.Time) {
	base := c.cfg.BaseReachableTimeMS
	c.lastBaseReachable = base

	half := float64(base) * 0.5
	span := float64(base) // 1.5x - 0.5x
	c.reachableTimeMS = uint32(half + rand.Float64()*span)

	c.reachableTimeTTL = now.Add(600 * time.Second)
}

// EnterDelay transitions e to DELAY (e.g. after upper-layer traffic on
// a STALE entry, RFC 4861 section 7.3.3), arming the 5-second window
// before PROBE.
func (c *Cache) EnterDelay(addr wsaddr.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.table.Get(addr)
	if !ok || e.State != Stale {
		return
	}

	e.State = Delay
	e.ReachableUntil = c.now().Add(5 * time.Second)
}

// Remove deletes addr's entry, if any.
func (c *Cache) Remove(addr wsaddr.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table.Del(addr)
}

// AllowError reports whether the token bucket has a token for an
// outbound ICMPv6 error reply, consuming one if so (spec.md section
// 4.2: capacity 10, refill 10/s; RFC 4443 section 2.4(f): suppress
// silently when empty).
func (c *Cache) AllowError() bool {
	return c.bucket.Allow()
}

// Snapshot returns a copy of every entry, in insertion order.  Exists
// per spec.md section 4.2.1/6's explicit allowance for an optional
// in-memory reattachment snapshot; no file I/O happens here.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, c.table.Len())
	c.table.Range(func(_ wsaddr.Addr, e *Entry) bool {
		out = append(out, *e)

		return true
	})

	return out
}

// Restore replaces the table's contents with entries, in the order
// given.
func (c *Cache) Restore(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table = wsalg.NewInsertionMap[wsaddr.Addr, *Entry]()
	for i := range entries {
		e := entries[i]
		c.table.Set(e.Addr, &e)
	}
}
