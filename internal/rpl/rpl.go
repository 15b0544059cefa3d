// Package rpl implements the RPL engine (spec.md section 4.4, L4): MOP
// 1 (non-storing) router-node behavior for Wi-SUN FAN — candidate
// parent tracking, OF0 rank computation, preferred-parent selection
// with hysteresis, DAO emission with retry, and parent-loss detection.
//
// No repository in the retrieval pack implements RPL; the package is
// new domain logic shaped like AdGuardHome's internal/arpdb: a single-
// owner struct holding an insertion-ordered table, updated through a
// narrow method surface, with github.com/AdguardTeam/golibs/errors for
// annotated sentinels (see arpdb.go's errNoWriter pattern).
package rpl

import (
	"log/slog"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/mikewadsten/wisun-router/internal/handle"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/mikewadsten/wisun-router/internal/wsalg"
)

// InfiniteRank is RFC 6550 section 6.7.6's rank value meaning
// "unreachable"; a neighbor advertising it is never an admissible
// parent and an infinite-rank DIO is what we broadcast on parent loss
// (spec.md section 4.4.1/DESIGN NOTES S4).
const InfiniteRank uint16 = 0xffff

// DIOBase holds the fields carried by every DIO, independent of the
// Configuration option (spec.md section 3 "RPL neighbor (RN)").
type DIOBase struct {
	InstanceID uint8
	DODAGID    wsaddr.Addr
	Version    uint8
	Rank       uint16
	Grounded   bool
	MOP        uint8
	Preference uint8
	DTSN       uint8
}

// ConfigOption holds a DIO's Configuration option fields (RFC 6550
// section 6.7.6).
type ConfigOption struct {
	DIOIntervalDoublings uint8
	DIOIntervalMin       uint8
	DIORedundancy        uint8
	MaxRankIncrease      uint16
	MinHopRankIncrease   uint16
	DefaultLifetime      uint8
	LifetimeUnit         uint16
	OCP                  uint16
}

// LifetimeDuration returns the DAO/registration lifetime this
// configuration implies: default_lifetime * lifetime_unit seconds
// (spec.md section 4.4.2).
func (c ConfigOption) LifetimeDuration() time.Duration {
	return time.Duration(c.DefaultLifetime) * time.Duration(c.LifetimeUnit) * time.Second
}

// Neighbor is an RPL neighbor table entry (RN), spec.md section 3.
type Neighbor struct {
	EUI64 [8]byte
	LL    wsaddr.Addr

	DIO    DIOBase
	Config ConfigOption

	// PathCost is N.rank + rank_increase(link_quality(N)), clamped to
	// min_hop_rank_increase (spec.md section 4.4.1 step 3).
	PathCost uint16

	CandidateSince time.Time

	IsPreferredParent bool
	DAOAckReceived    bool

	// NCELink back-references the neighbor cache entry for LL, if any.
	NCELink handle.T

	// daoPending is true between EmitDAO and a matching AckDAO/abandon.
	daoPending bool
	// daoRetries counts consecutive DAO-ACK timeouts since the last
	// success (spec.md section 4.4.3: cap 8, backoff 1s,2s,4s,...60s).
	daoRetries int
	daoNextAt  time.Time
}

// ErrNoAdmissibleParent names the condition in which the candidate set
// has no admissible neighbor (e.g. freshly booted, or all known
// neighbors rejected per spec.md section 4.4.1 step 4). No function in
// this package returns it: parent selection leaves no parent selected
// instead.
const ErrNoAdmissibleParent errors.Error = "rpl: no admissible parent candidate"

// Config holds the engine's static tunables that aren't learned from a
// DIO (spec.md section 4.4.3/DESIGN NOTES).
type Config struct {
	// MaxDAORetries bounds exponential-backoff DAO retransmission
	// before the parent is demoted.
	MaxDAORetries int

	// DAOBackoffBase is the initial retry delay (1s per spec.md
	// section 4.4.3); it doubles each retry up to DAOBackoffCap.
	DAOBackoffBase time.Duration
	DAOBackoffCap  time.Duration
}

// DefaultConfig returns the spec.md section 4.4.3 defaults.
func DefaultConfig() Config {
	return Config{
		MaxDAORetries:  8,
		DAOBackoffBase: time.Second,
		DAOBackoffCap:  60 * time.Second,
	}
}

// Engine is the RPL L4 engine: a single owned table of candidate
// parents plus our own computed rank, grounded on arpdb.go's
// mutex-free single-owner-struct shape (the core's single-threaded
// event loop makes the mutex arpdb.go needs for concurrent refreshes
// unnecessary here).
type Engine struct {
	log *slog.Logger
	cfg Config

	table *wsalg.InsertionMap[[8]byte, *Neighbor]

	// ownRank is our currently computed rank; InfiniteRank until a
	// preferred parent is selected.
	ownRank uint16

	preferred [8]byte
	hasParent bool

	now func() time.Time

	// OnPrefParentChange fires exactly once per preferred-parent
	// change (spec.md section 4.4.2's pref_parent_change callback); a
	// DHCPv6 client outside the core consumes it to (re)request an
	// address.
	OnPrefParentChange func(n *Neighbor)

	// OnEmitDIO fires to broadcast an (possibly infinite-rank) DIO.
	OnEmitDIO func(rank uint16)

	// OnEmitDAO fires to unicast a DAO to the named parent.
	OnEmitDAO func(n *Neighbor)
}

// New returns an Engine with no candidates and InfiniteRank.
func New(log *slog.Logger, cfg Config) *Engine {
	return &Engine{
		log:     log,
		cfg:     cfg,
		table:   wsalg.NewInsertionMap[[8]byte, *Neighbor](),
		ownRank: InfiniteRank,
		now:     time.Now,
	}
}

// OwnRank returns our currently computed rank.
func (e *Engine) OwnRank() uint16 { return e.ownRank }

// PreferredParent returns the current preferred parent, if any.
func (e *Engine) PreferredParent() (n *Neighbor, ok bool) {
	if !e.hasParent {
		return nil, false
	}

	return e.table.Get(e.preferred)
}

// Lookup returns the RN for eui64, if any.
func (e *Engine) Lookup(eui64 [8]byte) (n *Neighbor, ok bool) {
	return e.table.Get(eui64)
}

// Len returns the number of tracked neighbors.
func (e *Engine) Len() int { return e.table.Len() }

// Range calls f for each neighbor in insertion order until f returns
// false.
func (e *Engine) Range(f func(n *Neighbor) (cont bool)) {
	e.table.Range(func(_ [8]byte, n *Neighbor) bool { return f(n) })
}

// defaultRegistrationLifetime is used by [Engine.DefaultRegistrationLifetime]
// when no preferred parent (and therefore no learned Configuration
// option) is available yet.
const defaultRegistrationLifetime = time.Hour

// DefaultRegistrationLifetime returns the registration lifetime a
// downstream DAO's targets should be recorded with (spec.md section
// 4.4.3): the preferred parent's Configuration option lifetime if one
// is known, else a conservative default.
func (e *Engine) DefaultRegistrationLifetime() time.Duration {
	if p, ok := e.PreferredParent(); ok {
		if d := p.Config.LifetimeDuration(); d > 0 {
			return d
		}
	}

	return defaultRegistrationLifetime
}
