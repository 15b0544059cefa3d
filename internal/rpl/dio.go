package rpl

import (
	"bytes"
	"time"

	"github.com/mikewadsten/wisun-router/internal/handle"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// OF0 defaults (RFC 6552 section 5): RankFactor and Stretch are both
// configurable per DODAG but Wi-SUN FAN always runs OF0's defaults.
const (
	of0RankFactor = 1
	of0Stretch    = 0
)

// RankIncrease computes OF0's step-of-rank-based rank increase
// (spec.md section 4.4.1 step 3): `rank_factor * step_of_rank +
// stretch`, where `step_of_rank ≈ 3*ETX - 2`, clamped to at least
// minHopRankIncrease.
func RankIncrease(etx float64, minHopRankIncrease uint16) uint16 {
	stepOfRank := 3*etx - 2
	if stepOfRank < 1 {
		stepOfRank = 1
	}

	increase := uint16(of0RankFactor*stepOfRank + of0Stretch)
	if increase < minHopRankIncrease {
		increase = minHopRankIncrease
	}

	return increase
}

// admissibility is computed fresh on every DIO and is not part of the
// persisted Neighbor state; kept here rather than on Neighbor since
// it's a function of the *current* best rank, not the neighbor alone.
type admissibility struct {
	ok       bool
	pathCost uint16
}

// ProcessDIO applies spec.md section 4.4.1 to a validated DIO received
// from ll with the given base/config fields and etx (the MAC-level
// ETX estimate for that neighbor, maintained outside this package).
// It returns the Neighbor record (created if this is the first DIO
// from ll) and whether parent selection ran as a result.
func (e *Engine) ProcessDIO(ll wsaddr.Addr, dio DIOBase, cfg ConfigOption, etx float64) (n *Neighbor, ranParentSelection bool) {
	eui64, _ := ll.EUI64()

	n, ok := e.table.Get(eui64)
	if !ok {
		n = &Neighbor{
			EUI64:          eui64,
			LL:             ll,
			CandidateSince: e.now(),
			NCELink:        handle.Invalid,
		}
		e.table.Set(eui64, n)
	}

	n.DIO = dio
	n.Config = cfg

	increase := RankIncrease(etx, cfg.MinHopRankIncrease)
	pathCost := saturatingAdd(dio.Rank, increase)
	n.PathCost = pathCost

	adm := e.admit(n, dio, cfg, pathCost)
	if !adm.ok {
		if n.IsPreferredParent {
			// A previously-good parent just became inadmissible
			// (e.g. version change, rank regression); treat like
			// parent loss so a replacement is chosen.
			e.demotePreferred(n)
		}

		return n, false
	}

	e.selectParent()

	return n, true
}

// admit implements spec.md section 4.4.1 step 4's four rejection
// rules.
func (e *Engine) admit(n *Neighbor, dio DIOBase, _ ConfigOption, pathCost uint16) admissibility {
	if p, ok := e.PreferredParent(); ok && p.DIO.Version != dio.Version {
		return admissibility{}
	}

	if dio.Rank == InfiniteRank {
		return admissibility{}
	}

	if e.hasParent && pathCost > e.ownRank+n.Config.MaxRankIncrease {
		return admissibility{}
	}

	// DODAG-loop guard (spec.md section 4.4.1 step 4, "a DODAG loop
	// would be formed"): without full topology, a neighbor whose own
	// rank is not strictly less than ours after we already have a
	// parent cannot legally be upstream of us.
	if e.hasParent && dio.Rank >= e.ownRank {
		return admissibility{}
	}

	return admissibility{ok: true, pathCost: pathCost}
}

// selectParent implements spec.md section 4.4.2: minimize path_cost,
// tie-break by hysteresis (keep current preferred parent) then lowest
// EUI-64.
func (e *Engine) selectParent() {
	var best *Neighbor

	e.table.Range(func(_ [8]byte, n *Neighbor) bool {
		if n.DIO.Rank == InfiniteRank {
			return true
		}

		switch {
		case best == nil:
			best = n
		case n.PathCost < best.PathCost:
			best = n
		case n.PathCost == best.PathCost:
			switch {
			case n.IsPreferredParent:
				best = n
			case best.IsPreferredParent:
				// keep best
			case bytes.Compare(n.EUI64[:], best.EUI64[:]) < 0:
				best = n
			}
		}

		return true
	})

	if best == nil {
		return
	}

	if e.hasParent && best.EUI64 == e.preferred {
		// Unchanged; still refresh our rank in case path_cost moved.
		e.ownRank = best.PathCost

		return
	}

	if prev, ok := e.PreferredParent(); ok {
		prev.IsPreferredParent = false
	}

	best.IsPreferredParent = true
	e.preferred = best.EUI64
	e.hasParent = true
	e.ownRank = best.PathCost

	if e.OnPrefParentChange != nil {
		e.OnPrefParentChange(best)
	}

	if e.OnEmitDAO != nil {
		e.OnEmitDAO(best)
	}
}

// demotePreferred clears n's preferred-parent status, broadcasts an
// infinite-rank DIO, and leaves no parent selected; a new parent is
// chosen by selectParent when [Engine.ProcessDIO] next handles an
// admissible DIO (spec.md section 4.4, scenario S4).
func (e *Engine) demotePreferred(n *Neighbor) {
	n.IsPreferredParent = false
	e.hasParent = false
	e.ownRank = InfiniteRank

	if e.OnEmitDIO != nil {
		e.OnEmitDIO(InfiniteRank)
	}
}

// NotifyUnreachable implements the spec.md section 4.4.5 "NUD declares
// preferred parent UNREACHABLE" and the Wi-SUN-shorthand-EARO-failure
// parent-loss triggers: if eui64 is the current preferred parent, it
// is demoted exactly as a silence timeout would demote it. A report
// about any other neighbor is a no-op.
func (e *Engine) NotifyUnreachable(eui64 [8]byte) {
	n, ok := e.table.Get(eui64)
	if !ok || !n.IsPreferredParent {
		return
	}

	e.demotePreferred(n)
}

// CheckParentLoss scans for a preferred parent that has gone silent
// for longer than its advertised lifetime (spec.md section 4.4/S4:
// `default_lifetime * lifetime_unit` without a DIO) and demotes it.
// lastDIOAt is when the caller last heard a DIO from the preferred
// parent; the engine does not record that time itself.
func (e *Engine) CheckParentLoss(lastDIOAt time.Time) {
	p, ok := e.PreferredParent()
	if !ok {
		return
	}

	if e.now().Sub(lastDIOAt) >= p.Config.LifetimeDuration() {
		e.demotePreferred(p)
	}
}

func saturatingAdd(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	if sum > uint32(InfiniteRank) {
		return InfiniteRank
	}

	return uint16(sum)
}
