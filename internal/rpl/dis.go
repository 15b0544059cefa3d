package rpl

// DIS handling (SPEC_FULL.md section 4.4.1): emitted at boot before
// any DIO has been heard, and answered with a unicast DIO (not
// multicast) per RFC 6550 section 8.3 when we already have a DODAG.

// ShouldEmitDIS reports whether we should solicit: true exactly when
// we have no preferred parent yet (no DIO heard, or our last one was
// lost). internal/iface paces actual transmission with a fixed-interval
// scheduler timer (disInterval), not a Trickle timer.
func (e *Engine) ShouldEmitDIS() bool {
	return !e.hasParent
}

// AnswerDIS reports whether (and with what rank) to reply to an
// inbound DIS: RFC 6550 section 8.3 requires a unicast DIO reply, not
// a multicast one, when we already belong to a DODAG.
func (e *Engine) AnswerDIS() (rank uint16, respond bool) {
	if !e.hasParent {
		return 0, false
	}

	return e.ownRank, true
}
