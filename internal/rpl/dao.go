package rpl

import "time"

// DAO emission and retry (spec.md section 4.4.3): non-storing MOP
// sends a unicast DAO to the preferred parent carrying a Target option
// per owned prefix and a Transit Information option naming the
// parent, retried with exponential backoff on DAO-ACK loss and
// abandoned (demoting the parent) after too many tries.

// EmitDAO starts (or restarts) the retry timer for a DAO sent to n and
// invokes OnEmitDAO once. Call this when a DAO is first transmitted;
// retries driven by [Engine.TickDAO] call OnEmitDAO directly and do
// not go through EmitDAO.
func (e *Engine) EmitDAO(n *Neighbor) {
	n.daoPending = true
	n.daoNextAt = e.now().Add(e.backoff(n.daoRetries))

	if e.OnEmitDAO != nil {
		e.OnEmitDAO(n)
	}
}

// AckDAO records a received DAO-ACK for n, clearing retry state.
func (e *Engine) AckDAO(eui64 [8]byte) {
	n, ok := e.table.Get(eui64)
	if !ok {
		return
	}

	n.DAOAckReceived = true
	n.daoPending = false
	n.daoRetries = 0
}

// TickDAO drives DAO retransmission; call it at least as often as
// DAOBackoffBase.
func (e *Engine) TickDAO() {
	now := e.now()

	e.table.Range(func(_ [8]byte, n *Neighbor) bool {
		if !n.daoPending || now.Before(n.daoNextAt) {
			return true
		}

		n.daoRetries++
		if n.daoRetries > e.cfg.MaxDAORetries {
			n.daoPending = false

			if n.IsPreferredParent {
				e.demotePreferred(n)
			}

			return true
		}

		n.daoNextAt = now.Add(e.backoff(n.daoRetries))

		if e.OnEmitDAO != nil {
			e.OnEmitDAO(n)
		}

		return true
	})
}

// backoff returns the retry delay for the given (zero-based) attempt
// count: base * 2^retries, capped.
func (e *Engine) backoff(retries int) (d time.Duration) {
	d = e.cfg.DAOBackoffBase
	for range retries {
		d *= 2
		if d >= e.cfg.DAOBackoffCap {
			return e.cfg.DAOBackoffCap
		}
	}

	return d
}
