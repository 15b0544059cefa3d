package iface

import (
	"time"

	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// downstreamRoute is a non-storing-MOP DAO Target this node has agreed
// to advertise on a downstream node's behalf (spec.md section 4.4.3).
type downstreamRoute struct {
	EUI64   [8]byte
	Expires time.Time
}

// RoutingTable is the "glue (routing table, address assignment, tunnel
// bridging)" component SPEC_FULL.md section 2's package table names: it
// holds the set of prefixes this node must include as Target options in
// its own outbound DAO, whether owned directly or registered by a
// downstream node through this one (non-storing MOP, RFC 6550 section
// 3.3). Grounded on ncache.Cache's map-plus-expiry shape, the simplest
// fit in the pack for a small actively-expired table; no storing-MOP
// next-hop forwarding table is needed since this core never forwards
// data traffic itself (spec.md section 1, Non-goals).
type RoutingTable struct {
	downstream map[wsaddr.Addr]downstreamRoute
	now        func() time.Time
}

// NewRoutingTable returns an empty RoutingTable.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		downstream: make(map[wsaddr.Addr]downstreamRoute),
		now:        time.Now,
	}
}

// AddDownstream records addr as reachable through this node for
// lifetime, refreshing any existing entry (spec.md section 4.4.3:
// inbound DAO Target options from a child, or [rpl.Registrar]'s
// OnNewRegistration for an EARO-registered address).
func (t *RoutingTable) AddDownstream(addr wsaddr.Addr, eui64 [8]byte, lifetime time.Duration) {
	if lifetime <= 0 {
		delete(t.downstream, addr)

		return
	}

	t.downstream[addr] = downstreamRoute{
		EUI64:   eui64,
		Expires: t.now().Add(lifetime),
	}
}

// RemoveDownstream drops addr, e.g. on an explicit zero-lifetime
// DAO/EARO deregistration.
func (t *RoutingTable) RemoveDownstream(addr wsaddr.Addr) {
	delete(t.downstream, addr)
}

// Expire drops downstream entries whose lifetime has elapsed; call
// periodically from the scheduler, mirroring [rpl.Registrar.Expire].
func (t *RoutingTable) Expire() {
	now := t.now()
	for addr, route := range t.downstream {
		if !now.Before(route.Expires) {
			delete(t.downstream, addr)
		}
	}
}

// Len returns the number of tracked downstream routes.
func (t *RoutingTable) Len() int { return len(t.downstream) }

// AllTargets returns every Target option this node's next DAO to its
// preferred parent should carry (spec.md section 4.4.3): its own global
// address, if acquired, plus every still-live downstream registration.
func (t *RoutingTable) AllTargets(global wsaddr.Addr, hasGlobal bool) []wsaddr.Addr {
	targets := make([]wsaddr.Addr, 0, len(t.downstream)+1)

	if hasGlobal {
		targets = append(targets, global)
	}

	for addr := range t.downstream {
		targets = append(targets, addr)
	}

	return targets
}
