package iface

import (
	"github.com/mikewadsten/wisun-router/internal/icmpv6"
	"github.com/mikewadsten/wisun-router/internal/pkt"
	"github.com/mikewadsten/wisun-router/internal/rpl"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// newRegistrationNS builds the NS+EARO this node sends to register its
// own address with parent (spec.md section 4.3.6/4.4.2): unlike
// [icmpv6.Engine.BuildNS] (which solicits another node's address via
// its solicited-node multicast group), a registration NS is unicast
// directly to the specific neighbor performing the registration, with
// the Target field naming the address being registered, not the
// destination (RFC 8505 section 5.1).
func (c *Context) newRegistrationNS(parent wsaddr.Addr, earo icmpv6.EARO) *pkt.Buffer {
	target := c.llAddr
	if g, ok := c.GlobalAddress(); ok {
		target = g
	}

	ns := icmpv6.NS{Target: target, HasEARO: true, EARO: earo}

	if ll, ok := c.llAddr.EUI64(); ok {
		ns.SLLAO, ns.HasSLLAO = ll, true
	}

	out := pkt.FromBytes(ns.Build())
	out.ICMPType = icmpv6.TypeNeighborSolicit
	out.HopLimit = 255
	out.Direction = pkt.DirectionDown
	out.Src = c.llAddr
	out.Dst = parent
	out.Ack = pkt.AckUpdateReachable
	out.AckTarget = target

	return out
}

// rplSource returns the address this node should originate an RPL
// control message from: its global address as soon as one has been
// acquired (whether or not its registration has completed), else its
// link-local address.
func (c *Context) rplSource() wsaddr.Addr {
	if g, ok := c.GlobalAddress(); ok {
		return g
	}

	return c.llAddr
}

func (c *Context) newRPLBuffer(body []byte, dst wsaddr.Addr) *pkt.Buffer {
	buf := pkt.FromBytes(body)
	buf.ICMPType = rpl.ICMPType
	buf.HopLimit = 255
	buf.Direction = pkt.DirectionDown
	buf.Src = c.rplSource()
	buf.Dst = dst

	return buf
}

// sendDIO broadcasts a DIO at the given rank to ff02::1a (spec.md
// section 4.4.1/4.4.5: used both for ordinary DIOs and the
// infinite-rank poisoning DIO on parent loss).
func (c *Context) sendDIO(rank uint16) {
	dio := rpl.DIOBase{
		InstanceID: c.lastInstanceID,
		DODAGID:    c.lastDODAGID,
		Version:    c.lastVersion,
		Rank:       rank,
		MOP:        rpl.MOPNonStoring,
	}

	c.transmit(c.newRPLBuffer(rpl.BuildDIO(dio, nil), allRPLNodesMulticast))
}

// sendDIOTo unicasts a DIO in answer to a DIS (RFC 6550 section 8.3,
// SPEC_FULL.md section 4.4.1).
func (c *Context) sendDIOTo(rank uint16, dst wsaddr.Addr) {
	dio := rpl.DIOBase{
		InstanceID: c.lastInstanceID,
		DODAGID:    c.lastDODAGID,
		Version:    c.lastVersion,
		Rank:       rank,
		MOP:        rpl.MOPNonStoring,
	}

	c.transmit(c.newRPLBuffer(rpl.BuildDIO(dio, nil), dst))
}

// sendDAO unicasts a DAO to n's address advertising every prefix this
// node owns, directly or through a registered downstream node
// (non-storing MOP, spec.md section 4.4.3).
func (c *Context) sendDAO(n *rpl.Neighbor) {
	c.daoSeq++

	dao := rpl.DAO{
		InstanceID:     c.lastInstanceID,
		SequenceNumber: c.daoSeq,
		RequestAck:     true,
		DODAGID:        c.lastDODAGID,
		HasDODAGID:     c.lastDODAGID.IsValid(),
		Targets:        c.routes.AllTargets(c.globalAddr, c.hasGlobal),
		ParentEUI64:    n.EUI64,
	}

	c.transmit(c.newRPLBuffer(rpl.BuildDAO(dao), n.LL))
}

// sendDAOAck replies to an inbound DAO that requested one (spec.md
// section 4.4.3 implies the receiving side of RFC 6550 section 6.5;
// this node plays parent for whatever registered downstream from it).
func (c *Context) sendDAOAck(dst wsaddr.Addr, dao rpl.DAO) {
	ack := rpl.DAOAck{
		InstanceID:     dao.InstanceID,
		SequenceNumber: dao.SequenceNumber,
		Status:         0,
		DODAGID:        dao.DODAGID,
		HasDODAGID:     dao.HasDODAGID,
	}

	c.transmit(c.newRPLBuffer(rpl.BuildDAOAck(ack), dst))
}
