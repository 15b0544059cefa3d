package iface

import (
	"github.com/mikewadsten/wisun-router/internal/icmpv6"
	"github.com/mikewadsten/wisun-router/internal/pkt"
	"github.com/mikewadsten/wisun-router/internal/rcp"
	"github.com/mikewadsten/wisun-router/internal/rpl"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// Indications returns the callback surface an [rcp.Bus] implementation
// delivers through (spec.md section 6): a real RCP transport wires
// these into its own event loop; [rcp.Fake] is driven directly by
// tests calling [Context.HandleRxInd] etc.
func (c *Context) Indications() rcp.Indications {
	return rcp.Indications{
		OnRxInd:    c.HandleRxInd,
		OnTxCnf:    c.HandleTxCnf,
		OnResetInd: c.HandleResetInd,
	}
}

// defaultETX is used for OF0 rank computation (spec.md section 4.4.1)
// when no MAC-level success-ratio statistic is available. Tracking
// per-neighbor ETX is a function of the 802.15.4 MAC, which spec.md
// section 1 collapses to "deliver/accept a frame with source EUI-64"
// — this core has no MAC-level retry counters to derive a real ETX
// from, so it assumes the best case (ETX 1.0) rather than invent a
// synthetic link-quality model the spec never describes.
const defaultETX = 1.0

// HandleRxInd is the RCP bus's rx_ind indication (spec.md section 6):
// an inbound 802.15.4 data frame, already demultiplexed to its IPv6
// payload (fragmentation and 6LoWPAN header compression are Non-goals,
// spec.md section 1).
func (c *Context) HandleRxInd(ind rcp.RxInd) {
	hdr, payload, err := parseIPv6Header(ind.Frame)
	if err != nil {
		c.log.Debug("dropping malformed frame", "error", err)

		return
	}

	if hdr.NextHeader != nextHeaderICMPv6 {
		c.respondUnrecognizedNextHeader(hdr, ind.Frame)

		return
	}

	if len(payload) < 4 {
		return
	}

	in := pkt.FromBytes(payload)
	in.Src = hdr.Src
	in.Dst = hdr.Dst
	in.HopLimit = hdr.HopLimit
	in.TrafficClass = hdr.TrafficClass
	in.ICMPType = payload[0]
	in.ICMPCode = payload[1]
	in.Direction = pkt.DirectionUp
	in.LLMulticastRX = hdr.Dst.IsMulticast()

	c.dispatchICMPv6(in, payload)
}

// dispatchICMPv6 routes a validated-length inbound ICMPv6 message by
// type (spec.md section 2's "if ICMPv6, dispatched by type into L3").
func (c *Context) dispatchICMPv6(in *pkt.Buffer, payload []byte) {
	if in.ICMPType == rpl.ICMPType {
		c.handleRPL(in, payload)

		return
	}

	switch in.ICMPType {
	case icmpv6.TypeNeighborSolicit,
		icmpv6.TypeNeighborAdvert,
		icmpv6.TypeRouterSolicit,
		icmpv6.TypeRouterAdvert,
		icmpv6.TypeRedirect:
		c.dispatchND(in, payload)
	default:
		// Echo, other ICMPv6 errors, and anything this core doesn't
		// speak are silently ignored (spec.md section 7: no failure
		// flows up as a user-visible error).
	}
}

// dispatchND applies spec.md section 4.3.1's common validation, then
// routes to the per-type NDP handler (spec.md section 4.3.2-4.3.4,
// SPEC_FULL.md section 4.3.1 for RS/RA).
func (c *Context) dispatchND(in *pkt.Buffer, payload []byte) {
	src, dst := in.Src.As16(), in.Dst.As16()
	if err := icmpv6.ValidateCommon(in.HopLimit, in.ICMPCode, src, dst, payload); err != nil {
		// Property 3 (spec.md section 8): dropped without state
		// change.
		return
	}

	switch in.ICMPType {
	case icmpv6.TypeNeighborSolicit:
		ns, err := icmpv6.ParseNS(payload)
		if err != nil {
			return
		}

		if out, send := c.icmp.HandleNS(in, ns); send {
			c.transmit(out)
		}

	case icmpv6.TypeNeighborAdvert:
		na, err := icmpv6.ParseNA(payload)
		if err != nil {
			return
		}

		c.icmp.HandleNA(in, na)

	case icmpv6.TypeRouterSolicit:
		// A FAN router node never answers an RS with its own RA in
		// non-storing MOP (only a border router originates the
		// default route); parsing is enough to validate the option
		// chain and move on (SPEC_FULL.md section 4.3.1).
		_, _ = icmpv6.ParseRS(payload)

	case icmpv6.TypeRouterAdvert:
		ra, err := icmpv6.ParseRA(payload)
		if err != nil {
			return
		}

		if ra.CurHopLimit != 0 {
			c.curHopLimit = ra.CurHopLimit
		}

	case icmpv6.TypeRedirect:
		rd, err := icmpv6.ParseRedirect(payload)
		if err != nil {
			return
		}

		// Gating only (see [icmpv6.Engine.HandleRedirect]): a
		// non-storing-MOP node has no next-hop cache for an accepted
		// Redirect to update, so the result isn't acted on further.
		_ = c.icmp.HandleRedirect(in, rd)
	}
}

// handleRPL dispatches an RPL control message (RFC 6550 section 6) by
// code (spec.md section 4.4, SPEC_FULL.md section 4.4.1 for DIS).
func (c *Context) handleRPL(in *pkt.Buffer, payload []byte) {
	src, dst := in.Src.As16(), in.Dst.As16()
	if !icmpv6.VerifyChecksum(src, dst, payload) {
		return
	}

	if len(payload) < 2 {
		return
	}

	switch payload[1] {
	case rpl.CodeDIS:
		if err := rpl.ParseDIS(payload); err == nil {
			if rank, respond := c.rpl.AnswerDIS(); respond {
				c.sendDIOTo(rank, in.Src)
			}
		}

	case rpl.CodeDIO:
		dio, cfg, hasCfg, err := rpl.ParseDIO(payload)
		if err != nil || !hasCfg {
			// A DIO without a Configuration option can't be fully
			// admitted (spec.md section 4.4.1 needs config fields for
			// rank-increase clamping); wait for one that carries it.
			return
		}

		c.lastDODAGID = dio.DODAGID
		c.lastInstanceID = dio.InstanceID
		c.lastVersion = dio.Version

		c.rpl.ProcessDIO(in.Src, dio, cfg, defaultETX)

	case rpl.CodeDAO:
		dao, err := rpl.ParseDAO(payload)
		if err != nil {
			return
		}

		c.handleInboundDAO(in.Src, dao)

	case rpl.CodeDAOACK:
		ack, err := rpl.ParseDAOAck(payload)
		if err != nil {
			return
		}

		eui64, ok := in.Src.EUI64()
		if ok {
			_ = ack
			c.rpl.AckDAO(eui64)
		}
	}
}

// handleInboundDAO implements this node's non-storing-MOP parent
// role: a downstream node's Target options are recorded as reachable
// through it, acknowledged if requested, and folded into this node's
// own next DAO to its preferred parent (spec.md section 4.4.3).
func (c *Context) handleInboundDAO(src wsaddr.Addr, dao rpl.DAO) {
	eui64, _ := src.EUI64()

	for _, t := range dao.Targets {
		c.routes.AddDownstream(t, eui64, c.rpl.DefaultRegistrationLifetime())
	}

	if dao.RequestAck {
		c.sendDAOAck(src, dao)
	}

	if p, ok := c.rpl.PreferredParent(); ok {
		c.rpl.EmitDAO(p)
	}
}

// respondUnrecognizedNextHeader implements spec.md section 4.3.5/8
// scenario S3: a non-ICMPv6 payload (UDP, TCP, ...) this core doesn't
// otherwise process draws a rate-limited Parameter Problem, Code 1
// (Unrecognized Next Header), per RFC 4443 section 3.4, pointing at
// the Next Header octet.
func (c *Context) respondUnrecognizedNextHeader(hdr ipv6Header, frame []byte) {
	offending := pkt.FromBytes(frame)
	offending.Src = hdr.Src
	offending.Dst = hdr.Dst
	offending.HopLimit = hdr.HopLimit
	offending.Direction = pkt.DirectionUp
	offending.LLMulticastRX = hdr.Dst.IsMulticast()

	const nextHeaderOffset = 6

	out, ok := c.icmp.BuildError(icmpv6.TypeParamProblem, icmpv6.CodeUnrecognizedNext, nextHeaderOffset, offending)
	if !ok {
		return
	}

	c.transmit(out)
}

// transmit fills payload's checksum, wraps it in an IPv6 header, and
// submits it to the RCP bus, tracking buf's [pkt.AckIntent] against
// the returned tx handle if it has one.
func (c *Context) transmit(buf *pkt.Buffer) {
	payload := buf.Bytes()
	src, dst := buf.Src.As16(), buf.Dst.As16()
	icmpv6.FillChecksum(src, dst, payload)

	frame := buildIPv6Frame(buf.Src, buf.Dst, buf.HopLimit, nextHeaderICMPv6, payload)

	handle := c.nextTxHandle
	c.nextTxHandle++

	req := rcp.DataTxRequest{
		Frame:    frame,
		Handle:   handle,
		FHSSType: fhssTypeFor(buf.Dst),
	}

	if buf.Ack != pkt.AckNone {
		c.pendingAcks[handle] = buf
	}

	if err := c.bus.DataTx(req); err != nil {
		c.log.Warn("data_tx failed", "error", err)
	}
}

func fhssTypeFor(dst wsaddr.Addr) rcp.FHSSType {
	if dst.IsMulticast() {
		return rcp.FHSSAsync
	}

	return rcp.FHSSUnicast
}

// HandleTxCnf is the RCP bus's tx_cnf indication: the scheduler's
// MAC-confirmation handler spec.md section 9 describes, matching on
// the packet's [pkt.AckIntent] instead of a type-erased callback.
func (c *Context) HandleTxCnf(cnf rcp.TxCnf) {
	buf, ok := c.pendingAcks[cnf.Handle]
	if !ok {
		return
	}

	delete(c.pendingAcks, cnf.Handle)

	switch buf.Ack {
	case pkt.AckUpdateReachable:
		if cnf.Status == rcp.TxSuccess && buf.ICMPType == icmpv6.TypeNeighborSolicit {
			c.onRegistrationConfirmed()
		}

	case pkt.AckRemoveNeighbor:
		if cnf.Status != rcp.TxSuccess {
			c.cache.Remove(buf.AckTarget)
		}

	case pkt.AckNotifyAroResult:
		if eui64, ok := buf.AckTarget.EUI64(); ok {
			c.rpl.NotifyUnreachable(eui64)
		}
	}
}

// HandleResetInd is the RCP bus's reset_ind indication, reported once
// at bring-up; spec.md section 6 requires api >= 2.0.0, and a
// mismatch is spec.md section 7's RcpDisconnected kind: fatal.
func (c *Context) HandleResetInd(ind rcp.ResetInd) {
	if apiVersionLess(ind.VersionAPI, rcp.MinAPIVersion) {
		c.fatal(errRCPAPITooOld(ind.VersionAPI))

		return
	}

	c.log.Info("RCP ready", "fw", ind.VersionFW, "api", ind.VersionAPI)
}

func (c *Context) fatal(err error) {
	c.log.Error("fatal error", "error", err)

	if c.OnFatal != nil {
		c.OnFatal(err)
	}
}
