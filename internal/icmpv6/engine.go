package icmpv6

import (
	"log/slog"

	"github.com/mikewadsten/wisun-router/internal/ncache"
	"github.com/mikewadsten/wisun-router/internal/pkt"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// RegistrationVerdict is the outcome of dispatching an inbound EARO to
// the registration handler (spec.md section 4.3.2).
type RegistrationVerdict uint8

// RegistrationVerdict values.
const (
	// Defer means the handler must query upstream (e.g. the RPL parent
	// in non-storing MOP) before a reply can be sent; the current NS is
	// dropped and a reply, if any, comes later out-of-band.
	Defer RegistrationVerdict = iota
	// ReplyWithEARO means emit an NA carrying an EARO with the returned
	// status.
	ReplyWithEARO
	// ReplyWithoutEARO means emit a standard NA with no EARO.
	ReplyWithoutEARO
)

// Registrar dispatches an inbound EARO registration request, returning
// the verdict and (for ReplyWithEARO) the EARO to echo back.  Wired to
// the RPL engine's DAO-based upstream registration in the full daemon;
// kept as an interface here so icmpv6 doesn't import rpl.
type Registrar interface {
	Register(eui64 [8]byte, earo EARO) (RegistrationVerdict, EARO)
}

// AddressSource reports whether addr is presently assigned to our
// interface, used for NA source-address selection (spec.md section
// 4.3.2) and NA-target DAD-collision detection (spec.md section
// 4.3.3).
type AddressSource interface {
	Owns(addr wsaddr.Addr) bool
	// LinkLocal returns our interface's link-local address.
	LinkLocal() wsaddr.Addr
}

// Engine is the L3 ICMPv6 engine: inbound NS/NA/Redirect processing,
// outbound NS emission, and the rate-limited error responder, grounded
// on AdGuardHome's internal/dhcpd/routeradv.go for wire construction
// and Splat-NDPeekr/lib/ndp_listener.go for the inbound option walk.
type Engine struct {
	log   *slog.Logger
	cache *ncache.Cache
	addrs AddressSource
	reg   Registrar

	// Router is true for a Wi-SUN FAN router node, which this core
	// always is (spec.md section 4.3.2).
	Router bool

	// OnMACBlacklist is invoked with the EUI-64 of a peer a Wi-SUN
	// shorthand EARO reported as a registration failure for (spec.md
	// section 4.3.3); nil is a valid no-op.
	OnMACBlacklist func(eui64 [8]byte)

	// OnAroFailure notifies the RPL engine of the same event, so it can
	// demote or drop the neighbor.
	OnAroFailure func(eui64 [8]byte)

	// OnDADCollision is invoked when an inbound NA's target matches one
	// of our own addresses (spec.md section 4.3.3).
	OnDADCollision func(target wsaddr.Addr)
}

// NewEngine returns an Engine.
func NewEngine(log *slog.Logger, cache *ncache.Cache, addrs AddressSource, reg Registrar) *Engine {
	return &Engine{
		log:    log,
		cache:  cache,
		addrs:  addrs,
		reg:    reg,
		Router: true,
	}
}

// HandleNS processes an inbound, already-[ValidateCommon]-checked NS
// contained in in, returning the NA reply to send (if any) per spec.md
// section 4.3.2.
func (e *Engine) HandleNS(in *pkt.Buffer, ns NS) (out *pkt.Buffer, send bool) {
	if ns.Target.IsMulticast() {
		return nil, false
	}

	srcUnspecified := in.Src.IsUnspecified()
	if srcUnspecified {
		if !in.Dst.IsSolicitedNodeMulticast() || ns.HasSLLAO {
			return nil, false
		}
	} else if ns.HasSLLAO {
		e.cache.UpdateUnsolicited(in.Src, ns.SLLAO)
	}

	status := EAROStatusSuccess
	haveEARO := false
	eui64 := ns.SLLAO

	if ns.HasEARO && e.Router {
		haveEARO = true
		eui64 = ns.EARO.EUI64

		if !ns.HasSLLAO {
			// Synthesize a dummy SLLAO from the EARO's EUI-64: FAN
			// assumes global EUI-64 uniqueness so the two addresses
			// coincide (spec.md section 4.3.2).
			e.cache.UpdateUnsolicited(in.Src, eui64)
		}

		if e.reg == nil {
			return nil, false
		}

		verdict, reply := e.reg.Register(eui64, ns.EARO)
		switch verdict {
		case Defer:
			return nil, false
		case ReplyWithEARO:
			status = reply.Status
		case ReplyWithoutEARO:
			haveEARO = false
		}
	}

	na := NA{
		Router:    e.Router,
		Solicited: !srcUnspecified,
		Override:  true,
		Target:    ns.Target,
	}

	if ll, ok := e.addrs.LinkLocal().EUI64(); ok {
		na.TLLAO, na.HasTLLAO = ll, true
	}

	if haveEARO {
		na.HasEARO = true
		na.EARO = EARO{
			Status:   status,
			Lifetime: ns.EARO.Lifetime,
			TID:      ns.EARO.TID,
			EUI64:    ns.EARO.EUI64,
		}
	}

	srcOut := ns.Target
	if !e.addrs.Owns(ns.Target) {
		srcOut = e.addrs.LinkLocal()
	}

	dstOut := in.Src
	if haveEARO && status != EAROStatusSuccess {
		dstOut = wsaddr.LinkLocalFromEUI64(eui64)
	}

	reply := pkt.FromBytes(na.Build())
	reply.Src = srcOut
	reply.Dst = dstOut
	reply.HopLimit = 255
	reply.ICMPType = TypeNeighborAdvert
	reply.Direction = pkt.DirectionDown

	if haveEARO {
		reply.Ack = pkt.AckUpdateReachable
		reply.AckTarget = in.Src
	}

	return reply, true
}

// HandleNA processes an inbound, validated NA per spec.md section
// 4.3.3.
func (e *Engine) HandleNA(in *pkt.Buffer, na NA) {
	if na.Target.IsMulticast() {
		return
	}

	if in.Dst.IsMulticast() && na.Solicited {
		return
	}

	if e.addrs.Owns(na.Target) {
		if e.OnDADCollision != nil {
			e.OnDADCollision(na.Target)
		}

		return
	}

	if na.HasEARO && na.EARO.Status != EAROStatusSuccess {
		if e.OnMACBlacklist != nil {
			e.OnMACBlacklist(na.EARO.EUI64)
		}

		if e.OnAroFailure != nil {
			e.OnAroFailure(na.EARO.EUI64)
		}
	}

	if _, ok := e.cache.Lookup(in.Src); !ok {
		return
	}

	e.cache.UpdateFromNA(
		in.Src,
		ncache.NAFlags{Router: na.Router, Solicited: na.Solicited, Override: na.Override},
		na.TLLAO,
		na.HasTLLAO,
	)
}

// HandleRedirect validates the RFC 4861 section 8 gating for an
// inbound Redirect (spec.md section 4.3.4): link-local source, hop
// limit 255 (already checked by [ValidateCommon]). It stops at
// gating rather than the full RFC 4861 section 8 destination-cache
// update: a non-storing-MOP FAN router has no on-link default-router
// redirection to act on (forwarding follows the RPL DODAG, not an
// IPv6 next-hop cache), so an accepted Redirect carries nothing this
// core would install differently from what the DODAG already says.
func (e *Engine) HandleRedirect(in *pkt.Buffer, _ Redirect) (accept bool) {
	return in.Src.IsLinkLocal()
}

// BuildNS builds an outbound NS per spec.md section 4.3.6.
// prompting is the source address of whatever traffic prompted this
// solicitation, used for RFC 4861 section 7.2.2 source selection; pass
// the zero [wsaddr.Addr] if there is none. dad, if true, forces the
// unspecified source (Duplicate Address Detection).
func (e *Engine) BuildNS(target wsaddr.Addr, prompting wsaddr.Addr, dad bool, earo *EARO) *pkt.Buffer {
	ns := NS{Target: target}

	if ll, ok := e.addrs.LinkLocal().EUI64(); ok {
		ns.SLLAO, ns.HasSLLAO = ll, true
	}

	if earo != nil {
		ns.EARO, ns.HasEARO = *earo, true
	}

	out := pkt.FromBytes(ns.Build())
	out.ICMPType = TypeNeighborSolicit
	out.HopLimit = 255
	out.Direction = pkt.DirectionDown
	out.Dst = target.SolicitedNodeMulticast()

	switch {
	case dad:
		out.Src = wsaddr.Unspecified
	case prompting.IsValid() && e.addrs.Owns(prompting):
		out.Src = prompting
	default:
		out.Src = e.addrs.LinkLocal()
	}

	if earo != nil {
		out.Ack = pkt.AckUpdateReachable
		out.AckTarget = target
	}

	return out
}

// errorable reports whether typ is one of the message types rule e.2
// (spec.md section 4.3.5 / RFC 4443 section 2.4) still allows in
// response to a multicast/broadcast-received frame.
func errorable(typ uint8) bool {
	return typ == TypePacketTooBig || typ == TypeParamProblem
}

// BuildError constructs an ICMPv6 error message (Destination
// Unreachable / Packet Too Big / Time Exceeded / Parameter Problem) in
// response to offending, applying RFC 4443 section 2.4 rules e.1-e.6
// and the shared token bucket (spec.md section 4.3.5). ok is false if
// the rules or the bucket suppress the reply.
func (e *Engine) BuildError(typ, code uint8, extra uint32, offending *pkt.Buffer) (out *pkt.Buffer, ok bool) {
	if typ == TypeRedirect || isICMPv6Error(offending.ICMPType) {
		// e.1: never reply to an ICMPv6 error or Redirect.
		return nil, false
	}

	if offending.Src.IsUnspecified() || offending.Src.IsMulticast() {
		// e.4/e.5: never reply when the offending source is
		// unspecified or multicast.
		return nil, false
	}

	if (offending.LLMulticastRX || offending.LLBroadcastRX || offending.Dst.IsMulticast()) && !errorable(typ) {
		// e.2/e.3: never reply to a multicast/broadcast-received frame
		// except Packet Too Big and Parameter Problem.
		return nil, false
	}

	if !e.cache.AllowError() {
		// e.6 (bucket): suppress silently when empty.
		return nil, false
	}

	body := CopyTruncated(offending.Bytes())

	buf := make([]byte, 8, 8+len(body))
	buf[0] = typ
	buf[1] = code
	// bytes 4:8 carry either the unused field (Dest Unreachable/Time
	// Exceeded), the MTU (Packet Too Big), or the pointer (Param
	// Problem); all are a single big-endian uint32 at the same offset.
	buf[4] = byte(extra >> 24)
	buf[5] = byte(extra >> 16)
	buf[6] = byte(extra >> 8)
	buf[7] = byte(extra)
	buf = append(buf, body...)

	out = pkt.FromBytes(buf)
	out.ICMPType = typ
	out.ICMPCode = code
	out.HopLimit = 255
	out.Direction = pkt.DirectionDown
	out.Src = offending.Dst
	out.Dst = offending.Src

	return out, true
}

func isICMPv6Error(typ uint8) bool {
	switch typ {
	case TypeDestUnreachable, TypePacketTooBig, TypeTimeExceeded, TypeParamProblem:
		return true
	default:
		return false
	}
}
