package icmpv6

import (
	"encoding/binary"

	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// NS is a parsed Neighbor Solicitation (RFC 4861 section 4.3).
type NS struct {
	Target   wsaddr.Addr
	SLLAO    [8]byte
	HasSLLAO bool
	EARO     EARO
	HasEARO  bool
}

// nsHeaderLen is the fixed NS header: type+code+checksum (4) +
// reserved (4) + target (16).
const nsHeaderLen = 24

// ParseNS parses an NS message body (starting at the ICMPv6 type
// byte).
func ParseNS(body []byte) (NS, error) {
	if len(body) < nsHeaderLen {
		return NS{}, ErrMalformedOption
	}

	target, err := wsaddr.FromSlice(body[8:24])
	if err != nil {
		return NS{}, err
	}

	ns := NS{Target: target}

	opts, err := ParseOptions(body[nsHeaderLen:])
	if err != nil {
		return NS{}, err
	}

	for _, o := range opts {
		switch o.Type {
		case OptSourceLLAddr:
			if eui, ok := LinkLayerAddr(o); ok {
				ns.SLLAO, ns.HasSLLAO = eui, true
			}
		case OptEARO:
			if earo, ok := ParseEARO(o.Value); ok {
				ns.EARO, ns.HasEARO = earo, true
			}
		}
	}

	return ns, nil
}

// Build encodes ns as a full ICMPv6 NS message (checksum left zero;
// caller must call FillChecksum once src/dst are known).
func (ns NS) Build() []byte {
	buf := make([]byte, nsHeaderLen, nsHeaderLen+32)
	buf[0] = TypeNeighborSolicit
	tgt := ns.Target.As16()
	copy(buf[8:24], tgt[:])

	if ns.HasSLLAO {
		buf = BuildLinkLayerAddrOption(buf, OptSourceLLAddr, ns.SLLAO)
	}

	if ns.HasEARO {
		buf = ns.EARO.Build(buf)
	}

	return buf
}

// NA is a parsed Neighbor Advertisement (RFC 4861 section 4.4).
type NA struct {
	Router    bool
	Solicited bool
	Override  bool
	Target    wsaddr.Addr
	TLLAO     [8]byte
	HasTLLAO  bool
	EARO      EARO
	HasEARO   bool
}

const naHeaderLen = 24

// ParseNA parses an NA message body.
func ParseNA(body []byte) (NA, error) {
	if len(body) < naHeaderLen {
		return NA{}, ErrMalformedOption
	}

	flags := body[4]

	target, err := wsaddr.FromSlice(body[8:24])
	if err != nil {
		return NA{}, err
	}

	na := NA{
		Router:    flags&0x80 != 0,
		Solicited: flags&0x40 != 0,
		Override:  flags&0x20 != 0,
		Target:    target,
	}

	opts, err := ParseOptions(body[naHeaderLen:])
	if err != nil {
		return NA{}, err
	}

	for _, o := range opts {
		switch o.Type {
		case OptTargetLLAddr:
			if eui, ok := LinkLayerAddr(o); ok {
				na.TLLAO, na.HasTLLAO = eui, true
			}
		case OptEARO:
			if earo, ok := ParseEARO(o.Value); ok {
				na.EARO, na.HasEARO = earo, true
			}
		}
	}

	return na, nil
}

// Build encodes na as a full ICMPv6 NA message.
func (na NA) Build() []byte {
	buf := make([]byte, naHeaderLen, naHeaderLen+32)
	buf[0] = TypeNeighborAdvert

	var flags uint8
	if na.Router {
		flags |= 0x80
	}
	if na.Solicited {
		flags |= 0x40
	}
	if na.Override {
		flags |= 0x20
	}
	buf[4] = flags

	tgt := na.Target.As16()
	copy(buf[8:24], tgt[:])

	if na.HasTLLAO {
		buf = BuildLinkLayerAddrOption(buf, OptTargetLLAddr, na.TLLAO)
	}

	if na.HasEARO {
		buf = na.EARO.Build(buf)
	}

	return buf
}

// Redirect is a parsed Redirect message (RFC 4861 section 4.5),
// validated but not acted on beyond spec.md section 4.3.4's gating.
type Redirect struct {
	Target      wsaddr.Addr
	Destination wsaddr.Addr
}

const redirectHeaderLen = 40

// ParseRedirect parses a Redirect message body.
func ParseRedirect(body []byte) (Redirect, error) {
	if len(body) < redirectHeaderLen {
		return Redirect{}, ErrMalformedOption
	}

	target, err := wsaddr.FromSlice(body[8:24])
	if err != nil {
		return Redirect{}, err
	}

	dest, err := wsaddr.FromSlice(body[24:40])
	if err != nil {
		return Redirect{}, err
	}

	return Redirect{Target: target, Destination: dest}, nil
}

// rsHeaderLen is RS's fixed header: type+code+checksum(4) +
// reserved(4).
const rsHeaderLen = 8

// RS is a parsed Router Solicitation (RFC 4861 section 4.1).
type RS struct {
	SLLAO    [8]byte
	HasSLLAO bool
}

// ParseRS parses an RS message body.
func ParseRS(body []byte) (RS, error) {
	if len(body) < rsHeaderLen {
		return RS{}, ErrMalformedOption
	}

	opts, err := ParseOptions(body[rsHeaderLen:])
	if err != nil {
		return RS{}, err
	}

	var rs RS
	if o, ok := FindOption(opts, OptSourceLLAddr); ok {
		if eui, ok := LinkLayerAddr(o); ok {
			rs.SLLAO, rs.HasSLLAO = eui, true
		}
	}

	return rs, nil
}

// Build encodes rs as a full ICMPv6 RS message.
func (rs RS) Build() []byte {
	buf := make([]byte, rsHeaderLen)
	buf[0] = TypeRouterSolicit

	if rs.HasSLLAO {
		buf = BuildLinkLayerAddrOption(buf, OptSourceLLAddr, rs.SLLAO)
	}

	return buf
}

// raHeaderLen is RA's fixed header: type+code+checksum(4) +
// curHopLimit(1)+flags(1)+lifetime(2) + reachableTime(4) +
// retransTimer(4).
const raHeaderLen = 16

// RA is a parsed Router Advertisement (RFC 4861 section 4.2).
type RA struct {
	CurHopLimit    uint8
	Managed        bool
	OtherConfig    bool
	RouterLifetime uint16
	ReachableMS    uint32
	RetransMS      uint32

	Prefixes []PrefixInfo
	MTU      uint32
	HasMTU   bool
	RDNSS    []wsaddr.Addr
	SLLAO    [8]byte
	HasSLLAO bool
}

// PrefixInfo is a parsed Prefix Information option (RFC 4861 section
// 4.6.2).
type PrefixInfo struct {
	PrefixLen         uint8
	OnLink            bool
	Autonomous        bool
	ValidLifetime     uint32
	PreferredLifetime uint32
	Prefix            [16]byte
}

// ParseRA parses an RA message body, including Prefix Information,
// MTU, and RDNSS options (spec.md section 4.3.1 "supplement": RS/RA
// full handling), grounded on Splat-NDPeekr's inbound RA option walk.
func ParseRA(body []byte) (RA, error) {
	if len(body) < raHeaderLen {
		return RA{}, ErrMalformedOption
	}

	ra := RA{
		CurHopLimit:    body[4],
		Managed:        body[5]&0x80 != 0,
		OtherConfig:    body[5]&0x40 != 0,
		RouterLifetime: binary.BigEndian.Uint16(body[6:8]),
		ReachableMS:    binary.BigEndian.Uint32(body[8:12]),
		RetransMS:      binary.BigEndian.Uint32(body[12:16]),
	}

	opts, err := ParseOptions(body[raHeaderLen:])
	if err != nil {
		return RA{}, err
	}

	for _, o := range opts {
		switch o.Type {
		case OptPrefixInfo:
			if len(o.Value) >= 30 {
				var pi PrefixInfo
				pi.PrefixLen = o.Value[0]
				pi.OnLink = o.Value[1]&0x80 != 0
				pi.Autonomous = o.Value[1]&0x40 != 0
				pi.ValidLifetime = binary.BigEndian.Uint32(o.Value[2:6])
				pi.PreferredLifetime = binary.BigEndian.Uint32(o.Value[6:10])
				copy(pi.Prefix[:], o.Value[14:30])
				ra.Prefixes = append(ra.Prefixes, pi)
			}
		case OptMTU:
			if len(o.Value) >= 6 {
				ra.MTU = binary.BigEndian.Uint32(o.Value[2:6])
				ra.HasMTU = true
			}
		case OptRDNSS:
			for off := 6; off+16 <= len(o.Value); off += 16 {
				var a [16]byte
				copy(a[:], o.Value[off:off+16])
				addr, err := wsaddr.FromSlice(a[:])
				if err == nil {
					ra.RDNSS = append(ra.RDNSS, addr)
				}
			}
		case OptSourceLLAddr:
			if eui, ok := LinkLayerAddr(o); ok {
				ra.SLLAO, ra.HasSLLAO = eui, true
			}
		}
	}

	return ra, nil
}

// Build encodes ra as a full ICMPv6 RA message, following the layout
// AdGuardHome's createICMPv6RAPacket uses (spec.md section 4.3.1).
func (ra RA) Build() []byte {
	buf := make([]byte, raHeaderLen)
	buf[0] = TypeRouterAdvert
	buf[4] = ra.CurHopLimit

	var flags uint8
	if ra.Managed {
		flags |= 0x80
	}
	if ra.OtherConfig {
		flags |= 0x40
	}
	buf[5] = flags

	binary.BigEndian.PutUint16(buf[6:8], ra.RouterLifetime)
	binary.BigEndian.PutUint32(buf[8:12], ra.ReachableMS)
	binary.BigEndian.PutUint32(buf[12:16], ra.RetransMS)

	for _, pi := range ra.Prefixes {
		v := make([]byte, 30)
		v[0] = pi.PrefixLen
		var f uint8
		if pi.OnLink {
			f |= 0x80
		}
		if pi.Autonomous {
			f |= 0x40
		}
		v[1] = f
		binary.BigEndian.PutUint32(v[2:6], pi.ValidLifetime)
		binary.BigEndian.PutUint32(v[6:10], pi.PreferredLifetime)
		copy(v[14:30], pi.Prefix[:])
		buf = BuildOption(buf, OptPrefixInfo, v)
	}

	if ra.HasMTU {
		v := make([]byte, 6)
		binary.BigEndian.PutUint32(v[2:6], ra.MTU)
		buf = BuildOption(buf, OptMTU, v)
	}

	if ra.HasSLLAO {
		buf = BuildLinkLayerAddrOption(buf, OptSourceLLAddr, ra.SLLAO)
	}

	for _, dns := range ra.RDNSS {
		v := make([]byte, 22)
		binary.BigEndian.PutUint32(v[2:6], 3600)
		a := dns.As16()
		copy(v[6:22], a[:])
		buf = BuildOption(buf, OptRDNSS, v)
	}

	return buf
}
