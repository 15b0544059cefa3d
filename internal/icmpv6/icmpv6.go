// Package icmpv6 implements the ICMPv6 engine (spec.md section 4.3,
// L3): parsing and emission of NS/NA/RS/RA/Redirect, RFC 4443/4861/6775
// validation, the Wi-SUN EARO handling, and the token-bucket-gated
// error responder.
//
// The bit-exact option layout is grounded on AdGuardHome's
// internal/dhcpd/routeradv.go (createICMPv6RAPacket); the inbound
// option-chain walk follows the TLV-walking idiom in
// Splat-NDPeekr/lib/ndp_listener.go (parseLinkLayerAddr/parseRA), the
// only NDP option parser anywhere in the retrieval pack. Checksum and
// framing are hand-rolled rather than built on golang.org/x/net/icmp's
// Message/MessageBody pair: that abstraction marshals a known, fixed
// set of ICMP message bodies against a real OS socket, and has no slot
// for EARO/Prefix-Information-style option TLVs or the raw-byte
// RCP-bus framing this core reads frames from in place of a socket
// (spec.md section 1; see DESIGN.md).
package icmpv6

import (
	"encoding/binary"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// Message types, RFC 4443/4861.
const (
	TypeDestUnreachable  uint8 = 1
	TypePacketTooBig     uint8 = 2
	TypeTimeExceeded     uint8 = 3
	TypeParamProblem     uint8 = 4
	TypeEchoRequest      uint8 = 128
	TypeEchoReply        uint8 = 129
	TypeRouterSolicit    uint8 = 133
	TypeRouterAdvert     uint8 = 134
	TypeNeighborSolicit  uint8 = 135
	TypeNeighborAdvert   uint8 = 136
	TypeRedirect         uint8 = 137
)

// Parameter Problem codes, RFC 4443 section 3.4.
const (
	CodeErroneousHeader   uint8 = 0
	CodeUnrecognizedNext  uint8 = 1
	CodeUnrecognizedOpt   uint8 = 2
)

// Option types, RFC 4861 section 4.6 / RFC 8505 section 4.1.
const (
	OptSourceLLAddr uint8 = 1
	OptTargetLLAddr uint8 = 2
	OptPrefixInfo   uint8 = 3
	OptMTU          uint8 = 5
	OptRouteInfo    uint8 = 24
	OptRDNSS        uint8 = 25
	OptEARO         uint8 = 33
)

// MinLinkMTU is IPv6's minimum link MTU (RFC 8200 section 5), used to
// bound how much of an offending packet an ICMPv6 error copies back
// (spec.md section 4.3.5).
const MinLinkMTU = 1280

// ErrHopLimit is returned by [ValidateCommon] when an inbound ND message's hop
// limit isn't the mandatory 255 (spec.md section 4.3.1/section 8
// property 3).
const ErrHopLimit errors.Error = "icmpv6: hop limit is not 255"

// ErrBadCode is returned when code != 0 for a message type that
// requires it.
const ErrBadCode errors.Error = "icmpv6: non-zero code"

// ErrChecksum is returned on pseudo-header checksum mismatch.
const ErrChecksum errors.Error = "icmpv6: checksum mismatch"

// ErrMalformedOption is returned when the option chain isn't
// well-formed (spec.md section 4.3.1: each option length > 0, in units
// of 8 octets, chain consumes exactly the remaining buffer).
const ErrMalformedOption errors.Error = "icmpv6: malformed option chain"

// Option is one raw entry from an option chain.
type Option struct {
	Type uint8
	// Value is the option payload *excluding* the 2-byte type+length
	// header, i.e. (length*8 - 2) bytes.
	Value []byte
}

// ParseOptions walks buf as an RFC 4861 section 4.6 option chain,
// requiring it to consume buf exactly (spec.md section 4.3.1).
func ParseOptions(buf []byte) ([]Option, error) {
	var opts []Option

	offset := 0
	for offset < len(buf) {
		if offset+2 > len(buf) {
			return nil, ErrMalformedOption
		}

		lenUnits := int(buf[offset+1])
		if lenUnits == 0 {
			return nil, ErrMalformedOption
		}

		optLen := lenUnits * 8
		if offset+optLen > len(buf) {
			return nil, ErrMalformedOption
		}

		opts = append(opts, Option{
			Type:  buf[offset],
			Value: buf[offset+2 : offset+optLen],
		})

		offset += optLen
	}

	if offset != len(buf) {
		return nil, ErrMalformedOption
	}

	return opts, nil
}

// BuildOption appends an option with the given type and payload,
// rounding the total length up to the next multiple of 8 octets and
// zero-padding as needed, returning the new slice.
func BuildOption(buf []byte, typ uint8, payload []byte) []byte {
	total := 2 + len(payload)
	lenUnits := (total + 7) / 8
	padded := lenUnits*8 - total

	buf = append(buf, typ, byte(lenUnits))
	buf = append(buf, payload...)
	for range padded {
		buf = append(buf, 0)
	}

	return buf
}

// FindOption returns the first option of the given type, if any.
func FindOption(opts []Option, typ uint8) (Option, bool) {
	for _, o := range opts {
		if o.Type == typ {
			return o, true
		}
	}

	return Option{}, false
}

// LinkLayerAddr parses a Source/Target Link-Layer Address option
// (type 1/2) carrying an 8-octet EUI-64, the only link-layer address
// form Wi-SUN FAN uses (spec.md section 6).
func LinkLayerAddr(opt Option) (eui64 [8]byte, ok bool) {
	if len(opt.Value) < 8 {
		return eui64, false
	}

	copy(eui64[:], opt.Value[:8])

	return eui64, true
}

// BuildLinkLayerAddrOption builds a Source/Target Link-Layer Address
// option around an EUI-64.
func BuildLinkLayerAddrOption(buf []byte, typ uint8, eui64 [8]byte) []byte {
	return BuildOption(buf, typ, eui64[:])
}

// checksumPseudoHeader computes the RFC 2460 section 8.1 IPv6
// pseudo-header checksum seed for an ICMPv6 payload.
func checksumPseudoHeader(src, dst [16]byte, length uint32, nextHeader uint8) uint32 {
	var sum uint32

	add := func(b []byte) {
		for i := 0; i+1 < len(b); i += 2 {
			sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
		}
	}

	add(src[:])
	add(dst[:])

	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], length)
	add(lb[:])

	sum += uint32(nextHeader)

	return sum
}

// Checksum computes the ICMPv6 checksum for payload (with the checksum
// field itself zeroed) given the IPv6 src/dst.
func Checksum(src, dst [16]byte, payload []byte) uint16 {
	sum := checksumPseudoHeader(src, dst, uint32(len(payload)), 58 /* ICMPv6 */)

	buf := payload
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}

	return ^uint16(sum)
}

// VerifyChecksum reports whether payload's embedded checksum (bytes
// 2:4) matches Checksum(src, dst, payload-with-checksum-zeroed).
func VerifyChecksum(src, dst [16]byte, payload []byte) bool {
	if len(payload) < 4 {
		return false
	}

	want := binary.BigEndian.Uint16(payload[2:4])

	cp := make([]byte, len(payload))
	copy(cp, payload)
	cp[2], cp[3] = 0, 0

	return Checksum(src, dst, cp) == want
}

// FillChecksum computes and writes the checksum into payload[2:4].
func FillChecksum(src, dst [16]byte, payload []byte) {
	payload[2], payload[3] = 0, 0
	cs := Checksum(src, dst, payload)
	binary.BigEndian.PutUint16(payload[2:4], cs)
}

// ValidateCommon enforces the requirements common to all inbound
// NS/NA/RS/RA/Redirect messages (spec.md section 4.3.1): hop limit
// 255, code 0 and a verified checksum. It does not walk the option
// chain; the per-message Parse functions do that via [ParseOptions].
func ValidateCommon(hopLimit uint8, code uint8, src, dst [16]byte, payload []byte) error {
	if hopLimit != 255 {
		return ErrHopLimit
	}

	if code != 0 {
		return ErrBadCode
	}

	if !VerifyChecksum(src, dst, payload) {
		return ErrChecksum
	}

	return nil
}

// CopyTruncated copies as much of offending as fits within
// MinLinkMTU-8 octets (the ICMPv6 header budget subtracted from the
// minimum link MTU, spec.md section 4.3.5).
func CopyTruncated(offending []byte) []byte {
	max := MinLinkMTU - 8
	if len(offending) <= max {
		return append([]byte(nil), offending...)
	}

	return append([]byte(nil), offending[:max]...)
}

// must is a tiny helper for option-building code paths that are
// invariant-guaranteed not to fail; kept separate so build functions
// read linearly.
func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("icmpv6: unreachable: %s", err))
	}
}
