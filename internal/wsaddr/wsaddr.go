// Package wsaddr implements the IPv6 address model used throughout the
// core: subtype classification and the EUI-64 <-> interface identifier
// conversion that Wi-SUN FAN relies on instead of a separately carried
// link-layer address.
package wsaddr

import (
	"fmt"
	"net/netip"
)

// Addr is a 16-octet IPv6 address.  It wraps [netip.Addr] and rejects
// anything that isn't a 16-byte (IPv6 or IPv4-in-IPv6) address at
// construction, so callers never have to re-check the length.
type Addr struct {
	a netip.Addr
}

// Unspecified is the all-zero address ("::").
var Unspecified = Addr{a: netip.IPv6Unspecified()}

// New wraps a [netip.Addr], validating that it is a 16-octet address.
func New(a netip.Addr) (Addr, error) {
	if !a.Is6() && !a.Is4In6() {
		return Addr{}, fmt.Errorf("wsaddr: %s is not a 16-octet address", a)
	}

	return Addr{a: netip.AddrFrom16(a.As16())}, nil
}

// FromSlice builds an Addr from a 16-byte slice.
func FromSlice(b []byte) (Addr, error) {
	if len(b) != 16 {
		return Addr{}, fmt.Errorf("wsaddr: need 16 bytes, got %d", len(b))
	}

	var a16 [16]byte
	copy(a16[:], b)

	return Addr{a: netip.AddrFrom16(a16)}, nil
}

// MustParse parses s, panicking on error.  Intended for tests and
// literal constants.
func MustParse(s string) Addr {
	a, err := New(netip.MustParseAddr(s))
	if err != nil {
		panic(err)
	}

	return a
}

// NetIP returns the underlying [netip.Addr].
func (a Addr) NetIP() netip.Addr { return a.a }

// As16 returns the 16-byte representation.
func (a Addr) As16() [16]byte { return a.a.As16() }

// IsValid reports whether a was constructed through [New]/[FromSlice]
// rather than being the zero value.
func (a Addr) IsValid() bool { return a.a.IsValid() }

// String implements [fmt.Stringer].
func (a Addr) String() string {
	if !a.a.IsValid() {
		return "<invalid>"
	}

	return a.a.String()
}

// Equal reports whether a and b hold the same address.
func (a Addr) Equal(b Addr) bool { return a.a == b.a }

// IsUnspecified reports whether a is "::".
func (a Addr) IsUnspecified() bool { return a.a == netip.IPv6Unspecified() }

// IsLoopback reports whether a is "::1".
func (a Addr) IsLoopback() bool { return a.a.IsLoopback() }

// IsMulticast reports whether a is in ff00::/8.
func (a Addr) IsMulticast() bool {
	b := a.a.As16()
	return b[0] == 0xff
}

// IsLinkLocal reports whether a is in fe80::/10.
func (a Addr) IsLinkLocal() bool {
	b := a.a.As16()
	return b[0] == 0xfe && b[1]&0xc0 == 0x80
}

// IsIPv4Mapped reports whether a is an IPv4-mapped IPv6 address
// (::ffff:0:0/96).
func (a Addr) IsIPv4Mapped() bool { return a.a.Is4In6() }

// IsSolicitedNodeMulticast reports whether a is in the
// ff02::1:ff00:0/104 range used by RFC 4861 solicited-node multicast
// addresses.
func (a Addr) IsSolicitedNodeMulticast() bool {
	b := a.a.As16()
	for _, x := range b[2:11] {
		if x != 0 {
			return false
		}
	}

	return b[0] == 0xff && b[1] == 0x02 &&
		b[11] == 0x01 && b[12] == 0xff
}

// SolicitedNodeMulticast derives the solicited-node multicast address
// that corresponds to a, per RFC 4861 section 2.7.1: ff02::1:ffXX:XXXX
// formed from the low 24 bits of a.
func (a Addr) SolicitedNodeMulticast() Addr {
	b := a.a.As16()

	var sn [16]byte
	sn[0], sn[1] = 0xff, 0x02
	sn[11] = 0x01
	sn[12] = 0xff
	sn[13], sn[14], sn[15] = b[13], b[14], b[15]

	return Addr{a: netip.AddrFrom16(sn)}
}

// EUI64 extracts the 8-octet EUI-64 that forms a's interface
// identifier, inverting the universal/local bit as RFC 4291 section
// 2.5.1 requires.  ok is always true: the U/L inversion is performed
// unconditionally and a's lower 64 bits are always returned, so the
// result is a real EUI-64 only when the address was assigned that way
// (e.g. link-local addresses on a Wi-SUN interface, which always are).
func (a Addr) EUI64() (eui64 [8]byte, ok bool) {
	b := a.a.As16()
	copy(eui64[:], b[8:16])
	eui64[0] ^= 0x02

	return eui64, true
}

// LinkLocalFromEUI64 builds the link-local address fe80::<IID> for the
// given EUI-64, inverting bit 1 of octet 0 to form the interface
// identifier (RFC 4291 section 2.5.1).
func LinkLocalFromEUI64(eui64 [8]byte) Addr {
	var b [16]byte
	b[0], b[1] = 0xfe, 0x80

	iid := eui64
	iid[0] ^= 0x02
	copy(b[8:16], iid[:])

	return Addr{a: netip.AddrFrom16(b)}
}

// FromPrefixAndEUI64 builds an address from an arbitrary /64 prefix and
// an EUI-64-derived interface identifier.
func FromPrefixAndEUI64(prefix netip.Prefix, eui64 [8]byte) Addr {
	p := prefix.Addr().As16()

	var b [16]byte
	copy(b[:8], p[:8])

	iid := eui64
	iid[0] ^= 0x02
	copy(b[8:16], iid[:])

	return Addr{a: netip.AddrFrom16(b)}
}
