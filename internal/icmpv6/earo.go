package icmpv6

import (
	"encoding/binary"
	"time"
)

// EARO status codes, RFC 8505 section 4.1.
const (
	EAROStatusSuccess            uint8 = 0
	EAROStatusDuplicate          uint8 = 1
	EAROStatusMoved              uint8 = 3
	EAROStatusRemoved            uint8 = 4
	EAROStatusValidationRequest  uint8 = 5
	EAROStatusDuplicateSource    uint8 = 6
)

// EARO is a parsed Extended Address Registration Option (RFC 8505
// section 4.1, spec.md section 6):
//
//	type | len=2 | status | opaque | flags(IRT) | tid | lifetime(be16) | eui64(8)
type EARO struct {
	Status   uint8
	Opaque   uint8
	IFlag    bool
	RFlag    bool
	TFlag    bool
	TID      uint8
	Lifetime uint16 // minutes, per RFC 8505 section 4.1
	EUI64    [8]byte
}

// LifetimeDuration returns Lifetime converted to a [time.Duration].
func (e EARO) LifetimeDuration() time.Duration {
	return time.Duration(e.Lifetime) * time.Minute
}

// ParseEARO decodes an EARO option's value (the bytes after
// type+length).  A Wi-SUN "shorthand" EARO as carried in some NAs has
// a Length field of 2 (spec.md section 4.3.3), identical to the
// registration EARO; both share this layout.
func ParseEARO(value []byte) (EARO, bool) {
	if len(value) < 14 {
		return EARO{}, false
	}

	var e EARO
	e.Status = value[0]
	e.Opaque = value[1]

	flags := value[2]
	e.IFlag = flags&0x80 != 0
	e.RFlag = flags&0x40 != 0
	e.TFlag = flags&0x20 != 0

	e.TID = value[3]
	e.Lifetime = binary.BigEndian.Uint16(value[4:6])
	copy(e.EUI64[:], value[6:14])

	return e, true
}

// Build encodes e as an EARO option and appends it to buf.
func (e EARO) Build(buf []byte) []byte {
	v := make([]byte, 14)
	v[0] = e.Status
	v[1] = e.Opaque

	var flags uint8
	if e.IFlag {
		flags |= 0x80
	}
	if e.RFlag {
		flags |= 0x40
	}
	if e.TFlag {
		flags |= 0x20
	}
	v[2] = flags

	v[3] = e.TID
	binary.BigEndian.PutUint16(v[4:6], e.Lifetime)
	copy(v[6:14], e.EUI64[:])

	return BuildOption(buf, OptEARO, v)
}
