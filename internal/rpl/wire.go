package rpl

// RPL control message wire format (RFC 6550 section 6): DIS/DIO/DAO/
// DAO-ACK share ICMPv6 type 155 and are distinguished by code. Unlike
// the RFC 4861 options icmpv6.ParseOptions walks (length in 8-octet
// units), RPL options carry their length in raw octets (RFC 6550
// section 6.7), so this package keeps its own option helpers rather
// than reusing icmpv6's.

import (
	"encoding/binary"

	"github.com/mikewadsten/wisun-router/internal/icmpv6"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// ICMPType is the RPL control message's ICMPv6 type (RFC 6550 section
// 6).
const ICMPType uint8 = 155

// RPL control message codes, RFC 6550 section 6.
const (
	CodeDIS    uint8 = 0x00
	CodeDIO    uint8 = 0x01
	CodeDAO    uint8 = 0x02
	CodeDAOACK uint8 = 0x03
)

// MOPNonStoring is the only Mode of Operation this core speaks
// (spec.md section 1: non-storing MOP router node).
const MOPNonStoring uint8 = 1

// RPL option types this core emits or consumes, RFC 6550 section 6.7.
const (
	optConfiguration      uint8 = 4
	optRPLTarget          uint8 = 5
	optTransitInformation uint8 = 6
)

const dioBodyLen = 24 // instance+version+rank+flags+dtsn+flags+reserved+dodagid(16)

func dioFlags(grounded bool, mop, pref uint8) byte {
	var b byte
	if grounded {
		b |= 0x80
	}

	b |= (mop & 0x07) << 3
	b |= pref & 0x07

	return b
}

func parseDIOFlags(b byte) (grounded bool, mop, pref uint8) {
	return b&0x80 != 0, (b >> 3) & 0x07, b & 0x07
}

func buildOption(buf []byte, typ uint8, payload []byte) []byte {
	buf = append(buf, typ, byte(len(payload)))
	buf = append(buf, payload...)

	return buf
}

type rplOption struct {
	Type  uint8
	Value []byte
}

func parseOptions(buf []byte) ([]rplOption, error) {
	var opts []rplOption

	offset := 0
	for offset < len(buf) {
		if offset+2 > len(buf) {
			return nil, icmpv6.ErrMalformedOption
		}

		l := int(buf[offset+1])
		if offset+2+l > len(buf) {
			return nil, icmpv6.ErrMalformedOption
		}

		opts = append(opts, rplOption{Type: buf[offset], Value: buf[offset+2 : offset+2+l]})
		offset += 2 + l
	}

	if offset != len(buf) {
		return nil, icmpv6.ErrMalformedOption
	}

	return opts, nil
}

func buildConfigOption(buf []byte, c ConfigOption) []byte {
	v := make([]byte, 14)
	v[1] = c.DIOIntervalDoublings
	v[2] = c.DIOIntervalMin
	v[3] = c.DIORedundancy
	binary.BigEndian.PutUint16(v[4:6], c.MaxRankIncrease)
	binary.BigEndian.PutUint16(v[6:8], c.MinHopRankIncrease)
	binary.BigEndian.PutUint16(v[8:10], c.OCP)
	v[11] = c.DefaultLifetime
	binary.BigEndian.PutUint16(v[12:14], c.LifetimeUnit)

	return buildOption(buf, optConfiguration, v)
}

func parseConfigOption(v []byte) (ConfigOption, bool) {
	if len(v) < 14 {
		return ConfigOption{}, false
	}

	return ConfigOption{
		DIOIntervalDoublings: v[1],
		DIOIntervalMin:       v[2],
		DIORedundancy:        v[3],
		MaxRankIncrease:      binary.BigEndian.Uint16(v[4:6]),
		MinHopRankIncrease:   binary.BigEndian.Uint16(v[6:8]),
		OCP:                  binary.BigEndian.Uint16(v[8:10]),
		DefaultLifetime:      v[11],
		LifetimeUnit:         binary.BigEndian.Uint16(v[12:14]),
	}, true
}

// BuildDIO encodes a DIO control message (RFC 6550 section 6.3.1),
// with its Configuration option (section 6.7.6) when cfg is non-nil.
// The checksum field is left zero; callers fill it once src/dst are
// known (mirrors icmpv6's NS/NA Build functions).
func BuildDIO(dio DIOBase, cfg *ConfigOption) []byte {
	buf := make([]byte, 4, 4+dioBodyLen+20)
	buf[0] = ICMPType
	buf[1] = CodeDIO

	buf = append(buf, dio.InstanceID, dio.Version)

	var rank [2]byte
	binary.BigEndian.PutUint16(rank[:], dio.Rank)
	buf = append(buf, rank[:]...)

	buf = append(buf, dioFlags(dio.Grounded, dio.MOP, dio.Preference), dio.DTSN, 0, 0)

	id := dio.DODAGID.As16()
	buf = append(buf, id[:]...)

	if cfg != nil {
		buf = buildConfigOption(buf, *cfg)
	}

	return buf
}

// ParseDIO decodes a DIO control message body (starting at the ICMPv6
// type byte).
func ParseDIO(body []byte) (dio DIOBase, cfg ConfigOption, hasCfg bool, err error) {
	if len(body) < 4+dioBodyLen {
		return DIOBase{}, ConfigOption{}, false, icmpv6.ErrMalformedOption
	}

	p := body[4:]
	dio.InstanceID = p[0]
	dio.Version = p[1]
	dio.Rank = binary.BigEndian.Uint16(p[2:4])
	dio.Grounded, dio.MOP, dio.Preference = parseDIOFlags(p[4])
	dio.DTSN = p[5]

	id, err := wsaddr.FromSlice(p[8:24])
	if err != nil {
		return DIOBase{}, ConfigOption{}, false, err
	}

	dio.DODAGID = id

	opts, err := parseOptions(p[24:])
	if err != nil {
		return DIOBase{}, ConfigOption{}, false, err
	}

	for _, o := range opts {
		if o.Type == optConfiguration {
			if c, ok := parseConfigOption(o.Value); ok {
				cfg, hasCfg = c, true
			}
		}
	}

	return dio, cfg, hasCfg, nil
}

// DAO is a parsed Destination Advertisement Object (RFC 6550 section
// 6.4), non-storing MOP: a Target option per advertised address plus
// a Transit Information option naming the next hop toward this node.
// Transit Information's parent address is carried as an EUI-64 rather
// than a full address, since Wi-SUN FAN uses 64-bit addressing
// exclusively (spec.md section 6) and the EUI-64 <-> link-local
// mapping is already how this core identifies neighbors.
type DAO struct {
	InstanceID     uint8
	SequenceNumber uint8
	RequestAck     bool
	DODAGID        wsaddr.Addr
	HasDODAGID     bool
	Targets        []wsaddr.Addr
	ParentEUI64    [8]byte
}

// BuildDAO encodes d as a DAO control message (RFC 6550 section 6.4).
func BuildDAO(d DAO) []byte {
	buf := make([]byte, 4, 32)
	buf[0] = ICMPType
	buf[1] = CodeDAO

	var flags byte
	if d.RequestAck {
		flags |= 0x80
	}

	if d.HasDODAGID {
		flags |= 0x40
	}

	buf = append(buf, d.InstanceID, flags, 0, d.SequenceNumber)

	if d.HasDODAGID {
		id := d.DODAGID.As16()
		buf = append(buf, id[:]...)
	}

	for _, t := range d.Targets {
		tv := make([]byte, 18)
		tv[1] = 128 // prefix length: a full 128-bit target (spec.md's Addr model has no subnet concept)
		a := t.As16()
		copy(tv[2:], a[:])
		buf = buildOption(buf, optRPLTarget, tv)
	}

	ti := make([]byte, 12)
	copy(ti[4:], d.ParentEUI64[:])
	buf = buildOption(buf, optTransitInformation, ti)

	return buf
}

// ParseDAO decodes a DAO control message body.
func ParseDAO(body []byte) (DAO, error) {
	if len(body) < 8 {
		return DAO{}, icmpv6.ErrMalformedOption
	}

	var d DAO
	d.InstanceID = body[4]

	flags := body[5]
	d.RequestAck = flags&0x80 != 0
	d.HasDODAGID = flags&0x40 != 0
	d.SequenceNumber = body[7]

	offset := 8
	if d.HasDODAGID {
		if len(body) < offset+16 {
			return DAO{}, icmpv6.ErrMalformedOption
		}

		id, err := wsaddr.FromSlice(body[offset : offset+16])
		if err != nil {
			return DAO{}, err
		}

		d.DODAGID = id
		offset += 16
	}

	opts, err := parseOptions(body[offset:])
	if err != nil {
		return DAO{}, err
	}

	for _, o := range opts {
		switch o.Type {
		case optRPLTarget:
			if len(o.Value) >= 18 {
				if a, err := wsaddr.FromSlice(o.Value[2:18]); err == nil {
					d.Targets = append(d.Targets, a)
				}
			}
		case optTransitInformation:
			if len(o.Value) >= 12 {
				copy(d.ParentEUI64[:], o.Value[4:12])
			}
		}
	}

	return d, nil
}

// DAOAck is a parsed DAO-ACK (RFC 6550 section 6.5).
type DAOAck struct {
	InstanceID     uint8
	SequenceNumber uint8
	Status         uint8
	DODAGID        wsaddr.Addr
	HasDODAGID     bool
}

// BuildDAOAck encodes a as a DAO-ACK control message.
func BuildDAOAck(a DAOAck) []byte {
	buf := make([]byte, 4, 24)
	buf[0] = ICMPType
	buf[1] = CodeDAOACK

	var flags byte
	if a.HasDODAGID {
		flags |= 0x80
	}

	buf = append(buf, a.InstanceID, flags, a.SequenceNumber, a.Status)

	if a.HasDODAGID {
		id := a.DODAGID.As16()
		buf = append(buf, id[:]...)
	}

	return buf
}

// ParseDAOAck decodes a DAO-ACK control message body.
func ParseDAOAck(body []byte) (DAOAck, error) {
	if len(body) < 8 {
		return DAOAck{}, icmpv6.ErrMalformedOption
	}

	var a DAOAck
	a.InstanceID = body[4]

	flags := body[5]
	a.HasDODAGID = flags&0x80 != 0
	a.SequenceNumber = body[6]
	a.Status = body[7]

	if a.HasDODAGID {
		if len(body) < 24 {
			return DAOAck{}, icmpv6.ErrMalformedOption
		}

		id, err := wsaddr.FromSlice(body[8:24])
		if err != nil {
			return DAOAck{}, err
		}

		a.DODAGID = id
	}

	return a, nil
}

// BuildDIS encodes a bare DIS control message (RFC 6550 section 6.2);
// this core never sets the Solicited Information option.
func BuildDIS() []byte {
	buf := make([]byte, 4, 6)
	buf[0] = ICMPType
	buf[1] = CodeDIS
	buf = append(buf, 0, 0)

	return buf
}

// ParseDIS validates a DIS control message body; this core doesn't
// inspect its (optional) Solicited Information option.
func ParseDIS(body []byte) error {
	if len(body) < 6 {
		return icmpv6.ErrMalformedOption
	}

	return nil
}
