package iface

import (
	"encoding/binary"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// nextHeaderICMPv6 is IPv6's Next Header value for ICMPv6 (RFC 8200
// section 4, IANA protocol 58).
const nextHeaderICMPv6 uint8 = 58

// ipv6HeaderLen is the fixed IPv6 header: version/traffic-class/flow
// label (4) + payload length (2) + next header (1) + hop limit (1) +
// src (16) + dst (16).
const ipv6HeaderLen = 40

// ErrShortFrame is returned when a frame handed up from the RCP bus is
// too short to contain a full IPv6 header (spec.md section 7:
// MalformedPacket).
const ErrShortFrame errors.Error = "iface: frame shorter than an IPv6 header"

// ipv6Header is the subset of the fixed IPv6 header this core inspects
// (spec.md section 1: fragmentation, IPHC, and any extension-header
// chain beyond a bare ICMPv6/next-header byte are out of scope).
type ipv6Header struct {
	TrafficClass uint8
	PayloadLen   uint16
	NextHeader   uint8
	HopLimit     uint8
	Src          wsaddr.Addr
	Dst          wsaddr.Addr
}

// parseIPv6Header parses frame's fixed header and returns it along
// with the remaining payload.
func parseIPv6Header(frame []byte) (hdr ipv6Header, payload []byte, err error) {
	if len(frame) < ipv6HeaderLen {
		return ipv6Header{}, nil, ErrShortFrame
	}

	hdr.TrafficClass = (frame[0]<<4 | frame[1]>>4) & 0xff
	hdr.PayloadLen = binary.BigEndian.Uint16(frame[4:6])
	hdr.NextHeader = frame[6]
	hdr.HopLimit = frame[7]

	hdr.Src, err = wsaddr.FromSlice(frame[8:24])
	if err != nil {
		return ipv6Header{}, nil, errors.Annotate(err, "parsing IPv6 source: %w")
	}

	hdr.Dst, err = wsaddr.FromSlice(frame[24:40])
	if err != nil {
		return ipv6Header{}, nil, errors.Annotate(err, "parsing IPv6 destination: %w")
	}

	payload = frame[ipv6HeaderLen:]
	if len(payload) > int(hdr.PayloadLen) {
		payload = payload[:hdr.PayloadLen]
	}

	return hdr, payload, nil
}

// buildIPv6Frame wraps payload (already including its own transport
// checksum, filled by the caller) in a fixed IPv6 header.
func buildIPv6Frame(src, dst wsaddr.Addr, hopLimit uint8, nextHeader uint8, payload []byte) []byte {
	frame := make([]byte, ipv6HeaderLen+len(payload))
	frame[0] = 0x60 // version 6, traffic class/flow label left zero

	binary.BigEndian.PutUint16(frame[4:6], uint16(len(payload)))
	frame[6] = nextHeader
	frame[7] = hopLimit

	s := src.As16()
	copy(frame[8:24], s[:])

	d := dst.As16()
	copy(frame[24:40], d[:])

	copy(frame[40:], payload)

	return frame
}
