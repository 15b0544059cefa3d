// Package pkt implements the packet buffer (spec.md section 4.1, L1):
// a contiguous octet buffer plus per-packet metadata that flows exactly
// once through the core (drop releases it).
package pkt

import (
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// Direction is the flow direction of a [Buffer] through the core.
type Direction uint8

// Direction values, per spec.md section 3.
const (
	DirectionUp Direction = iota
	DirectionDown
)

// String implements [fmt.Stringer].
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "unknown"
	}
}

// AckIntent is attached to an outbound [Buffer] so that the scheduler's
// MAC-confirmation handler knows what to do once the RCP bus reports
// the frame's fate, without a type-erased callback (spec.md section 9,
// "Callback-driven asynchrony").
type AckIntent uint8

// AckIntent values.
const (
	// AckNone performs no action on confirmation.
	AckNone AckIntent = iota
	// AckUpdateReachable is set on NS+EARO registrations (spec.md
	// section 4.3.6) and on NA replies. A positive MAC ack of such an
	// NS completes this node's own registration; the target NCE's state
	// is not changed, and acks of NA replies carrying it are ignored.
	AckUpdateReachable
	// AckRemoveNeighbor removes the target NCE on a negative
	// confirmation.
	AckRemoveNeighbor
	// AckNotifyAroResult delivers the EARO outcome to the RPL engine.
	AckNotifyAroResult
)

// Buffer owns an octet region plus the metadata the engines need to
// route, validate, and reply to it.
type Buffer struct {
	data []byte
	head int
	tail int

	Src  wsaddr.Addr
	Dst  wsaddr.Addr

	HopLimit      uint8
	TrafficClass  uint8
	ICMPType      uint8
	ICMPCode      uint8

	LLAddr    [8]byte
	HasLLAddr bool

	LLSecurityBypass bool
	LLMulticastRX    bool
	LLBroadcastRX    bool

	Direction Direction

	Ack       AckIntent
	AckTarget wsaddr.Addr
}

// Alloc returns a new Buffer with capacity bytes of backing storage and
// no payload yet (head == tail == capacity, so ReserveHeader can grow
// backwards without copying in the common case).
func Alloc(capacity int) (b *Buffer, ok bool) {
	if capacity < 0 {
		return nil, false
	}

	data := make([]byte, capacity)

	return &Buffer{
		data: data,
		head: capacity,
		tail: capacity,
	}, true
}

// FromBytes wraps an already-framed payload (e.g. an inbound frame
// handed up from the RCP) as a read-only-from-the-front Buffer.
func FromBytes(payload []byte) *Buffer {
	return &Buffer{
		data: payload,
		head: 0,
		tail: len(payload),
	}
}

// Bytes returns the current payload view.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}

	return b.data[b.head:b.tail]
}

// Len returns the current payload length.
func (b *Buffer) Len() int { return b.tail - b.head }

// Headroom ensures at least n spare bytes exist before the payload
// pointer, reallocating and copying if the current buffer doesn't have
// room.  It does not move the tail.
func (b *Buffer) Headroom(n int) {
	if b.head >= n {
		return
	}

	need := n - b.head
	grown := make([]byte, len(b.data)+need)
	newHead := b.head + need
	newTail := b.tail + need
	copy(grown[newHead:newTail], b.data[b.head:b.tail])

	b.data = grown
	b.head = newHead
	b.tail = newTail
}

// ReserveHeader grows the headroom by n bytes (reallocating if
// necessary) and returns a slice over the newly reserved region,
// positioned directly before the existing payload, ready for the
// caller to fill in a header.  After the call, that region is part of
// the payload.
func (b *Buffer) ReserveHeader(n int) []byte {
	b.Headroom(n)
	b.head -= n

	return b.data[b.head : b.head+n]
}

// StripHeader removes n bytes from the front of the payload, as when
// an outer header has been consumed by a lower layer.
func (b *Buffer) StripHeader(n int) {
	if n > b.Len() {
		n = b.Len()
	}

	b.head += n
}

// Turnaround swaps Src/Dst, sets Direction to down, and otherwise
// leaves metadata (hop limit, ICMP type/code, etc.) intact, ready for
// the caller to overwrite what a reply needs to change.  Used to build
// NA-from-NS and ICMPv6-error-from-offending-packet replies.
func (b *Buffer) Turnaround() {
	b.Src, b.Dst = b.Dst, b.Src
	b.Direction = DirectionDown
}

// Release marks the buffer as no longer in use.  It exists as an
// explicit hook so callers don't need to remember that "drop" and
// "release" are the same operation (spec.md section 3); it currently
// has nothing to do beyond that documentation purpose since Go buffers
// are garbage collected, but callers MUST NOT touch b after calling
// Release, matching the "flows exactly once" invariant.
func (b *Buffer) Release() {}
