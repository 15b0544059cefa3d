package pkt_test

import (
	"testing"

	"github.com/mikewadsten/wisun-router/internal/pkt"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveHeaderGrows(t *testing.T) {
	t.Parallel()

	b, ok := pkt.Alloc(4)
	require.True(t, ok)

	payload := b.ReserveHeader(4)
	copy(payload, []byte{1, 2, 3, 4})
	assert.Equal(t, []byte{1, 2, 3, 4}, b.Bytes())

	hdr := b.ReserveHeader(8)
	copy(hdr, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22})
	assert.Equal(t, 12, b.Len())
	assert.Equal(t, byte(0xaa), b.Bytes()[0])
	assert.Equal(t, byte(1), b.Bytes()[8])
}

func TestStripHeader(t *testing.T) {
	t.Parallel()

	b := pkt.FromBytes([]byte{1, 2, 3, 4, 5})
	b.StripHeader(2)
	assert.Equal(t, []byte{3, 4, 5}, b.Bytes())

	b.StripHeader(100)
	assert.Equal(t, 0, b.Len())
}

func TestTurnaround(t *testing.T) {
	t.Parallel()

	b := pkt.FromBytes([]byte{1})
	b.Src = wsaddr.MustParse("fe80::1")
	b.Dst = wsaddr.MustParse("fe80::2")
	b.Direction = pkt.DirectionUp

	b.Turnaround()

	assert.True(t, b.Src.Equal(wsaddr.MustParse("fe80::2")))
	assert.True(t, b.Dst.Equal(wsaddr.MustParse("fe80::1")))
	assert.Equal(t, pkt.DirectionDown, b.Direction)
}

func TestAllocNegativeCapacity(t *testing.T) {
	t.Parallel()

	_, ok := pkt.Alloc(-1)
	assert.False(t, ok)
}
