package iface_test

import (
	"testing"
	"time"

	"github.com/mikewadsten/wisun-router/internal/iface"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/stretchr/testify/assert"
)

func TestRoutingTable_ExpireDropsElapsedDownstreamRoutes(t *testing.T) {
	t.Parallel()

	rt := iface.NewRoutingTable()
	addr := wsaddr.MustParse("2001:db8::1")
	eui64 := [8]byte{0x02, 0, 0, 0, 0, 0, 0, 0x02}

	rt.AddDownstream(addr, eui64, 10*time.Millisecond)
	assert.Equal(t, 1, rt.Len())

	time.Sleep(20 * time.Millisecond)
	rt.Expire()

	assert.Equal(t, 0, rt.Len())
}

func TestRoutingTable_ExpireKeepsLiveDownstreamRoutes(t *testing.T) {
	t.Parallel()

	rt := iface.NewRoutingTable()
	addr := wsaddr.MustParse("2001:db8::1")
	eui64 := [8]byte{0x02, 0, 0, 0, 0, 0, 0, 0x02}

	rt.AddDownstream(addr, eui64, time.Hour)
	rt.Expire()

	assert.Equal(t, 1, rt.Len())
}
