package wsaddr_test

import (
	"testing"

	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		addr        string
		multicast   bool
		linkLocal   bool
		unspecified bool
	}{{
		name:      "multicast",
		addr:      "ff02::1",
		multicast: true,
	}, {
		name:      "link_local",
		addr:      "fe80::1",
		linkLocal: true,
	}, {
		name:        "unspecified",
		addr:        "::",
		unspecified: true,
	}, {
		name: "global",
		addr: "2001:db8::1",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := wsaddr.MustParse(tc.addr)
			assert.Equal(t, tc.multicast, a.IsMulticast())
			assert.Equal(t, tc.linkLocal, a.IsLinkLocal())
			assert.Equal(t, tc.unspecified, a.IsUnspecified())
		})
	}
}

func TestEUI64RoundTrip(t *testing.T) {
	t.Parallel()

	eui64 := [8]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	ll := wsaddr.LinkLocalFromEUI64(eui64)

	require.True(t, ll.IsLinkLocal())

	got, ok := ll.EUI64()
	require.True(t, ok)
	assert.Equal(t, eui64, got)
}

func TestSolicitedNodeMulticast(t *testing.T) {
	t.Parallel()

	a := wsaddr.MustParse("fe80::1:2:3:4")
	sn := a.SolicitedNodeMulticast()

	assert.True(t, sn.IsSolicitedNodeMulticast())
	assert.Equal(t, "ff02::1:ff03:4", sn.String())
}
