package iface

import (
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/mikewadsten/wisun-router/internal/ncache"
	"github.com/mikewadsten/wisun-router/internal/rcp"
	"github.com/mikewadsten/wisun-router/internal/rpl"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfigOption() rpl.ConfigOption {
	return rpl.ConfigOption{
		DIOIntervalMin:       15,
		DIOIntervalDoublings: 2,
		DefaultLifetime:      60,
		LifetimeUnit:         60,
		MinHopRankIncrease:   128,
		MaxRankIncrease:      2048,
	}
}

// TestFullAttach drives Booting -> AttachingParent -> AddressAcquiring
// -> Registering -> Registered (spec.md section 9) one step at a time
// on a single goroutine, the same invariant [Context.Run] relies on: a
// DIO installs a preferred parent, the fake DHCPv6 collaborator hands
// out a global address, the NS+EARO registration goes out over the
// fake bus, and its simulated MAC ack confirms registration.
func TestFullAttach(t *testing.T) {
	t.Parallel()

	assignedAddr := netip.MustParseAddr("2001:db8::1:1")
	addrSrc := NewFakeAddressSource(assignedAddr)

	bus := &rcp.Fake{}
	c := New(
		slogutil.NewDiscardLogger(),
		Config{
			EUI64:       [8]byte{0x02, 0, 0, 0, 0, 0, 0, 1},
			PANID:       0x1234,
			NetworkName: "test-network",
			NCache:      ncache.DefaultConfig(),
			RPL:         rpl.DefaultConfig(),
		},
		bus,
		addrSrc,
		NewNoopManagement(),
	)

	require.Equal(t, Booting, c.BootState())

	parentLL := wsaddr.MustParse("fe80::a")
	dio := rpl.DIOBase{
		InstanceID: 0x1e,
		DODAGID:    wsaddr.MustParse("2001:db8::1"),
		Version:    1,
		Rank:       256,
		Grounded:   true,
	}

	_, ran := c.rpl.ProcessDIO(parentLL, dio, testConfigOption(), 1.0)
	require.True(t, ran)
	require.Equal(t, AddressAcquiring, c.BootState())

	require.Eventually(t, func() bool {
		c.pollAddressAssignment()

		return c.BootState() == Registering
	}, time.Second, time.Millisecond)

	global, ok := c.GlobalAddress()
	require.True(t, ok)
	assert.Equal(t, assignedAddr, global.NetIP())

	require.NotEmpty(t, bus.Sent)

	lastHandle := rcp.TxHandle(len(bus.Sent) - 1)
	c.HandleTxCnf(rcp.TxCnf{Handle: lastHandle, Status: rcp.TxSuccess})

	assert.Equal(t, Registered, c.BootState())
}

func TestOnPrefParentChange_NotifiesManagement(t *testing.T) {
	t.Parallel()

	bus := &rcp.Fake{}
	c := New(
		slogutil.NewDiscardLogger(),
		Config{
			EUI64:       [8]byte{0x02, 0, 0, 0, 0, 0, 0, 1},
			PANID:       0x1234,
			NetworkName: "test-network",
			NCache:      ncache.DefaultConfig(),
			RPL:         rpl.DefaultConfig(),
		},
		bus,
		nil,
		NewNoopManagement(),
	)

	events := c.mgmt.Subscribe()

	parentLL := wsaddr.MustParse("fe80::a")
	wantEUI64, ok := parentLL.EUI64()
	require.True(t, ok)

	dio := rpl.DIOBase{Version: 1, Rank: 256, Grounded: true, DODAGID: wsaddr.MustParse("2001:db8::1")}

	_, ran := c.rpl.ProcessDIO(parentLL, dio, testConfigOption(), 1.0)
	require.True(t, ran)

	select {
	case ev := <-events:
		assert.Equal(t, wantEUI64, ev.EUI64)
	default:
		t.Fatal("expected a PrimaryParentEvent to be published")
	}
}

func TestDisInterval_DefaultsBeforeAnyParent(t *testing.T) {
	t.Parallel()

	bus := &rcp.Fake{}
	c := New(
		slogutil.NewDiscardLogger(),
		Config{
			EUI64:  [8]byte{0x02, 0, 0, 0, 0, 0, 0, 1},
			NCache: ncache.DefaultConfig(),
			RPL:    rpl.DefaultConfig(),
		},
		bus,
		nil,
		NewNoopManagement(),
	)

	assert.Equal(t, 15*time.Second, c.disInterval())
}
