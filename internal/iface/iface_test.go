package iface_test

import (
	"context"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/mikewadsten/wisun-router/internal/iface"
	"github.com/mikewadsten/wisun-router/internal/ncache"
	"github.com/mikewadsten/wisun-router/internal/rcp"
	"github.com/mikewadsten/wisun-router/internal/rpl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ourEUI64 = [8]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}

func newTestContext(t *testing.T, addrSrc iface.AddressSource) (*iface.Context, *rcp.Fake) {
	t.Helper()

	bus := &rcp.Fake{}
	c := iface.New(
		slogutil.NewDiscardLogger(),
		iface.Config{
			EUI64:       ourEUI64,
			PANID:       0x1234,
			NetworkName: "test-network",
			NCache:      ncache.DefaultConfig(),
			RPL:         rpl.DefaultConfig(),
		},
		bus,
		addrSrc,
		iface.NewNoopManagement(),
	)

	return c, bus
}

func TestNew_BootsAtBootingWithLinkLocal(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(t, nil)

	assert.Equal(t, iface.Booting, c.BootState())
	assert.True(t, c.LinkLocal().IsLinkLocal())
	assert.True(t, c.Owns(c.LinkLocal()))
	_, hasGlobal := c.GlobalAddress()
	assert.False(t, hasGlobal)
}

func TestHandleResetInd_FatalOnOldAPI(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(t, nil)

	var fatalErr error
	c.OnFatal = func(err error) { fatalErr = err }

	c.HandleResetInd(rcp.ResetInd{VersionFW: "1.0.0", VersionAPI: "1.9.9"})

	require.Error(t, fatalErr)
}

func TestHandleResetInd_AcceptsCurrentAPI(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(t, nil)

	var fatalErr error
	c.OnFatal = func(err error) { fatalErr = err }

	c.HandleResetInd(rcp.ResetInd{VersionFW: "1.0.0", VersionAPI: rcp.MinAPIVersion})

	require.NoError(t, fatalErr)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
