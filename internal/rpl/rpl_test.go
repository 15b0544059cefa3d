package rpl_test

import (
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/mikewadsten/wisun-router/internal/rpl"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg128() rpl.ConfigOption {
	return rpl.ConfigOption{
		DIOIntervalMin:       15,
		DIOIntervalDoublings: 2,
		DIORedundancy:        0,
		DefaultLifetime:      60,
		LifetimeUnit:         60,
		MinHopRankIncrease:   128,
		MaxRankIncrease:      2048,
	}
}

// TestDIOInstallsPreferredParent is spec.md section 8 scenario S2.
func TestDIOInstallsPreferredParent(t *testing.T) {
	t.Parallel()

	eng := rpl.New(slogutil.NewDiscardLogger(), rpl.DefaultConfig())

	changes := 0
	eng.OnPrefParentChange = func(*rpl.Neighbor) { changes++ }

	daoCount := 0
	eng.OnEmitDAO = func(*rpl.Neighbor) { daoCount++ }

	ll := wsaddr.MustParse("fe80::a")
	dio := rpl.DIOBase{
		InstanceID: 0x1e,
		DODAGID:    wsaddr.MustParse("2001:db8::1"),
		Version:    1,
		Rank:       256,
		Grounded:   true,
	}

	n, ran := eng.ProcessDIO(ll, dio, cfg128(), 1.0)
	require.True(t, ran)
	require.NotNil(t, n)

	assert.Equal(t, 1, changes)
	assert.Equal(t, 1, daoCount)

	p, ok := eng.PreferredParent()
	require.True(t, ok)
	assert.True(t, p.LL.Equal(ll))
	assert.True(t, p.IsPreferredParent)

	assert.GreaterOrEqual(t, eng.OwnRank(), uint16(384))
	assert.LessOrEqual(t, eng.OwnRank(), uint16(768))
}

func TestRankIncreaseClampsToMinHop(t *testing.T) {
	t.Parallel()

	// ETX 1.0 -> step_of_rank clamps to 1 -> increase 1, clamped up to
	// min_hop_rank_increase.
	assert.Equal(t, uint16(128), rpl.RankIncrease(1.0, 128))
}

func TestParentSelectionHysteresis(t *testing.T) {
	t.Parallel()

	eng := rpl.New(slogutil.NewDiscardLogger(), rpl.DefaultConfig())

	dioA := rpl.DIOBase{Version: 1, Rank: 256}
	dioB := rpl.DIOBase{Version: 1, Rank: 256}

	llA := wsaddr.MustParse("fe80::a")
	llB := wsaddr.MustParse("fe80::b")

	eng.ProcessDIO(llA, dioA, cfg128(), 1.0)
	p, ok := eng.PreferredParent()
	require.True(t, ok)
	firstParent := p.EUI64

	// Equal path cost from B; hysteresis should keep A.
	eng.ProcessDIO(llB, dioB, cfg128(), 1.0)
	p, ok = eng.PreferredParent()
	require.True(t, ok)
	assert.Equal(t, firstParent, p.EUI64)
}

func TestParentLossDemotesAndPoisons(t *testing.T) {
	t.Parallel()

	eng := rpl.New(slogutil.NewDiscardLogger(), rpl.DefaultConfig())

	poisoned := false
	eng.OnEmitDIO = func(rank uint16) {
		if rank == rpl.InfiniteRank {
			poisoned = true
		}
	}

	cfg := cfg128()
	cfg.DefaultLifetime = 1
	cfg.LifetimeUnit = 1 // lifetime = 1s for a fast test

	ll := wsaddr.MustParse("fe80::a")
	eng.ProcessDIO(ll, rpl.DIOBase{Version: 1, Rank: 256}, cfg, 1.0)

	_, ok := eng.PreferredParent()
	require.True(t, ok)

	eng.CheckParentLoss(time.Now().Add(-2 * time.Second))

	_, ok = eng.PreferredParent()
	assert.False(t, ok)
	assert.True(t, poisoned)
	assert.Equal(t, rpl.InfiniteRank, eng.OwnRank())
}

func TestDAORetryAbandonsAfterMaxRetries(t *testing.T) {
	t.Parallel()

	cfg := rpl.DefaultConfig()
	cfg.DAOBackoffBase = 2 * time.Millisecond
	cfg.DAOBackoffCap = 8 * time.Millisecond
	cfg.MaxDAORetries = 2

	eng := rpl.New(slogutil.NewDiscardLogger(), cfg)

	ll := wsaddr.MustParse("fe80::a")
	eng.ProcessDIO(ll, rpl.DIOBase{Version: 1, Rank: 256}, cfg128(), 1.0)

	n, ok := eng.PreferredParent()
	require.True(t, ok)

	eng.EmitDAO(n)

	demoted := false
	eng.OnEmitDIO = func(rank uint16) {
		if rank == rpl.InfiniteRank {
			demoted = true
		}
	}

	for range 20 {
		time.Sleep(3 * time.Millisecond)
		eng.TickDAO()
	}

	assert.True(t, demoted)
}
