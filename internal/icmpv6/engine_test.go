package icmpv6_test

import (
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/mikewadsten/wisun-router/internal/icmpv6"
	"github.com/mikewadsten/wisun-router/internal/ncache"
	"github.com/mikewadsten/wisun-router/internal/pkt"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAddrs implements [icmpv6.AddressSource] for a single link-local
// address and no others, matching the router in scenario S1.
type fakeAddrs struct {
	ll wsaddr.Addr
}

func (f fakeAddrs) Owns(a wsaddr.Addr) bool { return a.Equal(f.ll) }
func (f fakeAddrs) LinkLocal() wsaddr.Addr  { return f.ll }

// successRegistrar always grants the registration with SUCCESS,
// echoing the caller's EARO.
type successRegistrar struct{}

func (successRegistrar) Register(_ [8]byte, earo icmpv6.EARO) (icmpv6.RegistrationVerdict, icmpv6.EARO) {
	earo.Status = icmpv6.EAROStatusSuccess

	return icmpv6.ReplyWithEARO, earo
}

func TestHandleNS_EARORegistration(t *testing.T) {
	t.Parallel()

	ll := wsaddr.MustParse("fe80::2")
	cache := ncache.New(slogutil.NewDiscardLogger(), ncache.DefaultConfig())
	eng := icmpv6.NewEngine(slogutil.NewDiscardLogger(), cache, fakeAddrs{ll: ll}, successRegistrar{})

	ns := icmpv6.NS{
		Target: ll,
		HasEARO: true,
		EARO: icmpv6.EARO{
			Status:   icmpv6.EAROStatusSuccess,
			Lifetime: 3600,
			EUI64:    [8]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77},
		},
	}

	in := pkt.FromBytes(ns.Build())
	in.Src = wsaddr.MustParse("fe80::1")
	in.Dst = wsaddr.MustParse("fe80::1").SolicitedNodeMulticast()
	in.HopLimit = 255

	out, send := eng.HandleNS(in, ns)
	require.True(t, send)
	require.NotNil(t, out)

	assert.True(t, out.Dst.Equal(wsaddr.MustParse("fe80::1")))
	assert.Equal(t, uint8(icmpv6.TypeNeighborAdvert), out.ICMPType)
	assert.Equal(t, uint8(255), out.HopLimit)

	na, err := icmpv6.ParseNA(out.Bytes())
	require.NoError(t, err)

	assert.True(t, na.Router)
	assert.True(t, na.Solicited)
	assert.True(t, na.Override)
	assert.True(t, na.Target.Equal(ll))
	require.True(t, na.HasEARO)
	assert.Equal(t, icmpv6.EAROStatusSuccess, na.EARO.Status)
	assert.EqualValues(t, 3600, na.EARO.Lifetime)
	assert.Equal(t, [8]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}, na.EARO.EUI64)
}

func TestHandleNA_MulticastWithSolicitedDrop(t *testing.T) {
	t.Parallel()

	ll := wsaddr.MustParse("fe80::2")
	cache := ncache.New(slogutil.NewDiscardLogger(), ncache.DefaultConfig())
	peer := wsaddr.MustParse("fe80::1")
	cache.UpdateUnsolicited(peer, [8]byte{1})

	eng := icmpv6.NewEngine(slogutil.NewDiscardLogger(), cache, fakeAddrs{ll: ll}, nil)

	na := icmpv6.NA{Solicited: true, Target: peer}
	in := pkt.FromBytes(na.Build())
	in.Src = peer
	in.Dst = wsaddr.MustParse("ff02::1")

	before, ok := cache.Lookup(peer)
	require.True(t, ok)
	beforeCopy := *before

	eng.HandleNA(in, na)

	after, ok := cache.Lookup(peer)
	require.True(t, ok)
	assert.Equal(t, beforeCopy, *after)
}

func TestBuildError_TokenBucketBound(t *testing.T) {
	t.Parallel()

	ll := wsaddr.MustParse("fe80::2")
	cache := ncache.New(slogutil.NewDiscardLogger(), ncache.DefaultConfig())
	eng := icmpv6.NewEngine(slogutil.NewDiscardLogger(), cache, fakeAddrs{ll: ll}, nil)

	sent := 0
	for range 30 {
		offending := pkt.FromBytes([]byte{0x11, 0x00, 0x00, 0x00})
		offending.Src = wsaddr.MustParse("fe80::9")
		offending.Dst = ll
		offending.ICMPType = 0 // not an ICMPv6 error

		_, ok := eng.BuildError(icmpv6.TypeParamProblem, icmpv6.CodeUnrecognizedOpt, 0, offending)
		if ok {
			sent++
		}
	}

	assert.LessOrEqual(t, sent, 10)
	assert.GreaterOrEqual(t, sent, 1)
}

func TestBuildError_NeverRepliesToICMPv6Error(t *testing.T) {
	t.Parallel()

	ll := wsaddr.MustParse("fe80::2")
	cache := ncache.New(slogutil.NewDiscardLogger(), ncache.DefaultConfig())
	eng := icmpv6.NewEngine(slogutil.NewDiscardLogger(), cache, fakeAddrs{ll: ll}, nil)

	offending := pkt.FromBytes([]byte{0x11, 0x00, 0x00, 0x00})
	offending.Src = wsaddr.MustParse("fe80::9")
	offending.Dst = ll
	offending.ICMPType = icmpv6.TypeDestUnreachable

	_, ok := eng.BuildError(icmpv6.TypeParamProblem, icmpv6.CodeUnrecognizedOpt, 0, offending)
	assert.False(t, ok)
}

func TestBuildNS_DADUsesUnspecifiedSource(t *testing.T) {
	t.Parallel()

	ll := wsaddr.MustParse("fe80::2")
	cache := ncache.New(slogutil.NewDiscardLogger(), ncache.DefaultConfig())
	eng := icmpv6.NewEngine(slogutil.NewDiscardLogger(), cache, fakeAddrs{ll: ll}, nil)

	target := wsaddr.MustParse("fe80::3")
	out := eng.BuildNS(target, wsaddr.Addr{}, true, nil)

	assert.True(t, out.Src.IsUnspecified())
	assert.True(t, out.Dst.Equal(target.SolicitedNodeMulticast()))
}
