package iface

import (
	"context"
	"net/netip"
	"time"

	"github.com/mikewadsten/wisun-router/internal/icmpv6"
	"github.com/mikewadsten/wisun-router/internal/rpl"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// BootState is one state of the attach/address/register state
// machine spec.md section 9 asks for in place of the source's
// coroutine-shaped DHCPv6-acquire -> ARO-register -> DAO-emit
// callback nesting.
type BootState uint8

// BootState values, in the order spec.md section 9 names them.
const (
	Booting BootState = iota
	AttachingParent
	AddressAcquiring
	Registering
	Registered
)

// String implements [fmt.Stringer].
func (s BootState) String() string {
	switch s {
	case Booting:
		return "Booting"
	case AttachingParent:
		return "AttachingParent"
	case AddressAcquiring:
		return "AddressAcquiring"
	case Registering:
		return "Registering"
	case Registered:
		return "Registered"
	default:
		return "Unknown"
	}
}

// AddressSource is the DHCPv6 collaborator contract (SPEC_FULL.md
// section 6.2): request a global address out of prefix, and learn of
// its assignment through a channel rather than spec.md section 9's
// racy "usleep(100000)" workaround — this Context blocks on
// AddressAssigned before progressing AddressAcquiring -> Registering,
// which is the explicit redesign spec.md section 9 calls for.
type AddressSource interface {
	RequestAddress(ctx context.Context, prefix netip.Prefix) (netip.Addr, error)
	AddressAssigned() <-chan netip.Addr
}

// FakeAddressSource is a test/no-collaborator [AddressSource]:
// RequestAddress immediately pushes Addr (if set) onto the assigned
// channel, mirroring [rcp.Fake]'s "every request succeeds" shape.
type FakeAddressSource struct {
	Addr    netip.Addr
	assigns chan netip.Addr

	// FailNext, if non-nil, is returned (and cleared) by the next
	// RequestAddress call.
	FailNext error
}

// NewFakeAddressSource returns a FakeAddressSource that will hand out
// addr once RequestAddress is called.
func NewFakeAddressSource(addr netip.Addr) *FakeAddressSource {
	return &FakeAddressSource{Addr: addr, assigns: make(chan netip.Addr, 1)}
}

// RequestAddress implements [AddressSource].
func (f *FakeAddressSource) RequestAddress(context.Context, netip.Prefix) (netip.Addr, error) {
	if f.FailNext != nil {
		err := f.FailNext
		f.FailNext = nil

		return netip.Addr{}, err
	}

	f.assigns <- f.Addr

	return f.Addr, nil
}

// AddressAssigned implements [AddressSource].
func (f *FakeAddressSource) AddressAssigned() <-chan netip.Addr { return f.assigns }

// bootMachine drives [Context] through Booting -> AttachingParent ->
// AddressAcquiring -> Registering -> Registered, transitions fired by
// scheduler events (a preferred-parent change, an address assignment,
// a registration NA).
type bootMachine struct {
	c     *Context
	state BootState

	parent *rpl.Neighbor
}

func newBootMachine(c *Context) *bootMachine {
	return &bootMachine{c: c, state: Booting}
}

// onPrefParentChange is [rpl.Engine.OnPrefParentChange]: spec.md
// section 4.4.2's callback a DHCPv6 client outside the core consumes
// to (re)request an address. Here, the DHCPv6 collaborator is
// [Context.addrSource], driven explicitly instead of through a nested
// callback (spec.md section 9, "Coroutine-shaped code").
func (c *Context) onPrefParentChange(n *rpl.Neighbor) {
	c.boot.parent = n

	if c.mgmt != nil {
		c.mgmt.NotifyPrimaryParent(PrimaryParentEvent{EUI64: n.EUI64})
	}

	if c.boot.state == Booting || c.boot.state == Registered {
		c.boot.state = AttachingParent
	}

	c.boot.state = AddressAcquiring

	if c.addrSource == nil {
		return
	}

	prefix := netip.PrefixFrom(n.DIO.DODAGID.NetIP(), 64)

	go func() {
		_, err := c.addrSource.RequestAddress(context.Background(), prefix)
		if err != nil {
			c.log.Warn("dhcpv6 address request failed", "error", err)
		}
	}()
}

// onEmitDIO is [rpl.Engine.OnEmitDIO]: log the rank and hand it to
// sendDIO (rplio.go), which frames the DIO and submits it to the RCP
// bus as a broadcast.
func (c *Context) onEmitDIO(rank uint16) {
	c.log.Debug("emitting DIO", "rank", rank)

	c.sendDIO(rank)
}

// onEmitDAO is [rpl.Engine.OnEmitDAO]: unicast a DAO to n advertising
// our owned prefixes (spec.md section 4.4.3).
func (c *Context) onEmitDAO(n *rpl.Neighbor) {
	c.sendDAO(n)
}

// pollAddressAssignment is called from a scheduler timer (armed by
// armBootTimers) to notice a completed DHCPv6 acquisition without
// blocking the single event-loop goroutine.
func (c *Context) pollAddressAssignment() {
	if c.addrSource == nil {
		return
	}

	select {
	case addr, ok := <-c.addrSource.AddressAssigned():
		if !ok {
			return
		}

		c.onAddressAssigned(addr)
	default:
	}
}

func (c *Context) onAddressAssigned(addr netip.Addr) {
	a16 := addr.As16()

	global, err := wsaddr.FromSlice(a16[:])
	if err != nil {
		c.log.Warn("invalid assigned address", "error", err)

		return
	}

	c.globalAddr = global
	c.hasGlobal = true
	c.boot.state = Registering

	p, ok := c.rpl.PreferredParent()
	if !ok {
		return
	}

	c.registerWithParent(p)
}

// registerWithParent sends NS+EARO SUCCESS for our newly-acquired
// global address to the preferred parent (spec.md section 4.4.2),
// using the lifetime carried by the DIO's Configuration option.
func (c *Context) registerWithParent(p *rpl.Neighbor) {
	eui64 := c.eui64
	lifetimeMinutes := uint16(p.Config.LifetimeDuration() / time.Minute)

	earo := icmpv6.EARO{
		Status:   icmpv6.EAROStatusSuccess,
		Lifetime: lifetimeMinutes,
		EUI64:    eui64,
	}

	c.transmit(c.newRegistrationNS(p.LL, earo))
}

// onRegistrationConfirmed is invoked by the scheduler's MAC-
// confirmation handler ([pkt.AckUpdateReachable]) once the NS+EARO
// registration above is ack'd; per spec.md section 4.3.6, the MAC ACK
// itself is sufficient confirmation, no matching NA is required.
func (c *Context) onRegistrationConfirmed() {
	if c.boot.state != Registering {
		return
	}

	c.boot.state = Registered

	if p, ok := c.rpl.PreferredParent(); ok {
		c.rpl.EmitDAO(p)
	}
}

// armBootTimers registers the periodic scheduler work the boot machine
// and steady-state operation need: neighbor cache tick, DAO retry
// tick, downstream-route expiry, and DHCPv6 assignment poll. Each
// reschedules itself, matching the idempotent-rearm contract
// [sched.Scheduler] provides.
func (c *Context) armBootTimers() {
	const tick = time.Second

	var armNCache func()
	armNCache = func() {
		c.cache.Tick()
		c.sched.ArmTimer("ncache", "tick", time.Now().Add(tick), armNCache)
	}
	armNCache()

	var armDAO func()
	armDAO = func() {
		c.rpl.TickDAO()
		c.sched.ArmTimer("rpl", "dao-tick", time.Now().Add(tick), armDAO)
	}
	armDAO()

	var armReg func()
	armReg = func() {
		c.reg.Expire()
		c.sched.ArmTimer("rpl", "reg-expire", time.Now().Add(tick), armReg)
	}
	armReg()

	// Downstream DAO-target registrations this node holds as a
	// non-storing-MOP parent (spec.md section 4.4.3) expire on the same
	// tick as its own registrar entries, so a departed child's Target
	// stops being advertised in this node's own DAOs once its
	// default_lifetime × lifetime_unit elapses.
	var armRoutes func()
	armRoutes = func() {
		c.routes.Expire()
		c.sched.ArmTimer("rpl", "routes-expire", time.Now().Add(tick), armRoutes)
	}
	armRoutes()

	var armAddr func()
	armAddr = func() {
		c.pollAddressAssignment()
		c.sched.ArmTimer("dhcp", "assign-poll", time.Now().Add(tick), armAddr)
	}
	armAddr()

	var armDIS func()
	armDIS = func() {
		c.sendDIS()
		c.sched.ArmTimer("rpl", "dis", time.Now().Add(c.disInterval()), armDIS)
	}
	armDIS()
}

// disInterval paces DIS emission at Imin of the RPL configuration the
// preferred parent last advertised, or a conservative default before
// any DIO has ever been heard (spec.md section 4.4.4 / SPEC_FULL.md
// section 4.4.1).
func (c *Context) disInterval() time.Duration {
	const defaultDISInterval = 15 * time.Second

	p, ok := c.rpl.PreferredParent()
	if !ok || p.Config.DIOIntervalMin == 0 {
		return defaultDISInterval
	}

	return time.Duration(1<<p.Config.DIOIntervalMin) * time.Millisecond
}

// sendDIS emits a DIS if we have no preferred parent yet (spec.md
// section 4.4.1 supplement / SPEC_FULL.md section 4.4.1).
func (c *Context) sendDIS() {
	if !c.rpl.ShouldEmitDIS() {
		return
	}

	c.transmit(c.newRPLBuffer(rpl.BuildDIS(), allRPLNodesMulticast))
}
