package rpl

import (
	"time"

	"github.com/mikewadsten/wisun-router/internal/icmpv6"
	"github.com/mikewadsten/wisun-router/internal/wsaddr"
)

// registration is a downstream node's address registration, tracked so
// its Target option can be included in this node's own DAO to the
// preferred parent (non-storing MOP, spec.md section 4.4.3).
type registration struct {
	EUI64   [8]byte
	Expires time.Time
}

// Registrar implements [icmpv6.Registrar] against the RPL engine: in
// non-storing MOP a downstream registration must be reachable from the
// root, which means it is only safely acknowledged once this node has
// a preferred parent to advertise it through (spec.md section 4.3.2's
// DEFER verdict; section 4.4.3's Target-option propagation).
type Registrar struct {
	e    *Engine
	now  func() time.Time
	regs map[[8]byte]registration

	// OnNewRegistration fires for every accepted registration with a
	// non-zero lifetime, new or refreshed, passing the link-local
	// address derived from the registrant's EUI-64, so the caller can
	// fold it into the next DAO's Target options.
	OnNewRegistration func(addr wsaddr.Addr, eui64 [8]byte, lifetime time.Duration)
}

// NewRegistrar returns a Registrar bound to e.
func NewRegistrar(e *Engine) *Registrar {
	return &Registrar{
		e:    e,
		now:  time.Now,
		regs: make(map[[8]byte]registration),
	}
}

// Register implements [icmpv6.Registrar].
func (r *Registrar) Register(eui64 [8]byte, earo icmpv6.EARO) (icmpv6.RegistrationVerdict, icmpv6.EARO) {
	if _, ok := r.e.PreferredParent(); !ok {
		// Nothing to advertise this registration through yet; the
		// caller must wait rather than falsely claim success.
		return icmpv6.Defer, icmpv6.EARO{}
	}

	reply := earo
	reply.Status = icmpv6.EAROStatusSuccess

	if earo.Lifetime == 0 {
		delete(r.regs, eui64)

		return icmpv6.ReplyWithEARO, reply
	}

	r.regs[eui64] = registration{
		EUI64:   eui64,
		Expires: r.now().Add(earo.LifetimeDuration()),
	}

	if r.OnNewRegistration != nil {
		r.OnNewRegistration(wsaddr.LinkLocalFromEUI64(eui64), eui64, earo.LifetimeDuration())
	}

	return icmpv6.ReplyWithEARO, reply
}

// Expire drops registrations whose lifetime has elapsed; call
// periodically from the scheduler.
func (r *Registrar) Expire() {
	now := r.now()
	for k, reg := range r.regs {
		if !now.Before(reg.Expires) {
			delete(r.regs, k)
		}
	}
}
