package rpl

import (
	"math/rand/v2"
	"time"
)

// Trickle implements the RFC 6206 Trickle algorithm: a timer doubling
// its interval up to Imax doublings unless enough "consistent"
// transmissions are heard, restarted at Imin by [Trickle.Reset].
// Nothing in [Engine] or internal/iface drives a Trickle: DIO
// transmission is not paced or suppressed by it, and nothing resets
// it on a rank change or DODAG version bump.
type Trickle struct {
	iMin time.Duration
	iMax int // doublings
	k    int // redundancy constant

	now func() time.Time

	interval time.Duration
	start    time.Time
	fireAt   time.Time
	count    int
}

// NewTrickle builds a Trickle timer from a DIO's Configuration option
// fields (spec.md section 3: dio_interval_min is a doublings-of-ms
// exponent per RFC 6550 section 6.7.6).
func NewTrickle(cfg ConfigOption) *Trickle {
	now := time.Now
	iMin := time.Duration(1<<cfg.DIOIntervalMin) * time.Millisecond

	t := &Trickle{
		iMin: iMin,
		iMax: int(cfg.DIOIntervalDoublings),
		k:    int(cfg.DIORedundancy),
		now:  now,
	}

	t.resetLocked()

	return t
}

func (t *Trickle) resetLocked() {
	t.interval = t.iMin
	t.start = t.now()
	t.count = 0
	t.armFireAt()
}

// armFireAt schedules the random point in [I/2, I) within the current
// interval at which we decide whether to transmit (RFC 6206 section
// 4.2).
func (t *Trickle) armFireAt() {
	half := t.interval / 2
	jitter := time.Duration(rand.Int64N(max(int64(half), 1)))
	t.fireAt = t.start.Add(half + jitter)
}

// Reset restarts the timer at Imin, RFC 6206 section 6's response to
// an observed "inconsistency".
func (t *Trickle) Reset() { t.resetLocked() }

// HeardConsistent increments the redundancy counter c (RFC 6206
// section 4.2): a DIO consistent with our own current state was
// heard.
func (t *Trickle) HeardConsistent() { t.count++ }

// ShouldTransmit reports whether, given the current time, this
// Trickle instance's transmission point has arrived and k wasn't
// exceeded (RFC 6206 section 4.2/step 4); it also rolls the interval
// over to the next doubling if the full interval elapsed, matching
// RFC 6206 section 4.4.
func (t *Trickle) ShouldTransmit() bool {
	now := t.now()

	intervalEnd := t.start.Add(t.interval)
	if !now.Before(intervalEnd) {
		t.doubleLocked()

		return false
	}

	if now.Before(t.fireAt) {
		return false
	}

	fire := t.count < t.k || t.k == 0
	// Consume the decision point; don't fire again until the next
	// doubling or an explicit Reset.
	t.fireAt = intervalEnd

	return fire
}

func (t *Trickle) doubleLocked() {
	maxInterval := t.iMin << t.iMax
	next := t.interval * 2
	if next > maxInterval {
		next = maxInterval
	}

	t.interval = next
	t.start = t.now()
	t.count = 0
	t.armFireAt()
}
