package iface

import "context"

// Run arms the periodic boot-machine timers and drives the scheduler
// until ctx is canceled (spec.md section 5/9: this is the single
// event-loop goroutine; every callback above runs on it, so none of
// the collaborator types need synchronization beyond what they already
// carry, e.g. [ncache.Cache]'s token-bucket mutex).
//
// Run returns ctx.Err() on cancellation, matching [sched.Scheduler.Run].
func (c *Context) Run(ctx context.Context) error {
	c.armBootTimers()

	return c.sched.Run(ctx)
}
