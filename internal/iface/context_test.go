package iface_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRun_NoLeakedGoroutines exercises SPEC_FULL.md section 5.1's
// goroutine-boundary claim: Run's scheduler loop, NS/NA/DIO/DAO
// dispatch, and timer rearming never spawn a goroutine of their own.
// The only exception is the short-lived DHCPv6 request goroutine
// [Context.onPrefParentChange] spawns, which exits once
// RequestAddress returns — by the time Run itself returns, it should
// already be gone.
func TestRun_NoLeakedGoroutines(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(t, nil)

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
}
