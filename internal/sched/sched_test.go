package sched_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/mikewadsten/wisun-router/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmTimerRearmIsIdempotent(t *testing.T) {
	t.Parallel()

	s := sched.New(slogutil.NewDiscardLogger())

	fired := 0
	cb := func() { fired++ }

	h1 := s.ArmTimer("grp", "key", time.Now().Add(time.Hour), cb)
	h2 := s.ArmTimer("grp", "key", time.Now().Add(2*time.Hour), cb)

	assert.NotEqual(t, h1, h2)

	// Canceling the stale first handle must be a no-op (it was already
	// replaced by the rearm).
	s.Cancel(h1)
	s.Cancel(h2)
}

func TestPriorityOrderTimerBeforeLowerPriorityFD(t *testing.T) {
	t.Parallel()

	s := sched.New(slogutil.NewDiscardLogger())

	fired := false
	s.ArmTimer("g", "k", time.Now().Add(-time.Second), func() { fired = true })

	// The fixed order of the Priority constants (RCP > timer > TUN >
	// RPL > DHCP > mgmt) is checked here; a full Run() integration with
	// a real pollable fd is TestRunFiresDueTimersBeforeHigherPriorityFD.
	assert.Less(t, int(sched.PriorityTimer), int(sched.PriorityMgmt))
	assert.Less(t, int(sched.PriorityRCP), int(sched.PriorityTimer))
	assert.False(t, fired) // not fired until Run dispatches it
}

// TestRunFiresDueTimersBeforeHigherPriorityFD exercises spec.md section
// 4.5 step 3: every expired timer runs before any ready fd callback
// this tick, even one registered at PriorityRCP (0), the highest fd
// priority there is.
func TestRunFiresDueTimersBeforeHigherPriorityFD(t *testing.T) {
	t.Parallel()

	s := sched.New(slogutil.NewDiscardLogger())

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = w.Write([]byte{0})
	require.NoError(t, err)

	var order []string

	s.ArmTimer("g", "k", time.Now().Add(-time.Second), func() {
		order = append(order, "timer")
	})
	s.RegisterFD(int32(r.Fd()), sched.PriorityRCP, func() {
		order = append(order, "rcp-fd")

		var buf [1]byte
		_, _ = r.Read(buf[:])
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NotEmpty(t, order)
	assert.Equal(t, "timer", order[0])
}
