// Package sched implements the event scheduler (spec.md section 4.5,
// L5): a monotonic deadline priority queue plus file-descriptor
// readiness multiplexing behind a single dispatch loop. Due timers run
// first in each tick; ready fds then run in a fixed priority order
// (RCP > timer > TUN > RPL > DHCP > mgmt, SPEC_FULL.md section 4.5.1).
//
// Built on stdlib container/heap (no timer-wheel/heap library appears
// anywhere in the retrieval pack; see DESIGN.md) and
// golang.org/x/sys/unix's poll for fd readiness, the same
// OS-multiplexing dependency AdGuardHome's internal/sysutil package
// uses for analogous concerns.
package sched

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// Priority fixes the dispatch order of ready fd callbacks (SPEC_FULL.md
// section 4.5.1): lower values run first within a tick. Due timers
// always run before any fd callback, whatever the fd's priority.
type Priority int

// Priority values, in the mandated order.
const (
	PriorityRCP Priority = iota
	PriorityTimer
	PriorityTUN
	PriorityRPL
	PriorityDHCP
	PriorityMgmt
)

// Handle identifies an armed timer, returned by [Scheduler.ArmTimer]
// and accepted by [Scheduler.Cancel].
type Handle int

type timerEntry struct {
	deadline time.Time
	group    string
	key      string
	cb       func()
	handle   Handle
	index    int // heap index, maintained by container/heap
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]

	return e
}

type fdReg struct {
	fd         int32
	priority   Priority
	onReadable func()
}

// Scheduler is the L5 event scheduler. The zero value is not usable;
// use [New].
type Scheduler struct {
	log *slog.Logger

	heap      timerHeap
	byHandle  map[Handle]*timerEntry
	byGroupKey map[string]Handle
	nextHandle Handle

	fds []fdReg

	now func() time.Time
}

// New returns an empty Scheduler.
func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:        log,
		byHandle:   make(map[Handle]*timerEntry),
		byGroupKey: make(map[string]Handle),
		now:        time.Now,
	}
}

func groupKeyID(group, key string) string { return group + "\x00" + key }

// ArmTimer schedules cb to run at deadline, tagged with (group, key).
// Arming the same (group, key) pair again idempotently replaces the
// previous timer (component table: "idempotent arm/rearm/cancel").
func (s *Scheduler) ArmTimer(group, key string, deadline time.Time, cb func()) Handle {
	s.cancelGroupKey(group, key)

	s.nextHandle++
	h := s.nextHandle

	e := &timerEntry{deadline: deadline, group: group, key: key, cb: cb, handle: h}
	heap.Push(&s.heap, e)
	s.byHandle[h] = e
	s.byGroupKey[groupKeyID(group, key)] = h

	return h
}

// Cancel removes an armed timer; canceling an already-fired or unknown
// handle is a no-op.
func (s *Scheduler) Cancel(h Handle) {
	e, ok := s.byHandle[h]
	if !ok {
		return
	}

	s.removeEntry(e)
}

func (s *Scheduler) cancelGroupKey(group, key string) {
	id := groupKeyID(group, key)
	if h, ok := s.byGroupKey[id]; ok {
		if e, ok := s.byHandle[h]; ok {
			s.removeEntry(e)
		}
	}
}

func (s *Scheduler) removeEntry(e *timerEntry) {
	if e.index >= 0 && e.index < len(s.heap) && s.heap[e.index] == e {
		heap.Remove(&s.heap, e.index)
	}

	delete(s.byHandle, e.handle)
	delete(s.byGroupKey, groupKeyID(e.group, e.key))
}

// RegisterFD adds fd to the readiness set polled by [Scheduler.Run],
// dispatched at priority when readable.
func (s *Scheduler) RegisterFD(fd int32, priority Priority, onReadable func()) {
	s.fds = append(s.fds, fdReg{fd: fd, priority: priority, onReadable: onReadable})
}

// pendingEvent is one dispatch-ready callback for this tick, ordered
// by priority before being run.
type pendingEvent struct {
	priority Priority
	run      func()
}

// popDueTimers removes and returns every timer entry whose deadline
// has passed, each wrapped as a PriorityTimer event.
func (s *Scheduler) popDueTimers(now time.Time) []pendingEvent {
	var due []pendingEvent

	for len(s.heap) > 0 && !s.heap[0].deadline.After(now) {
		e := heap.Pop(&s.heap).(*timerEntry)
		delete(s.byHandle, e.handle)
		delete(s.byGroupKey, groupKeyID(e.group, e.key))

		cb := e.cb
		due = append(due, pendingEvent{priority: PriorityTimer, run: cb})
	}

	return due
}

// nextTimeout returns how long until the next timer fires, capped at
// max, or max if there are no armed timers.
func (s *Scheduler) nextTimeout(now time.Time, max time.Duration) time.Duration {
	if len(s.heap) == 0 {
		return max
	}

	d := s.heap[0].deadline.Sub(now)
	if d < 0 {
		return 0
	}

	if d > max {
		return max
	}

	return d
}

// pollIdleMax bounds how long a single Run iteration blocks with no
// armed timers, so ctx cancellation is noticed promptly.
const pollIdleMax = time.Second

// Run drives the dispatch loop until ctx is canceled, processing due
// timers in deadline order and then readable fds in priority order
// each tick (component table, row L5). It returns ctx.Err() on
// cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.now()
		timeout := s.nextTimeout(now, pollIdleMax)

		pollFds := make([]unix.PollFd, len(s.fds))
		for i, reg := range s.fds {
			pollFds[i] = unix.PollFd{Fd: reg.fd, Events: unix.POLLIN}
		}

		if len(pollFds) > 0 {
			_, err := unix.Poll(pollFds, int(timeout.Milliseconds()))
			if err != nil && err != unix.EINTR {
				return err
			}
		} else {
			time.Sleep(timeout)
		}

		now = s.now()

		// Fire every expired timer in deadline order before servicing
		// any ready fd (spec.md section 4.5 step 3): a timer callback
		// must be observably complete before a same-tick fd callback
		// that might query its effect runs, regardless of fd priority.
		for _, ev := range s.popDueTimers(now) {
			ev.run()
		}

		var fdEvents []pendingEvent
		for i, reg := range s.fds {
			if len(pollFds) == 0 {
				break
			}

			if pollFds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				cb := reg.onReadable
				fdEvents = append(fdEvents, pendingEvent{priority: reg.priority, run: cb})
			}
		}

		stableSortByPriority(fdEvents)

		for _, ev := range fdEvents {
			ev.run()
		}
	}
}

// stableSortByPriority is a tiny insertion sort: event counts per tick
// are small (single-digit fd/timer registrations), so this avoids
// pulling in sort.Slice for a handful of elements while staying
// stable, which a generic sort.Slice call is not guaranteed to be.
func stableSortByPriority(events []pendingEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].priority < events[j-1].priority; j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}
