package sched

import (
	"sort"
	"sync"
	"time"
)

// Handle identifies one scheduled callback. The zero value is never issued.
type Handle uint64

// Scheduler runs callbacks after a delay. Cancelling a handle before its
// callback starts guarantees the callback never runs.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
	Cancel(handle Handle)
}

// Real schedules callbacks on the wall clock via time.AfterFunc.
type Real struct {
	mu     sync.Mutex
	next   Handle
	timers map[Handle]*time.Timer
}

// NewReal constructs a wall-clock scheduler.
func NewReal() *Real {
	return &Real{timers: make(map[Handle]*time.Timer)}
}

// Schedule arms a timer that fires fn on its own goroutine.
func (s *Real) Schedule(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	handle := s.next
	s.timers[handle] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[handle]
		delete(s.timers, handle)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return handle
}

// Cancel stops a pending timer. Cancelling an unknown or fired handle is a no-op.
func (s *Real) Cancel(handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[handle]
	if !ok {
		return
	}
	delete(s.timers, handle)
	timer.Stop()
}

// Manual is a deterministic scheduler for tests. Time only moves when the
// test calls Advance, and due callbacks run synchronously on the caller's
// goroutine in deadline order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	next    Handle
	pending []manualEntry
}

type manualEntry struct {
	handle   Handle
	deadline time.Duration
	fn       func()
}

// NewManual constructs a scheduler frozen at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Schedule registers fn to run once the manual clock passes delay.
func (s *Manual) Schedule(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.pending = append(s.pending, manualEntry{handle: s.next, deadline: s.now + delay, fn: fn})
	return s.next
}

// Cancel drops a pending entry.
func (s *Manual) Cancel(handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.pending {
		if entry.handle == handle {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward and fires every callback whose deadline
// has passed, earliest first. Callbacks may schedule further work; entries
// that become due within the same advance also fire.
func (s *Manual) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	target := s.now
	s.mu.Unlock()

	for {
		fn := s.popDue(target)
		if fn == nil {
			return
		}
		fn()
	}
}

// Pending reports how many callbacks are still armed.
func (s *Manual) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Manual) popDue(target time.Duration) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].deadline < s.pending[j].deadline
	})
	if s.pending[0].deadline > target {
		return nil
	}
	fn := s.pending[0].fn
	s.pending = s.pending[1:]
	return fn
}
