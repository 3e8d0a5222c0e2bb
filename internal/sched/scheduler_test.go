package sched

import (
	"testing"
	"time"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	s := NewManual()
	var order []string

	s.Schedule(30*time.Millisecond, func() { order = append(order, "late") })
	s.Schedule(10*time.Millisecond, func() { order = append(order, "early") })
	s.Schedule(20*time.Millisecond, func() { order = append(order, "middle") })

	s.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != "early" || order[1] != "middle" {
		t.Fatalf("unexpected firing order %v", order)
	}

	s.Advance(10 * time.Millisecond)
	if len(order) != 3 || order[2] != "late" {
		t.Fatalf("expected late callback after second advance, got %v", order)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending entries, got %d", s.Pending())
	}
}

func TestManualCancelPreventsCallback(t *testing.T) {
	s := NewManual()
	fired := false
	handle := s.Schedule(10*time.Millisecond, func() { fired = true })
	s.Cancel(handle)
	s.Advance(time.Second)
	if fired {
		t.Fatalf("cancelled callback must never run")
	}
}

func TestManualCallbackMayReschedule(t *testing.T) {
	s := NewManual()
	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			s.Schedule(5*time.Millisecond, rearm)
		}
	}
	s.Schedule(5*time.Millisecond, rearm)

	s.Advance(20 * time.Millisecond)
	if count != 3 {
		t.Fatalf("expected chained callbacks to fire within one advance, got %d", count)
	}
}

func TestRealCancelBeforeFire(t *testing.T) {
	s := NewReal()
	fired := make(chan struct{}, 1)
	handle := s.Schedule(50*time.Millisecond, func() { fired <- struct{}{} })
	s.Cancel(handle)

	select {
	case <-fired:
		t.Fatalf("cancelled timer fired")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestRealFires(t *testing.T) {
	s := NewReal()
	fired := make(chan struct{}, 1)
	s.Schedule(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never fired")
	}
}
