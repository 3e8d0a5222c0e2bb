package lifecycle

import (
	"errors"
	"testing"
)

type captureSink struct {
	events []Event
}

func (s *captureSink) Dispatch(event Event, target Target) bool {
	s.events = append(s.events, event)
	return true
}

func (s *captureSink) kinds() []EventKind {
	kinds := make([]EventKind, 0, len(s.events))
	for _, event := range s.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

type stubResolver struct {
	fn       func(x, y float64) (Target, bool)
	fallback Target
}

func (r *stubResolver) Resolve(x, y float64) (Target, bool) {
	if r.fn != nil {
		return r.fn(x, y)
	}
	if r.fallback == "" {
		return "", false
	}
	return r.fallback, true
}

func newTestPointEngine(cfg PointConfig, sink Sink, resolver TargetResolver) *PointEngine {
	if resolver == nil {
		resolver = &stubResolver{fallback: "panel"}
	}
	return NewPointEngine(cfg, PointDeps{Resolver: resolver, Sink: sink})
}

func TestStartMoveEndLifecycle(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{}, sink, nil)

	if err := engine.Start(CategoryTouch, "1", 10, 20); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !engine.Active(CategoryTouch, "1") {
		t.Fatalf("expected active record after start")
	}
	if err := engine.Move(CategoryTouch, "1", 15, 25); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if err := engine.End(CategoryTouch, "1"); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if engine.Active(CategoryTouch, "1") {
		t.Fatalf("record must be removed after end")
	}

	kinds := sink.kinds()
	want := []EventKind{"touchstart", "touchmove", "touchend"}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}

	move := sink.events[1]
	if move.Position.X != 15 || move.Position.Y != 25 {
		t.Fatalf("move position not updated in place: %+v", move.Position)
	}
	if len(move.Points) != 1 || len(move.Changed) != 1 {
		t.Fatalf("move views wrong: points=%d changed=%d", len(move.Points), len(move.Changed))
	}
}

func TestDuplicateIdentifierRejectedWithoutStateChange(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{}, sink, nil)

	if err := engine.Start(CategoryTouch, "1", 1, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	err := engine.Start(CategoryTouch, "1", 2, 2)
	var dup *DuplicateIdentifierError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateIdentifierError, got %v", err)
	}
	if dup.ID != "1" || dup.Stream != "touch" {
		t.Fatalf("error fields wrong: %+v", dup)
	}
	if got := len(sink.events); got != 1 {
		t.Fatalf("duplicate start must not emit, got %d events", got)
	}
	if err := engine.Move(CategoryTouch, "1", 3, 3); err != nil {
		t.Fatalf("original record must survive the rejected start: %v", err)
	}
}

func TestIdentifiersIndependentAcrossCategories(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{}, sink, nil)

	if err := engine.Start(CategoryTouch, "1", 1, 1); err != nil {
		t.Fatalf("touch start failed: %v", err)
	}
	if err := engine.Start(CategoryPen, "1", 2, 2); err != nil {
		t.Fatalf("pen start with same id must not collide: %v", err)
	}
	if engine.ActiveCount(CategoryTouch) != 1 || engine.ActiveCount(CategoryPen) != 1 {
		t.Fatalf("categories must hold independent records")
	}
}

func TestOrphanMoveHealsWhenConfigured(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{FixStartEventLack: true}, sink, nil)

	if err := engine.Move(CategoryTouch, "7", 5, 5); err != nil {
		t.Fatalf("healed move failed: %v", err)
	}
	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != "touchstart" || kinds[1] != "touchmove" {
		t.Fatalf("expected synthesized start then move, got %v", kinds)
	}
	start := sink.events[0]
	if start.Position.X != 5 || start.Position.Y != 5 {
		t.Fatalf("synthesized start must reuse the move coordinates: %+v", start.Position)
	}
}

func TestOrphanMoveRejectedWhenDisabled(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{FixStartEventLack: false}, sink, nil)

	err := engine.Move(CategoryTouch, "7", 5, 5)
	var orphan *OrphanMoveError
	if !errors.As(err, &orphan) {
		t.Fatalf("expected OrphanMoveError, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("rejected move must not emit")
	}
}

func TestOrphanEndRejected(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{FixStartEventLack: true}, sink, nil)

	err := engine.End(CategoryTouch, "9")
	var orphan *OrphanEndError
	if !errors.As(err, &orphan) {
		t.Fatalf("expected OrphanEndError, got %v", err)
	}
}

func TestEndViewsExcludeDepartingPoint(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{}, sink, nil)

	if err := engine.Start(CategoryTouch, "1", 1, 1); err != nil {
		t.Fatalf("start 1 failed: %v", err)
	}
	if err := engine.Start(CategoryTouch, "2", 2, 2); err != nil {
		t.Fatalf("start 2 failed: %v", err)
	}
	if err := engine.End(CategoryTouch, "1"); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	end := sink.events[len(sink.events)-1]
	if end.Kind != "touchend" {
		t.Fatalf("expected touchend, got %s", end.Kind)
	}
	if len(end.Points) != 1 || end.Points[0].ID != "2" {
		t.Fatalf("all-points view must exclude the departing point: %+v", end.Points)
	}
	if len(end.TargetPoints) != 1 || end.TargetPoints[0].ID != "2" {
		t.Fatalf("same-target view must exclude the departing point: %+v", end.TargetPoints)
	}
	if len(end.Changed) != 1 || end.Changed[0].ID != "1" {
		t.Fatalf("changed view must carry the departing point: %+v", end.Changed)
	}
}

func TestTapExpandsToClickSequence(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{TriggerMouseClick: true}, sink, nil)

	if err := engine.Start(CategoryTouch, "1", 50, 50); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := engine.End(CategoryTouch, "1"); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	want := []EventKind{"touchstart", "touchend", KindMouseMove, KindMousePress, KindMouseRelease, KindMouseClick}
	kinds := sink.kinds()
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	click := sink.events[len(sink.events)-1]
	if click.Position.X != 50 || click.Position.Y != 50 {
		t.Fatalf("click must use the final known position: %+v", click.Position)
	}
}

func TestInterveningMoveDisablesClickSynthesis(t *testing.T) {
	sink := &captureSink{}
	engine := newTestPointEngine(PointConfig{TriggerMouseClick: true}, sink, nil)

	if err := engine.Start(CategoryTouch, "1", 50, 50); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := engine.Move(CategoryTouch, "1", 60, 50); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if err := engine.End(CategoryTouch, "1"); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	want := []EventKind{"touchstart", "touchmove", "touchend"}
	kinds := sink.kinds()
	if len(kinds) != len(want) {
		t.Fatalf("a moved contact must not click: expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
}
