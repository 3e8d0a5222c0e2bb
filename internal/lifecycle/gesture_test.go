package lifecycle

import (
	"errors"
	"math"
	"testing"
)

func newTestGestureEngine(cfg GestureConfig, sink Sink, resolver TargetResolver) *GestureEngine {
	if resolver == nil {
		resolver = &stubResolver{fallback: "canvas"}
	}
	return NewGestureEngine(cfg, GestureDeps{Resolver: resolver, Sink: sink})
}

func TestGestureScaleAccumulatesMultiplicatively(t *testing.T) {
	sink := &captureSink{}
	engine := newTestGestureEngine(GestureConfig{}, sink, nil)

	pivot := Coords{X: 100, Y: 100}
	if err := engine.Start(GestureScale, "g1", pivot, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	factors := []float64{1.1, 0.9, 1.25, 2.0}
	want := 1.0
	for _, f := range factors {
		want *= f
		if err := engine.Change(GestureScale, "g1", f, 0, nil, nil); err != nil {
			t.Fatalf("change failed: %v", err)
		}
	}
	if err := engine.End(GestureScale, "g1"); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	final := sink.events[len(sink.events)-1]
	if final.Kind != "scaleend" {
		t.Fatalf("expected scaleend, got %s", final.Kind)
	}
	if math.Abs(final.Scale-want) > 1e-9 {
		t.Fatalf("accumulated scale = %v, want %v", final.Scale, want)
	}
}

func TestGestureRotationAccumulatesAdditively(t *testing.T) {
	sink := &captureSink{}
	engine := newTestGestureEngine(GestureConfig{}, sink, nil)

	if err := engine.Start(GestureRotate, "g1", Coords{X: 10, Y: 10}, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	deltas := []float64{15, -5, 42.5}
	want := 0.0
	for _, d := range deltas {
		want += d
		if err := engine.Change(GestureRotate, "g1", 1, d, nil, nil); err != nil {
			t.Fatalf("change failed: %v", err)
		}
	}
	if err := engine.End(GestureRotate, "g1"); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	final := sink.events[len(sink.events)-1]
	if math.Abs(final.Rotation-want) > 1e-9 {
		t.Fatalf("accumulated rotation = %v, want %v", final.Rotation, want)
	}
}

func TestGestureCommonTargetRequired(t *testing.T) {
	sink := &captureSink{}
	resolver := &stubResolver{fn: func(x, y float64) (Target, bool) {
		if x < 100 {
			return "left", true
		}
		return "right", true
	}}
	engine := newTestGestureEngine(GestureConfig{}, sink, resolver)

	touches := []Coords{{X: 50, Y: 50}, {X: 150, Y: 50}}
	err := engine.Start(GestureScale, "g1", Coords{X: 100, Y: 50}, touches)
	var noCommon *NoCommonTargetError
	if !errors.As(err, &noCommon) {
		t.Fatalf("expected NoCommonTargetError, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("suppressed start must not emit")
	}

	// The suppressed instance stays silent for its whole lifetime.
	if err := engine.Change(GestureScale, "g1", 1.5, 0, nil, nil); err != nil {
		t.Fatalf("change on suppressed gesture must be silent, got %v", err)
	}
	if err := engine.End(GestureScale, "g1"); err != nil {
		t.Fatalf("end on suppressed gesture must be silent, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("suppressed gesture emitted %d events", len(sink.events))
	}
}

func TestGestureSuppressionDoesNotAffectOthers(t *testing.T) {
	sink := &captureSink{}
	resolver := &stubResolver{fn: func(x, y float64) (Target, bool) {
		if x < 100 {
			return "left", true
		}
		return "right", true
	}}
	engine := newTestGestureEngine(GestureConfig{}, sink, resolver)

	if err := engine.Start(GestureScale, "bad", Coords{}, []Coords{{X: 50, Y: 0}, {X: 150, Y: 0}}); err == nil {
		t.Fatalf("expected suppression")
	}
	if err := engine.Start(GestureScale, "good", Coords{}, []Coords{{X: 10, Y: 0}, {X: 20, Y: 0}}); err != nil {
		t.Fatalf("independent gesture must start: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Target != "left" {
		t.Fatalf("expected one start on target left, got %+v", sink.events)
	}
}

func TestGestureChangeSynthesizesStart(t *testing.T) {
	sink := &captureSink{}
	engine := newTestGestureEngine(GestureConfig{FixStartEventLack: true}, sink, nil)

	pivot := Coords{X: 5, Y: 5}
	if err := engine.Change(GestureScale, "g1", 1.5, 0, &pivot, nil); err != nil {
		t.Fatalf("healed change failed: %v", err)
	}

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != "scalestart" || kinds[1] != "scalechange" {
		t.Fatalf("expected synthesized start then change, got %v", kinds)
	}
	if sink.events[1].Scale != 1.5 {
		t.Fatalf("change after synthesized start must accumulate from 1: %v", sink.events[1].Scale)
	}
}

func TestGestureOrphanChangeRejectedWhenDisabled(t *testing.T) {
	sink := &captureSink{}
	engine := newTestGestureEngine(GestureConfig{}, sink, nil)

	err := engine.Change(GestureRotate, "g1", 1, 10, nil, nil)
	var orphan *OrphanMoveError
	if !errors.As(err, &orphan) {
		t.Fatalf("expected OrphanMoveError, got %v", err)
	}
}

func TestDragCarriesPivotUpdates(t *testing.T) {
	sink := &captureSink{}
	engine := newTestGestureEngine(GestureConfig{}, sink, nil)

	if err := engine.Start(GestureDrag, "d1", Coords{X: 10, Y: 10}, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	next := Coords{X: 30, Y: 40}
	if err := engine.Change(GestureDrag, "d1", 1, 0, &next, nil); err != nil {
		t.Fatalf("change failed: %v", err)
	}
	change := sink.events[len(sink.events)-1]
	if change.Pivot != next || change.Position != next {
		t.Fatalf("drag change must carry the updated position: %+v", change)
	}
	if err := engine.End(GestureDrag, "d1"); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if engine.ActiveCount() != 0 {
		t.Fatalf("accumulator must be discarded at end")
	}
}
