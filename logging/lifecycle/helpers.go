package lifecycle

import (
	"context"

	"sensorbridge/server/logging"
)

const (
	// EventPointStarted is emitted when a point contact becomes active.
	EventPointStarted logging.EventType = "lifecycle.point_started"
	// EventPointEnded is emitted when a point contact terminates.
	EventPointEnded logging.EventType = "lifecycle.point_ended"
	// EventStartSynthesized is emitted when a missing start is healed for
	// an orphan move or change.
	EventStartSynthesized logging.EventType = "lifecycle.start_synthesized"
	// EventClickSynthesized is emitted when a tap expands into a mouse
	// click sequence.
	EventClickSynthesized logging.EventType = "lifecycle.click_synthesized"
	// EventGestureStarted is emitted when a gesture stream starts.
	EventGestureStarted logging.EventType = "lifecycle.gesture_started"
	// EventGestureEnded is emitted when a gesture stream ends.
	EventGestureEnded logging.EventType = "lifecycle.gesture_ended"
	// EventGestureSuppressed is emitted when sub-points resolve to
	// different targets and the gesture instance is dropped.
	EventGestureSuppressed logging.EventType = "lifecycle.gesture_suppressed"
)

// PointPayload captures position metadata for point lifecycle events.
type PointPayload struct {
	Category string  `json:"category"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Target   string  `json:"target,omitempty"`
}

// GesturePayload captures accumulated state for gesture lifecycle events.
type GesturePayload struct {
	Kind     string  `json:"kind"`
	Scale    float64 `json:"scale,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
	Target   string  `json:"target,omitempty"`
}

// PointStarted publishes a point activation event.
func PointStarted(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PointPayload) {
	publish(ctx, pub, EventPointStarted, seq, actor, logging.SeverityDebug, payload)
}

// PointEnded publishes a point termination event.
func PointEnded(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PointPayload) {
	publish(ctx, pub, EventPointEnded, seq, actor, logging.SeverityDebug, payload)
}

// StartSynthesized publishes a heal event for an orphan move or change.
func StartSynthesized(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PointPayload) {
	publish(ctx, pub, EventStartSynthesized, seq, actor, logging.SeverityInfo, payload)
}

// ClickSynthesized publishes a click expansion event.
func ClickSynthesized(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PointPayload) {
	publish(ctx, pub, EventClickSynthesized, seq, actor, logging.SeverityDebug, payload)
}

// GestureStarted publishes a gesture activation event.
func GestureStarted(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload GesturePayload) {
	publish(ctx, pub, EventGestureStarted, seq, actor, logging.SeverityDebug, payload)
}

// GestureEnded publishes a gesture termination event.
func GestureEnded(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload GesturePayload) {
	publish(ctx, pub, EventGestureEnded, seq, actor, logging.SeverityDebug, payload)
}

// GestureSuppressed publishes a no-common-target suppression event.
func GestureSuppressed(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload GesturePayload) {
	publish(ctx, pub, EventGestureSuppressed, seq, actor, logging.SeverityWarn, payload)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, seq uint64, actor logging.EntityRef, severity logging.Severity, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Seq:      seq,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
