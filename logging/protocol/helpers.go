package protocol

import (
	"context"

	"sensorbridge/server/logging"
)

const (
	// EventDecodeFailed is emitted when an inbound message fails the
	// decode boundary and is dropped.
	EventDecodeFailed logging.EventType = "protocol.decode_failed"
	// EventMessageDropped is emitted when a well-formed message is
	// rejected by the lifecycle engines and dropped.
	EventMessageDropped logging.EventType = "protocol.message_dropped"
	// EventFlickerAbsorbed is emitted when an end/start flicker pair is
	// cancelled inside the reanimation window.
	EventFlickerAbsorbed logging.EventType = "protocol.flicker_absorbed"
	// EventRemovalCommitted is emitted when a buffered end survives the
	// reanimation window and is forwarded.
	EventRemovalCommitted logging.EventType = "protocol.removal_committed"
	// EventMergeStarted is emitted when the compound scale+rotate stream
	// is released downstream.
	EventMergeStarted logging.EventType = "protocol.merge_started"
	// EventMergeEnded is emitted when compound merge state is torn down.
	EventMergeEnded logging.EventType = "protocol.merge_ended"
	// EventPenStateDerived is emitted when the synthetic pen identifier
	// changes lifecycle state based on activity.
	EventPenStateDerived logging.EventType = "protocol.pen_state_derived"
)

// DropPayload captures the offending message snapshot for dropped input.
type DropPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// FlickerPayload captures the identity of an absorbed flicker pair.
type FlickerPayload struct {
	Category string `json:"category"`
}

// MergePayload captures compound merge progression.
type MergePayload struct {
	Scale    float64 `json:"scale,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
}

// PenPayload captures derived pen lifecycle transitions.
type PenPayload struct {
	State string `json:"state"`
}

// DecodeFailed publishes a decode boundary rejection.
func DecodeFailed(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload DropPayload) {
	publish(ctx, pub, EventDecodeFailed, seq, actor, logging.SeverityWarn, payload)
}

// MessageDropped publishes an engine-level rejection.
func MessageDropped(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload DropPayload) {
	publish(ctx, pub, EventMessageDropped, seq, actor, logging.SeverityWarn, payload)
}

// FlickerAbsorbed publishes a reanimation cancellation.
func FlickerAbsorbed(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload FlickerPayload) {
	publish(ctx, pub, EventFlickerAbsorbed, seq, actor, logging.SeverityDebug, payload)
}

// RemovalCommitted publishes a reanimation timeout expiry.
func RemovalCommitted(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload FlickerPayload) {
	publish(ctx, pub, EventRemovalCommitted, seq, actor, logging.SeverityDebug, payload)
}

// MergeStarted publishes the release of a compound gesture stream.
func MergeStarted(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload MergePayload) {
	publish(ctx, pub, EventMergeStarted, seq, actor, logging.SeverityDebug, payload)
}

// MergeEnded publishes compound merge teardown.
func MergeEnded(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload MergePayload) {
	publish(ctx, pub, EventMergeEnded, seq, actor, logging.SeverityDebug, payload)
}

// PenStateDerived publishes an activity-derived pen transition.
func PenStateDerived(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PenPayload) {
	publish(ctx, pub, EventPenStateDerived, seq, actor, logging.SeverityDebug, payload)
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
		Category: logging.CategoryProtocol,
		Payload:  payload,
	})
}
