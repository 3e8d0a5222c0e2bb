package proto

import (
	"encoding/json"
	"fmt"

	"sensorbridge/server/internal/lifecycle"
)

// DecodeError reports a message rejected at the decode boundary. It keeps
// a snapshot of the offending payload for the structured log channel.
type DecodeError struct {
	Reason string
	Field  string
	Raw    string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("protocol decode: %s (field %q)", e.Reason, e.Field)
	}
	return fmt.Sprintf("protocol decode: %s", e.Reason)
}

const rawSnapshotLimit = 256

// Decode parses and validates one raw sensor payload. Nothing malformed
// passes this boundary: the stabilizer and engines only ever see staged,
// well-typed inputs.
func Decode(payload []byte) (Input, error) {
	var msg SensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, &DecodeError{Reason: err.Error(), Raw: snapshot(payload)}
	}
	return Stage(msg, payload)
}

// Stage validates an already-unmarshalled sensor message.
func Stage(msg SensorMessage, payload []byte) (Input, error) {
	switch msg.Type {
	case TypePoint:
		return stagePoint(msg, payload)
	case TypeGesture:
		return stageGesture(msg, payload)
	case TypeHeartbeat:
		return HeartbeatInput{SentAt: msg.SentAt}, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown message type %q", msg.Type), Field: "type", Raw: snapshot(payload)}
	}
}

func stagePoint(msg SensorMessage, payload []byte) (Input, error) {
	category := lifecycle.Category(msg.Category)
	switch category {
	case lifecycle.CategoryTouch, lifecycle.CategoryPen:
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown point category %q", msg.Category), Field: "category", Raw: snapshot(payload)}
	}

	input := PointInput{Category: category, ID: msg.ID, SentAt: msg.SentAt}
	if msg.X != nil && msg.Y != nil {
		input.X, input.Y = *msg.X, *msg.Y
		input.HasPos = true
	}

	if msg.State != "" {
		phase, ok := parsePhase(msg.State)
		if !ok {
			return nil, &DecodeError{Reason: fmt.Sprintf("unknown point state %q", msg.State), Field: "state", Raw: snapshot(payload)}
		}
		input.State = phase
		input.HasState = true
	}

	switch {
	case category == lifecycle.CategoryTouch:
		// Touch streams are fully identified and stateful.
		if msg.ID == "" {
			return nil, &DecodeError{Reason: "touch message without identifier", Field: "id", Raw: snapshot(payload)}
		}
		if !input.HasState {
			return nil, &DecodeError{Reason: "touch message without state", Field: "state", Raw: snapshot(payload)}
		}
		if input.State != lifecycle.PhaseEnd && !input.HasPos {
			return nil, &DecodeError{Reason: "touch start/move without position", Field: "x", Raw: snapshot(payload)}
		}
	case !input.HasState:
		// Stateless pen stream: a bare position whose lifecycle is
		// derived from activity downstream.
		if !input.HasPos {
			return nil, &DecodeError{Reason: "pen message without position", Field: "x", Raw: snapshot(payload)}
		}
	case input.State != lifecycle.PhaseEnd && !input.HasPos:
		return nil, &DecodeError{Reason: "pen start/move without position", Field: "x", Raw: snapshot(payload)}
	}

	return input, nil
}

func stageGesture(msg SensorMessage, payload []byte) (Input, error) {
	kind := lifecycle.GestureKind(msg.GestureType)
	switch kind {
	case lifecycle.GestureScale, lifecycle.GestureRotate, lifecycle.GestureDrag, lifecycle.GestureCustom:
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown gesture type %q", msg.GestureType), Field: "gestureType", Raw: snapshot(payload)}
	}

	phase, ok := parsePhase(msg.State)
	if !ok {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown gesture state %q", msg.State), Field: "state", Raw: snapshot(payload)}
	}

	input := GestureInput{Kind: kind, ID: msg.ID, State: phase, Scale: msg.Scale, Rotation: msg.Rotation, SentAt: msg.SentAt}
	if input.ID == "" {
		// Under-identified gesture streams collapse onto one synthetic
		// instance per kind.
		input.ID = "0"
	}
	if msg.PivotX != nil && msg.PivotY != nil {
		input.Pivot = &lifecycle.Coords{X: *msg.PivotX, Y: *msg.PivotY}
	} else if msg.X != nil && msg.Y != nil {
		input.Pivot = &lifecycle.Coords{X: *msg.X, Y: *msg.Y}
	}
	for _, sample := range msg.Touches {
		input.Touches = append(input.Touches, lifecycle.Coords{X: sample.X, Y: sample.Y})
	}

	if phase == lifecycle.PhaseChange {
		switch kind {
		case lifecycle.GestureScale:
			if input.Scale == nil {
				return nil, &DecodeError{Reason: "scale change without scale factor", Field: "scale", Raw: snapshot(payload)}
			}
		case lifecycle.GestureRotate:
			if input.Rotation == nil {
				return nil, &DecodeError{Reason: "rotate change without rotation delta", Field: "rotation", Raw: snapshot(payload)}
			}
		case lifecycle.GestureDrag, lifecycle.GestureCustom:
			if input.Pivot == nil {
				return nil, &DecodeError{Reason: "drag change without position", Field: "x", Raw: snapshot(payload)}
			}
		}
	}
	if phase == lifecycle.PhaseStart && (kind == lifecycle.GestureDrag || kind == lifecycle.GestureCustom) && input.Pivot == nil {
		return nil, &DecodeError{Reason: "drag start without position", Field: "x", Raw: snapshot(payload)}
	}

	return input, nil
}

func parsePhase(state string) (lifecycle.Phase, bool) {
	switch state {
	case "start":
		return lifecycle.PhaseStart, true
	case "move", "change":
		return lifecycle.PhaseChange, true
	case "end":
		return lifecycle.PhaseEnd, true
	default:
		return "", false
	}
}

func snapshot(payload []byte) string {
	if len(payload) > rawSnapshotLimit {
		payload = payload[:rawSnapshotLimit]
	}
	return string(payload)
}
