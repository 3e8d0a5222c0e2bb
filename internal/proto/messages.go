package proto

import (
	"encoding/json"

	"sensorbridge/server/internal/lifecycle"
)

const (
	// Version tracks the wire-protocol revision expected by sensors and
	// feed consumers.
	Version = 1

	// Inbound sensor message type identifiers.
	TypePoint     = "point"
	TypeGesture   = "gesture"
	TypeHeartbeat = "heartbeat"

	// Outbound message type identifiers.
	TypeEvent        = "event"
	TypeHeartbeatAck = "heartbeat"
)

// SensorMessage is the raw JSON shape arriving from the upstream sensor
// server. Optional numeric fields are pointers so the decode boundary can
// tell "absent" from zero.
type SensorMessage struct {
	Ver      int    `json:"ver,omitempty"`
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	ID       string `json:"id,omitempty"`
	State    string `json:"state,omitempty"`

	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	GestureType string        `json:"gestureType,omitempty"`
	Scale       *float64      `json:"scale,omitempty"`
	Rotation    *float64      `json:"rotation,omitempty"` // radians, relative
	PivotX      *float64      `json:"pivotX,omitempty"`
	PivotY      *float64      `json:"pivotY,omitempty"`
	Touches     []TouchSample `json:"touches,omitempty"`

	SentAt int64 `json:"sentAt,omitempty"`
}

// TouchSample is one sub-point position inside a gesture message.
type TouchSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Input is the staged, validated form of one sensor message.
type Input interface {
	isInput()
}

// PointInput is a staged point message. Coordinates are still
// protocol-relative; translation happens downstream.
type PointInput struct {
	Category lifecycle.Category
	ID       string
	State    lifecycle.Phase
	HasState bool
	X        float64
	Y        float64
	HasPos   bool
	SentAt   int64
}

func (PointInput) isInput() {}

// GestureInput is a staged gesture message. Rotation is the raw relative
// delta in radians.
type GestureInput struct {
	Kind     lifecycle.GestureKind
	ID       string
	State    lifecycle.Phase
	Scale    *float64
	Rotation *float64
	Pivot    *lifecycle.Coords
	Touches  []lifecycle.Coords
	SentAt   int64
}

func (GestureInput) isInput() {}

// HeartbeatInput is a staged heartbeat request.
type HeartbeatInput struct {
	SentAt int64
}

func (HeartbeatInput) isInput() {}

type eventMessage interface {
	ProtoEvent()
}

// EventMessage is the outbound envelope for one normalized event on the
// consumer feed.
type EventMessage struct {
	Ver        int             `json:"ver"`
	Type       string          `json:"type"`
	Seq        uint64          `json:"seq"`
	ServerTime int64           `json:"serverTime"`
	Event      lifecycle.Event `json:"event"`
}

func (EventMessage) ProtoEvent() {}

// EncodeEvent renders an event envelope for the feed.
func EncodeEvent(msg eventMessage) ([]byte, error) {
	return json.Marshal(msg)
}
