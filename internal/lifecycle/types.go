package lifecycle

// Category namespaces point identifiers. Identifier collisions across
// categories are not conflicts.
type Category string

const (
	CategoryTouch Category = "touch"
	CategoryPen   Category = "pen"
)

// GestureKind labels a gesture stream as reported by the sensor, plus the
// synthesized compound kind produced when scale and rotate are merged.
type GestureKind string

const (
	GestureScale  GestureKind = "scale"
	GestureRotate GestureKind = "rotate"
	GestureDrag   GestureKind = "drag"
	GestureCustom GestureKind = "custom"
	// GestureTransform is the compound scale+rotate stream synthesized by
	// the stabilizer; it never arrives on the wire.
	GestureTransform GestureKind = "transform"
)

// Target is an opaque handle produced by the resolver. Empty means none.
type Target string

// TargetResolver maps a pixel position to a target handle.
type TargetResolver interface {
	Resolve(x, y float64) (Target, bool)
}

// Coords is a pixel coordinate pair.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointSnapshot is the immutable view of one active point included in
// emitted events. Screen, page, and client tuples are derived from the
// surface position; the surface is its own viewport, so they coincide.
type PointSnapshot struct {
	ID       string `json:"id"`
	Target   Target `json:"target,omitempty"`
	Position Coords `json:"position"`
	Screen   Coords `json:"screen"`
	Page     Coords `json:"page"`
	Client   Coords `json:"client"`
}

// Phase is the position of an event inside an identifier's lifecycle.
type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseChange Phase = "change"
	PhaseEnd    Phase = "end"
)

// EventKind names the emitted event ("touchstart", "scalechange", "click").
type EventKind string

// Mouse event kinds emitted by click synthesis.
const (
	KindMouseMove    EventKind = "mousemove"
	KindMousePress   EventKind = "mousedown"
	KindMouseRelease EventKind = "mouseup"
	KindMouseClick   EventKind = "click"
)

// PointKind builds the kind for a point lifecycle event.
func PointKind(category Category, phase Phase) EventKind {
	switch phase {
	case PhaseStart:
		return EventKind(string(category) + "start")
	case PhaseEnd:
		return EventKind(string(category) + "end")
	default:
		return EventKind(string(category) + "move")
	}
}

// GestureEventKind builds the kind for a gesture lifecycle event.
func GestureEventKind(kind GestureKind, phase Phase) EventKind {
	return EventKind(string(kind) + string(phase))
}

// Event is the single normalized record handed to the sink. All variants
// share the base fields; variant payloads use omitzero so point events do
// not carry gesture fields on the wire and vice versa.
type Event struct {
	Kind     EventKind   `json:"kind"`
	Category Category    `json:"category,omitempty"`
	Gesture  GestureKind `json:"gesture,omitempty"`
	ID       string      `json:"id"`
	Target   Target      `json:"target,omitempty"`
	Position Coords      `json:"position"`
	Screen   Coords      `json:"screen,omitzero"`
	Page     Coords      `json:"page,omitzero"`
	Client   Coords      `json:"client,omitzero"`

	Points       []PointSnapshot `json:"points,omitempty"`
	TargetPoints []PointSnapshot `json:"targetPoints,omitempty"`
	Changed      []PointSnapshot `json:"changed,omitempty"`

	Scale    float64 `json:"scale,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
	Pivot    Coords  `json:"pivot,omitzero"`
}

// Sink receives fully-formed events. The boolean reports whether any
// consumer accepted the record.
type Sink interface {
	Dispatch(event Event, target Target) bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event, target Target) bool

func (f SinkFunc) Dispatch(event Event, target Target) bool {
	if f == nil {
		return false
	}
	return f(event, target)
}
