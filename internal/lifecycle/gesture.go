package lifecycle

import (
	"context"

	"sensorbridge/server/logging"
	loglifecycle "sensorbridge/server/logging/lifecycle"
)

// GestureConfig carries the policies the gesture engine enforces.
type GestureConfig struct {
	// FixStartEventLack heals a change with no matching start by
	// synthesizing the start from the change's positional payload.
	FixStartEventLack bool
}

// GestureDeps are the collaborators the engine calls out to.
type GestureDeps struct {
	Resolver  TargetResolver
	Sink      Sink
	Publisher logging.Publisher
	Seq       func() uint64
}

// accumulator converts relative deltas into absolute gesture state.
// Scale starts at 1 and multiplies; rotation starts at 0 degrees and adds.
type accumulator struct {
	target     Target
	pivot      Coords
	scale      float64
	rotation   float64
	suppressed bool
}

type gestureKey struct {
	kind GestureKind
	id   string
}

// GestureEngine owns per-(kind, identifier) accumulators and emits gesture
// events with a consistently resolved target.
type GestureEngine struct {
	cfg      GestureConfig
	resolver TargetResolver
	sink     Sink
	pub      logging.Publisher
	seq      func() uint64

	accums map[gestureKey]*accumulator
}

// NewGestureEngine constructs an engine with no live accumulators.
func NewGestureEngine(cfg GestureConfig, deps GestureDeps) *GestureEngine {
	seq := deps.Seq
	if seq == nil {
		seq = func() uint64 { return 0 }
	}
	return &GestureEngine{
		cfg:      cfg,
		resolver: deps.Resolver,
		sink:     deps.Sink,
		pub:      deps.Publisher,
		seq:      seq,
		accums:   make(map[gestureKey]*accumulator),
	}
}

// Active reports whether a (kind, identifier) pair holds an accumulator,
// suppressed ones included.
func (e *GestureEngine) Active(kind GestureKind, id string) bool {
	_, ok := e.accums[gestureKey{kind, id}]
	return ok
}

// ActiveCount reports how many accumulators are live.
func (e *GestureEngine) ActiveCount() int {
	return len(e.accums)
}

// Start opens a gesture instance. The shared target is resolved from the
// sub-point samples when present, otherwise from the pivot. Sub-points
// resolving to different targets suppress the whole instance: no events
// are emitted for it, ever, and the error reports why.
func (e *GestureEngine) Start(kind GestureKind, id string, pivot Coords, touches []Coords) error {
	key := gestureKey{kind, id}
	if _, ok := e.accums[key]; ok {
		return &DuplicateIdentifierError{Stream: string(kind), ID: id}
	}

	target, ok := e.resolveShared(pivot, touches)
	if !ok {
		e.accums[key] = &accumulator{suppressed: true}
		loglifecycle.GestureSuppressed(context.Background(), e.pub, e.seq(), e.actor(id), loglifecycle.GesturePayload{
			Kind: string(kind),
		})
		return &NoCommonTargetError{Stream: string(kind), ID: id}
	}

	acc := &accumulator{target: target, pivot: pivot, scale: 1, rotation: 0}
	e.accums[key] = acc

	e.emit(GestureEventKind(kind, PhaseStart), kind, id, acc)
	loglifecycle.GestureStarted(context.Background(), e.pub, e.seq(), e.actor(id), loglifecycle.GesturePayload{
		Kind:   string(kind),
		Scale:  acc.scale,
		Target: string(acc.target),
	})
	return nil
}

// Change accumulates one relative delta and emits the absolute state.
// scaleFactor multiplies the running scale (pass 1 for none); rotationDeg
// adds to the running rotation and must already be in degrees.
func (e *GestureEngine) Change(kind GestureKind, id string, scaleFactor, rotationDeg float64, pivot *Coords, touches []Coords) error {
	key := gestureKey{kind, id}
	acc, ok := e.accums[key]
	if !ok {
		if !e.cfg.FixStartEventLack {
			return &OrphanMoveError{Stream: string(kind), ID: id}
		}
		startPivot := Coords{}
		if pivot != nil {
			startPivot = *pivot
		}
		if err := e.Start(kind, id, startPivot, touches); err != nil {
			if _, suppressed := err.(*NoCommonTargetError); !suppressed {
				return err
			}
		}
		acc = e.accums[key]
	}
	if acc.suppressed {
		return nil
	}

	if scaleFactor != 0 {
		acc.scale *= scaleFactor
	}
	acc.rotation += rotationDeg
	if pivot != nil {
		acc.pivot = *pivot
	}

	e.emit(GestureEventKind(kind, PhaseChange), kind, id, acc)
	return nil
}

// End emits the final accumulated state and discards the accumulator.
func (e *GestureEngine) End(kind GestureKind, id string) error {
	key := gestureKey{kind, id}
	acc, ok := e.accums[key]
	if !ok {
		return &OrphanEndError{Stream: string(kind), ID: id}
	}
	delete(e.accums, key)
	if acc.suppressed {
		return nil
	}

	e.emit(GestureEventKind(kind, PhaseEnd), kind, id, acc)
	loglifecycle.GestureEnded(context.Background(), e.pub, e.seq(), e.actor(id), loglifecycle.GesturePayload{
		Kind:     string(kind),
		Scale:    acc.scale,
		Rotation: acc.rotation,
		Target:   string(acc.target),
	})
	return nil
}

// resolveShared applies the tie-break policy: every sample must resolve
// to the exact same handle or the gesture is nulled.
func (e *GestureEngine) resolveShared(pivot Coords, touches []Coords) (Target, bool) {
	if e.resolver == nil {
		return "", true
	}
	if len(touches) == 0 {
		target, _ := e.resolver.Resolve(pivot.X, pivot.Y)
		return target, true
	}
	var shared Target
	for i, sample := range touches {
		target, ok := e.resolver.Resolve(sample.X, sample.Y)
		if !ok {
			return "", false
		}
		if i == 0 {
			shared = target
			continue
		}
		if target != shared {
			return "", false
		}
	}
	return shared, true
}

func (e *GestureEngine) emit(eventKind EventKind, kind GestureKind, id string, acc *accumulator) {
	if e.sink == nil {
		return
	}
	e.sink.Dispatch(Event{
		Kind:     eventKind,
		Gesture:  kind,
		ID:       id,
		Target:   acc.target,
		Position: acc.pivot,
		Pivot:    acc.pivot,
		Scale:    acc.scale,
		Rotation: acc.rotation,
	}, acc.target)
}

func (e *GestureEngine) actor(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindGesture}
}
