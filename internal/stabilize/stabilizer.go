package stabilize

import (
	"context"
	"time"

	"sensorbridge/server/internal/geom"
	"sensorbridge/server/internal/lifecycle"
	"sensorbridge/server/internal/proto"
	"sensorbridge/server/internal/sched"
	"sensorbridge/server/logging"
	logprotocol "sensorbridge/server/logging/protocol"
)

// SyntheticPenID is the fixed identifier assigned to the single-stream
// pen input, which arrives with no identifiers of its own.
const SyntheticPenID = "pen-0"

// Config enumerates the upstream defects the stabilizer absorbs.
type Config struct {
	// ReanimationTimeout is the delay before a point end commits. A start
	// for the same identifier inside the window cancels both messages.
	ReanimationTimeout time.Duration
	// DoBuffering disables end delay entirely when false.
	DoBuffering bool
	// MergeGestures fuses independently-reported scale and rotate
	// streams into one compound transform stream.
	MergeGestures bool
	// ChangeDropRate forwards only every Nth point move per identifier.
	ChangeDropRate int
	// GestureDropRate forwards only every Nth gesture change per
	// instance. Dropped deltas fold into the next forwarded change, so
	// downstream accumulation stays exact.
	GestureDropRate int
	// PenSilenceTimeout ends the synthetic pen contact after this much
	// inactivity. Re-armed on every incoming pen event.
	PenSilenceTimeout time.Duration
}

// DefaultConfig mirrors the defect profile of the upstream sensor server.
func DefaultConfig() Config {
	return Config{
		ReanimationTimeout: 100 * time.Millisecond,
		DoBuffering:        true,
		MergeGestures:      true,
		ChangeDropRate:     1,
		GestureDropRate:    1,
		PenSilenceTimeout:  500 * time.Millisecond,
	}
}

// Downstream receives repaired messages. Coordinates are still
// protocol-relative; rotation deltas are already in degrees.
type Downstream interface {
	PointStart(category lifecycle.Category, id string, x, y float64) error
	PointMove(category lifecycle.Category, id string, x, y float64) error
	PointEnd(category lifecycle.Category, id string) error
	GestureStart(kind lifecycle.GestureKind, id string, pivot *lifecycle.Coords, touches []lifecycle.Coords) error
	GestureChange(kind lifecycle.GestureKind, id string, scale, rotationDeg float64, pivot *lifecycle.Coords, touches []lifecycle.Coords) error
	GestureEnd(kind lifecycle.GestureKind, id string) error
}

// Deps are the stabilizer's collaborators. Run serializes timer callbacks
// onto the owning session's processing thread; timer work never touches
// stabilizer state directly.
type Deps struct {
	Scheduler sched.Scheduler
	Run       func(func())
	Publisher logging.Publisher
	Seq       func() uint64
}

type pointKey struct {
	category lifecycle.Category
	id       string
}

type gestureKey struct {
	kind lifecycle.GestureKind
	id   string
}

// gestureFlow tracks per-instance decimation plus the deltas withheld by
// it. pendingScale/pendingRotation are folded into the next forwarded
// change so no delta is ever lost.
type gestureFlow struct {
	count           int
	pendingScale    float64
	pendingRotation float64
}

// Stabilizer absorbs known upstream protocol defects before messages
// reach the lifecycle engines. All state is private to one instance and
// mutated only under the owning session's serialization.
type Stabilizer struct {
	cfg   Config
	next  Downstream
	sched sched.Scheduler
	run   func(func())
	pub   logging.Publisher
	seq   func() uint64

	pending      map[pointKey]sched.Handle
	moveCounters map[pointKey]int
	flows        map[gestureKey]*gestureFlow

	penActive  bool
	penSilence sched.Handle

	merge mergeState

	absorbedTotal  uint64
	decimatedTotal uint64
}

// New constructs a stabilizer forwarding into next.
func New(cfg Config, next Downstream, deps Deps) *Stabilizer {
	if cfg.ChangeDropRate < 1 {
		cfg.ChangeDropRate = 1
	}
	if cfg.GestureDropRate < 1 {
		cfg.GestureDropRate = 1
	}
	run := deps.Run
	if run == nil {
		run = func(fn func()) { fn() }
	}
	seq := deps.Seq
	if seq == nil {
		seq = func() uint64 { return 0 }
	}
	s := &Stabilizer{
		cfg:          cfg,
		next:         next,
		sched:        deps.Scheduler,
		run:          run,
		pub:          deps.Publisher,
		seq:          seq,
		pending:      make(map[pointKey]sched.Handle),
		moveCounters: make(map[pointKey]int),
		flows:        make(map[gestureKey]*gestureFlow),
	}
	s.merge.reset()
	return s
}

// AbsorbedTotal reports how many flicker pairs were cancelled.
func (s *Stabilizer) AbsorbedTotal() uint64 { return s.absorbedTotal }

// DecimatedTotal reports how many change messages were withheld.
func (s *Stabilizer) DecimatedTotal() uint64 { return s.decimatedTotal }

// HandlePoint routes one staged point message.
func (s *Stabilizer) HandlePoint(input proto.PointInput) error {
	if input.Category == lifecycle.CategoryPen && !input.HasState {
		return s.handleStatelessPen(input)
	}

	id := input.ID
	if input.Category == lifecycle.CategoryPen && id == "" {
		id = SyntheticPenID
	}

	switch input.State {
	case lifecycle.PhaseStart:
		return s.pointStart(input.Category, id, input.X, input.Y)
	case lifecycle.PhaseChange:
		return s.pointMove(input.Category, id, input.X, input.Y)
	case lifecycle.PhaseEnd:
		if input.Category == lifecycle.CategoryPen {
			s.cancelPenSilence()
			s.penActive = false
		}
		return s.pointEnd(input.Category, id)
	}
	return nil
}

// handleStatelessPen derives start/move/end for the identifier-less pen
// stream purely from activity.
func (s *Stabilizer) handleStatelessPen(input proto.PointInput) error {
	s.armPenSilence()
	if !s.penActive {
		s.penActive = true
		logprotocol.PenStateDerived(context.Background(), s.pub, s.seq(), s.penActor(), logprotocol.PenPayload{State: "start"})
		return s.pointStart(lifecycle.CategoryPen, SyntheticPenID, input.X, input.Y)
	}
	return s.pointMove(lifecycle.CategoryPen, SyntheticPenID, input.X, input.Y)
}

func (s *Stabilizer) armPenSilence() {
	s.cancelPenSilence()
	if s.sched == nil || s.cfg.PenSilenceTimeout <= 0 {
		return
	}
	s.penSilence = s.sched.Schedule(s.cfg.PenSilenceTimeout, func() {
		s.run(s.penSilenceExpired)
	})
}

func (s *Stabilizer) cancelPenSilence() {
	if s.penSilence != 0 && s.sched != nil {
		s.sched.Cancel(s.penSilence)
	}
	s.penSilence = 0
}

func (s *Stabilizer) penSilenceExpired() {
	s.penSilence = 0
	if !s.penActive {
		return
	}
	s.penActive = false
	logprotocol.PenStateDerived(context.Background(), s.pub, s.seq(), s.penActor(), logprotocol.PenPayload{State: "end"})
	if err := s.pointEnd(lifecycle.CategoryPen, SyntheticPenID); err != nil {
		s.logDrop("pen silence end rejected: " + err.Error())
	}
}

// pointStart forwards a start unless it cancels a buffered end for the
// same identifier, in which case both messages vanish and the contact is
// treated as continuous.
func (s *Stabilizer) pointStart(category lifecycle.Category, id string, x, y float64) error {
	key := pointKey{category, id}
	if handle, ok := s.pending[key]; ok {
		if s.sched != nil {
			s.sched.Cancel(handle)
		}
		delete(s.pending, key)
		s.absorbedTotal++
		logprotocol.FlickerAbsorbed(context.Background(), s.pub, s.seq(), s.pointActor(id), logprotocol.FlickerPayload{Category: string(category)})
		return nil
	}
	return s.next.PointStart(category, id, x, y)
}

// pointMove forwards every Nth move per identifier.
func (s *Stabilizer) pointMove(category lifecycle.Category, id string, x, y float64) error {
	key := pointKey{category, id}
	count := s.moveCounters[key]
	s.moveCounters[key] = count + 1
	if count%s.cfg.ChangeDropRate != 0 {
		s.decimatedTotal++
		return nil
	}
	return s.next.PointMove(category, id, x, y)
}

// pointEnd buffers the end behind the reanimation window, or forwards it
// immediately when buffering is off.
func (s *Stabilizer) pointEnd(category lifecycle.Category, id string) error {
	key := pointKey{category, id}
	if !s.cfg.DoBuffering || s.cfg.ReanimationTimeout <= 0 || s.sched == nil {
		return s.commitEnd(key)
	}
	if _, ok := s.pending[key]; ok {
		// A second end while one is buffered carries no new information.
		return nil
	}
	s.pending[key] = s.sched.Schedule(s.cfg.ReanimationTimeout, func() {
		s.run(func() { s.removalExpired(key) })
	})
	return nil
}

func (s *Stabilizer) removalExpired(key pointKey) {
	if _, ok := s.pending[key]; !ok {
		return
	}
	delete(s.pending, key)
	logprotocol.RemovalCommitted(context.Background(), s.pub, s.seq(), s.pointActor(key.id), logprotocol.FlickerPayload{Category: string(key.category)})
	if err := s.commitEnd(key); err != nil {
		s.logDrop("buffered end rejected: " + err.Error())
	}
}

func (s *Stabilizer) commitEnd(key pointKey) error {
	delete(s.moveCounters, key)
	return s.next.PointEnd(key.category, key.id)
}

// HandleGesture routes one staged gesture message, converting rotation
// deltas to degrees before any merge logic inspects them.
func (s *Stabilizer) HandleGesture(input proto.GestureInput) error {
	scale := 1.0
	if input.Scale != nil {
		scale = *input.Scale
	}
	rotation := 0.0
	if input.Rotation != nil {
		rotation = geom.Degrees(*input.Rotation)
	}

	if s.cfg.MergeGestures && (input.Kind == lifecycle.GestureScale || input.Kind == lifecycle.GestureRotate) {
		return s.handleMerge(input, scale, rotation)
	}

	switch input.State {
	case lifecycle.PhaseStart:
		var pivot lifecycle.Coords
		if input.Pivot != nil {
			pivot = *input.Pivot
		}
		return s.next.GestureStart(input.Kind, input.ID, &pivot, input.Touches)
	case lifecycle.PhaseChange:
		return s.gestureChange(gestureKey{input.Kind, input.ID}, scale, rotation, input.Pivot, input.Touches)
	case lifecycle.PhaseEnd:
		return s.gestureEnd(gestureKey{input.Kind, input.ID})
	}
	return nil
}

func (s *Stabilizer) flow(key gestureKey) *gestureFlow {
	f, ok := s.flows[key]
	if !ok {
		f = &gestureFlow{pendingScale: 1}
		s.flows[key] = f
	}
	return f
}

// gestureChange decimates per instance while folding withheld deltas into
// the next forwarded change.
func (s *Stabilizer) gestureChange(key gestureKey, scale, rotation float64, pivot *lifecycle.Coords, touches []lifecycle.Coords) error {
	f := s.flow(key)
	f.pendingScale *= scale
	f.pendingRotation += rotation
	count := f.count
	f.count++
	if count%s.cfg.GestureDropRate != 0 {
		s.decimatedTotal++
		return nil
	}
	forwardScale, forwardRotation := f.pendingScale, f.pendingRotation
	f.pendingScale, f.pendingRotation = 1, 0
	return s.next.GestureChange(key.kind, key.id, forwardScale, forwardRotation, pivot, touches)
}

// gestureEnd flushes any withheld deltas so the final accumulated state
// is exact, then forwards the end and discards the flow.
func (s *Stabilizer) gestureEnd(key gestureKey) error {
	if f, ok := s.flows[key]; ok {
		if f.pendingScale != 1 || f.pendingRotation != 0 {
			if err := s.next.GestureChange(key.kind, key.id, f.pendingScale, f.pendingRotation, nil, nil); err != nil {
				return err
			}
		}
		delete(s.flows, key)
	}
	return s.next.GestureEnd(key.kind, key.id)
}

func (s *Stabilizer) logDrop(reason string) {
	logprotocol.MessageDropped(context.Background(), s.pub, s.seq(), logging.EntityRef{Kind: logging.EntityKindStream}, logprotocol.DropPayload{Reason: reason})
}

func (s *Stabilizer) pointActor(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindPoint}
}

func (s *Stabilizer) penActor() logging.EntityRef {
	return logging.EntityRef{ID: SyntheticPenID, Kind: logging.EntityKindPoint}
}
