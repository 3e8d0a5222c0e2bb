package lifecycle

import (
	"context"

	"sensorbridge/server/logging"
	loglifecycle "sensorbridge/server/logging/lifecycle"
)

// PointConfig carries the policies the point engine enforces.
type PointConfig struct {
	// FixStartEventLack heals a move with no matching start by
	// synthesizing the start at the move's coordinates.
	FixStartEventLack bool
	// TriggerMouseClick expands a tap (start directly followed by end)
	// into a synthetic mouse move/press/release/click sequence.
	TriggerMouseClick bool
}

// PointDeps are the collaborators the engine calls out to.
type PointDeps struct {
	Resolver  TargetResolver
	Sink      Sink
	Publisher logging.Publisher
	Seq       func() uint64
}

// PointRecord is the mutable per-identifier state. Owned exclusively by
// the engine; only snapshots leave it.
type PointRecord struct {
	ID       string
	Category Category
	Target   Target
	Position Coords
}

func (r *PointRecord) snapshot() PointSnapshot {
	return PointSnapshot{
		ID:       r.ID,
		Target:   r.Target,
		Position: r.Position,
		Screen:   r.Position,
		Page:     r.Position,
		Client:   r.Position,
	}
}

// pointCollection keeps active records in arrival order so emitted views
// are deterministic.
type pointCollection struct {
	byID  map[string]*PointRecord
	order []*PointRecord
}

func newPointCollection() *pointCollection {
	return &pointCollection{byID: make(map[string]*PointRecord)}
}

func (c *pointCollection) get(id string) (*PointRecord, bool) {
	record, ok := c.byID[id]
	return record, ok
}

func (c *pointCollection) add(record *PointRecord) {
	c.byID[record.ID] = record
	c.order = append(c.order, record)
}

func (c *pointCollection) remove(id string) {
	delete(c.byID, id)
	for i, record := range c.order {
		if record.ID == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *pointCollection) snapshots(skip string) []PointSnapshot {
	views := make([]PointSnapshot, 0, len(c.order))
	for _, record := range c.order {
		if record.ID == skip {
			continue
		}
		views = append(views, record.snapshot())
	}
	return views
}

func (c *pointCollection) snapshotsOnTarget(target Target, skip string) []PointSnapshot {
	views := make([]PointSnapshot, 0, len(c.order))
	for _, record := range c.order {
		if record.ID == skip || record.Target != target {
			continue
		}
		views = append(views, record.snapshot())
	}
	return views
}

// PointEngine owns the per-category point collections and emits
// start/move/end events with W3C-Touch-like derived views.
type PointEngine struct {
	cfg      PointConfig
	resolver TargetResolver
	sink     Sink
	pub      logging.Publisher
	seq      func() uint64

	points    map[Category]*pointCollection
	lastPhase map[pointKey]Phase
}

type pointKey struct {
	category Category
	id       string
}

// NewPointEngine constructs an engine with empty collections.
func NewPointEngine(cfg PointConfig, deps PointDeps) *PointEngine {
	seq := deps.Seq
	if seq == nil {
		seq = func() uint64 { return 0 }
	}
	return &PointEngine{
		cfg:       cfg,
		resolver:  deps.Resolver,
		sink:      deps.Sink,
		pub:       deps.Publisher,
		seq:       seq,
		points:    make(map[Category]*pointCollection),
		lastPhase: make(map[pointKey]Phase),
	}
}

func (e *PointEngine) collection(category Category) *pointCollection {
	coll, ok := e.points[category]
	if !ok {
		coll = newPointCollection()
		e.points[category] = coll
	}
	return coll
}

// Active reports whether an identifier currently holds a record.
func (e *PointEngine) Active(category Category, id string) bool {
	_, ok := e.collection(category).get(id)
	return ok
}

// ActiveCount reports how many records a category holds.
func (e *PointEngine) ActiveCount(category Category) int {
	return len(e.collection(category).byID)
}

// Start activates an identifier and emits the start event.
func (e *PointEngine) Start(category Category, id string, x, y float64) error {
	coll := e.collection(category)
	if _, ok := coll.get(id); ok {
		return &DuplicateIdentifierError{Stream: string(category), ID: id}
	}

	record := &PointRecord{ID: id, Category: category, Position: Coords{X: x, Y: y}}
	if e.resolver != nil {
		if target, ok := e.resolver.Resolve(x, y); ok {
			record.Target = target
		}
	}
	coll.add(record)
	e.lastPhase[pointKey{category, id}] = PhaseStart

	e.emit(PointKind(category, PhaseStart), record, coll, false)
	loglifecycle.PointStarted(context.Background(), e.pub, e.seq(), e.actor(id), loglifecycle.PointPayload{
		Category: string(category),
		X:        x,
		Y:        y,
		Target:   string(record.Target),
	})
	return nil
}

// Move updates an identifier's position and emits the move event. A move
// for an unknown identifier heals via start synthesis when configured.
func (e *PointEngine) Move(category Category, id string, x, y float64) error {
	coll := e.collection(category)
	record, ok := coll.get(id)
	if !ok {
		if !e.cfg.FixStartEventLack {
			return &OrphanMoveError{Stream: string(category), ID: id}
		}
		if err := e.Start(category, id, x, y); err != nil {
			return err
		}
		loglifecycle.StartSynthesized(context.Background(), e.pub, e.seq(), e.actor(id), loglifecycle.PointPayload{
			Category: string(category),
			X:        x,
			Y:        y,
		})
		record, _ = coll.get(id)
	}

	record.Position = Coords{X: x, Y: y}
	e.lastPhase[pointKey{category, id}] = PhaseChange
	e.emit(PointKind(category, PhaseChange), record, coll, false)
	return nil
}

// End terminates an identifier, emits the end event, and expands taps
// into a click sequence when the policy allows.
func (e *PointEngine) End(category Category, id string) error {
	coll := e.collection(category)
	record, ok := coll.get(id)
	if !ok {
		return &OrphanEndError{Stream: string(category), ID: id}
	}

	// End views exclude the departing point everywhere except "changed".
	e.emit(PointKind(category, PhaseEnd), record, coll, true)

	key := pointKey{category, id}
	wasTap := e.lastPhase[key] == PhaseStart
	coll.remove(id)
	delete(e.lastPhase, key)

	loglifecycle.PointEnded(context.Background(), e.pub, e.seq(), e.actor(id), loglifecycle.PointPayload{
		Category: string(category),
		X:        record.Position.X,
		Y:        record.Position.Y,
		Target:   string(record.Target),
	})

	if wasTap && e.cfg.TriggerMouseClick {
		e.synthesizeClick(record)
	}
	return nil
}

func (e *PointEngine) synthesizeClick(record *PointRecord) {
	for _, kind := range []EventKind{KindMouseMove, KindMousePress, KindMouseRelease, KindMouseClick} {
		e.dispatch(Event{
			Kind:     kind,
			Category: record.Category,
			ID:       record.ID,
			Target:   record.Target,
			Position: record.Position,
			Screen:   record.Position,
			Page:     record.Position,
			Client:   record.Position,
		}, record.Target)
	}
	loglifecycle.ClickSynthesized(context.Background(), e.pub, e.seq(), e.actor(record.ID), loglifecycle.PointPayload{
		Category: string(record.Category),
		X:        record.Position.X,
		Y:        record.Position.Y,
		Target:   string(record.Target),
	})
}

func (e *PointEngine) emit(kind EventKind, record *PointRecord, coll *pointCollection, ending bool) {
	skip := ""
	if ending {
		skip = record.ID
	}
	event := Event{
		Kind:         kind,
		Category:     record.Category,
		ID:           record.ID,
		Target:       record.Target,
		Position:     record.Position,
		Screen:       record.Position,
		Page:         record.Position,
		Client:       record.Position,
		Points:       coll.snapshots(skip),
		TargetPoints: coll.snapshotsOnTarget(record.Target, skip),
		Changed:      []PointSnapshot{record.snapshot()},
	}
	e.dispatch(event, record.Target)
}

func (e *PointEngine) dispatch(event Event, target Target) {
	if e.sink == nil {
		return
	}
	e.sink.Dispatch(event, target)
}

func (e *PointEngine) actor(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindPoint}
}
