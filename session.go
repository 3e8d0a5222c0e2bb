package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sensorbridge/server/internal/geom"
	"sensorbridge/server/internal/journal"
	"sensorbridge/server/internal/lifecycle"
	"sensorbridge/server/internal/proto"
	"sensorbridge/server/internal/sched"
	"sensorbridge/server/internal/stabilize"
	"sensorbridge/server/internal/targets"
	"sensorbridge/server/logging"
	logprotocol "sensorbridge/server/logging/protocol"
)

const writeWait = 10 * time.Second

// SessionDeps are the session's external collaborators. Zero-value fields
// get production defaults; tests inject a manual scheduler, a frozen
// clock, and a tap sink.
type SessionDeps struct {
	Scheduler sched.Scheduler
	Clock     func() time.Time
	Publisher logging.Publisher
	Journal   *journal.Journal
	Registry  *targets.Registry
	// Tap receives every emitted event alongside the feed subscribers.
	Tap lifecycle.Sink
}

// Session owns one end-to-end normalization pipeline: stabilizer, engines,
// registry, journal, and the feed subscribers. All message processing is
// serialized by the session mutex; timer callbacks re-enter through it.
type Session struct {
	mu  sync.Mutex
	cfg SessionConfig

	clock      func() time.Time
	pub        logging.Publisher
	translator geom.Translator

	stab     *stabilize.Stabilizer
	points   *lifecycle.PointEngine
	gestures *lifecycle.GestureEngine
	registry *targets.Registry
	journal  *journal.Journal
	tap      lifecycle.Sink

	subscribers map[uint64]*subscriber
	nextSub     uint64

	logSeq   uint64
	eventSeq uint64
	received uint64
	rejected uint64
	emitted  uint64

	lastHeartbeat time.Time
	lastRTT       time.Duration
	started       time.Time
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewSession wires the pipeline together.
func NewSession(cfg SessionConfig, deps SessionDeps) *Session {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	pub := deps.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	registry := deps.Registry
	if registry == nil {
		registry = targets.NewRegistry()
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = sched.NewReal()
	}

	s := &Session{
		cfg:   cfg,
		clock: clock,
		pub:   pub,
		translator: geom.Translator{
			Mode:   cfg.CoordinateMode,
			Width:  cfg.SurfaceWidth,
			Height: cfg.SurfaceHeight,
		},
		registry:    registry,
		journal:     deps.Journal,
		tap:         deps.Tap,
		subscribers: make(map[uint64]*subscriber),
		started:     clock(),
	}

	s.points = lifecycle.NewPointEngine(cfg.Point, lifecycle.PointDeps{
		Resolver:  registry,
		Sink:      s,
		Publisher: pub,
		Seq:       s.nextLogSeq,
	})
	s.gestures = lifecycle.NewGestureEngine(cfg.Gesture, lifecycle.GestureDeps{
		Resolver:  registry,
		Sink:      s,
		Publisher: pub,
		Seq:       s.nextLogSeq,
	})
	s.stab = stabilize.New(cfg.Stabilize, &engineBridge{s: s}, stabilize.Deps{
		Scheduler: scheduler,
		Run:       s.locked,
		Publisher: pub,
		Seq:       s.nextLogSeq,
	})
	return s
}

// Targets exposes the region registry for the HTTP surface.
func (s *Session) Targets() *targets.Registry { return s.registry }

func (s *Session) nextLogSeq() uint64 {
	s.logSeq++
	return s.logSeq
}

// locked runs fn under the session mutex. Scheduler callbacks enter the
// pipeline through here.
func (s *Session) locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Process runs one staged message through the pipeline. The returned
// error reports a rejection; the caller decides whether that is fatal to
// the connection.
func (s *Session) Process(input proto.Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received++
	var err error
	switch in := input.(type) {
	case proto.PointInput:
		err = s.stab.HandlePoint(in)
	case proto.GestureInput:
		err = s.stab.HandleGesture(in)
	case proto.HeartbeatInput:
		// Acknowledged at the transport layer.
	}
	if err != nil {
		s.rejected++
		logprotocol.MessageDropped(context.Background(), s.pub, s.nextLogSeq(),
			logging.EntityRef{Kind: logging.EntityKindStream}, logprotocol.DropPayload{Reason: err.Error()})
	}
	return err
}

// DecodeFailed records a message dropped at the decode boundary: the
// rejection is counted against the stream and published on the log
// channel together with the offending payload snapshot.
func (s *Session) DecodeFailed(derr *proto.DecodeError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received++
	s.rejected++
	logprotocol.DecodeFailed(context.Background(), s.pub, s.nextLogSeq(),
		logging.EntityRef{Kind: logging.EntityKindStream},
		logprotocol.DropPayload{Reason: derr.Reason, Message: derr.Raw})
}

// Heartbeat records sensor liveness and returns the measured RTT.
func (s *Session) Heartbeat(receivedAt time.Time, clientSent int64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeartbeat = receivedAt
	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			s.lastRTT = rtt
		}
	}
	return s.lastRTT
}

// Subscribe registers a feed connection and returns its handle.
func (s *Session) Subscribe(conn *websocket.Conn) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	s.subscribers[s.nextSub] = &subscriber{conn: conn}
	return s.nextSub
}

// Unsubscribe removes a feed connection. The caller closes it.
func (s *Session) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

// Dispatch implements lifecycle.Sink: it assigns the event sequence,
// journals the event, and fans it out to every feed subscriber. Invoked
// by the engines while the session mutex is held.
func (s *Session) Dispatch(event lifecycle.Event, target lifecycle.Target) bool {
	s.eventSeq++
	now := s.clock()
	s.emitted++

	if s.journal != nil {
		if err := s.journal.Append(s.eventSeq, now, event); err != nil {
			logprotocol.MessageDropped(context.Background(), s.pub, s.nextLogSeq(),
				logging.EntityRef{Kind: logging.EntityKindSession}, logprotocol.DropPayload{Reason: "journal append: " + err.Error()})
		}
	}

	delivered := false
	if s.tap != nil && s.tap.Dispatch(event, target) {
		delivered = true
	}
	if len(s.subscribers) == 0 {
		return delivered
	}

	msg := proto.EventMessage{
		Ver:        proto.Version,
		Type:       proto.TypeEvent,
		Seq:        s.eventSeq,
		ServerTime: now.UnixMilli(),
		Event:      event,
	}
	data, err := proto.EncodeEvent(msg)
	if err != nil {
		logprotocol.MessageDropped(context.Background(), s.pub, s.nextLogSeq(),
			logging.EntityRef{Kind: logging.EntityKindSession}, logprotocol.DropPayload{Reason: "encode event: " + err.Error()})
		return delivered
	}

	var stale []uint64
	for id, sub := range s.subscribers {
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		writeErr := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if writeErr != nil {
			stale = append(stale, id)
			continue
		}
		delivered = true
	}
	for _, id := range stale {
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			sub.conn.Close()
		}
	}
	return delivered
}

// RecentEvents returns the newest journalled events, newest first. A
// session running without a journal reports none.
func (s *Session) RecentEvents(limit int) ([]journal.Entry, error) {
	s.mu.Lock()
	j := s.journal
	s.mu.Unlock()
	if j == nil {
		return nil, nil
	}
	return j.Recent(limit)
}

// Diagnostics snapshots pipeline health for the HTTP surface.
func (s *Session) Diagnostics() Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Diagnostics{
		UptimeMillis:   s.clock().Sub(s.started).Milliseconds(),
		Received:       s.received,
		Emitted:        s.emitted,
		Rejected:       s.rejected,
		Absorbed:       s.stab.AbsorbedTotal(),
		Decimated:      s.stab.DecimatedTotal(),
		ActiveTouches:  s.points.ActiveCount(lifecycle.CategoryTouch),
		ActivePens:     s.points.ActiveCount(lifecycle.CategoryPen),
		ActiveGestures: s.gestures.ActiveCount(),
		Subscribers:    len(s.subscribers),
		RTTMillis:      s.lastRTT.Milliseconds(),
	}
	if !s.lastHeartbeat.IsZero() {
		d.LastHeartbeat = s.lastHeartbeat.UnixMilli()
	}
	if s.journal != nil {
		if totals, err := s.journal.Totals(); err == nil {
			d.EventTotals = totals
		}
	}
	return d
}

// Close drops every feed subscriber.
func (s *Session) Close() {
	s.mu.Lock()
	subs := s.subscribers
	s.subscribers = make(map[uint64]*subscriber)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.conn.Close()
	}
}

// engineBridge adapts the stabilizer's repaired output onto the engines,
// translating protocol coordinates into surface pixels on the way.
type engineBridge struct {
	s *Session
}

func (b *engineBridge) PointStart(category lifecycle.Category, id string, x, y float64) error {
	px, py := b.s.translator.Pixel(x, y)
	return b.s.points.Start(category, id, px, py)
}

func (b *engineBridge) PointMove(category lifecycle.Category, id string, x, y float64) error {
	px, py := b.s.translator.Pixel(x, y)
	return b.s.points.Move(category, id, px, py)
}

func (b *engineBridge) PointEnd(category lifecycle.Category, id string) error {
	return b.s.points.End(category, id)
}

func (b *engineBridge) GestureStart(kind lifecycle.GestureKind, id string, pivot *lifecycle.Coords, touches []lifecycle.Coords) error {
	var p lifecycle.Coords
	if pivot != nil {
		p = b.pixelCoords(*pivot)
	}
	return b.s.gestures.Start(kind, id, p, b.pixelTouches(touches))
}

func (b *engineBridge) GestureChange(kind lifecycle.GestureKind, id string, scale, rotationDeg float64, pivot *lifecycle.Coords, touches []lifecycle.Coords) error {
	var p *lifecycle.Coords
	if pivot != nil {
		translated := b.pixelCoords(*pivot)
		p = &translated
	}
	return b.s.gestures.Change(kind, id, scale, rotationDeg, p, b.pixelTouches(touches))
}

func (b *engineBridge) GestureEnd(kind lifecycle.GestureKind, id string) error {
	return b.s.gestures.End(kind, id)
}

func (b *engineBridge) pixelCoords(c lifecycle.Coords) lifecycle.Coords {
	x, y := b.s.translator.Pixel(c.X, c.Y)
	return lifecycle.Coords{X: x, Y: y}
}

func (b *engineBridge) pixelTouches(touches []lifecycle.Coords) []lifecycle.Coords {
	if len(touches) == 0 {
		return nil
	}
	out := make([]lifecycle.Coords, len(touches))
	for i, t := range touches {
		out[i] = b.pixelCoords(t)
	}
	return out
}
