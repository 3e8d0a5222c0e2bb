package stabilize

import (
	"context"

	"sensorbridge/server/internal/lifecycle"
	"sensorbridge/server/internal/proto"
	"sensorbridge/server/logging"
	logprotocol "sensorbridge/server/logging/protocol"
)

// mergeState fuses the sensor's independently-reported scale and rotate
// streams into one compound transform stream. The first sub-stream start
// is withheld until a pivot is known, because a compound start without a
// pivot cannot be targeted.
type mergeState struct {
	buffered bool
	id       string
	touches  []lifecycle.Coords

	started   bool
	pivot     lifecycle.Coords
	havePivot bool

	// Accumulated absolute values over the whole episode, kept for
	// diagnostics and the merge log channel.
	scale    float64
	rotation float64

	// Deltas seen but not yet forwarded, folded into the next change.
	pendingScale    float64
	pendingRotation float64

	count int
}

func (m *mergeState) reset() {
	*m = mergeState{scale: 1, pendingScale: 1}
}

// handleMerge routes one scale or rotate message through the compound
// merge. scale and rotation are the message deltas, rotation already in
// degrees.
func (s *Stabilizer) handleMerge(input proto.GestureInput, scale, rotation float64) error {
	switch input.State {
	case lifecycle.PhaseStart:
		return s.mergeStart(input)
	case lifecycle.PhaseChange:
		return s.mergeChange(input, scale, rotation)
	case lifecycle.PhaseEnd:
		return s.mergeEnd()
	}
	return nil
}

func (s *Stabilizer) mergeStart(input proto.GestureInput) error {
	m := &s.merge
	if m.started || m.buffered {
		// The sibling's start is represented by the compound stream.
		return nil
	}
	m.buffered = true
	m.id = input.ID
	m.touches = input.Touches
	if input.Pivot != nil {
		m.pivot = *input.Pivot
		m.havePivot = true
	}
	return s.releaseMerge()
}

func (s *Stabilizer) mergeChange(input proto.GestureInput, scale, rotation float64) error {
	m := &s.merge
	if m.id == "" {
		m.id = input.ID
	}
	m.pendingScale *= scale
	m.pendingRotation += rotation
	if input.Pivot != nil {
		m.pivot = *input.Pivot
		m.havePivot = true
	}
	if len(input.Touches) > 0 {
		m.touches = input.Touches
	}

	if !m.started {
		// Changes arriving before the sibling's pivot stay withheld; a
		// mid-stream join without a buffered start still releases once a
		// pivot is known.
		if !m.buffered {
			m.buffered = true
		}
		return s.releaseMerge()
	}

	count := m.count
	m.count++
	if count%s.cfg.GestureDropRate != 0 {
		s.decimatedTotal++
		return nil
	}
	return s.flushMergeDeltas(input.Pivot)
}

// releaseMerge emits the compound start once a pivot is known, followed
// by one change carrying every delta accumulated while buffered.
func (s *Stabilizer) releaseMerge() error {
	m := &s.merge
	if m.started || !m.buffered || !m.havePivot {
		return nil
	}
	m.started = true
	pivot := m.pivot
	if err := s.next.GestureStart(lifecycle.GestureTransform, m.id, &pivot, m.touches); err != nil {
		return err
	}
	logprotocol.MergeStarted(context.Background(), s.pub, s.seq(), s.mergeActor(), logprotocol.MergePayload{})
	m.count = 1
	if m.pendingScale != 1 || m.pendingRotation != 0 {
		return s.flushMergeDeltas(&pivot)
	}
	return nil
}

func (s *Stabilizer) flushMergeDeltas(pivot *lifecycle.Coords) error {
	m := &s.merge
	forwardScale, forwardRotation := m.pendingScale, m.pendingRotation
	m.scale *= forwardScale
	m.rotation += forwardRotation
	m.pendingScale, m.pendingRotation = 1, 0
	return s.next.GestureChange(lifecycle.GestureTransform, m.id, forwardScale, forwardRotation, pivot, nil)
}

// mergeEnd tears the whole episode down on either sub-stream's end, so
// one compound start pairs with exactly one compound end.
func (s *Stabilizer) mergeEnd() error {
	m := &s.merge
	started := m.started
	id := m.id
	scale, rotation := m.scale*m.pendingScale, m.rotation+m.pendingRotation
	pendingScale, pendingRotation := m.pendingScale, m.pendingRotation
	m.reset()
	if !started {
		return nil
	}
	if pendingScale != 1 || pendingRotation != 0 {
		if err := s.next.GestureChange(lifecycle.GestureTransform, id, pendingScale, pendingRotation, nil, nil); err != nil {
			return err
		}
	}
	if err := s.next.GestureEnd(lifecycle.GestureTransform, id); err != nil {
		return err
	}
	logprotocol.MergeEnded(context.Background(), s.pub, s.seq(), logging.EntityRef{ID: id, Kind: logging.EntityKindGesture}, logprotocol.MergePayload{Scale: scale, Rotation: rotation})
	return nil
}

func (s *Stabilizer) mergeActor() logging.EntityRef {
	return logging.EntityRef{ID: s.merge.id, Kind: logging.EntityKindGesture}
}
