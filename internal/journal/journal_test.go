package journal

import (
	"testing"
	"time"

	"sensorbridge/server/internal/lifecycle"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestJournal(t)

	now := time.Now()
	events := []lifecycle.Event{
		{Kind: "touchstart", ID: "1", Target: "panel", Position: lifecycle.Coords{X: 10, Y: 20}},
		{Kind: "touchmove", ID: "1", Target: "panel", Position: lifecycle.Coords{X: 12, Y: 20}},
		{Kind: "touchend", ID: "1", Target: "panel", Position: lifecycle.Coords{X: 12, Y: 20}},
	}
	for i, event := range events {
		if err := j.Append(uint64(i+1), now, event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := j.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Seq != 3 || entries[0].Kind != "touchend" {
		t.Fatalf("newest first: %+v", entries[0])
	}
	if entries[0].Event.Position.X != 12 {
		t.Fatalf("payload round trip lost position: %+v", entries[0].Event)
	}
}

func TestTotalsGroupByKind(t *testing.T) {
	j := openTestJournal(t)

	now := time.Now()
	kinds := []string{"touchstart", "touchmove", "touchmove", "touchend"}
	for i, kind := range kinds {
		event := lifecycle.Event{Kind: lifecycle.EventKind(kind), ID: "1"}
		if err := j.Append(uint64(i+1), now, event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	totals, err := j.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals["touchmove"] != 2 || totals["touchstart"] != 1 || totals["touchend"] != 1 {
		t.Fatalf("unexpected totals: %v", totals)
	}
}

func TestDuplicateSeqRejected(t *testing.T) {
	j := openTestJournal(t)

	event := lifecycle.Event{Kind: "touchstart", ID: "1"}
	if err := j.Append(7, time.Now(), event); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Append(7, time.Now(), event); err == nil {
		t.Fatalf("duplicate sequence must be rejected")
	}
}
