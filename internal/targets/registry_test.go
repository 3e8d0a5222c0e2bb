package targets

import "testing"

func TestResolveInsideRegion(t *testing.T) {
	registry := NewRegistry()
	registry.Add(Region{Name: "panel", X: 100, Y: 100, Width: 200, Height: 100})

	target, ok := registry.Resolve(150, 150)
	if !ok || target != "panel" {
		t.Fatalf("Resolve(150,150) = %q, %v", target, ok)
	}
	if _, ok := registry.Resolve(50, 50); ok {
		t.Fatalf("position outside every region must not resolve")
	}
	// Right and bottom edges are exclusive.
	if _, ok := registry.Resolve(300, 150); ok {
		t.Fatalf("right edge must be exclusive")
	}
}

func TestOverlapMostRecentWins(t *testing.T) {
	registry := NewRegistry()
	registry.Add(Region{Name: "under", X: 0, Y: 0, Width: 100, Height: 100})
	registry.Add(Region{Name: "over", X: 50, Y: 50, Width: 100, Height: 100})

	target, ok := registry.Resolve(75, 75)
	if !ok || target != "over" {
		t.Fatalf("overlap must resolve to the most recent region, got %q", target)
	}
	target, _ = registry.Resolve(25, 25)
	if target != "under" {
		t.Fatalf("non-overlapping area still resolves to the older region, got %q", target)
	}
}

func TestAddReplacesSameName(t *testing.T) {
	registry := NewRegistry()
	registry.Add(Region{Name: "panel", X: 0, Y: 0, Width: 10, Height: 10})
	registry.Add(Region{Name: "panel", X: 100, Y: 100, Width: 10, Height: 10})

	if _, ok := registry.Resolve(5, 5); ok {
		t.Fatalf("replaced region must not resolve")
	}
	if _, ok := registry.Resolve(105, 105); !ok {
		t.Fatalf("replacement region must resolve")
	}
	if got := len(registry.List()); got != 1 {
		t.Fatalf("expected one region after replacement, got %d", got)
	}
}

func TestRemove(t *testing.T) {
	registry := NewRegistry()
	registry.Add(Region{Name: "panel", X: 0, Y: 0, Width: 10, Height: 10})

	if !registry.Remove("panel") {
		t.Fatalf("remove of a known region must report true")
	}
	if registry.Remove("panel") {
		t.Fatalf("remove of an unknown region must report false")
	}
	if _, ok := registry.Resolve(5, 5); ok {
		t.Fatalf("removed region must not resolve")
	}
}
