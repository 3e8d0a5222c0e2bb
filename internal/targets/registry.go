// Package targets maintains the set of rectangular regions events can
// resolve onto. Regions are registered by feed consumers or operators and
// looked up on every point start and gesture start.
package targets

import (
	"sort"
	"sync"

	"sensorbridge/server/internal/lifecycle"
)

// Region is one rectangular hit area on the surface, in pixels.
type Region struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Region) contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Registry is a mutex-guarded region set implementing
// lifecycle.TargetResolver. Registration order decides overlap ties: the
// most recently added region wins.
type Registry struct {
	mu      sync.RWMutex
	regions []Region
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a region, replacing any existing region of the same name.
func (r *Registry) Add(region Region) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.regions {
		if r.regions[i].Name == region.Name {
			r.regions = append(r.regions[:i], r.regions[i+1:]...)
			break
		}
	}
	r.regions = append(r.regions, region)
}

// Remove drops a region by name. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.regions {
		if r.regions[i].Name == name {
			r.regions = append(r.regions[:i], r.regions[i+1:]...)
			return true
		}
	}
	return false
}

// Resolve reports the region containing the position, if any.
func (r *Registry) Resolve(x, y float64) (lifecycle.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.regions) - 1; i >= 0; i-- {
		if r.regions[i].contains(x, y) {
			return lifecycle.Target(r.regions[i].Name), true
		}
	}
	return "", false
}

// List returns the registered regions sorted by name.
func (r *Registry) List() []Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Region, len(r.regions))
	copy(out, r.regions)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
