package server

import (
	"sensorbridge/server/internal/geom"
	"sensorbridge/server/internal/lifecycle"
	"sensorbridge/server/internal/stabilize"
)

// SessionConfig collects every knob of the normalization pipeline.
type SessionConfig struct {
	// SurfaceWidth and SurfaceHeight define the pixel surface that
	// normalized coordinates map onto.
	SurfaceWidth  float64
	SurfaceHeight float64
	// CoordinateMode selects how incoming coordinates are interpreted.
	CoordinateMode geom.Mode

	// Strict makes a rejected message fatal to its connection instead of
	// being logged and skipped.
	Strict bool

	Stabilize stabilize.Config
	Point     lifecycle.PointConfig
	Gesture   lifecycle.GestureConfig
}

// DefaultSessionConfig returns the production defaults: a full-HD surface
// fed by normalized coordinates, with every repair enabled.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SurfaceWidth:   1920,
		SurfaceHeight:  1080,
		CoordinateMode: geom.ModeNormalized,
		Stabilize:      stabilize.DefaultConfig(),
		Point: lifecycle.PointConfig{
			FixStartEventLack: true,
			TriggerMouseClick: true,
		},
		Gesture: lifecycle.GestureConfig{
			FixStartEventLack: true,
		},
	}
}
