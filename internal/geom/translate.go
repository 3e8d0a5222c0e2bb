package geom

import "math"

// Mode selects how protocol coordinates map onto the pixel surface.
type Mode string

const (
	// ModeNormalized treats incoming coordinates as fractions of the
	// surface size (0..1 on both axes).
	ModeNormalized Mode = "normalized"
	// ModeBrowserRelative treats incoming coordinates as pixels already.
	ModeBrowserRelative Mode = "browserRelative"
)

// Translator converts protocol-relative coordinates into absolute pixels.
// It carries no state beyond the surface dimensions.
type Translator struct {
	Mode   Mode
	Width  float64
	Height float64
}

// Pixel maps a protocol coordinate pair onto the surface.
func (t Translator) Pixel(x, y float64) (float64, float64) {
	switch t.Mode {
	case ModeBrowserRelative:
		return x, y
	default:
		return x * t.Width, y * t.Height
	}
}

// Degrees converts a relative rotation delta from radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
