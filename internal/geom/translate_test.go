package geom

import (
	"math"
	"testing"
)

func TestPixelNormalized(t *testing.T) {
	tr := Translator{Mode: ModeNormalized, Width: 800, Height: 600}

	cases := []struct {
		name         string
		x, y         float64
		wantX, wantY float64
	}{
		{"origin", 0, 0, 0, 0},
		{"center", 0.5, 0.5, 400, 300},
		{"bottom-right", 1, 1, 800, 600},
		{"asymmetric", 0.25, 0.75, 200, 450},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotX, gotY := tr.Pixel(tc.x, tc.y)
			if gotX != tc.wantX || gotY != tc.wantY {
				t.Fatalf("Pixel(%v, %v) = (%v, %v), want (%v, %v)", tc.x, tc.y, gotX, gotY, tc.wantX, tc.wantY)
			}
		})
	}
}

func TestPixelBrowserRelative(t *testing.T) {
	tr := Translator{Mode: ModeBrowserRelative, Width: 800, Height: 600}
	gotX, gotY := tr.Pixel(123.5, 456.25)
	if gotX != 123.5 || gotY != 456.25 {
		t.Fatalf("browser-relative coordinates must pass through, got (%v, %v)", gotX, gotY)
	}
}

func TestDegrees(t *testing.T) {
	if got := Degrees(math.Pi); math.Abs(got-180) > 1e-9 {
		t.Fatalf("Degrees(pi) = %v, want 180", got)
	}
	if got := Degrees(-math.Pi / 2); math.Abs(got+90) > 1e-9 {
		t.Fatalf("Degrees(-pi/2) = %v, want -90", got)
	}
	if got := Degrees(0); got != 0 {
		t.Fatalf("Degrees(0) = %v, want 0", got)
	}
}
