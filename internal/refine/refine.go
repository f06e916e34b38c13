// Package refine implements the HSV-based subclass refiner (spec §4.7):
// promoting a generic "person" or "vehicle" detection to its work-uniform
// variant by the fraction of pixels inside configured HSV color windows.
// There is no OpenCV/cgo dependency here — conversion is done directly
// against the stdlib image.Image interface.
package refine

import (
	"image"
	"image/color"
)

// HSVWindow is an inclusive hue/saturation/value band, hue in degrees
// [0,360), saturation and value fractions in [0,1].
type HSVWindow struct {
	HueMin, HueMax float64
	SatMin, SatMax float64
	ValMin, ValMax float64
}

func (w HSVWindow) contains(h, s, v float64) bool {
	hueMatch := false
	if w.HueMin <= w.HueMax {
		hueMatch = h >= w.HueMin && h <= w.HueMax
	} else {
		// wrap-around window, e.g. red spanning 350-10
		hueMatch = h >= w.HueMin || h <= w.HueMax
	}
	return hueMatch && s >= w.SatMin && s <= w.SatMax && v >= w.ValMin && v <= w.ValMax
}

// Config holds the configured HSV windows and thresholds used by Refine
// (spec §6 Configuration: "HSV windows for §4.7").
type Config struct {
	VestWindow          HSVWindow
	VestFraction        float64 // default 0.10
	YellowWindow        HSVWindow
	YellowFraction      float64 // default 0.05
	BlackWindow         HSVWindow
	BlackFraction       float64 // default 0.01
}

// DefaultConfig mirrors the spec's stated defaults: orange-yellow vest
// window, standard yellow/black work-vehicle windows.
func DefaultConfig() Config {
	return Config{
		VestWindow:     HSVWindow{HueMin: 20, HueMax: 50, SatMin: 0.4, SatMax: 1.0, ValMin: 0.4, ValMax: 1.0},
		VestFraction:   0.10,
		YellowWindow:   HSVWindow{HueMin: 40, HueMax: 65, SatMin: 0.3, SatMax: 1.0, ValMin: 0.3, ValMax: 1.0},
		YellowFraction: 0.05,
		BlackWindow:    HSVWindow{HueMin: 0, HueMax: 360, SatMin: 0, SatMax: 1.0, ValMin: 0, ValMax: 0.2},
		BlackFraction:  0.01,
	}
}

// BBox is an inclusive-exclusive pixel rectangle, origin top-left.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// Refine crops bbox from img and, if class is "person" or "vehicle",
// evaluates the configured HSV membership tests, returning the possibly
// promoted class. Any other class, or a crop failure (empty region, bbox
// outside the image), returns class unchanged.
func Refine(img image.Image, bbox BBox, class string, cfg Config) string {
	if class != "person" && class != "vehicle" {
		return class
	}

	rect := image.Rect(bbox.X1, bbox.Y1, bbox.X2, bbox.Y2).Intersect(img.Bounds())
	if rect.Empty() {
		return class
	}

	total := 0
	vestHits := 0
	yellowHits := 0
	blackHits := 0

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			h, s, v := rgbToHSV(img.At(x, y))
			total++
			if cfg.VestWindow.contains(h, s, v) {
				vestHits++
			}
			if cfg.YellowWindow.contains(h, s, v) {
				yellowHits++
			}
			if cfg.BlackWindow.contains(h, s, v) {
				blackHits++
			}
		}
	}
	if total == 0 {
		return class
	}

	switch class {
	case "person":
		if float64(vestHits)/float64(total) > cfg.VestFraction {
			return "work-person"
		}
	case "vehicle":
		yellowFrac := float64(yellowHits) / float64(total)
		blackFrac := float64(blackHits) / float64(total)
		if yellowFrac > cfg.YellowFraction && blackFrac > cfg.BlackFraction {
			return "work-vehicle"
		}
	}
	return class
}

// rgbToHSV converts a color.Color to (hue degrees, saturation, value),
// each normalized to the ranges used by HSVWindow.
func rgbToHSV(c color.Color) (h, s, v float64) {
	r16, g16, b16, _ := c.RGBA()
	r := float64(r16) / 65535.0
	g := float64(g16) / 65535.0
	b := float64(b16) / 65535.0

	max := maxOf3(r, g, b)
	min := minOf3(r, g, b)
	delta := max - min

	v = max
	if max == 0 {
		s = 0
	} else {
		s = delta / max
	}

	if delta == 0 {
		h = 0
		return
	}

	switch max {
	case r:
		h = 60 * (((g - b) / delta))
	case g:
		h = 60 * ((b-r)/delta + 2)
	case b:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return
}

func maxOf3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func minOf3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
