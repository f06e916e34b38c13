package refine

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRefinePersonToWorkPersonOnVestColor(t *testing.T) {
	// a saturated orange, within the default vest window
	img := solid(20, 20, color.RGBA{R: 255, G: 170, B: 0, A: 255})
	got := Refine(img, BBox{0, 0, 20, 20}, "person", DefaultConfig())
	if got != "work-person" {
		t.Fatalf("expected promotion to work-person, got %s", got)
	}
}

func TestRefinePersonUnchangedWithoutVestColor(t *testing.T) {
	img := solid(20, 20, color.RGBA{R: 0, G: 0, B: 255, A: 255}) // blue
	got := Refine(img, BBox{0, 0, 20, 20}, "person", DefaultConfig())
	if got != "person" {
		t.Fatalf("expected class unchanged, got %s", got)
	}
}

func TestRefineVehicleToWorkVehicleOnYellowAndBlack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if y < 6 {
				img.Set(x, y, color.RGBA{R: 255, G: 220, B: 0, A: 255}) // yellow
			} else {
				img.Set(x, y, color.RGBA{R: 5, G: 5, B: 5, A: 255}) // near black
			}
		}
	}
	got := Refine(img, BBox{0, 0, 10, 10}, "vehicle", DefaultConfig())
	if got != "work-vehicle" {
		t.Fatalf("expected promotion to work-vehicle, got %s", got)
	}
}

func TestRefineIgnoresOtherClasses(t *testing.T) {
	img := solid(10, 10, color.RGBA{R: 255, G: 170, B: 0, A: 255})
	got := Refine(img, BBox{0, 0, 10, 10}, "bird", DefaultConfig())
	if got != "bird" {
		t.Fatalf("expected class unchanged for non-person/vehicle, got %s", got)
	}
}

func TestRefineEmptyCropLeavesClassUnchanged(t *testing.T) {
	img := solid(10, 10, color.RGBA{R: 255, G: 170, B: 0, A: 255})
	got := Refine(img, BBox{20, 20, 25, 25}, "person", DefaultConfig())
	if got != "person" {
		t.Fatalf("expected class unchanged on out-of-bounds crop, got %s", got)
	}
}
