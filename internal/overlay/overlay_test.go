package overlay

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

func TestRenderDoesNotMutateSource(t *testing.T) {
	src := solid(50, 50, color.RGBA{0, 0, 0, 255})
	srcRGBA := src.(*image.RGBA)
	before := append([]byte{}, srcRGBA.Pix...)

	Render(src, []Detection{{ClassTag: "bird", BBox: [4]int{5, 5, 20, 20}, Confidence: 0.5}})

	for i := range before {
		if srcRGBA.Pix[i] != before[i] {
			t.Fatal("Render mutated the source image")
		}
	}
}

func TestRenderDrawsBoxPixels(t *testing.T) {
	src := solid(40, 40, color.RGBA{0, 0, 0, 255})
	out := Render(src, []Detection{{ClassTag: "person", BBox: [4]int{5, 5, 30, 30}, Confidence: 0.9}})

	outRGBA := out.(*image.RGBA)
	r, g, b, _ := outRGBA.At(5, 5).RGBA()
	wantR, wantG, wantB, _ := colorFor("person").RGBA()
	if r != wantR || g != wantG || b != wantB {
		t.Fatalf("expected box-top-left pixel in class color, got (%d,%d,%d)", r, g, b)
	}
}

func TestRenderUnknownClassFallsBackToWhite(t *testing.T) {
	c := colorFor("totally-unknown-class")
	if c != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("expected white fallback, got %+v", c)
	}
}
