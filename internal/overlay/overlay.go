// Package overlay draws detection boxes and labels onto a frame for
// operator-console fan-out (spec §4.11). It is a pure function: the input
// frame is never mutated, a fresh annotated copy is always returned.
// Grounded on the teacher's drawBox/drawLabel routines, which use only the
// stdlib image/draw plus golang.org/x/image/font's basicfont face — no
// cgo/OpenCV dependency.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Detection is the minimal shape overlay needs to render one box+label.
type Detection struct {
	ClassTag   string
	BBox       [4]int // x1,y1,x2,y2
	Confidence float64
}

// classColors assigns a stable color per class tag; classes not listed fall
// back to white.
var classColors = map[string]color.RGBA{
	"bird":         {255, 255, 0, 255},
	"FOD":          {255, 0, 0, 255},
	"person":       {0, 255, 0, 255},
	"animal":       {255, 165, 0, 255},
	"airplane":     {0, 191, 255, 255},
	"vehicle":      {0, 255, 255, 255},
	"work-person":  {255, 0, 255, 255},
	"work-vehicle": {255, 105, 180, 255},
}

func colorFor(classTag string) color.RGBA {
	if c, ok := classColors[classTag]; ok {
		return c
	}
	return color.RGBA{255, 255, 255, 255}
}

// Render draws detections onto a copy of frame and returns the copy;
// frame itself is never modified.
func Render(src image.Image, detections []Detection) image.Image {
	bounds := src.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, src, bounds.Min, draw.Src)

	for _, det := range detections {
		c := colorFor(det.ClassTag)
		x, y := det.BBox[0], det.BBox[1]
		w, h := det.BBox[2]-det.BBox[0], det.BBox[3]-det.BBox[1]
		drawBox(rgba, x, y, w, h, c, 2)
		label := fmt.Sprintf("%s: %.2f", det.ClassTag, det.Confidence)
		drawLabel(rgba, x, y-5, label, c)
	}

	return rgba
}

// drawBox strokes a rectangle outline by filling its four edge strips with
// draw.Draw, clipping each strip to img's bounds via Rectangle.Intersect
// rather than bounds-checking every pixel by hand.
func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	outer := image.Rect(x, y, x+w, y+h)
	src := image.NewUniform(c)

	edges := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+thickness), // top
		image.Rect(outer.Min.X, outer.Max.Y-thickness, outer.Max.X, outer.Max.Y), // bottom
		image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+thickness, outer.Max.Y), // left
		image.Rect(outer.Max.X-thickness, outer.Min.Y, outer.Max.X, outer.Max.Y), // right
	}
	for _, edge := range edges {
		clipped := edge.Intersect(bounds)
		if clipped.Empty() {
			continue
		}
		draw.Draw(img, clipped, src, clipped.Min, draw.Src)
	}
}

// labelPadding is the margin (px) around a label's text inside its
// background plate, and labelLineHeight the plate's fixed height for
// basicfont.Face7x13.
const (
	labelPadding    = 2
	labelLineHeight = 14
	labelCharWidth  = 7
)

func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < labelLineHeight-4 {
		y = labelLineHeight - 4
	}
	if x < 0 {
		x = 0
	}

	plate := image.Rect(x-labelPadding, y-labelPadding, x+len(label)*labelCharWidth+labelPadding, y+labelLineHeight-labelPadding)
	if clipped := plate.Intersect(img.Bounds()); !clipped.Empty() {
		draw.Draw(img, clipped, image.NewUniform(color.RGBA{0, 0, 0, 180}), clipped.Min, draw.Over)
	}

	(&font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}).DrawString(label)
}
