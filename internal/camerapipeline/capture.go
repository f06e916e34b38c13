package camerapipeline

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// ErrCaptureUnavailable is returned by a CaptureDevice when no frame could
// be read (device disconnected, read timeout, ...).
var ErrCaptureUnavailable = errors.New("camerapipeline: capture device unavailable")

// CaptureDevice abstracts a camera's frame source. The spec treats capture
// as "pull a frame from the device" and specifies only what the pipeline
// does with the result; the device's own I/O (a V4L2/USB capture loop, a
// vendor SDK) is hardware-specific and out of scope, the same boundary the
// detector adapter draws around model internals (spec §4.5, §1 Non-goals).
type CaptureDevice interface {
	// Capture blocks until one frame is available and returns it at the
	// device's native resolution, or ErrCaptureUnavailable (wrapped) on
	// transient failure.
	Capture() (image.Image, error)
}

// resize scales src to width x height using bilinear interpolation. Used to
// convert a captured frame to the configured processing resolution (spec
// §4.9 capture stage).
func resize(src image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return src
	}
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
