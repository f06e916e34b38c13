// Package frame defines the immutable video frame type and the wire codec
// used by both the datagram video transport and the frame buffer: JPEG
// encode/decode plus the "camera-id:frame-id:" datagram header (spec §4.1).
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strconv"
	"time"
)

// ErrMalformedHeader is returned by ParseHeader when a datagram payload does
// not match the "<camera-id>:<frame-id>:" prefix grammar.
var ErrMalformedHeader = errors.New("frame: malformed header")

// ErrTooLarge is returned by Encode callers (via the quality ladder) when no
// quality step produces a payload within the caller's size budget.
var ErrTooLarge = errors.New("frame: no quality fits size budget")

const (
	headerSep      = ':'
	maxCameraTagLen = 8
	minCameraTagLen = 1
	maxFrameIDDigits = 20
)

// Frame is an immutable, captured video frame. Once constructed it is never
// mutated, so the camera pipeline hands the same *Frame to the datagram
// sender and the inference stage without copying it.
type Frame struct {
	CameraID string
	FrameID  int64 // monotonic per camera; by convention capture_instant.UnixNano()
	Width    int
	Height   int
	Pix      image.Image
	Captured time.Time
}

// NewFrameID derives a frame-id from the current instant, nanosecond
// resolution, per spec §3 ("Frame-id" glossary entry).
func NewFrameID(captured time.Time) int64 {
	return captured.UnixNano()
}

// Encode JPEG-encodes img at the given quality (1-100).
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("frame: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode inverts Encode.
func Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("frame: decode: %w", err)
	}
	return img, nil
}

// EncodeWithBudget re-encodes img at stepwise lower JPEG quality
// (start, start-10, ... down to 10) until the header-plus-payload size fits
// within maxBytes, per spec §4.2's oversize-frame recovery rule. It returns
// the chosen quality and the encoded bytes, or ErrTooLarge if nothing fits.
func EncodeWithBudget(img image.Image, cameraID string, frameID int64, startQuality, maxBytes int) (quality int, payload []byte, err error) {
	header := SerializeHeader(cameraID, frameID)
	for q := startQuality; q >= 10; q -= 10 {
		jpegBytes, encErr := Encode(img, q)
		if encErr != nil {
			return 0, nil, encErr
		}
		if len(header)+len(jpegBytes) <= maxBytes {
			return q, append(append([]byte{}, header...), jpegBytes...), nil
		}
	}
	return 0, nil, ErrTooLarge
}

// SerializeHeader builds the "<camera-id>:<frame-id>:" ASCII prefix.
func SerializeHeader(cameraID string, frameID int64) []byte {
	return []byte(cameraID + string(headerSep) + strconv.FormatInt(frameID, 10) + string(headerSep))
}

// KnownCamera reports whether a camera-id tag is in an accepted set. Callers
// that don't need the accepted-set check (e.g. tests) may pass a nil func,
// which ParseHeader treats as "accept any syntactically valid tag".
type KnownCamera func(tag string) bool

// ParseHeader locates the first two ':' separators in payload and splits it
// into (camera-id, frame-id, remaining bytes). It fails with
// ErrMalformedHeader if either separator is missing, the tag is not ASCII of
// length 1-8 (or fails the known-camera predicate when one is supplied), or
// the frame-id is not 1-20 decimal digits.
func ParseHeader(payload []byte, known KnownCamera) (cameraID string, frameID int64, rest []byte, err error) {
	first := bytesIndexByte(payload, headerSep)
	if first < 0 {
		return "", 0, nil, ErrMalformedHeader
	}
	tag := payload[:first]
	if len(tag) < minCameraTagLen || len(tag) > maxCameraTagLen || !isASCII(tag) {
		return "", 0, nil, ErrMalformedHeader
	}
	if known != nil && !known(string(tag)) {
		return "", 0, nil, ErrMalformedHeader
	}

	remainder := payload[first+1:]
	second := bytesIndexByte(remainder, headerSep)
	if second < 0 {
		return "", 0, nil, ErrMalformedHeader
	}
	idBytes := remainder[:second]
	if len(idBytes) < 1 || len(idBytes) > maxFrameIDDigits || !isDecimal(idBytes) {
		return "", 0, nil, ErrMalformedHeader
	}
	id, convErr := strconv.ParseInt(string(idBytes), 10, 64)
	if convErr != nil {
		return "", 0, nil, ErrMalformedHeader
	}

	return string(tag), id, remainder[second+1:], nil
}

func bytesIndexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c > 0x7F {
			return false
		}
	}
	return true
}

func isDecimal(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Area returns width*height.
func (f *Frame) Area() int {
	return f.Width * f.Height
}
