package camerapipeline

import (
	"bytes"
	"testing"
)

func fakeJPEG(tag byte) []byte {
	return []byte{0xFF, 0xD8, tag, tag, 0xFF, 0xD9}
}

func TestExtractJPEGFrameSplitsConcatenatedFrames(t *testing.T) {
	first := fakeJPEG(1)
	second := fakeJPEG(2)
	buf := append(append([]byte{}, first...), second...)

	frame, ok := extractJPEGFrame(&buf)
	if !ok || !bytes.Equal(frame, first) {
		t.Fatalf("expected first frame, got %v ok=%v", frame, ok)
	}
	frame, ok = extractJPEGFrame(&buf)
	if !ok || !bytes.Equal(frame, second) {
		t.Fatalf("expected second frame, got %v ok=%v", frame, ok)
	}
	if len(buf) != 0 {
		t.Fatalf("expected buffer drained, got %d bytes left", len(buf))
	}
}

func TestExtractJPEGFrameWaitsForEndMarker(t *testing.T) {
	partial := []byte{0xFF, 0xD8, 0x01, 0x02}
	if _, ok := extractJPEGFrame(&partial); ok {
		t.Fatal("expected no frame without an end marker")
	}
}

func TestExtractJPEGFrameSkipsGarbageBeforeStartMarker(t *testing.T) {
	buf := append([]byte{0x00, 0x11, 0x22}, fakeJPEG(5)...)
	frame, ok := extractJPEGFrame(&buf)
	if !ok || !bytes.Equal(frame, fakeJPEG(5)) {
		t.Fatalf("expected frame after garbage prefix, got %v ok=%v", frame, ok)
	}
}
