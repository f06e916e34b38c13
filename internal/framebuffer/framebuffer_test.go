package framebuffer

import (
	"image"
	"testing"
	"time"

	"falcon/internal/frame"
)

func TestPutGetRoundTrip(t *testing.T) {
	b := New(DefaultWindow)
	f := &frame.Frame{CameraID: "A", FrameID: 1, Pix: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	b.Put(f)
	got := b.Get("A", 1)
	if got == nil || got.FrameID != 1 {
		t.Fatalf("expected frame 1, got %+v", got)
	}
}

func TestGetMissReturnsNil(t *testing.T) {
	b := New(DefaultWindow)
	if got := b.Get("A", 999); got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}
}

func TestEvictsEntriesOlderThanWindow(t *testing.T) {
	b := New(10 * time.Millisecond)
	fixed := time.Now()
	b.now = func() time.Time { return fixed }
	b.Put(&frame.Frame{CameraID: "A", FrameID: 1, Pix: image.NewRGBA(image.Rect(0, 0, 4, 4))})

	b.now = func() time.Time { return fixed.Add(50 * time.Millisecond) }
	b.Put(&frame.Frame{CameraID: "A", FrameID: 2, Pix: image.NewRGBA(image.Rect(0, 0, 4, 4))})

	if got := b.Get("A", 1); got != nil {
		t.Fatal("expected frame 1 to be evicted after window elapsed")
	}
	if got := b.Get("A", 2); got == nil {
		t.Fatal("expected frame 2 to survive")
	}
}

func TestAttachRecordsDetectionsEvenAfterEviction(t *testing.T) {
	b := New(10 * time.Millisecond)
	fixed := time.Now()
	b.now = func() time.Time { return fixed }
	b.Put(&frame.Frame{CameraID: "A", FrameID: 42, Pix: image.NewRGBA(image.Rect(0, 0, 4, 4))})

	b.now = func() time.Time { return fixed.Add(50 * time.Millisecond) }
	b.Put(&frame.Frame{CameraID: "A", FrameID: 43, Pix: image.NewRGBA(image.Rect(0, 0, 4, 4))})
	if b.Get("A", 42) != nil {
		t.Fatal("expected frame 42 to be evicted before attach")
	}

	dets := []Detection{{ObjectID: 1, ClassTag: "bird"}}
	b.Attach("A", 42, dets)

	got := b.Overlay("A", 42)
	if len(got) != 1 || got[0].ObjectID != 1 {
		t.Fatalf("expected attached detections, got %+v", got)
	}
}

func TestOverlayUsesNearestPriorWithinGap(t *testing.T) {
	// Frame-ids are nanosecond capture instants (frame.NewFrameID), not a
	// small monotonic counter, so the gap must be exercised in nanosecond
	// units to actually test MaxAttachGap rather than a same-order-of-
	// magnitude integer delta that would pass regardless of the bound.
	b := New(DefaultWindow)
	const base int64 = 1_700_000_000_000_000_000
	b.Attach("A", base, []Detection{{ObjectID: 1}})

	got := b.Overlay("A", base+int64(MaxAttachGap)/2)
	if len(got) != 1 {
		t.Fatalf("expected to bridge a sub-gap delta, got %+v", got)
	}

	none := b.Overlay("A", base+int64(MaxAttachGap)*2)
	if none != nil {
		t.Fatalf("expected no overlay beyond max gap, got %+v", none)
	}
}
