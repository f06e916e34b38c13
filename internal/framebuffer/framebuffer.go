// Package framebuffer holds recent per-camera frames keyed by frame-id so
// the joiner can pair late-arriving detection batches with the frame they
// describe (spec §4.10). It is owned by a single server task and accessed
// only through its exported methods (spec §5 shared-resource policy), so
// callers are expected to serialize access to one instance per process
// (e.g. by running it behind a single dispatch goroutine), but the
// internal mutex also makes direct concurrent use safe.
package framebuffer

import (
	"sync"
	"time"

	"falcon/internal/frame"
)

// DefaultWindow is the minimum retention window for buffered frames (spec
// §3: "a bounded age window (>= 1 second, typical <= 5 seconds)").
const DefaultWindow = 3 * time.Second

// MaxAttachGap is the maximum frame-id gap the overlay renderer may bridge
// when no detections are attached to the current frame (spec §4.10).
// Frame-ids are nanosecond capture instants (frame.NewFrameID), not a
// small monotonic counter, so the gap is a duration rather than a literal
// frame count — matching the ~1 second bridging window the original
// implementation's detection_processor.cleanup_old_detections uses.
const MaxAttachGap = time.Second

type entry struct {
	frame      *frame.Frame
	detections []Detection
	insertedAt time.Time
}

// Detection is the minimal shape the buffer stores; camera pipeline
// detection batches are converted to this before attach.
type Detection struct {
	ObjectID    int64
	ClassTag    string
	BBox        [4]int
	Confidence  float64
	RescueLevel *int
}

// Buffer is the server-side per-camera frame store with late join.
type Buffer struct {
	mu      sync.Mutex
	window  time.Duration
	byCam   map[string]map[int64]*entry
	lastID  map[string]int64 // most recent frame-id inserted, per camera
	now     func() time.Time
}

// New creates a Buffer retaining entries for window (DefaultWindow if <= 0).
func New(window time.Duration) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Buffer{
		window: window,
		byCam:  make(map[string]map[int64]*entry),
		lastID: make(map[string]int64),
		now:    time.Now,
	}
}

// Put inserts f, then evicts any entries for that camera older than the
// retention window.
func (b *Buffer) Put(f *frame.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cam := b.byCam[f.CameraID]
	if cam == nil {
		cam = make(map[int64]*entry)
		b.byCam[f.CameraID] = cam
	}
	cam[f.FrameID] = &entry{frame: f, insertedAt: b.now()}
	if f.FrameID > b.lastID[f.CameraID] {
		b.lastID[f.CameraID] = f.FrameID
	}
	b.evictLocked(f.CameraID)
}

// Get retrieves the frame for (cameraID, frameID), or nil if evicted/never
// inserted.
func (b *Buffer) Get(cameraID string, frameID int64) *frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	cam := b.byCam[cameraID]
	if cam == nil {
		return nil
	}
	if e, ok := cam[frameID]; ok {
		return e.frame
	}
	return nil
}

// Attach records detections against (cameraID, frameID). If the frame has
// already been evicted, the detections are still recorded under a
// placeholder entry (frame == nil) so a later overlay render within
// MaxAttachGap can still find them (spec §4.10).
func (b *Buffer) Attach(cameraID string, frameID int64, detections []Detection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cam := b.byCam[cameraID]
	if cam == nil {
		cam = make(map[int64]*entry)
		b.byCam[cameraID] = cam
	}
	e, ok := cam[frameID]
	if !ok {
		e = &entry{insertedAt: b.now()}
		cam[frameID] = e
	}
	e.detections = detections
}

// Overlay returns the detections to render alongside currentFrameID: the
// exact match if present, else the most recent attached detection set with
// attached-frame-id <= currentFrameID and a gap <= MaxAttachGap (spec
// §4.10's rendering policy). Returns nil if nothing qualifies.
func (b *Buffer) Overlay(cameraID string, currentFrameID int64) []Detection {
	b.mu.Lock()
	defer b.mu.Unlock()
	cam := b.byCam[cameraID]
	if cam == nil {
		return nil
	}
	if e, ok := cam[currentFrameID]; ok && e.detections != nil {
		return e.detections
	}

	var bestID int64 = -1
	var best []Detection
	for id, e := range cam {
		if e.detections == nil {
			continue
		}
		if id <= currentFrameID && currentFrameID-id <= int64(MaxAttachGap) && id > bestID {
			bestID = id
			best = e.detections
		}
	}
	return best
}

// evictLocked drops entries older than the retention window for one
// camera. Must be called with mu held.
func (b *Buffer) evictLocked(cameraID string) {
	cam := b.byCam[cameraID]
	cutoff := b.now().Add(-b.window)
	for id, e := range cam {
		if e.insertedAt.Before(cutoff) {
			delete(cam, id)
		}
	}
}
