// Package tracker assigns stable per-camera object identities to a
// detector's short-lived per-frame ids (spec §4.6). It is owned
// exclusively by one camera's inference stage and is never shared across
// cameras.
package tracker

import (
	"sync"
	"time"
)

// DefaultLostThreshold is the number of inference passes a track may go
// unobserved before its identity is retired (spec §3, Track invariant).
const DefaultLostThreshold = 20

type track struct {
	objectID      int64
	lastSeenPass  int64
	ageSinceHit   int64
}

// Tracker maps a detector's short-lived per-class ids to stable object-ids,
// evicting tracks that have gone unobserved for more than LostThreshold
// consecutive inference passes.
type Tracker struct {
	mu            sync.Mutex
	lostThreshold int64
	pass          int64
	lastIssued    int64 // highest object-id issued so far; ids are never reused
	byDetectorID  map[string]*track // key: class-tag + ":" + detector id
	now           func() time.Time
	evicted       []int64 // object-ids retired since the last drain, see Evicted
}

// New creates a Tracker with the given lost-track threshold (inference
// passes). A threshold <= 0 uses DefaultLostThreshold.
func New(lostThreshold int) *Tracker {
	if lostThreshold <= 0 {
		lostThreshold = DefaultLostThreshold
	}
	return &Tracker{
		lostThreshold: int64(lostThreshold),
		byDetectorID:  make(map[string]*track),
		now:           time.Now,
	}
}

// key composes a map key from a class tag and the detector's short-lived id
// so the same numeric id reused across classes can't collide.
func key(classTag string, detectorID int64) string {
	return classTag + ":" + itoa(detectorID)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Assign advances one inference pass and returns the stable object-id for
// (classTag, detectorID), allocating a new one on first sight or after the
// prior track for this (class, detector-id) pair was retired.
func (t *Tracker) Assign(classTag string, detectorID int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pass++
	t.evictLocked()

	k := key(classTag, detectorID)
	if tr, ok := t.byDetectorID[k]; ok {
		tr.lastSeenPass = t.pass
		tr.ageSinceHit = 0
		return tr.objectID
	}

	objectID := t.now().UnixMilli()*1000 + (detectorID % 1000)
	if objectID <= t.lastIssued {
		objectID = t.lastIssued + 1
	}
	t.lastIssued = objectID
	tr := &track{objectID: objectID, lastSeenPass: t.pass}
	t.byDetectorID[k] = tr
	return objectID
}

// evictLocked drops tracks whose age-since-last-hit exceeds the lost
// threshold. Must be called with mu held.
func (t *Tracker) evictLocked() {
	for k, tr := range t.byDetectorID {
		tr.ageSinceHit = t.pass - tr.lastSeenPass
		if tr.ageSinceHit > t.lostThreshold {
			delete(t.byDetectorID, k)
			t.evicted = append(t.evicted, tr.objectID)
		}
	}
}

// Evicted drains and returns the object-ids retired since the last call,
// so a caller can propagate retirement to per-id state it owns (the camera
// pipeline uses it to drop the rescue-level estimator's state, spec §4.8).
func (t *Tracker) Evicted() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.evicted) == 0 {
		return nil
	}
	out := t.evicted
	t.evicted = nil
	return out
}

// Retired reports whether objectID is no longer tracked (either never
// issued, or evicted). The pipeline itself learns of retirements through
// Evicted.
func (t *Tracker) Retired(objectID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.byDetectorID {
		if tr.objectID == objectID {
			return false
		}
	}
	return true
}

// Active returns the number of currently live tracks, for diagnostics.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byDetectorID)
}
