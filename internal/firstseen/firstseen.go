// Package firstseen implements the per-camera first-observation gate
// (spec §4.12): at most one persisted event per tracked identity until the
// tracker retires it. The type is mutex-guarded; the dispatch core calls
// it directly from its ingest goroutines, with no owning task or message
// channel in front of it.
package firstseen

import (
	"sync"
	"time"
)

// DefaultStaleAfter is how long an admitted id may go without a fresh
// detection before Sweep retires it. The server has no direct view of the
// camera-side tracker's LOST_THRESHOLD (inference passes), so retirement
// here is time-based, per spec §4.12: "removed from the set when the
// server has not received a detection for that id for longer than the
// tracker's lost threshold."
const DefaultStaleAfter = 30 * time.Second

// Gate tracks, per camera, which object-ids have already produced a
// persisted event, and when each was last seen.
type Gate struct {
	mu   sync.Mutex
	seen map[string]map[int64]time.Time // camera-id -> object-id -> last seen
	now  func() time.Time
}

// New creates an empty Gate.
func New() *Gate {
	return &Gate{seen: make(map[string]map[int64]time.Time), now: time.Now}
}

// Partition splits objectIDs into newIDs (not yet admitted) and seenIDs
// (already admitted). It does not itself admit anything — callers admit
// via Admit once persistence of a new id succeeds, per spec §7
// RepositoryFailure: "the in-memory first-observation set is not updated"
// on a failed save, so the id is retried on the next detection. Any id
// already admitted has its last-seen instant refreshed, so Sweep does not
// retire identities that are still being detected.
func (g *Gate) Partition(cameraID string, objectIDs []int64) (newIDs, seenIDs []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cam := g.seen[cameraID]
	for _, id := range objectIDs {
		if cam != nil {
			if _, ok := cam[id]; ok {
				cam[id] = g.now()
				seenIDs = append(seenIDs, id)
				continue
			}
		}
		newIDs = append(newIDs, id)
	}
	return newIDs, seenIDs
}

// Admit records objectID as having produced a persisted event.
func (g *Gate) Admit(cameraID string, objectID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cam := g.seen[cameraID]
	if cam == nil {
		cam = make(map[int64]time.Time)
		g.seen[cameraID] = cam
	}
	cam[objectID] = g.now()
}

// Retire removes objectID from the set immediately, so a later
// re-appearance is treated as a fresh observation (spec §4.12).
func (g *Gate) Retire(cameraID string, objectID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cam, ok := g.seen[cameraID]; ok {
		delete(cam, objectID)
	}
}

// Sweep retires every admitted id not seen within staleAfter of now,
// across all cameras. A staleAfter <= 0 uses DefaultStaleAfter. Intended
// to be called periodically by the dispatch core (spec §4.12).
func (g *Gate) Sweep(staleAfter time.Duration) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-staleAfter)
	for _, cam := range g.seen {
		for id, last := range cam {
			if last.Before(cutoff) {
				delete(cam, id)
			}
		}
	}
}

// Admitted reports whether objectID has already been admitted for
// cameraID, for diagnostics/tests.
func (g *Gate) Admitted(cameraID string, objectID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cam, ok := g.seen[cameraID]
	if !ok {
		return false
	}
	_, ok = cam[objectID]
	return ok
}
