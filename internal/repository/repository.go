// Package repository is the append-only event persistence boundary
// (spec §4.14, §3 PersistedEvent, C3). It writes cropped JPEG snippets to
// the filesystem and one row per event to SQLite, idempotent under retry
// by (object-id, instant) — matching the teacher's ON CONFLICT upsert
// pattern used for every other table in its database package.
package repository

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// EventKind enumerates the persisted event kinds (spec §3 event-kind).
// Operator broadcasts use their own ME_* codes, not these values.
type EventKind string

const (
	EventHazard EventKind = "HAZARD"
)

// Repository owns the SQLite connection and the crop image directory.
type Repository struct {
	db      *sql.DB
	imgRoot string
}

// Open opens (creating if absent) the SQLite database at dbPath, runs
// migrations, and ensures imgRoot exists.
func Open(dbPath, imgRoot string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: enable WAL: %w", err)
	}

	if err := os.MkdirAll(imgRoot, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: create image dir %s: %w", imgRoot, err)
	}

	r := &Repository{db: db, imgRoot: imgRoot}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS event (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_kind TEXT NOT NULL,
		camera_id TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		class_tag TEXT NOT NULL,
		map_x REAL,
		map_y REAL,
		area_id TEXT,
		instant DATETIME NOT NULL,
		image_path TEXT NOT NULL,
		UNIQUE(object_id, instant)
	)`)
	if err != nil {
		return fmt.Errorf("repository: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// ImagePath derives the deterministic crop path for (objectID, instant),
// per spec §6: "img/img_<object-id>_<YYYYMMDDhhmmss>.jpg".
func (r *Repository) ImagePath(objectID int64, instant time.Time) string {
	name := fmt.Sprintf("img_%d_%s.jpg", objectID, instant.UTC().Format("20060102150405"))
	return filepath.Join("img", name)
}

// SaveEvent writes jpegCrop to the deterministic path and upserts one event
// row. A repeated call with the same (objectID, instant) succeeds without
// creating a duplicate row (spec §4.14 idempotence).
func (r *Repository) SaveEvent(kind EventKind, cameraID string, objectID int64, classTag string, mapX, mapY float64, areaID string, instant time.Time, jpegCrop []byte) error {
	relPath := r.ImagePath(objectID, instant)
	absPath := filepath.Join(r.imgRoot, filepath.Base(relPath))

	if err := os.WriteFile(absPath, jpegCrop, 0o644); err != nil {
		return fmt.Errorf("repository: write crop %s: %w", absPath, err)
	}

	_, err := r.db.Exec(`
		INSERT INTO event (event_kind, camera_id, object_id, class_tag, map_x, map_y, area_id, instant, image_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_id, instant) DO UPDATE SET
			image_path = excluded.image_path`,
		string(kind), cameraID, objectID, classTag, mapX, mapY, areaID, instant.UTC(), relPath)
	if err != nil {
		return fmt.Errorf("repository: save event: %w", err)
	}
	return nil
}

// CountEvents returns the number of persisted rows for objectID, used to
// verify the idempotence invariant in spec §8 ("the set of object-id
// values persisted for camera C over any contiguous run contains each id
// at most once").
func (r *Repository) CountEvents(objectID int64) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM event WHERE object_id = ?", objectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository: count events for object %d: %w", objectID, err)
	}
	return count, nil
}

// SaveEventLogged calls SaveEvent and logs-only on failure, matching the
// spec §7 RepositoryFailure contract: "Logged at error; the pipeline does
// not stall on repository failure." It returns whether the save
// succeeded so callers (the first-observation gate) can decide whether to
// keep the id out of their in-memory set for retry.
func (r *Repository) SaveEventLogged(kind EventKind, cameraID string, objectID int64, classTag string, mapX, mapY float64, areaID string, instant time.Time, jpegCrop []byte) bool {
	if err := r.SaveEvent(kind, cameraID, objectID, classTag, mapX, mapY, areaID, instant, jpegCrop); err != nil {
		log.Printf("[Repository] save event failed for object %d: %v", objectID, err)
		return false
	}
	return true
}
