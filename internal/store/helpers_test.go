package store

import (
	"path/filepath"
	"testing"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// newTestDB opens a migrated database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clipforge_test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(MigrationsFS()); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

// seedVideo inserts a video in the given lifecycle state.
func seedVideo(t *testing.T, db *DB, id, status string) *clip.Video {
	t.Helper()

	v := &clip.Video{
		ID:       id,
		FilePath: "/videos/" + id + ".mp4",
		Status:   status,
		UserID:   "user-1",
	}
	if err := NewVideoStore(db).Insert(v); err != nil {
		t.Fatalf("failed to seed video %s: %v", id, err)
	}
	return v
}

// seedCandidate inserts a clip candidate for a video.
func seedCandidate(t *testing.T, db *DB, clipID, videoID string, start, end float64) *clip.Candidate {
	t.Helper()

	c := &clip.Candidate{
		ClipID:  clipID,
		VideoID: videoID,
		Start:   start,
		End:     end,
		Source:  clip.SourceASR,
	}
	if err := NewCandidateStore(db).Insert(c); err != nil {
		t.Fatalf("failed to seed candidate %s: %v", clipID, err)
	}
	return c
}
