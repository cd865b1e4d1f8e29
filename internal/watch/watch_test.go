package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/store"
)

type fakeRegistrar struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeRegistrar) Ingest(filePath, title, userID string, watchDirID int64) (*clip.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, filePath)
	return &clip.Video{ID: "video-" + title, FilePath: filePath, Title: title, UserID: userID}, nil
}

func (f *fakeRegistrar) ingestedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func newTestScanner(t *testing.T) (*Scanner, *fakeRegistrar, string) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "watch_test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(store.MigrationsFS()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	watched := t.TempDir()
	dirs := store.NewWatchDirectoryStore(db)
	wd := &store.WatchDirectory{UserID: "user-1", DirectoryPath: watched, IsActive: true}
	if err := dirs.Insert(wd); err != nil {
		t.Fatalf("failed to register watch directory: %v", err)
	}

	reg := &fakeRegistrar{}
	return NewScanner(dirs, reg, time.Second), reg, watched
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestScanIngestsAfterSizeStabilizes(t *testing.T) {
	s, reg, dir := newTestScanner(t)
	path := writeFile(t, dir, "talk.mp4", "frames")

	// First sighting records the size, second confirms it is stable.
	s.Scan()
	if got := reg.ingestedPaths(); len(got) != 0 {
		t.Fatalf("ingested on first sighting: %v", got)
	}
	s.Scan()
	got := reg.ingestedPaths()
	if len(got) != 1 || got[0] != path {
		t.Fatalf("expected %s ingested once, got %v", path, got)
	}
}

func TestScanWaitsForGrowingFile(t *testing.T) {
	s, reg, dir := newTestScanner(t)
	writeFile(t, dir, "upload.mp4", "part")

	s.Scan()
	writeFile(t, dir, "upload.mp4", "part-plus-more")
	s.Scan()
	if got := reg.ingestedPaths(); len(got) != 0 {
		t.Fatalf("ingested a still-growing file: %v", got)
	}

	// Size held steady since the last scan.
	s.Scan()
	if got := reg.ingestedPaths(); len(got) != 1 {
		t.Fatalf("expected 1 ingest after size settled, got %v", got)
	}
}

func TestScanIgnoresUnsupportedAndIngestsOnce(t *testing.T) {
	s, reg, dir := newTestScanner(t)
	writeFile(t, dir, "notes.txt", "not a video")
	writeFile(t, dir, "thumb.png", "not a video either")
	path := writeFile(t, dir, "clip.webm", "frames")

	for i := 0; i < 4; i++ {
		s.Scan()
	}
	got := reg.ingestedPaths()
	if len(got) != 1 || got[0] != path {
		t.Fatalf("expected only %s ingested once, got %v", path, got)
	}
}

func TestScanSkipsInactiveDirectories(t *testing.T) {
	s, reg, dir := newTestScanner(t)
	writeFile(t, dir, "talk.mov", "frames")

	active, err := s.dirs.ListActive()
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActive: %v %v", active, err)
	}
	if err := s.dirs.SetActive(active[0].ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	s.Scan()
	s.Scan()
	if got := reg.ingestedPaths(); len(got) != 0 {
		t.Fatalf("ingested from inactive directory: %v", got)
	}
}

func TestScanNotifiesOnIngest(t *testing.T) {
	s, reg, dir := newTestScanner(t)
	var notified []string
	s.OnIngest = func(v *clip.Video) { notified = append(notified, v.ID) }

	writeFile(t, dir, "talk.mkv", "frames")
	s.Scan()
	s.Scan()

	if len(reg.ingestedPaths()) != 1 {
		t.Fatalf("expected 1 ingest, got %v", reg.ingestedPaths())
	}
	if len(notified) != 1 || notified[0] != "video-talk" {
		t.Fatalf("unexpected notifications: %v", notified)
	}
}
