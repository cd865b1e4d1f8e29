package store

import "testing"

func TestWatchDirectoryStoreInsertIdempotent(t *testing.T) {
	db := newTestDB(t)
	dirs := NewWatchDirectoryStore(db)

	wd := &WatchDirectory{UserID: "user-1", DirectoryPath: "/media/incoming"}
	if err := dirs.Insert(wd); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	first := wd.ID

	again := &WatchDirectory{UserID: "user-1", DirectoryPath: "/media/incoming"}
	if err := dirs.Insert(again); err != nil {
		t.Fatalf("repeated Insert failed: %v", err)
	}
	if again.ID != first {
		t.Errorf("repeated insert created a new row: %d != %d", again.ID, first)
	}

	active, err := dirs.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected 1 active directory, got %d", len(active))
	}
}

func TestWatchDirectoryStoreSetActive(t *testing.T) {
	db := newTestDB(t)
	dirs := NewWatchDirectoryStore(db)

	wd := &WatchDirectory{UserID: "user-1", DirectoryPath: "/media/incoming"}
	if err := dirs.Insert(wd); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := dirs.SetActive(wd.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	active, err := dirs.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("deactivated directory should not be listed, got %d", len(active))
	}

	if err := dirs.SetActive(wd.ID, true); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	active, err = dirs.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("reactivated directory should be listed, got %d", len(active))
	}
}
