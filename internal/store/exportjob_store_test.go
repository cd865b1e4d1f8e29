package store

import (
	"encoding/json"
	"testing"
)

func TestExportJobStoreInsertAndGet(t *testing.T) {
	db := newTestDB(t)
	jobs := NewExportJobStore(db)

	seedVideo(t, db, "vid-1", "ready")
	seedCandidate(t, db, "clip-1", "vid-1", 10, 40)

	job := &ExportJob{
		VideoID:      "vid-1",
		ClipID:       "clip-1",
		CaptionStyle: json.RawMessage(`{"font_size":32}`),
	}
	if err := jobs.Insert(job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("Insert should assign a job ID")
	}
	if job.Status != JobQueued {
		t.Errorf("new job should be queued, got %s", job.Status)
	}

	got, err := jobs.Get(job.JobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ClipID != "clip-1" {
		t.Errorf("got clip %s, want clip-1", got.ClipID)
	}
	if string(got.CaptionStyle) != `{"font_size":32}` {
		t.Errorf("caption style not preserved: %s", got.CaptionStyle)
	}
}

func TestExportJobStoreUpdateStatus(t *testing.T) {
	db := newTestDB(t)
	jobs := NewExportJobStore(db)

	seedVideo(t, db, "vid-1", "ready")
	seedCandidate(t, db, "clip-1", "vid-1", 10, 40)

	job := &ExportJob{VideoID: "vid-1", ClipID: "clip-1"}
	if err := jobs.Insert(job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := jobs.UpdateStatus(job.JobID, JobDone, "/exports/clip-1.mp4", ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, err := jobs.Get(job.JobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != JobDone || got.OutputPath != "/exports/clip-1.mp4" {
		t.Errorf("unexpected job after update: %+v", got)
	}

	if err := jobs.UpdateStatus("no-such-job", JobFailed, "", "boom"); err == nil {
		t.Error("UpdateStatus should fail for an unknown job")
	}
}

func TestExportJobStoreFailedJobKeepsReason(t *testing.T) {
	db := newTestDB(t)
	jobs := NewExportJobStore(db)

	seedVideo(t, db, "vid-1", "ready")
	seedCandidate(t, db, "clip-1", "vid-1", 10, 40)

	job := &ExportJob{VideoID: "vid-1", ClipID: "clip-1"}
	if err := jobs.Insert(job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := jobs.UpdateStatus(job.JobID, JobFailed, "", "ffmpeg exited with code 1"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := jobs.Get(job.JobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != JobFailed {
		t.Errorf("got status %s, want failed", got.Status)
	}
	if got.Error != "ffmpeg exited with code 1" {
		t.Errorf("failure reason not preserved: %q", got.Error)
	}
}

func TestExportJobStoreListByVideo(t *testing.T) {
	db := newTestDB(t)
	jobs := NewExportJobStore(db)

	seedVideo(t, db, "vid-1", "ready")
	seedVideo(t, db, "vid-2", "ready")
	seedCandidate(t, db, "clip-1", "vid-1", 10, 40)
	seedCandidate(t, db, "clip-2", "vid-1", 50, 80)
	seedCandidate(t, db, "clip-3", "vid-2", 0, 20)

	for _, clipID := range []string{"clip-1", "clip-2"} {
		if err := jobs.Insert(&ExportJob{VideoID: "vid-1", ClipID: clipID}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := jobs.Insert(&ExportJob{VideoID: "vid-2", ClipID: "clip-3"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	list, err := jobs.ListByVideo("vid-1")
	if err != nil {
		t.Fatalf("ListByVideo failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs for vid-1, got %d", len(list))
	}
	for _, j := range list {
		if j.VideoID != "vid-1" {
			t.Errorf("job %s belongs to %s", j.JobID, j.VideoID)
		}
	}
}
