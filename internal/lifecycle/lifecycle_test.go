package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/store"
)

func newTestController(t *testing.T) (*Controller, *store.VideoStore, *store.LogStore) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "lifecycle_test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(store.MigrationsFS()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	videos := store.NewVideoStore(db)
	logs := store.NewLogStore(db)
	return NewController(videos, logs, zerolog.Nop()), videos, logs
}

func seedVideo(t *testing.T, videos *store.VideoStore, status State) string {
	t.Helper()
	v := &clip.Video{
		FilePath: fmt.Sprintf("/media/%s.mp4", status),
		Status:   string(status),
		UserID:   "user-1",
	}
	if err := videos.Insert(v); err != nil {
		t.Fatalf("failed to seed video: %v", err)
	}
	return v.ID
}

func TestSuccessor(t *testing.T) {
	chain := []State{StateIngested, StateTranscribed, StateSegmented, StateScored, StateReady, StateArchived}
	for i := 0; i < len(chain)-1; i++ {
		succ, ok := Successor(chain[i])
		if !ok || succ != chain[i+1] {
			t.Errorf("Successor(%s) = %s, %v; want %s", chain[i], succ, ok, chain[i+1])
		}
	}
	if _, ok := Successor(StateArchived); ok {
		t.Error("archived must have no successor")
	}
}

func TestTransitionForwardChain(t *testing.T) {
	ctrl, videos, _ := newTestController(t)
	id := seedVideo(t, videos, StateIngested)

	for _, target := range []State{StateTranscribed, StateSegmented, StateScored, StateReady, StateArchived} {
		if err := ctrl.Transition(context.Background(), id, target, ""); err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}

	v, err := videos.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v.Status != string(StateArchived) {
		t.Errorf("got final status %s, want archived", v.Status)
	}
}

func TestTransitionRejectsSkip(t *testing.T) {
	ctrl, videos, logs := newTestController(t)
	id := seedVideo(t, videos, StateIngested)

	err := ctrl.Transition(context.Background(), id, StateScored, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skipping states should return ErrInvalidTransition, got %v", err)
	}

	v, err := videos.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v.Status != string(StateIngested) {
		t.Errorf("rejected transition mutated status to %s", v.Status)
	}

	entry, err := logs.Last(id, StepScore)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if entry == nil || entry.Status != store.LogFail {
		t.Errorf("rejected transition should leave a fail entry, got %+v", entry)
	}
}

func TestTransitionReentry(t *testing.T) {
	ctrl, videos, _ := newTestController(t)

	for _, state := range []State{StateScored, StateReady} {
		id := seedVideo(t, videos, state)
		if err := ctrl.Transition(context.Background(), id, state, "re-run"); err != nil {
			t.Errorf("%s re-entry should be allowed: %v", state, err)
		}
	}

	id := seedVideo(t, videos, StateIngested)
	if err := ctrl.Transition(context.Background(), id, StateIngested, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ingested re-entry should be rejected, got %v", err)
	}
}

func TestTransitionRejectsBackward(t *testing.T) {
	ctrl, videos, _ := newTestController(t)
	id := seedVideo(t, videos, StateScored)

	err := ctrl.Transition(context.Background(), id, StateTranscribed, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("backward transition should be rejected, got %v", err)
	}
}

func TestNextFreshVideo(t *testing.T) {
	ctrl, videos, _ := newTestController(t)
	id := seedVideo(t, videos, StateIngested)

	rp, err := ctrl.Next(id)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if rp == nil || rp.Target != StateTranscribed || rp.Step != StepTranscribe {
		t.Errorf("fresh video should resume at transcribe, got %+v", rp)
	}
	if rp.Retried {
		t.Error("fresh step should not be marked as a retry")
	}
}

func TestNextResumesOnlyFailedStep(t *testing.T) {
	ctrl, videos, logs := newTestController(t)
	id := seedVideo(t, videos, StateIngested)

	ctx := context.Background()
	if err := ctrl.Transition(ctx, id, StateTranscribed, ""); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if err := ctrl.Transition(ctx, id, StateSegmented, ""); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if err := ctrl.Fail(id, StateScored, errors.New("local vlm timeout")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	entriesBefore, err := logs.ListByVideo(id)
	if err != nil {
		t.Fatalf("ListByVideo failed: %v", err)
	}

	rp, err := ctrl.Next(id)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if rp == nil || rp.Target != StateScored || rp.Step != StepScore {
		t.Fatalf("stuck video should resume at score, got %+v", rp)
	}
	if !rp.Retried {
		t.Error("score step should be marked as a retry after a fail entry")
	}

	// Resuming inspects the log without rewriting prior ok entries.
	entriesAfter, err := logs.ListByVideo(id)
	if err != nil {
		t.Fatalf("ListByVideo failed: %v", err)
	}
	if len(entriesAfter) != len(entriesBefore) {
		t.Errorf("Next mutated the log: %d -> %d entries", len(entriesBefore), len(entriesAfter))
	}

	if err := ctrl.Transition(ctx, id, StateScored, "retry ok"); err != nil {
		t.Fatalf("retried transition failed: %v", err)
	}
	rp, err = ctrl.Next(id)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if rp == nil || rp.Target != StateReady {
		t.Errorf("after recovery the next step should be export, got %+v", rp)
	}
}

func TestNextArchivedVideo(t *testing.T) {
	ctrl, videos, _ := newTestController(t)
	id := seedVideo(t, videos, StateArchived)

	rp, err := ctrl.Next(id)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if rp != nil {
		t.Errorf("archived video has no next step, got %+v", rp)
	}
}
