package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/adapters"
	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/lifecycle"
	"github.com/clipforge-media/clipforge/internal/store"
)

type fakeTranscriber struct {
	calls    int
	segments []clip.TranscriptSegment
	err      error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) ([]clip.TranscriptSegment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.segments, nil
}

type fakeSegmenter struct {
	calls     int
	proposals []adapters.Proposal
}

func (f *fakeSegmenter) Segment(_ context.Context, _ []clip.TranscriptSegment) ([]adapters.Proposal, error) {
	f.calls++
	return f.proposals, nil
}

type fakeLocalVision struct {
	calls   int
	score   float64
	signals clip.EmphasisSignals
	err     error
}

func (f *fakeLocalVision) ScoreWindow(_ context.Context, _ string, _, _ float64) (*adapters.VisionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &adapters.VisionResult{Score: f.score, Signals: f.signals}, nil
}

type fakeCloudVision struct {
	calls int
	score float64
	err   error
}

func (f *fakeCloudVision) Arbitrate(_ context.Context, _ adapters.CloudRequest) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.score, nil
}

type testEnv struct {
	p           *Pipeline
	st          Stores
	ctrl        *lifecycle.Controller
	transcriber *fakeTranscriber
	segmenter   *fakeSegmenter
	local       *fakeLocalVision
	cloud       *fakeCloudVision
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "pipeline_test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(store.MigrationsFS()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	st := Stores{
		Videos:      store.NewVideoStore(db),
		Transcripts: store.NewTranscriptStore(db),
		Candidates:  store.NewCandidateStore(db),
		Scores:      store.NewScoreStore(db),
		Logs:        store.NewLogStore(db),
	}
	ctrl := lifecycle.NewController(st.Videos, st.Logs, zerolog.Nop())

	env := &testEnv{
		st:   st,
		ctrl: ctrl,
		transcriber: &fakeTranscriber{segments: []clip.TranscriptSegment{
			{Start: 12, End: 30, Text: "the first stretch of speech in the video"},
			{Start: 30, End: 54, Text: "and the rest of the thought right after it"},
		}},
		segmenter: &fakeSegmenter{proposals: []adapters.Proposal{
			{Start: 12, End: 54, TextScore: 0.72},
		}},
		local: &fakeLocalVision{score: 0.8},
		cloud: &fakeCloudVision{score: 0.9},
	}
	env.p = New(DefaultConfig(), Adapters{
		Transcriber: env.transcriber,
		Segmenter:   env.segmenter,
		LocalVision: env.local,
		CloudVision: env.cloud,
	}, st, ctrl, nil, nil, nil, zerolog.Nop())
	return env
}

func (e *testEnv) ingest(t *testing.T) *clip.Video {
	t.Helper()
	video, err := e.p.Ingest("/media/source.mp4", "Source", "user-1", 0)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	return video
}

func (e *testEnv) adapterCalls() int {
	return e.transcriber.calls + e.segmenter.calls + e.local.calls + e.cloud.calls
}

func TestProcessEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	video := env.ingest(t)

	if err := env.p.Process(context.Background(), video.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got, err := env.st.Videos.Get(video.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != string(lifecycle.StateReady) {
		t.Errorf("got status %s, want ready", got.Status)
	}

	ranked, err := env.p.Rankings(video.ID)
	if err != nil {
		t.Fatalf("Rankings failed: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("expected 1 accepted clip, got %d", len(ranked))
	}
	if !ranked[0].AutoExport {
		t.Error("top clip should be flagged for auto-export")
	}
	if ranked[0].Escalated {
		t.Error("clearly accepted clip must not be escalated")
	}
	if env.cloud.calls != 0 {
		t.Errorf("accepted clip reached the cloud tier: %d calls", env.cloud.calls)
	}
}

// A single strong text axis renormalizes to a single-axis confidence
// of the text score itself, so 0.72 accepts without vision evidence.
func TestProcessAcceptsSingleAxis(t *testing.T) {
	env := newTestEnv(t)
	env.local.err = &adapters.ValidationError{Adapter: "local_vlm", Value: 1.5}
	video := env.ingest(t)

	if err := env.p.Process(context.Background(), video.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	records, err := env.st.Scores.MapByVideo(video.ID)
	if err != nil {
		t.Fatalf("MapByVideo failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 score record, got %d", len(records))
	}
	for _, rec := range records {
		if rec.VisionLocal != nil {
			t.Errorf("invalid vision score should leave the axis absent, got %v", *rec.VisionLocal)
		}
		if rec.Text == nil || *rec.Text != 0.72 {
			t.Errorf("text axis lost: %+v", rec)
		}
		if rec.Escalated {
			t.Error("single-axis accept must not escalate")
		}
	}

	ranked, err := env.p.Rankings(video.ID)
	if err != nil {
		t.Fatalf("Rankings failed: %v", err)
	}
	if len(ranked) != 1 {
		t.Errorf("0.72 single-axis clip should be accepted, got %d ranked", len(ranked))
	}
}

func TestProcessResumesOnlyFailedStep(t *testing.T) {
	env := newTestEnv(t)
	video := env.ingest(t)

	env.local.err = errors.New("model server unreachable")
	err := env.p.Process(context.Background(), video.ID)
	if err == nil {
		t.Fatal("Process should fail while the local model is down")
	}

	got, _ := env.st.Videos.Get(video.ID)
	if got.Status != string(lifecycle.StateSegmented) {
		t.Fatalf("failed score step must not advance state, got %s", got.Status)
	}
	entry, err := env.st.Logs.Last(video.ID, lifecycle.StepScore)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if entry == nil || entry.Status != store.LogFail {
		t.Fatalf("failed step should be logged fail, got %+v", entry)
	}

	transcribeCalls := env.transcriber.calls
	segmentCalls := env.segmenter.calls

	// Recovery: the model is back; only the score step re-runs.
	env.local.err = nil
	if err := env.p.Process(context.Background(), video.ID); err != nil {
		t.Fatalf("resumed Process failed: %v", err)
	}

	if env.transcriber.calls != transcribeCalls {
		t.Errorf("transcriber re-ran on resume: %d -> %d calls", transcribeCalls, env.transcriber.calls)
	}
	if env.segmenter.calls != segmentCalls {
		t.Errorf("segmenter re-ran on resume: %d -> %d calls", segmentCalls, env.segmenter.calls)
	}
	got, _ = env.st.Videos.Get(video.ID)
	if got.Status != string(lifecycle.StateReady) {
		t.Errorf("resumed video should reach ready, got %s", got.Status)
	}
}

func TestProcessEscalatesAmbiguousOnce(t *testing.T) {
	env := newTestEnv(t)
	// Base = 0.55*0.6 + 0.45*0.55 = 0.5775: ambiguous, flat signals, no
	// emphasis rescue, so the cloud tier decides.
	env.segmenter.proposals = []adapters.Proposal{{Start: 12, End: 54, TextScore: 0.6}}
	env.local.score = 0.55
	env.cloud.score = 0.95
	video := env.ingest(t)

	ctx := context.Background()
	if err := env.p.stepTranscribe(ctx, video.ID); err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if err := env.p.stepSegment(ctx, video.ID); err != nil {
		t.Fatalf("segment failed: %v", err)
	}
	if err := env.p.stepScore(ctx, video.ID); err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if env.cloud.calls != 1 {
		t.Fatalf("expected exactly one cloud call, got %d", env.cloud.calls)
	}

	records, _ := env.st.Scores.MapByVideo(video.ID)
	for _, rec := range records {
		if !rec.Escalated {
			t.Error("escalated flag not set")
		}
		if rec.VisionCloud == nil || *rec.VisionCloud != 0.95 {
			t.Errorf("cloud score not stored: %+v", rec)
		}
	}

	// Re-scoring must not re-consult the cloud: the flag is sticky.
	if err := env.p.Rescore(ctx, video.ID); err != nil {
		t.Fatalf("Rescore failed: %v", err)
	}
	if env.cloud.calls != 1 {
		t.Errorf("re-score repeated the cloud call: %d calls", env.cloud.calls)
	}
	records, _ = env.st.Scores.MapByVideo(video.ID)
	for _, rec := range records {
		if !rec.Escalated {
			t.Error("escalated flag reverted on re-score")
		}
	}
}

func TestReExportRunsNoAdapters(t *testing.T) {
	env := newTestEnv(t)
	video := env.ingest(t)
	if err := env.p.Process(context.Background(), video.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	before := env.adapterCalls()
	if err := env.p.ReExport(context.Background(), video.ID, []byte(`{"font_size":48}`)); err != nil {
		t.Fatalf("ReExport failed: %v", err)
	}
	if env.adapterCalls() != before {
		t.Errorf("re-export invoked adapters: %d -> %d calls", before, env.adapterCalls())
	}

	got, _ := env.st.Videos.Get(video.ID)
	if got.Status != string(lifecycle.StateReady) {
		t.Errorf("re-export should leave the video ready, got %s", got.Status)
	}
}

func TestRescoreRequiresScoredState(t *testing.T) {
	env := newTestEnv(t)
	video := env.ingest(t)

	err := env.p.Rescore(context.Background(), video.ID)
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("re-score of an ingested video should be invalid, got %v", err)
	}
}

// A weight change must reorder rankings from the stored per-axis
// scores alone; the combined value persisted under the old weights is
// not the sort key.
func TestRankingsRecombineUnderActiveWeights(t *testing.T) {
	env := newTestEnv(t)
	video := env.ingest(t)

	candidates := []clip.Candidate{
		{ClipID: "clip-a", VideoID: video.ID, Start: 10, End: 40, Source: clip.SourceASR},
		{ClipID: "clip-b", VideoID: video.ID, Start: 50, End: 80, Source: clip.SourceASR},
	}
	for i := range candidates {
		if err := env.st.Candidates.Insert(&candidates[i]); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	// Combined values persisted under the 0.55/0.45 defaults.
	records := []*clip.ScoreRecord{
		{ClipID: "clip-a", Text: clip.Float64(0.9), VisionLocal: clip.Float64(0.5), Combined: 0.82},
		{ClipID: "clip-b", Text: clip.Float64(0.5), VisionLocal: clip.Float64(0.9), Combined: 0.58},
	}
	for _, rec := range records {
		if err := env.st.Scores.Upsert(context.Background(), rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.Weights = clip.Weights{Text: 0.2, VisionLocal: 0.8}
	reweighted := New(cfg, Adapters{
		Transcriber: env.transcriber,
		Segmenter:   env.segmenter,
		LocalVision: env.local,
		CloudVision: env.cloud,
	}, env.st, env.ctrl, nil, nil, nil, zerolog.Nop())

	ranked, err := reweighted.Rankings(video.ID)
	if err != nil {
		t.Fatalf("Rankings failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 accepted clips, got %d", len(ranked))
	}
	if ranked[0].ClipID != "clip-b" {
		t.Fatalf("reweighted ranking kept the stale order: %s first", ranked[0].ClipID)
	}
	if got := ranked[0].Combined; got < 0.8199 || got > 0.8201 {
		t.Errorf("clip-b combined under active weights = %v, want 0.82", got)
	}
	if got := ranked[1].Combined; got < 0.5799 || got > 0.5801 {
		t.Errorf("clip-a combined under active weights = %v, want 0.58", got)
	}
}

func TestIngestIsIdempotentPerPath(t *testing.T) {
	env := newTestEnv(t)
	first := env.ingest(t)
	second, err := env.p.Ingest("/media/source.mp4", "Source", "user-1", 0)
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("same path registered twice: %s vs %s", first.ID, second.ID)
	}
}
