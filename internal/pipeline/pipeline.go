// Package pipeline orchestrates a video's path through the scoring
// tiers: transcription, segmentation, local scoring with the
// confidence gate, micro-emphasis, cloud arbitration, ranking and
// export dispatch. The lifecycle controller decides which step runs;
// the pipeline only executes steps and records their outcomes, so an
// interrupted run resumes from the last durably logged step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/adapters"
	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/export"
	"github.com/clipforge-media/clipforge/internal/lifecycle"
	"github.com/clipforge-media/clipforge/internal/monitoring"
	"github.com/clipforge-media/clipforge/internal/store"
)

// Config carries the scoring configuration shared by every video.
type Config struct {
	Gate             clip.GateConfig
	Weights          clip.Weights
	TopN             int
	CloudDurationCap float64
	AdapterTimeout   time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Gate:             clip.DefaultGateConfig(),
		Weights:          clip.DefaultWeights(),
		TopN:             3,
		CloudDurationCap: 30,
		AdapterTimeout:   5 * time.Minute,
	}
}

// Adapters groups the model capabilities the pipeline calls.
type Adapters struct {
	Transcriber adapters.Transcriber
	Segmenter   adapters.Segmenter
	LocalVision adapters.LocalVisionAdapter
	CloudVision adapters.CloudVisionAdapter
}

// Stores groups the persistence the pipeline reads and writes.
type Stores struct {
	Videos      *store.VideoStore
	Transcripts *store.TranscriptStore
	Candidates  *store.CandidateStore
	Scores      *store.ScoreStore
	Logs        *store.LogStore
}

// Pipeline runs videos through the scoring cascade.
type Pipeline struct {
	cfg         Config
	ad          Adapters
	st          Stores
	ctrl        *lifecycle.Controller
	sched       *export.Scheduler
	escalations *export.EscalationTracker
	metrics     *monitoring.Metrics
	log         zerolog.Logger
}

// New creates a Pipeline. sched may be nil to disable auto-export
// dispatch; metrics may be nil in tools and tests.
func New(cfg Config, ad Adapters, st Stores, ctrl *lifecycle.Controller, sched *export.Scheduler, escalations *export.EscalationTracker, metrics *monitoring.Metrics, logger zerolog.Logger) *Pipeline {
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	if cfg.CloudDurationCap <= 0 {
		cfg.CloudDurationCap = 30
	}
	return &Pipeline{
		cfg:         cfg,
		ad:          ad,
		st:          st,
		ctrl:        ctrl,
		sched:       sched,
		escalations: escalations,
		metrics:     metrics,
		log:         logger,
	}
}

// Ingest registers a new source file in INGESTED state and logs it.
// Re-registering a known path returns the existing video.
func (p *Pipeline) Ingest(filePath, title, userID string, watchDirID int64) (*clip.Video, error) {
	existing, err := p.st.Videos.GetByPath(filePath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	video := &clip.Video{
		FilePath:         filePath,
		Title:            title,
		Status:           string(lifecycle.StateIngested),
		UserID:           userID,
		WatchDirectoryID: watchDirID,
	}
	if err := p.st.Videos.Insert(video); err != nil {
		return nil, fmt.Errorf("register video: %w", err)
	}
	if err := p.st.Logs.Append(video.ID, lifecycle.StepIngest, store.LogOK, filePath); err != nil {
		return nil, err
	}
	p.log.Info().Str("video_id", video.ID).Str("path", filePath).Msg("video ingested")
	return video, nil
}

// Process advances a video until it reaches READY or a step fails.
// Failed steps are logged and left for the next invocation; completed
// steps are never repeated.
func (p *Pipeline) Process(ctx context.Context, videoID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rp, err := p.ctrl.Next(videoID)
		if err != nil {
			return err
		}
		if rp == nil || rp.Step == lifecycle.StepArchive {
			// Archiving is an operator decision, never automatic.
			return nil
		}

		if err := p.runStep(ctx, videoID, rp); err != nil {
			if failErr := p.ctrl.Fail(videoID, rp.Target, err); failErr != nil {
				p.log.Error().Err(failErr).Str("video_id", videoID).Msg("failed to record step failure")
			}
			return fmt.Errorf("step %s: %w", rp.Step, err)
		}
	}
}

func (p *Pipeline) runStep(ctx context.Context, videoID string, rp *lifecycle.ResumePoint) error {
	if p.metrics != nil {
		defer p.metrics.Transitions.WithLabelValues(string(rp.Target)).Inc()
	}
	switch rp.Step {
	case lifecycle.StepTranscribe:
		return p.stepTranscribe(ctx, videoID)
	case lifecycle.StepSegment:
		return p.stepSegment(ctx, videoID)
	case lifecycle.StepScore:
		return p.stepScore(ctx, videoID)
	case lifecycle.StepExport:
		return p.stepExport(ctx, videoID, nil)
	default:
		return fmt.Errorf("no handler for step %s", rp.Step)
	}
}

// stepTranscribe produces the write-once transcript. A retry after a
// failure past the insert finds the transcript already present and
// only replays the transition.
func (p *Pipeline) stepTranscribe(ctx context.Context, videoID string) error {
	video, err := p.st.Videos.Get(videoID)
	if err != nil {
		return err
	}

	existing, err := p.st.Transcripts.ListByVideo(videoID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.AdapterTimeout)
		defer cancel()

		segments, err := timedObserve(p, "transcriber", func() ([]clip.TranscriptSegment, error) {
			return p.ad.Transcriber.Transcribe(ctx, video.FilePath)
		})
		if err != nil {
			return err
		}
		for i := range segments {
			segments[i].VideoID = videoID
		}
		if err := p.st.Transcripts.InsertSegments(videoID, segments); err != nil {
			return err
		}
		existing = segments
	}

	return p.ctrl.Transition(ctx, videoID, lifecycle.StateTranscribed,
		fmt.Sprintf("%d transcript segments", len(existing)))
}

// stepSegment derives candidates from the transcript. Retries start
// from scratch: previous candidates for the video are dropped first.
func (p *Pipeline) stepSegment(ctx context.Context, videoID string) error {
	transcript, err := p.st.Transcripts.ListByVideo(videoID)
	if err != nil {
		return err
	}
	if len(transcript) == 0 {
		return fmt.Errorf("%w: no transcript for %s", lifecycle.ErrMissingUpstreamData, videoID)
	}

	proposals, err := p.ad.Segmenter.Segment(ctx, transcript)
	if err != nil {
		return err
	}

	if err := p.st.Candidates.DeleteByVideo(videoID); err != nil {
		return err
	}
	for _, prop := range proposals {
		cand := &clip.Candidate{
			VideoID: videoID,
			Start:   prop.Start,
			End:     prop.End,
			Source:  clip.SourceASR,
		}
		if err := p.st.Candidates.Insert(cand); err != nil {
			return err
		}

		rec := &clip.ScoreRecord{ClipID: cand.ClipID}
		rec.Text = p.validated("segmenter", videoID, prop.TextScore)
		if err := p.combineAndStore(ctx, rec); err != nil {
			return err
		}
	}

	return p.ctrl.Transition(ctx, videoID, lifecycle.StateSegmented,
		fmt.Sprintf("%d candidates", len(proposals)))
}

// stepScore runs the tier cascade over every candidate, then advances
// the lifecycle.
func (p *Pipeline) stepScore(ctx context.Context, videoID string) error {
	video, err := p.st.Videos.Get(videoID)
	if err != nil {
		return err
	}
	candidates, err := p.st.Candidates.ListByVideo(videoID)
	if err != nil {
		return err
	}

	for i := range candidates {
		if err := p.scoreClip(ctx, video, &candidates[i]); err != nil {
			return fmt.Errorf("clip %s: %w", candidates[i].ClipID, err)
		}
	}

	return p.ctrl.Transition(ctx, videoID, lifecycle.StateScored,
		fmt.Sprintf("%d clips scored", len(candidates)))
}

// scoreClip walks one candidate through the tiers. Transient adapter
// failures abort the step; validation failures leave the axis absent
// and continue.
func (p *Pipeline) scoreClip(ctx context.Context, video *clip.Video, cand *clip.Candidate) error {
	rec, err := p.st.Scores.Get(cand.ClipID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &clip.ScoreRecord{ClipID: cand.ClipID}
	}

	// Tier 1: local vision evidence.
	result, err := timedObserve(p, "local_vlm", func() (*adapters.VisionResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.AdapterTimeout)
		defer cancel()
		return p.ad.LocalVision.ScoreWindow(callCtx, video.FilePath, cand.Start, cand.End)
	})
	var signals clip.EmphasisSignals
	switch {
	case err == nil:
		rec.VisionLocal = &result.Score
		signals = result.Signals
	case isValidation(err):
		p.logValidation(video.ID, err)
		rec.VisionLocal = nil
	default:
		return err
	}

	decision, base, err := p.cfg.Gate.Classify(rec)
	if err != nil {
		return fmt.Errorf("%w: clip %s has no scoring axes", lifecycle.ErrMissingUpstreamData, cand.ClipID)
	}
	if p.metrics != nil {
		p.metrics.GateOutcomes.WithLabelValues(string(decision)).Inc()
	}

	// Tier 2: micro-emphasis, only for ambiguous clips and only from
	// signals already extracted.
	if decision == clip.DecisionAmbiguous {
		if audio, ok := clip.AudioEmphasisScore(signals); ok {
			rec.AudioEmphasis = clip.Float64(audio)
		}
		if facial, ok := clip.FacialEmphasisScore(signals); ok {
			rec.FacialEmphasis = clip.Float64(facial)
		}
		if micro, ok := clip.MicroEmphasis(rec.AudioEmphasis, rec.FacialEmphasis); ok {
			if p.cfg.Gate.BoostConfidence(base, micro) >= p.cfg.Gate.AcceptThreshold {
				decision = clip.DecisionAccept
			}
		}
	}

	// Tier 3: cloud arbitration, at most once per clip.
	if decision == clip.DecisionAmbiguous && !rec.Escalated && p.ad.CloudVision != nil {
		slice, err := p.st.Transcripts.Slice(video.ID, cand.Start, cand.End)
		if err != nil {
			return err
		}

		if p.escalations != nil {
			p.escalations.Begin(video.ID)
		}
		score, err := timedObserve(p, "cloud_vlm", func() (float64, error) {
			return p.ad.CloudVision.Arbitrate(ctx, adapters.CloudRequest{
				ClipID:      cand.ClipID,
				MediaPath:   video.FilePath,
				Center:      (cand.Start + cand.End) / 2,
				DurationCap: p.cfg.CloudDurationCap,
				Transcript:  slice,
			})
		})
		if p.escalations != nil {
			p.escalations.End(video.ID)
		}

		switch {
		case err == nil:
			rec.VisionCloud = &score
			rec.Escalated = true
			if p.metrics != nil {
				p.metrics.Escalations.Inc()
			}
		case isValidation(err):
			p.logValidation(video.ID, err)
		default:
			return err
		}
	}

	return p.combineAndStore(ctx, rec)
}

// stepExport ranks the video's accepted clips and queues the top N for
// rendering. It reads only stored scores; no adapter runs here, which
// is what makes re-export with a new style free of inference.
func (p *Pipeline) stepExport(ctx context.Context, videoID string, style []byte) error {
	ranked, err := p.Rankings(videoID)
	if err != nil {
		return err
	}

	queued := 0
	if p.sched != nil {
		for _, rc := range ranked {
			if !rc.AutoExport {
				continue
			}
			job := &store.ExportJob{
				VideoID:      videoID,
				ClipID:       rc.ClipID,
				CaptionStyle: style,
			}
			if err := p.sched.Enqueue(job); err != nil {
				return err
			}
			queued++
		}
	}

	return p.ctrl.Transition(ctx, videoID, lifecycle.StateReady,
		fmt.Sprintf("%d export jobs queued", queued))
}

// Rescore re-runs the scoring tiers for a SCORED video via the
// lifecycle's same-state re-entry. Escalated clips keep their flag and
// are not re-sent to the cloud.
func (p *Pipeline) Rescore(ctx context.Context, videoID string) error {
	video, err := p.st.Videos.Get(videoID)
	if err != nil {
		return err
	}
	if video.Status != string(lifecycle.StateScored) {
		return fmt.Errorf("%w: %s -> %s", lifecycle.ErrInvalidTransition, video.Status, lifecycle.StateScored)
	}

	candidates, err := p.st.Candidates.ListByVideo(videoID)
	if err != nil {
		return err
	}
	for i := range candidates {
		if err := p.scoreClip(ctx, video, &candidates[i]); err != nil {
			if failErr := p.ctrl.Fail(videoID, lifecycle.StateScored, err); failErr != nil {
				p.log.Error().Err(failErr).Str("video_id", videoID).Msg("failed to record re-score failure")
			}
			return err
		}
	}
	return p.ctrl.Transition(ctx, videoID, lifecycle.StateScored, "re-scored")
}

// ReExport re-queues the auto-export clips of a READY video with a new
// caption style. Only stored scores are consulted.
func (p *Pipeline) ReExport(ctx context.Context, videoID string, style []byte) error {
	video, err := p.st.Videos.Get(videoID)
	if err != nil {
		return err
	}
	if video.Status != string(lifecycle.StateReady) {
		return fmt.Errorf("%w: %s -> %s", lifecycle.ErrInvalidTransition, video.Status, lifecycle.StateReady)
	}
	return p.stepExport(ctx, videoID, style)
}

// Rankings computes the derived ranking view for a video: accepted
// clips ordered by combined score with the top N flagged. Both the
// accept decision and the sort key are recomputed from the stored
// per-axis scores under the active weights, so a weight change takes
// effect on the next call without a rescore. The persisted combined
// value is a cache of the last scoring pass, never the sort key.
func (p *Pipeline) Rankings(videoID string) ([]clip.RankedClip, error) {
	candidates, err := p.st.Candidates.ListByVideo(videoID)
	if err != nil {
		return nil, err
	}
	records, err := p.st.Scores.MapByVideo(videoID)
	if err != nil {
		return nil, err
	}

	accepted := make([]clip.Candidate, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := records[c.ClipID]
		if !ok {
			continue
		}
		decision, _, err := clip.Evaluate(p.cfg.Gate, p.cfg.Weights, rec)
		if err != nil || decision != clip.DecisionAccept {
			continue
		}
		combined, err := p.cfg.Weights.Combine(rec)
		if err != nil {
			continue
		}
		rec.Combined = combined
		accepted = append(accepted, c)
	}
	return clip.Rank(accepted, records, p.cfg.TopN), nil
}

// combineAndStore recomputes the combined score from the record's
// current axes and persists it. The combined value is never carried
// over from a previous weight configuration.
func (p *Pipeline) combineAndStore(ctx context.Context, rec *clip.ScoreRecord) error {
	combined, err := p.cfg.Weights.Combine(rec)
	if err != nil {
		if !errors.Is(err, clip.ErrNoAxes) {
			return err
		}
		combined = 0
	}
	rec.Combined = combined
	return p.st.Scores.Upsert(ctx, rec)
}

// validated filters an adapter score through range validation. Invalid
// scores are logged and become an absent axis.
func (p *Pipeline) validated(adapter, videoID string, v float64) *float64 {
	score, err := adapters.ValidateScore(adapter, v)
	if err != nil {
		p.logValidation(videoID, err)
		return nil
	}
	return score
}

func (p *Pipeline) logValidation(videoID string, err error) {
	if logErr := p.st.Logs.Append(videoID, "validate", store.LogFail, err.Error()); logErr != nil {
		p.log.Error().Err(logErr).Str("video_id", videoID).Msg("failed to log validation failure")
	}
	p.log.Warn().Err(err).Str("video_id", videoID).Msg("adapter score rejected")
}

func isValidation(err error) bool {
	var verr *adapters.ValidationError
	return errors.As(err, &verr)
}

// timedObserve wraps an adapter call with latency and failure metrics.
func timedObserve[T any](p *Pipeline, adapter string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	if p.metrics != nil {
		p.metrics.AdapterLatency.WithLabelValues(adapter).Observe(time.Since(start).Seconds())
		if err != nil && !isValidation(err) {
			p.metrics.AdapterFailures.WithLabelValues(adapter).Inc()
		}
	}
	return v, err
}
