// Package export runs render jobs through a bounded worker pool.
// Capacity is global (default 2); a video with a cloud arbitration
// call in flight is throttled to one concurrent render to preserve
// shared GPU and network headroom. The queue is unbounded: a job at
// capacity waits, it is never dropped.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/adapters"
	"github.com/clipforge-media/clipforge/internal/monitoring"
	"github.com/clipforge-media/clipforge/internal/security"
	"github.com/clipforge-media/clipforge/internal/store"
)

// DefaultCapacity is the scheduler's worker cap when none is configured.
const DefaultCapacity = 2

// Stores groups the persistence the scheduler needs.
type Stores struct {
	Videos      *store.VideoStore
	Candidates  *store.CandidateStore
	Transcripts *store.TranscriptStore
	Jobs        *store.ExportJobStore
	Logs        *store.LogStore
}

// Scheduler dispatches export jobs to render workers.
type Scheduler struct {
	capacity    int
	outDir      string
	renderer    adapters.Renderer
	stores      Stores
	escalations *EscalationTracker
	metrics     *monitoring.Metrics
	log         zerolog.Logger

	mu       sync.Mutex
	pending  []*store.ExportJob
	running  int
	perVideo map[string]int
	cancels  map[string]context.CancelFunc

	kick chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a Scheduler. capacity <= 0 uses DefaultCapacity.
func NewScheduler(capacity int, outDir string, renderer adapters.Renderer, stores Stores, escalations *EscalationTracker, metrics *monitoring.Metrics, logger zerolog.Logger) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// The output root must exist before render paths are validated
	// against it.
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		logger.Error().Err(err).Str("dir", outDir).Msg("create export directory")
	}
	return &Scheduler{
		capacity:    capacity,
		outDir:      outDir,
		renderer:    renderer,
		stores:      stores,
		escalations: escalations,
		metrics:     metrics,
		log:         logger,
		perVideo:    make(map[string]int),
		cancels:     make(map[string]context.CancelFunc),
		kick:        make(chan struct{}, 1),
	}
}

// Enqueue persists the job (when new) and queues it for dispatch.
func (s *Scheduler) Enqueue(job *store.ExportJob) error {
	if job.JobID == "" {
		if err := s.stores.Jobs.Insert(job); err != nil {
			return fmt.Errorf("persist export job: %w", err)
		}
	}

	s.mu.Lock()
	s.pending = append(s.pending, job)
	depth := len(s.pending)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ExportQueueLen.Set(float64(depth))
	}
	s.nudge()
	return nil
}

// Retry re-queues a failed or cancelled job. Jobs in any other state
// are rejected; retries happen on explicit request only.
func (s *Scheduler) Retry(jobID string) error {
	job, err := s.stores.Jobs.Get(jobID)
	if err != nil {
		return err
	}
	if job.Status != store.JobFailed && job.Status != store.JobCancelled {
		return fmt.Errorf("job %s is %s, only failed or cancelled jobs retry", jobID, job.Status)
	}
	if err := s.stores.Jobs.UpdateStatus(jobID, store.JobQueued, "", ""); err != nil {
		return err
	}
	job.Status = store.JobQueued
	return s.Enqueue(job)
}

// Cancel stops a job. A running render is cancelled cooperatively; a
// pending job is removed from the queue. Either way the ledger records
// the cancellation.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	if cancel, ok := s.cancels[jobID]; ok {
		s.mu.Unlock()
		cancel()
		return nil
	}
	for i, job := range s.pending {
		if job.JobID == jobID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.mu.Unlock()
			return s.stores.Jobs.UpdateStatus(jobID, store.JobCancelled, "", "cancelled before dispatch")
		}
	}
	s.mu.Unlock()
	return fmt.Errorf("job %s is not pending or running", jobID)
}

// Run dispatches until ctx is cancelled, then waits for in-flight
// renders to wind down.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.dispatch(ctx)
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-s.kick:
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) nudge() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// dispatch starts every admissible pending job, preserving queue order
// per video.
func (s *Scheduler) dispatch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rest []*store.ExportJob
	for i, job := range s.pending {
		if s.running >= s.capacity {
			rest = append(rest, s.pending[i:]...)
			break
		}
		videoCap := s.capacity
		if s.escalations != nil && s.escalations.Active(job.VideoID) {
			videoCap = 1
		}
		if s.perVideo[job.VideoID] >= videoCap {
			rest = append(rest, job)
			continue
		}

		s.running++
		s.perVideo[job.VideoID]++
		jobCtx, cancel := context.WithCancel(ctx)
		s.cancels[job.JobID] = cancel
		s.wg.Add(1)
		go s.run(jobCtx, job)
	}
	s.pending = rest
	if s.metrics != nil {
		s.metrics.ExportQueueLen.Set(float64(len(s.pending)))
	}
}

func (s *Scheduler) run(ctx context.Context, job *store.ExportJob) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running--
		s.perVideo[job.VideoID]--
		if s.perVideo[job.VideoID] <= 0 {
			delete(s.perVideo, job.VideoID)
		}
		if cancel, ok := s.cancels[job.JobID]; ok {
			cancel()
			delete(s.cancels, job.JobID)
		}
		s.mu.Unlock()
		s.nudge()
	}()

	outcome := s.render(ctx, job)
	if outcome != nil {
		result := store.JobFailed
		if ctx.Err() != nil {
			result = store.JobCancelled
		}
		if err := s.stores.Jobs.UpdateStatus(job.JobID, result, "", outcome.Error()); err != nil {
			s.log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to record job outcome")
		}
		if err := s.stores.Logs.Append(job.VideoID, "render", store.LogFail, fmt.Sprintf("clip %s: %v", job.ClipID, outcome)); err != nil {
			s.log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to log job outcome")
		}
		if s.metrics != nil {
			s.metrics.ExportJobs.WithLabelValues(result).Inc()
		}
		s.log.Warn().Err(outcome).Str("job_id", job.JobID).Str("clip_id", job.ClipID).Msg("export job failed")
	}
}

// render executes one job end to end and records success in the
// ledger and the processing log. Failures are returned for the caller
// to record; sibling jobs are unaffected either way.
func (s *Scheduler) render(ctx context.Context, job *store.ExportJob) error {
	if err := s.stores.Jobs.UpdateStatus(job.JobID, store.JobRunning, "", ""); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	video, err := s.stores.Videos.Get(job.VideoID)
	if err != nil {
		return err
	}
	cand, err := s.stores.Candidates.Get(job.ClipID)
	if err != nil {
		return err
	}
	slice, err := s.stores.Transcripts.Slice(job.VideoID, cand.Start, cand.End)
	if err != nil {
		return err
	}
	style, err := adapters.ParseCaptionStyle(job.CaptionStyle)
	if err != nil {
		return fmt.Errorf("parse caption style: %w", err)
	}

	// IDs come from the database, but they end up in shell-adjacent
	// ffmpeg arguments, so sanitize before building the path.
	name := security.SanitizeFilename(job.ClipID) + filepath.Ext(video.FilePath)
	outputPath := filepath.Join(s.outDir, security.SanitizeFilename(job.VideoID), name)
	if err := security.ValidatePathWithinDirectory(outputPath, s.outDir); err != nil {
		return fmt.Errorf("export path rejected: %w", err)
	}
	rendered, err := s.renderer.Render(ctx, adapters.RenderRequest{
		SourcePath: video.FilePath,
		OutputPath: outputPath,
		Start:      cand.Start,
		End:        cand.End,
		Transcript: slice,
		Style:      style,
	})
	if err != nil {
		return err
	}

	if err := s.stores.Jobs.UpdateStatus(job.JobID, store.JobDone, rendered, ""); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if err := s.stores.Logs.Append(job.VideoID, "render", store.LogOK, fmt.Sprintf("clip %s -> %s", job.ClipID, rendered)); err != nil {
		s.log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to log render success")
	}
	if s.metrics != nil {
		s.metrics.ExportJobs.WithLabelValues(store.JobDone).Inc()
	}
	s.log.Info().Str("job_id", job.JobID).Str("clip_id", job.ClipID).Str("output", rendered).Msg("export job done")
	return nil
}
