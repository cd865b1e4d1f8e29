// Package lifecycle enforces the video state machine. Every video moves
// through a fixed forward sequence of states; the only permitted
// re-entries are SCORED (re-score) and READY (re-export). Transitions
// are durable together with their processing-log entry, which is what
// makes interrupted pipelines resumable.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/store"
)

// State is a video's lifecycle position.
type State string

const (
	StateIngested    State = "ingested"
	StateTranscribed State = "transcribed"
	StateSegmented   State = "segmented"
	StateScored      State = "scored"
	StateReady       State = "ready"
	StateArchived    State = "archived"
)

// Pipeline step names as recorded in the processing log. Each step
// produces exactly one target state.
const (
	StepIngest     = "ingest"
	StepTranscribe = "transcribe"
	StepSegment    = "segment"
	StepScore      = "score"
	StepExport     = "export"
	StepArchive    = "archive"
)

var (
	ErrInvalidTransition   = errors.New("invalid lifecycle transition")
	ErrMissingUpstreamData = errors.New("missing upstream data")
	ErrUnknownState        = errors.New("unknown lifecycle state")
)

var order = []State{
	StateIngested,
	StateTranscribed,
	StateSegmented,
	StateScored,
	StateReady,
	StateArchived,
}

var steps = map[State]string{
	StateIngested:    StepIngest,
	StateTranscribed: StepTranscribe,
	StateSegmented:   StepSegment,
	StateScored:      StepScore,
	StateReady:       StepExport,
	StateArchived:    StepArchive,
}

// Valid reports whether s is one of the six lifecycle states.
func Valid(s State) bool {
	_, ok := steps[s]
	return ok
}

// StepFor returns the processing-log step name that produces target.
func StepFor(target State) string {
	return steps[target]
}

// Successor returns the state immediately after s. ok is false when s
// is terminal or unknown.
func Successor(s State) (State, bool) {
	for i, state := range order[:len(order)-1] {
		if state == s {
			return order[i+1], true
		}
	}
	return "", false
}

// Reentrant reports whether a same-state transition into s is allowed.
// Only SCORED and READY re-enter, for re-scoring and re-exporting.
func Reentrant(s State) bool {
	return s == StateScored || s == StateReady
}

// ResumePoint identifies the next step an interrupted pipeline should
// run. Retried is true when the step's last logged attempt failed.
type ResumePoint struct {
	Target  State
	Step    string
	Retried bool
}

// Controller owns all video status mutations. Components never update
// a video's status directly; they request a transition and the
// controller either applies it atomically with its log entry, or logs
// the refusal.
type Controller struct {
	videos *store.VideoStore
	logs   *store.LogStore
	log    zerolog.Logger
}

// NewController creates a Controller over the given stores.
func NewController(videos *store.VideoStore, logs *store.LogStore, logger zerolog.Logger) *Controller {
	return &Controller{videos: videos, logs: logs, log: logger}
}

// Transition moves a video to target. It succeeds only when target is
// the immediate successor of the video's persisted state, or a
// permitted same-state re-entry. Invalid requests are logged with
// status fail and leave the video untouched.
func (c *Controller) Transition(ctx context.Context, videoID string, target State, message string) error {
	if !Valid(target) {
		return fmt.Errorf("%w: %q", ErrUnknownState, target)
	}

	video, err := c.videos.Get(videoID)
	if err != nil {
		return fmt.Errorf("load video for transition: %w", err)
	}
	current := State(video.Status)

	succ, _ := Successor(current)
	if target != succ && !(target == current && Reentrant(current)) {
		reason := fmt.Sprintf("transition %s -> %s rejected", current, target)
		if logErr := c.logs.Append(videoID, StepFor(target), store.LogFail, reason); logErr != nil {
			c.log.Warn().Err(logErr).Str("video_id", videoID).Msg("failed to log rejected transition")
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}

	if err := c.videos.TransitionStatus(ctx, videoID, string(target), StepFor(target), message); err != nil {
		return fmt.Errorf("apply transition %s -> %s: %w", current, target, err)
	}

	c.log.Info().
		Str("video_id", videoID).
		Str("from", string(current)).
		Str("to", string(target)).
		Msg("lifecycle transition")
	return nil
}

// Fail records a failed attempt at the step producing target. The
// video's state is not touched; the fail entry is what makes the step
// eligible for retry on resume.
func (c *Controller) Fail(videoID string, target State, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := c.logs.Append(videoID, StepFor(target), store.LogFail, msg); err != nil {
		return fmt.Errorf("log step failure: %w", err)
	}
	c.log.Warn().
		Str("video_id", videoID).
		Str("step", StepFor(target)).
		Err(cause).
		Msg("pipeline step failed")
	return nil
}

// Next returns the step an interrupted pipeline should run for a
// video, or nil when the video is fully processed. It reads the
// persisted state and scans the log tail: a step whose most recent
// entry is missing or fail is retried from scratch; a step already
// logged ok is skipped.
func (c *Controller) Next(videoID string) (*ResumePoint, error) {
	video, err := c.videos.Get(videoID)
	if err != nil {
		return nil, fmt.Errorf("load video for resume: %w", err)
	}
	current := State(video.Status)
	if !Valid(current) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, current)
	}

	for {
		target, ok := Successor(current)
		if !ok {
			return nil, nil
		}
		step := StepFor(target)
		entry, err := c.logs.Last(videoID, step)
		if err != nil {
			return nil, fmt.Errorf("read log tail: %w", err)
		}
		if entry == nil || entry.Status == store.LogFail {
			return &ResumePoint{Target: target, Step: step, Retried: entry != nil}, nil
		}
		// Last attempt logged ok, so the work is durable even if the
		// status row lags behind. Skip ahead.
		current = target
	}
}
