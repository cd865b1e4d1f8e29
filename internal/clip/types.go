// Package clip holds the domain model and scoring engine for clip
// candidates: the confidence gate, the micro-emphasis boost, and the
// score combiner and ranker. Everything in this package is pure
// computation over persisted records; persistence lives in
// internal/store and model calls in internal/adapters.
package clip

import "time"

// SourceTag records which stage proposed a candidate's boundary.
type SourceTag string

const (
	SourceASR      SourceTag = "asr"
	SourceLocalVLM SourceTag = "local_vlm"
	SourceCloudVLM SourceTag = "cloud_vlm"
)

// Video is the root aggregate for a source file moving through the
// pipeline. Status is owned by the lifecycle controller and mutated
// only through validated transitions.
type Video struct {
	ID               string    `json:"id"`
	FilePath         string    `json:"file_path"`
	Title            string    `json:"title,omitempty"`
	SourceType       string    `json:"source_type,omitempty"`
	Status           string    `json:"status"`
	UserID           string    `json:"user_id"`
	WatchDirectoryID int64     `json:"watch_directory_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TranscriptSegment is one timestamped span of transcribed speech.
// Segments are write-once per video and are never regenerated.
type TranscriptSegment struct {
	ID      int64   `json:"id"`
	VideoID string  `json:"video_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Candidate is a proposed clip boundary within a video.
type Candidate struct {
	ClipID    string    `json:"clip_id"`
	VideoID   string    `json:"video_id"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Source    SourceTag `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Duration returns the candidate's span in seconds.
func (c Candidate) Duration() float64 {
	return c.End - c.Start
}

// ScoreRecord holds the per-axis scores for one candidate. There is
// exactly one record per clip. A nil axis means "not computed", which
// is distinct from a zero score: absent axes are excluded from the
// weighted combination and their weight share is redistributed.
type ScoreRecord struct {
	ClipID         string   `json:"clip_id"`
	Text           *float64 `json:"text_score,omitempty"`
	VisionLocal    *float64 `json:"vision_score_local,omitempty"`
	AudioEmphasis  *float64 `json:"audio_emphasis_score,omitempty"`
	FacialEmphasis *float64 `json:"facial_emphasis_score,omitempty"`
	VisionCloud    *float64 `json:"vision_score_cloud,omitempty"`
	Combined       float64  `json:"combined_score"`
	Escalated      bool     `json:"escalated_to_cloud"`
	UpdatedAt      int64    `json:"updated_at"`
}

// Float64 returns a pointer to v. Convenience for building records.
func Float64(v float64) *float64 { return &v }
