// Package adapters defines the capability contracts the pipeline
// depends on and their production implementations: whisper
// transcription, transcript segmentation, local and cloud
// vision-language scoring, and ffmpeg rendering. Each adapter is
// constructed once at startup and injected; nothing here touches the
// store or the lifecycle controller.
package adapters

import (
	"context"
	"encoding/json"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// Transcriber produces ordered, non-overlapping transcript segments
// for a media file.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) ([]clip.TranscriptSegment, error)
}

// Proposal is a candidate clip boundary with the text evidence score
// that motivated it.
type Proposal struct {
	Start     float64
	End       float64
	TextScore float64
}

// Segmenter derives candidate boundaries from a transcript.
type Segmenter interface {
	Segment(ctx context.Context, segments []clip.TranscriptSegment) ([]Proposal, error)
}

// VisionResult is the local model's verdict on a clip window plus the
// signals sampled while producing it. The signals feed the
// micro-emphasis calculator so ambiguous clips get a second opinion
// without re-decoding the media.
type VisionResult struct {
	Score   float64
	Signals clip.EmphasisSignals
}

// LocalVisionAdapter scores a clip window with an on-box
// vision-language model.
type LocalVisionAdapter interface {
	ScoreWindow(ctx context.Context, mediaPath string, start, end float64) (*VisionResult, error)
}

// CloudRequest is one arbitration call. Preview construction (which
// frames, how compressed) is the adapter's business; callers supply
// only the window and its transcript slice.
type CloudRequest struct {
	ClipID      string
	MediaPath   string
	Center      float64
	DurationCap float64
	Transcript  []clip.TranscriptSegment
}

// CloudVisionAdapter is the last, most expensive evidence tier. The
// pipeline calls it at most once per clip.
type CloudVisionAdapter interface {
	Arbitrate(ctx context.Context, req CloudRequest) (float64, error)
}

// CaptionStyle controls caption burn-in during rendering.
type CaptionStyle struct {
	FontSize int    `json:"font_size,omitempty"`
	Outline  int    `json:"outline,omitempty"`
	Shadow   int    `json:"shadow,omitempty"`
	FontName string `json:"font_name,omitempty"`
	Vertical bool   `json:"vertical,omitempty"` // 9:16 reframe
}

// DefaultCaptionStyle fills zero-valued style fields.
func DefaultCaptionStyle() CaptionStyle {
	return CaptionStyle{FontSize: 32, Outline: 2, Shadow: 1, FontName: "Arial"}
}

// ParseCaptionStyle decodes a stored style blob, applying defaults for
// unset fields. A nil or empty blob yields the default style.
func ParseCaptionStyle(raw json.RawMessage) (CaptionStyle, error) {
	style := DefaultCaptionStyle()
	if len(raw) == 0 {
		return style, nil
	}
	if err := json.Unmarshal(raw, &style); err != nil {
		return style, err
	}
	def := DefaultCaptionStyle()
	if style.FontSize <= 0 {
		style.FontSize = def.FontSize
	}
	if style.Outline < 0 {
		style.Outline = def.Outline
	}
	if style.Shadow < 0 {
		style.Shadow = def.Shadow
	}
	if style.FontName == "" {
		style.FontName = def.FontName
	}
	return style, nil
}

// RenderRequest describes one export. Rendering consumes only the
// window, transcript slice and style; no model inference happens here.
type RenderRequest struct {
	SourcePath string
	OutputPath string
	Start      float64
	End        float64
	Transcript []clip.TranscriptSegment
	Style      CaptionStyle
}

// Renderer produces the final clip artifact. Implementations must not
// leave partial files at OutputPath on failure or cancellation.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}
