package adapters

import (
	"context"
	"fmt"
)

// LocalVLM scores clip windows against an on-box OpenAI-compatible
// vision model. It also extracts the emphasis signal series in the
// same pass, so the micro-emphasis tier never re-decodes the media.
type LocalVLM struct {
	vc         *visionClient
	ff         *FFmpeg
	frameCount int
}

// NewLocalVLM builds the adapter. baseURL points at the local
// inference server; frameCount <= 0 defaults to 4.
func NewLocalVLM(baseURL, apiKey, model string, frameCount int, ff *FFmpeg) *LocalVLM {
	if frameCount <= 0 {
		frameCount = 4
	}
	return &LocalVLM{
		vc:         newVisionClient("local_vlm", baseURL, apiKey, model),
		ff:         ff,
		frameCount: frameCount,
	}
}

// ScoreWindow samples frames across [start, end], scores them, and
// returns the validated score together with the window's signal
// series. An out-of-range model score returns a ValidationError; the
// caller treats the axis as absent, never as zero.
func (a *LocalVLM) ScoreWindow(ctx context.Context, mediaPath string, start, end float64) (*VisionResult, error) {
	frames, err := a.ff.SampleFrames(ctx, mediaPath, start, end, a.frameCount)
	if err != nil {
		return nil, adapterErr("local_vlm", err)
	}

	prompt := fmt.Sprintf("Frames sampled evenly from a %.1f second window of the source video.", end-start)
	score, err := a.vc.scoreFrames(ctx, prompt, frames)
	if err != nil {
		return nil, err
	}
	validated, err := ValidateScore("local_vlm", score)
	if err != nil {
		return nil, err
	}

	signals, err := a.ff.ExtractSignals(ctx, mediaPath, start, end)
	if err != nil {
		return nil, adapterErr("local_vlm", err)
	}

	return &VisionResult{Score: *validated, Signals: signals}, nil
}
