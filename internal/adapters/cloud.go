package adapters

import (
	"context"
	"fmt"
	"time"
)

// CloudVLM is the arbitration tier: a hosted vision model consulted at
// most once per clip, when local evidence stays ambiguous. It builds
// its own preview (a denser frame sample around the window center)
// and sends the transcript slice alongside.
type CloudVLM struct {
	vc         *visionClient
	ff         *FFmpeg
	frameCount int
	timeout    time.Duration
}

// NewCloudVLM builds the adapter. timeout bounds each arbitration
// call; expiry surfaces as ModelAdapterError, never as a rejection.
func NewCloudVLM(baseURL, apiKey, model string, frameCount int, timeout time.Duration, ff *FFmpeg) *CloudVLM {
	if frameCount <= 0 {
		frameCount = 6
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &CloudVLM{
		vc:         newVisionClient("cloud_vlm", baseURL, apiKey, model),
		ff:         ff,
		frameCount: frameCount,
		timeout:    timeout,
	}
}

// Arbitrate scores the window centered on req.Center, capped at
// req.DurationCap seconds.
func (a *CloudVLM) Arbitrate(ctx context.Context, req CloudRequest) (float64, error) {
	if req.DurationCap <= 0 {
		return 0, adapterErr("cloud_vlm", fmt.Errorf("clip %s: duration cap must be positive", req.ClipID))
	}
	start := req.Center - req.DurationCap/2
	if start < 0 {
		start = 0
	}
	end := start + req.DurationCap

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	frames, err := a.ff.SampleFrames(ctx, req.MediaPath, start, end, a.frameCount)
	if err != nil {
		return 0, adapterErr("cloud_vlm", err)
	}

	prompt := fmt.Sprintf(
		"Frames from a %.1f second candidate clip. Transcript of the spoken content:\n\n%s",
		end-start, transcriptText(req.Transcript),
	)
	score, err := a.vc.scoreFrames(ctx, prompt, frames)
	if err != nil {
		return 0, err
	}
	validated, err := ValidateScore("cloud_vlm", score)
	if err != nil {
		return 0, err
	}
	return *validated, nil
}
