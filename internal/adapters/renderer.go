package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// FFmpegRenderer cuts the clip window out of the source and burns in
// captions built from the transcript slice. Output goes to a
// temporary path first and is promoted with a rename only on full
// success, so cancellation or failure never leaves a partial artifact
// at the final path.
type FFmpegRenderer struct {
	ff *FFmpeg
}

// NewFFmpegRenderer creates a renderer over the given ffmpeg wrapper.
func NewFFmpegRenderer(ff *FFmpeg) *FFmpegRenderer {
	return &FFmpegRenderer{ff: ff}
}

// Render produces the clip at req.OutputPath and returns that path.
func (r *FFmpegRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	if req.End <= req.Start {
		return "", fmt.Errorf("render: empty window [%f,%f]", req.Start, req.End)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(req.OutputPath), ".render-")
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	filters := []string{}
	if req.Style.Vertical {
		// Center-crop to 9:16 before captioning.
		filters = append(filters, "crop=ih*9/16:ih,scale=1080:1920")
	}
	if len(req.Transcript) > 0 {
		srtPath := filepath.Join(tmpDir, "captions.srt")
		if err := os.WriteFile(srtPath, []byte(buildSRT(req.Transcript, req.Start)), 0o644); err != nil {
			return "", fmt.Errorf("render: write captions: %w", err)
		}
		filters = append(filters, fmt.Sprintf(
			"subtitles=%s:force_style='FontName=%s,FontSize=%d,Outline=%d,Shadow=%d'",
			escapeFilterPath(srtPath),
			req.Style.FontName, req.Style.FontSize, req.Style.Outline, req.Style.Shadow,
		))
	}

	tmpOut := filepath.Join(tmpDir, "out"+filepath.Ext(req.OutputPath))
	args := []string{
		"-v", "error",
		"-ss", formatSeconds(req.Start),
		"-to", formatSeconds(req.End),
		"-i", req.SourcePath,
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y", tmpOut,
	)

	cmd := exec.CommandContext(ctx, r.ff.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("render cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("render: ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("render cancelled: %w", err)
	}

	if err := os.Rename(tmpOut, req.OutputPath); err != nil {
		return "", fmt.Errorf("render: promote output: %w", err)
	}
	return req.OutputPath, nil
}

// buildSRT converts a transcript slice into SRT cues with timestamps
// rebased to the clip start. Segments outside the clip are clamped to
// its bounds.
func buildSRT(segments []clip.TranscriptSegment, clipStart float64) string {
	var b strings.Builder
	cue := 1
	for _, seg := range segments {
		start := seg.Start - clipStart
		end := seg.End - clipStart
		if end <= 0 {
			continue
		}
		if start < 0 {
			start = 0
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", cue, srtTime(start), srtTime(end), strings.TrimSpace(seg.Text))
		cue++
	}
	return b.String()
}

// srtTime formats seconds as HH:MM:SS,mmm.
func srtTime(v float64) string {
	if v < 0 {
		v = 0
	}
	millis := int64(v*1000 + 0.5)
	h := millis / 3600000
	m := (millis % 3600000) / 60000
	s := (millis % 60000) / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// escapeFilterPath escapes characters the subtitles filter treats
// specially in its argument.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `:`, `\:`)
	p = strings.ReplaceAll(p, `'`, `\'`)
	return p
}
