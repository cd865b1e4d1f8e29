package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// WhisperTranscriber shells out to a whisper CLI. The audio track is
// first extracted to 16kHz mono WAV, which every whisper build
// accepts without resampling surprises.
type WhisperTranscriber struct {
	BinPath string
	Model   string
	ff      *FFmpeg
}

// NewWhisperTranscriber creates a transcriber around the whisper
// binary at binPath (default "whisper") and the named model.
func NewWhisperTranscriber(binPath, model string, ff *FFmpeg) *WhisperTranscriber {
	if binPath == "" {
		binPath = "whisper"
	}
	if model == "" {
		model = "base"
	}
	return &WhisperTranscriber{BinPath: binPath, Model: model, ff: ff}
}

// Transcribe extracts the audio track and runs whisper over it. The
// returned segments are ordered by start time and non-overlapping;
// whisper guarantees both, but overlaps from decoder drift are clamped
// rather than rejected.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, mediaPath string) ([]clip.TranscriptSegment, error) {
	tmpDir, err := os.MkdirTemp("", "clipforge-asr-")
	if err != nil {
		return nil, adapterErr("transcriber", err)
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	extract := exec.CommandContext(ctx, t.ff.FFmpegPath,
		"-v", "error",
		"-i", mediaPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-y", wavPath,
	)
	var stderr bytes.Buffer
	extract.Stderr = &stderr
	if err := extract.Run(); err != nil {
		return nil, adapterErr("transcriber", fmt.Errorf("extract audio: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	run := exec.CommandContext(ctx, t.BinPath,
		wavPath,
		"--model", t.Model,
		"--output_format", "json",
		"--output_dir", tmpDir,
	)
	stderr.Reset()
	run.Stderr = &stderr
	if err := run.Run(); err != nil {
		return nil, adapterErr("transcriber", fmt.Errorf("whisper: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	raw, err := os.ReadFile(filepath.Join(tmpDir, "audio.json"))
	if err != nil {
		return nil, adapterErr("transcriber", fmt.Errorf("read whisper output: %w", err))
	}
	segments := parseWhisperSegments(raw)
	if len(segments) == 0 {
		return nil, adapterErr("transcriber", fmt.Errorf("whisper produced no segments for %s", mediaPath))
	}
	return segments, nil
}

// parseWhisperSegments pulls (start, end, text) triples out of whisper
// JSON, skipping empties and clamping overlaps against the previous
// segment.
func parseWhisperSegments(raw []byte) []clip.TranscriptSegment {
	var segments []clip.TranscriptSegment
	prevEnd := 0.0
	gjson.GetBytes(raw, "segments").ForEach(func(_, seg gjson.Result) bool {
		text := strings.TrimSpace(seg.Get("text").String())
		start := seg.Get("start").Float()
		end := seg.Get("end").Float()
		if text == "" || end <= start {
			return true
		}
		if start < prevEnd {
			start = prevEnd
			if end <= start {
				return true
			}
		}
		prevEnd = end
		segments = append(segments, clip.TranscriptSegment{Start: start, End: end, Text: text})
		return true
	})
	return segments
}
