package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// FFmpeg wraps the ffmpeg/ffprobe binaries used by the local vision
// adapter, the cloud adapter's preview builder and the renderer.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpeg resolves binary paths, defaulting to whatever is on PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Duration returns the media duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, mediaPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		mediaPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", mediaPath, err)
	}
	dur := gjson.GetBytes(out, "format.duration").Float()
	if dur <= 0 {
		return 0, fmt.Errorf("ffprobe %s: no duration in output", mediaPath)
	}
	return dur, nil
}

// SampleFrames extracts count JPEG frames evenly spaced across
// [start, end] and returns them as base64 data URLs suitable for
// vision-model image parts.
func (f *FFmpeg) SampleFrames(ctx context.Context, mediaPath string, start, end float64, count int) ([]string, error) {
	if count <= 0 {
		count = 4
	}
	span := end - start
	if span <= 0 {
		return nil, fmt.Errorf("sample frames: empty window [%f,%f]", start, end)
	}

	tmpDir, err := os.MkdirTemp("", "clipforge-frames-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	urls := make([]string, 0, count)
	for i := 0; i < count; i++ {
		// Offset into the window, avoiding the exact endpoints.
		ts := start + span*(float64(i)+0.5)/float64(count)
		framePath := filepath.Join(tmpDir, fmt.Sprintf("frame-%03d.jpg", i))
		cmd := exec.CommandContext(ctx, f.FFmpegPath,
			"-v", "error",
			"-ss", formatSeconds(ts),
			"-i", mediaPath,
			"-frames:v", "1",
			"-vf", "scale=640:-2",
			"-q:v", "5",
			"-y", framePath,
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("ffmpeg frame at %s: %w: %s", formatSeconds(ts), err, strings.TrimSpace(stderr.String()))
		}
		data, err := os.ReadFile(framePath)
		if err != nil {
			return nil, err
		}
		urls = append(urls, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return urls, nil
}

// ExtractSignals decodes the window once and derives the emphasis
// signal series: per-window audio loudness (RMS) and zero-crossing
// rate, plus a frame-difference motion series from low-resolution
// grayscale video. Tempo is left absent.
func (f *FFmpeg) ExtractSignals(ctx context.Context, mediaPath string, start, end float64) (clip.EmphasisSignals, error) {
	var signals clip.EmphasisSignals

	loudness, pitch, err := f.audioSeries(ctx, mediaPath, start, end)
	if err != nil {
		return signals, err
	}
	motion, err := f.motionSeries(ctx, mediaPath, start, end)
	if err != nil {
		return signals, err
	}

	signals.Loudness = loudness
	signals.Pitch = pitch
	signals.LandmarkMotion = motion
	return signals, nil
}

const (
	audioSampleRate = 8000
	// 250ms analysis windows.
	audioWindow = audioSampleRate / 4
	motionFPS   = 4
	motionW     = 32
	motionH     = 18
)

// audioSeries decodes mono 8kHz s16le audio and returns per-window RMS
// loudness and zero-crossing rate (a cheap pitch-activity proxy).
func (f *FFmpeg) audioSeries(ctx context.Context, mediaPath string, start, end float64) ([]float64, []float64, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-v", "error",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", mediaPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(audioSampleRate),
		"-f", "s16le",
		"-",
	)
	raw, err := cmd.Output()
	if err != nil {
		return nil, nil, fmt.Errorf("ffmpeg audio decode: %w", err)
	}

	samples := make([]float64, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		v := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
		samples = append(samples, float64(v)/32768.0)
	}

	var loudness, zcr []float64
	for off := 0; off+audioWindow <= len(samples); off += audioWindow {
		window := samples[off : off+audioWindow]
		sumSq := 0.0
		crossings := 0
		for i, s := range window {
			sumSq += s * s
			if i > 0 && (s >= 0) != (window[i-1] >= 0) {
				crossings++
			}
		}
		loudness = append(loudness, math.Sqrt(sumSq/float64(len(window))))
		zcr = append(zcr, float64(crossings)/float64(len(window)))
	}
	return loudness, zcr, nil
}

// motionSeries decodes low-rate grayscale frames and returns the mean
// absolute pixel delta between consecutive frames.
func (f *FFmpeg) motionSeries(ctx context.Context, mediaPath string, start, end float64) ([]float64, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-v", "error",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", mediaPath,
		"-an",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d,format=gray", motionFPS, motionW, motionH),
		"-f", "rawvideo",
		"-",
	)
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg video decode: %w", err)
	}

	frameSize := motionW * motionH
	frameCount := len(raw) / frameSize
	var motion []float64
	for i := 1; i < frameCount; i++ {
		prev := raw[(i-1)*frameSize : i*frameSize]
		cur := raw[i*frameSize : (i+1)*frameSize]
		sum := 0.0
		for j := range cur {
			d := int(cur[j]) - int(prev[j])
			if d < 0 {
				d = -d
			}
			sum += float64(d)
		}
		motion = append(motion, sum/float64(frameSize)/255.0)
	}
	return motion, nil
}

// transcriptText flattens a transcript slice into prompt text, ordered
// by start time.
func transcriptText(segments []clip.TranscriptSegment) string {
	sorted := make([]clip.TranscriptSegment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	for _, seg := range sorted {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
