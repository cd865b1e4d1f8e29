package adapters

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/clipforge-media/clipforge/internal/clip"
)

func TestSRTTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.042, "00:01:01,042"},
		{3725.999, "01:02:05,999"},
		{-2, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := srtTime(tt.seconds); got != tt.want {
			t.Errorf("srtTime(%v) = %s, want %s", tt.seconds, got, tt.want)
		}
	}
}

func transcriptFixture() []clip.TranscriptSegment {
	return []clip.TranscriptSegment{
		seg(8, 11, "before the clip"),
		seg(11, 15, "this one straddles the start"),
		seg(15, 20.5, "fully inside the window"),
	}
}

// Clip window starts at 12s; cue times must be relative to it.
func TestBuildSRT(t *testing.T) {
	srt := buildSRT(transcriptFixture(), 12.0)

	if !strings.Contains(srt, "00:00:00,000 --> 00:00:03,000") {
		t.Errorf("first cue not rebased:\n%s", srt)
	}
	if !strings.Contains(srt, "00:00:03,000 --> 00:00:08,500") {
		t.Errorf("second cue not rebased:\n%s", srt)
	}
	if strings.Contains(srt, "before the clip") {
		t.Errorf("segment ending before the clip should be dropped:\n%s", srt)
	}
	// Cues are numbered sequentially from 1.
	if !strings.HasPrefix(srt, "1\n") {
		t.Errorf("srt should start with cue 1:\n%s", srt)
	}
}

func TestParseCaptionStyleDefaults(t *testing.T) {
	style, err := ParseCaptionStyle(nil)
	if err != nil {
		t.Fatalf("ParseCaptionStyle failed: %v", err)
	}
	if style.FontSize != 32 || style.Outline != 2 || style.Shadow != 1 {
		t.Errorf("unexpected defaults: %+v", style)
	}

	style, err = ParseCaptionStyle(json.RawMessage(`{"font_size": 48, "vertical": true}`))
	if err != nil {
		t.Fatalf("ParseCaptionStyle failed: %v", err)
	}
	if style.FontSize != 48 {
		t.Errorf("override lost: %+v", style)
	}
	if style.Outline != 2 || style.Shadow != 1 {
		t.Errorf("unset fields should keep defaults: %+v", style)
	}
	if !style.Vertical {
		t.Error("vertical flag lost")
	}

	if _, err := ParseCaptionStyle(json.RawMessage(`not json`)); err == nil {
		t.Error("malformed style should error")
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath(`C:\tmp\cap's.srt`)
	want := `C\:\\tmp\\cap\'s.srt`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
