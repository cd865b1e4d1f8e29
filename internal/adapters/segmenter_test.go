package adapters

import (
	"context"
	"testing"

	"github.com/clipforge-media/clipforge/internal/clip"
)

func seg(start, end float64, text string) clip.TranscriptSegment {
	return clip.TranscriptSegment{Start: start, End: end, Text: text}
}

func TestPauseSegmenterSplitsOnGap(t *testing.T) {
	s := NewPauseSegmenter(5, 90, 1.2)
	transcript := []clip.TranscriptSegment{
		seg(0, 4, "the first part of the talk continues here"),
		seg(4.5, 10, "and keeps going without a long pause at all"),
		// 3 second silence.
		seg(13, 20, "a completely new thought starts after the break"),
	}

	proposals, err := s.Segment(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(proposals) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(proposals))
	}
	if proposals[0].Start != 0 || proposals[0].End != 10 {
		t.Errorf("first window wrong: [%v,%v]", proposals[0].Start, proposals[0].End)
	}
	if proposals[1].Start != 13 || proposals[1].End != 20 {
		t.Errorf("second window wrong: [%v,%v]", proposals[1].Start, proposals[1].End)
	}
}

func TestPauseSegmenterDropsShortWindows(t *testing.T) {
	s := NewPauseSegmenter(10, 90, 1.2)
	transcript := []clip.TranscriptSegment{
		seg(0, 3, "too short to be a clip"),
		// long pause
		seg(10, 25, "this window on the other hand is long enough to keep"),
	}

	proposals, err := s.Segment(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(proposals) != 1 {
		t.Fatalf("expected 1 window, got %d", len(proposals))
	}
	if proposals[0].Start != 10 {
		t.Errorf("kept the wrong window: %+v", proposals[0])
	}
}

func TestPauseSegmenterEnforcesMaxDuration(t *testing.T) {
	s := NewPauseSegmenter(5, 30, 2.0)
	var transcript []clip.TranscriptSegment
	for i := 0; i < 10; i++ {
		start := float64(i * 10)
		transcript = append(transcript, seg(start, start+9.5, "continuous speech with no pauses at all in it"))
	}

	proposals, err := s.Segment(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(proposals) < 2 {
		t.Fatalf("continuous speech should split at the duration cap, got %d windows", len(proposals))
	}
	for _, p := range proposals {
		if p.End-p.Start > 40 {
			t.Errorf("window [%v,%v] exceeds the cap by more than one segment", p.Start, p.End)
		}
	}
}

func TestTextScoreBounds(t *testing.T) {
	windows := [][]clip.TranscriptSegment{
		{seg(0, 20, "why most people never learn the secret truth? here's the thing, actually the best mistake?")},
		{seg(0, 20, "um")},
		{seg(0, 60, "word")},
	}
	for i, w := range windows {
		score := textScore(w)
		if score < 0 || score > 1 {
			t.Errorf("window %d: score %v out of [0,1]", i, score)
		}
	}

	rich := textScore([]clip.TranscriptSegment{
		seg(0, 20, "why do most people never learn this? the secret is actually a mistake everyone makes, here's the thing you need to know about the truth"),
	})
	flat := textScore([]clip.TranscriptSegment{
		seg(0, 20, "um"),
	})
	if rich <= flat {
		t.Errorf("hook-dense window (%v) should outscore filler (%v)", rich, flat)
	}
}
