package adapters

import (
	"context"
	"strings"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// PauseSegmenter derives candidate boundaries from the transcript
// alone: a window closes on a long speech pause or when it hits the
// duration cap. Each window gets a text score from cheap lexical
// features; the vision tiers refine it later.
type PauseSegmenter struct {
	MinDuration float64
	MaxDuration float64
	PauseGap    float64
}

// NewPauseSegmenter applies defaults for zero-valued fields: windows
// of 10-90 seconds split on pauses longer than 1.2 seconds.
func NewPauseSegmenter(minDur, maxDur, pauseGap float64) *PauseSegmenter {
	if minDur <= 0 {
		minDur = 10
	}
	if maxDur <= 0 {
		maxDur = 90
	}
	if pauseGap <= 0 {
		pauseGap = 1.2
	}
	return &PauseSegmenter{MinDuration: minDur, MaxDuration: maxDur, PauseGap: pauseGap}
}

// Segment groups consecutive transcript segments into candidate
// windows. Windows shorter than MinDuration are discarded.
func (s *PauseSegmenter) Segment(_ context.Context, transcript []clip.TranscriptSegment) ([]Proposal, error) {
	var proposals []Proposal
	var window []clip.TranscriptSegment

	flush := func() {
		if len(window) == 0 {
			return
		}
		start := window[0].Start
		end := window[len(window)-1].End
		if end-start >= s.MinDuration {
			proposals = append(proposals, Proposal{
				Start:     start,
				End:       end,
				TextScore: textScore(window),
			})
		}
		window = nil
	}

	for _, seg := range transcript {
		if len(window) > 0 {
			gap := seg.Start - window[len(window)-1].End
			span := seg.End - window[0].Start
			if gap > s.PauseGap || span > s.MaxDuration {
				flush()
			}
		}
		window = append(window, seg)
	}
	flush()
	return proposals, nil
}

// hookTerms are lexical markers that correlate with clip-worthy
// moments in spoken content.
var hookTerms = []string{
	"secret", "mistake", "never", "always", "best", "worst",
	"how to", "why", "nobody", "truth", "actually", "surprising",
	"most people", "the problem", "here's the thing",
}

// textScore combines speech density, hook-term hits and question marks
// into a [0,1] evidence score for a window.
func textScore(window []clip.TranscriptSegment) float64 {
	start := window[0].Start
	end := window[len(window)-1].End
	span := end - start
	if span <= 0 {
		return 0
	}

	var words int
	var hooks int
	var questions int
	for _, seg := range window {
		text := strings.ToLower(seg.Text)
		words += len(strings.Fields(text))
		questions += strings.Count(text, "?")
		for _, term := range hookTerms {
			hooks += strings.Count(text, term)
		}
	}

	// Speech density peaks around 2.5 words/second for engaged
	// delivery; slower or much faster reads as filler or noise.
	density := float64(words) / span / 2.5
	if density > 1 {
		density = 2 - density
	}
	if density < 0 {
		density = 0
	}

	hookScore := float64(hooks) / 3
	if hookScore > 1 {
		hookScore = 1
	}
	questionScore := float64(questions) / 2
	if questionScore > 1 {
		questionScore = 1
	}

	score := 0.45*density + 0.35*hookScore + 0.20*questionScore
	if score > 1 {
		score = 1
	}
	return score
}
