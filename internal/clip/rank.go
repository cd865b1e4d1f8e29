package clip

import (
	"fmt"
	"math"
	"sort"
)

// Weights configures the five-axis combined score. Weights must sum to
// 1.0 across the axes in use; when an axis is absent from a record its
// share is redistributed proportionally across the present axes so
// escalated and non-escalated clips stay comparable on [0,1].
type Weights struct {
	Text           float64 `json:"text_score"`
	VisionLocal    float64 `json:"vision_score"`
	AudioEmphasis  float64 `json:"audio_emphasis"`
	FacialEmphasis float64 `json:"facial_emphasis"`
	VisionCloud    float64 `json:"cloud_score"`
}

// DefaultWeights returns the production scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Text:           0.30,
		VisionLocal:    0.30,
		AudioEmphasis:  0.15,
		FacialEmphasis: 0.15,
		VisionCloud:    0.10,
	}
}

// Sum returns the total of all configured weights.
func (w Weights) Sum() float64 {
	return w.Text + w.VisionLocal + w.AudioEmphasis + w.FacialEmphasis + w.VisionCloud
}

// Validate checks that the weights are non-negative and sum to 1.0.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Text, w.VisionLocal, w.AudioEmphasis, w.FacialEmphasis, w.VisionCloud} {
		if v < 0 {
			return fmt.Errorf("weights must be non-negative, got %+v", w)
		}
	}
	if math.Abs(w.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %f", w.Sum())
	}
	return nil
}

// Combine computes the weighted aggregate over the axes present in the
// record. Present axes keep their relative weight; absent axes are
// renormalized away rather than treated as zero.
func (w Weights) Combine(rec *ScoreRecord) (float64, error) {
	axes := []struct {
		value  *float64
		weight float64
	}{
		{rec.Text, w.Text},
		{rec.VisionLocal, w.VisionLocal},
		{rec.AudioEmphasis, w.AudioEmphasis},
		{rec.FacialEmphasis, w.FacialEmphasis},
		{rec.VisionCloud, w.VisionCloud},
	}

	var sum, present float64
	for _, a := range axes {
		if a.value == nil {
			continue
		}
		sum += a.weight * *a.value
		present += a.weight
	}
	if present == 0 {
		return 0, ErrNoAxes
	}
	return sum / present, nil
}

// RankedClip is one entry of a ranking result. Rankings are a derived
// view: recomputable at any time from stored scores and the active
// weights, never stored authoritatively.
type RankedClip struct {
	Candidate
	Combined   float64 `json:"combined_score"`
	Escalated  bool    `json:"escalated_to_cloud"`
	AutoExport bool    `json:"auto_export"`
}

// Rank orders accepted candidates by combined score descending, with
// ties broken by longer duration and then earlier start. The top N are
// flagged for auto-export; the rest stay manual-eligible. Ranking is
// pure: identical inputs always yield an identical order.
func Rank(candidates []Candidate, records map[string]*ScoreRecord, topN int) []RankedClip {
	ranked := make([]RankedClip, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := records[c.ClipID]
		if !ok {
			continue
		}
		ranked = append(ranked, RankedClip{
			Candidate: c,
			Combined:  rec.Combined,
			Escalated: rec.Escalated,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.Duration() != b.Duration() {
			return a.Duration() > b.Duration()
		}
		return a.Start < b.Start
	})

	for i := range ranked {
		if i < topN {
			ranked[i].AutoExport = true
		}
	}
	return ranked
}
