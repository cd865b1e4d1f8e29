package clip

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// EmphasisSignals carries the per-segment signal series already
// produced by upstream stages. Audio series come from the transcription
// stage's loudness/pitch/tempo tracks over the segment span; the
// landmark motion series comes from the frames the local vision stage
// already sampled. No new extraction happens here.
type EmphasisSignals struct {
	Loudness       []float64
	Pitch          []float64
	Tempo          []float64
	LandmarkMotion []float64
}

// HasAudio reports whether any audio series is populated.
func (s EmphasisSignals) HasAudio() bool {
	return len(s.Loudness) >= 2 || len(s.Pitch) >= 2 || len(s.Tempo) >= 2
}

// HasFacial reports whether landmark motion data is populated.
func (s EmphasisSignals) HasFacial() bool {
	return len(s.LandmarkMotion) >= 2
}

// AudioEmphasisScore derives a [0,1] emphasis score from loudness,
// pitch and tempo deltas. Each series contributes its normalized
// frame-to-frame variability; the strongest signal wins.
func AudioEmphasisScore(s EmphasisSignals) (float64, bool) {
	if !s.HasAudio() {
		return 0, false
	}
	score := 0.0
	for _, series := range [][]float64{s.Loudness, s.Pitch, s.Tempo} {
		if v, ok := seriesEmphasis(series); ok && v > score {
			score = v
		}
	}
	return score, true
}

// FacialEmphasisScore derives a [0,1] emphasis score from
// frame-to-frame landmark motion deltas.
func FacialEmphasisScore(s EmphasisSignals) (float64, bool) {
	if !s.HasFacial() {
		return 0, false
	}
	return normalizedDeltaMagnitude(s.LandmarkMotion), true
}

// MicroEmphasis is the max over the present emphasis axes. The second
// return is false when both axes are absent, in which case the caller
// must leave the segment's gate outcome unchanged.
func MicroEmphasis(audio, facial *float64) (float64, bool) {
	switch {
	case audio == nil && facial == nil:
		return 0, false
	case audio == nil:
		return clamp01(*facial), true
	case facial == nil:
		return clamp01(*audio), true
	default:
		return clamp01(math.Max(*audio, *facial)), true
	}
}

// seriesEmphasis scores a signal series by its coefficient of
// variation, squashed onto [0,1). Flat series score zero.
func seriesEmphasis(series []float64) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	mean, std := stat.MeanStdDev(series, nil)
	denom := math.Abs(mean)
	if denom < 1e-9 {
		denom = 1e-9
	}
	cv := std / denom
	return cv / (1 + cv), true
}

// normalizedDeltaMagnitude scores a motion series by the mean absolute
// frame-to-frame delta relative to the series' own spread.
func normalizedDeltaMagnitude(series []float64) float64 {
	deltas := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		deltas = append(deltas, math.Abs(series[i]-series[i-1]))
	}
	mean := stat.Mean(deltas, nil)
	std := stat.StdDev(deltas, nil)
	if math.IsNaN(std) {
		std = 0
	}
	denom := mean + 2*std
	if denom < 1e-9 {
		return 0
	}
	return clamp01(mean / denom * 2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
