package clip

import (
	"errors"
	"fmt"
)

// Decision is the three-way outcome of the confidence gate.
type Decision string

const (
	DecisionAccept    Decision = "accept"
	DecisionReject    Decision = "reject"
	DecisionAmbiguous Decision = "ambiguous"
)

// ErrNoAxes is returned when a gate evaluation is requested for a
// record with neither a text nor a local vision score.
var ErrNoAxes = errors.New("no scoring axes present")

// GateConfig holds the thresholds and weights for the confidence gate.
type GateConfig struct {
	TextWeight      float64
	VisionWeight    float64
	AcceptThreshold float64
	RejectThreshold float64
	RejectFloor     float64
	BoostFactor     float64
}

// DefaultGateConfig returns the production gate configuration.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		TextWeight:      0.55,
		VisionWeight:    0.45,
		AcceptThreshold: 0.65,
		RejectThreshold: 0.40,
		RejectFloor:     0.5,
		BoostFactor:     0.5,
	}
}

// Validate checks threshold ordering and weight sanity.
func (g GateConfig) Validate() error {
	if g.TextWeight < 0 || g.VisionWeight < 0 {
		return fmt.Errorf("gate weights must be non-negative, got text=%f vision=%f", g.TextWeight, g.VisionWeight)
	}
	if g.TextWeight+g.VisionWeight == 0 {
		return errors.New("gate weights must not both be zero")
	}
	if g.RejectThreshold >= g.AcceptThreshold {
		return fmt.Errorf("reject threshold %f must be below accept threshold %f", g.RejectThreshold, g.AcceptThreshold)
	}
	if g.BoostFactor < 0 || g.BoostFactor > 1 {
		return fmt.Errorf("boost factor must be in [0,1], got %f", g.BoostFactor)
	}
	return nil
}

// BaseConfidence computes the weighted mean of the text and local
// vision scores. An absent axis is excluded and the remaining weights
// renormalize, so a single-axis record still lands on the [0,1] scale.
func (g GateConfig) BaseConfidence(rec *ScoreRecord) (float64, error) {
	var sum, weight float64
	if rec.Text != nil {
		sum += g.TextWeight * *rec.Text
		weight += g.TextWeight
	}
	if rec.VisionLocal != nil {
		sum += g.VisionWeight * *rec.VisionLocal
		weight += g.VisionWeight
	}
	if weight == 0 {
		return 0, ErrNoAxes
	}
	return sum / weight, nil
}

// Classify runs the three-way confidence gate over a score record.
//
// Accept requires base confidence at or above the accept threshold.
// Reject requires every present axis to independently fall below the
// reject floor and the base confidence to sit at or below the reject
// threshold; one strong axis always blocks rejection. Everything else
// is ambiguous and proceeds to the next tier.
func (g GateConfig) Classify(rec *ScoreRecord) (Decision, float64, error) {
	base, err := g.BaseConfidence(rec)
	if err != nil {
		return DecisionAmbiguous, 0, err
	}

	if base >= g.AcceptThreshold {
		return DecisionAccept, base, nil
	}

	allWeak := true
	if rec.Text != nil && *rec.Text >= g.RejectFloor {
		allWeak = false
	}
	if rec.VisionLocal != nil && *rec.VisionLocal >= g.RejectFloor {
		allWeak = false
	}
	if allWeak && base <= g.RejectThreshold {
		return DecisionReject, base, nil
	}

	return DecisionAmbiguous, base, nil
}

// BoostConfidence applies the bounded micro-emphasis boost. The result
// is monotone in both arguments and never leaves [base, 1].
func (g GateConfig) BoostConfidence(base, microEmphasis float64) float64 {
	if microEmphasis < 0 {
		microEmphasis = 0
	}
	if microEmphasis > 1 {
		microEmphasis = 1
	}
	return base + (1-base)*microEmphasis*g.BoostFactor
}
