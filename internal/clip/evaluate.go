package clip

// Evaluate replays the scoring cascade over a stored record: gate,
// then micro-emphasis boost from the stored emphasis axes, then the
// cloud disposition. Acceptance is therefore a pure function of the
// persisted axes and configuration, so rankings can recompute it at
// any time without touching any adapter.
//
// A record that has been through cloud arbitration has no further
// tier: below the accept threshold it is a terminal reject.
func Evaluate(g GateConfig, w Weights, rec *ScoreRecord) (Decision, float64, error) {
	decision, conf, err := g.Classify(rec)
	if err != nil {
		return DecisionAmbiguous, 0, err
	}
	if decision != DecisionAmbiguous {
		return decision, conf, nil
	}

	if micro, ok := MicroEmphasis(rec.AudioEmphasis, rec.FacialEmphasis); ok {
		conf = g.BoostConfidence(conf, micro)
		if conf >= g.AcceptThreshold {
			return DecisionAccept, conf, nil
		}
	}

	if rec.Escalated && rec.VisionCloud != nil {
		combined, err := w.Combine(rec)
		if err != nil {
			return DecisionAmbiguous, conf, err
		}
		if combined >= g.AcceptThreshold {
			return DecisionAccept, combined, nil
		}
		return DecisionReject, combined, nil
	}

	return DecisionAmbiguous, conf, nil
}
