package types

// TestResult is the outcome of one significance criterion.
type TestResult struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"` // criterion-specific magnitude, informational
}

// SignificanceScore is the verdict of the five-test battery applied to one
// CorrelationResult. Computed once; immutable.
type SignificanceScore struct {
	Causation         TestResult `json:"causation"`
	InformationGain   TestResult `json:"information_gain"`
	PredictivePower   TestResult `json:"predictive_power"`
	TemporalStability TestResult `json:"temporal_stability"`
	Compressibility   TestResult `json:"compressibility"`

	PassCount  int     `json:"pass_count"`
	Meaningful bool    `json:"meaningful"` // true iff PassCount >= 2
	Confidence float64 `json:"confidence"` // 0-1
	PatternID  string  `json:"pattern_id,omitempty"`
}

// Results returns the five test outcomes in battery order.
func (s *SignificanceScore) Results() []TestResult {
	return []TestResult{
		s.Causation,
		s.InformationGain,
		s.PredictivePower,
		s.TemporalStability,
		s.Compressibility,
	}
}
