package significance

import (
	"math"

	"github.com/c360/bridgekit/types"
)

// testInformationGain approximates mutual information through histogram
// entropies: the gain H(a)+H(b)-H(mixed) must exceed the configured fraction
// of max(H(a),H(b)), where mixed is the point-wise product of the signals.
func (e *Evaluator) testInformationGain(a, b []float64) types.TestResult {
	mixed := make([]float64, len(a))
	for i := range a {
		mixed[i] = a[i] * b[i]
	}

	ha := histogramEntropy(a, e.config.HistogramBins)
	hb := histogramEntropy(b, e.config.HistogramBins)
	hm := histogramEntropy(mixed, e.config.HistogramBins)

	gain := ha + hb - hm
	ref := math.Max(ha, hb)
	if ref <= 0 {
		return types.TestResult{Passed: false, Score: 0}
	}

	ratio := gain / ref
	return types.TestResult{Passed: ratio > e.config.GainFraction, Score: ratio}
}

// histogramEntropy estimates Shannon entropy in bits from an equal-width
// histogram over the signal's range.
func histogramEntropy(signal []float64, bins int) float64 {
	min, max := signal[0], signal[0]
	for _, v := range signal {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return 0 // constant signal carries no information
	}

	counts := make([]int, bins)
	width := (max - min) / float64(bins)
	for _, v := range signal {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	entropy := 0.0
	n := float64(len(signal))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
