package significance

import (
	"math"

	"github.com/c360/bridgekit/types"
)

// testTemporalStability splits the observation into fixed windows, computes
// the correlation per window, and requires the coefficient of variation of
// those window correlations to stay below the threshold. A relationship that
// only exists in one window is coincidence, not structure.
func (e *Evaluator) testTemporalStability(a, b []float64) types.TestResult {
	windows := e.config.StabilityWindows
	size := len(a) / windows
	if size < 4 {
		windows = len(a) / 4
		if windows < 2 {
			return types.TestResult{Passed: false, Score: math.Inf(1)}
		}
		size = len(a) / windows
	}

	corrs := make([]float64, windows)
	for w := 0; w < windows; w++ {
		lo, hi := w*size, (w+1)*size
		corrs[w] = pearson(a[lo:hi], b[lo:hi])
	}

	mean, std := meanStd(corrs)
	if math.Abs(mean) < 1e-9 {
		// Window correlations centered on zero: nothing stable to speak of.
		return types.TestResult{Passed: false, Score: math.Inf(1)}
	}

	cov := std / math.Abs(mean)
	return types.TestResult{Passed: cov < e.config.StabilityCoV, Score: cov}
}

func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / n)
}
