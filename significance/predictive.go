package significance

import (
	"math"

	"github.com/c360/bridgekit/types"
)

// testPredictivePower checks whether one signal's history reduces prediction
// error on the other beyond its own history: b is whitened with an AR(1)
// fit, and the residuals are correlated against lagged a. Under the null the
// residual correlation times sqrt(n) is approximately standard normal, so
// the test passes when some lag within the window reaches the configured
// z-score.
func (e *Evaluator) testPredictivePower(a, b []float64) types.TestResult {
	residuals := ar1Residuals(b)

	maxLag := e.config.PredictiveMaxLag
	if maxLag >= len(residuals)/2 {
		maxLag = len(residuals)/2 - 1
	}

	// Searching the lag window multiplies the comparisons; adjust the
	// threshold so the family-wise false-positive rate stays near the
	// configured level.
	zEff := math.Sqrt(e.config.PredictiveZ*e.config.PredictiveZ + 2*math.Log(float64(maxLag+1)))

	bestZ := 0.0
	for lag := 0; lag <= maxLag; lag++ {
		// residuals[t] vs a[t-lag]; residuals index t is offset by one
		// sample from b.
		n := len(residuals) - lag
		if n < 8 {
			break
		}
		r := pearson(a[:n], residuals[lag:lag+n])
		if z := math.Abs(r) * math.Sqrt(float64(n)); z > bestZ {
			bestZ = z
		}
	}

	return types.TestResult{Passed: bestZ > zEff, Score: bestZ}
}

// ar1Residuals returns b[t] - phi*b[t-1] with phi fit by least squares: the
// part of b its own immediate history does not explain.
func ar1Residuals(b []float64) []float64 {
	num, den := 0.0, 0.0
	for t := 1; t < len(b); t++ {
		num += b[t] * b[t-1]
		den += b[t-1] * b[t-1]
	}
	phi := 0.0
	if den > 0 {
		phi = num / den
	}

	out := make([]float64, len(b)-1)
	for t := 1; t < len(b); t++ {
		out[t-1] = b[t] - phi*b[t-1]
	}
	return out
}

// pearson computes the correlation coefficient of two equal-length signals.
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	var sumA, sumB float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/n, sumB/n

	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
