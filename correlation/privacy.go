package correlation

import (
	"context"
	"math/rand"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// Privacy-preserving mode: additive secret sharing.
//
// Each source splits its segment into k uniformly random additive shares
// (k = PrivacyParties, at least two), one per independent share-holder. The
// multiply-accumulate is computed pairwise over share vectors: holder pair
// (i, j) contributes dot(a_i, b_j), and the coordinator sums the partials.
// Because sum_i a_i = a and sum_j b_j = b, the total equals dot(a, b) while
// no single holder or the coordinator ever observes a plaintext segment —
// individual shares are random masks.
func (e *Engine) computePrivacy(ctx context.Context, req *types.CorrelationRequest, inputs [][]float64) (*types.CorrelationResult, error) {
	if e.config.PrivacyParties < 2 {
		return nil, errors.Wrap(errors.ErrModeUnavailable, "Engine", "computePrivacy",
			"threshold reconstruction needs at least two share-holders")
	}
	if req.Op != types.OpMultiply && req.Op != types.OpCrossCorr {
		return nil, errors.Wrap(errors.ErrModeUnavailable, "Engine", "computePrivacy",
			"only multiply-accumulate operations run over shares")
	}

	a, b := inputs[0], inputs[1]

	aShares := splitShares(a, e.config.PrivacyParties)
	bShares := splitShares(b, e.config.PrivacyParties)

	if e.inspectShares != nil {
		e.inspectShares(append(append([][]float64{}, aShares...), bShares...))
	}

	// Pairwise rounds between share-holders. The cancel token is honored
	// between rounds: an in-flight computation stops at the next boundary.
	total := 0.0
	for i := range aShares {
		for j := range bShares {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			total += dot(aShares[i], bShares[j])
		}
	}

	peak := total
	if denom := norm(a) * norm(b); denom > 0 {
		peak /= denom
	}
	if peak > 1 {
		peak = 1
	}
	if peak < -1 {
		peak = -1
	}

	return &types.CorrelationResult{
		Output:  []float64{total},
		Peak:    abs(peak),
		PeakLag: 0,
	}, nil
}

// splitShares produces k additive shares of a vector: k-1 uniform random
// masks plus the remainder. Any proper subset is statistically independent
// of the plaintext.
func splitShares(values []float64, k int) [][]float64 {
	shares := make([][]float64, k)
	for i := 0; i < k-1; i++ {
		share := make([]float64, len(values))
		for j := range share {
			share[j] = rand.Float64()*2 - 1
		}
		shares[i] = share
	}

	last := make([]float64, len(values))
	copy(last, values)
	for i := 0; i < k-1; i++ {
		for j := range last {
			last[j] -= shares[i][j]
		}
	}
	shares[k-1] = last
	return shares
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
