package correlation

import (
	"context"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// computeLocal runs the bounded-compute strategy: frequency-domain
// cross-correlation (or plain multiplication) under the request's hard
// latency budget. Overrunning the budget aborts with ErrDeadlineExceeded;
// the caller decides whether to re-route, never this strategy.
func (e *Engine) computeLocal(ctx context.Context, req *types.CorrelationRequest, inputs [][]float64) (*types.CorrelationResult, error) {
	if req.MaxLatency > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.MaxLatency)
		defer cancel()
	}

	switch req.Op {
	case types.OpCrossCorr:
		return e.localCrossCorrelate(ctx, inputs)
	case types.OpMultiply:
		return e.localMultiply(ctx, inputs)
	default:
		return nil, errors.WrapInvalid(errors.ErrModeUnavailable, "Engine", "computeLocal",
			"operation "+string(req.Op)+" needs remote compute")
	}
}

func (e *Engine) localCrossCorrelate(ctx context.Context, inputs [][]float64) (*types.CorrelationResult, error) {
	if err := checkBudget(ctx, "computeLocal"); err != nil {
		return nil, err
	}

	xc := crossCorrelate(inputs[0], inputs[1])

	// The transform is not interruptible; the budget is enforced at the
	// boundary instead.
	if err := checkBudget(ctx, "computeLocal"); err != nil {
		return nil, err
	}

	return &types.CorrelationResult{
		Output:  xc.output,
		Peak:    xc.peak,
		PeakLag: xc.peakLag,
	}, nil
}

func (e *Engine) localMultiply(ctx context.Context, inputs [][]float64) (*types.CorrelationResult, error) {
	if err := checkBudget(ctx, "computeLocal"); err != nil {
		return nil, err
	}

	out := inputs[0]
	for _, in := range inputs[1:] {
		out = pointwiseMultiply(out, in)
	}

	if err := checkBudget(ctx, "computeLocal"); err != nil {
		return nil, err
	}

	idx, mag := peakAbs(out)
	return &types.CorrelationResult{
		Output:  out,
		Peak:    normalizePeak(mag, inputs),
		PeakLag: idx,
	}, nil
}

// checkBudget maps a blown context deadline to ErrDeadlineExceeded and
// cancellation to the context error.
func checkBudget(ctx context.Context, method string) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return errors.WrapInvalid(errors.ErrDeadlineExceeded, "Engine", method,
			"latency budget exhausted")
	default:
		return ctx.Err()
	}
}

// normalizePeak scales a raw peak magnitude into [0,1] by the product of the
// first two input norms.
func normalizePeak(mag float64, inputs [][]float64) float64 {
	denom := norm(inputs[0]) * norm(inputs[1])
	if denom > 0 {
		mag /= denom
	}
	if mag > 1 {
		mag = 1
	}
	return mag
}
