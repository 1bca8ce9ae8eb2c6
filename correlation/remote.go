package correlation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// computeRemote runs the unconstrained strategy: the full operation set,
// cancellable between stages, with segment fan-out where the operation
// decomposes naturally.
func (e *Engine) computeRemote(ctx context.Context, req *types.CorrelationRequest, inputs [][]float64) (*types.CorrelationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a, b := inputs[0], inputs[1]

	switch req.Op {
	case types.OpCrossCorr:
		xc := crossCorrelate(a, b)
		return &types.CorrelationResult{Output: xc.output, Peak: xc.peak, PeakLag: xc.peakLag}, nil

	case types.OpMultiply:
		out := a
		for _, in := range inputs[1:] {
			out = pointwiseMultiply(out, in)
		}
		idx, mag := peakAbs(out)
		return &types.CorrelationResult{Output: out, Peak: normalizePeak(mag, inputs), PeakLag: idx}, nil

	case types.OpConvolution:
		out := convolve(a, b)
		idx, mag := peakAbs(out)
		return &types.CorrelationResult{Output: out, Peak: normalizePeak(mag, inputs), PeakLag: idx}, nil

	case types.OpCoherence:
		return e.remoteCoherence(ctx, a, b)

	case types.OpEnvelope:
		// Correlating Hilbert envelopes exposes amplitude-modulation coupling
		// that raw cross-correlation misses.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		xc := crossCorrelate(envelope(a), envelope(b))
		return &types.CorrelationResult{Output: xc.output, Peak: xc.peak, PeakLag: xc.peakLag}, nil

	case types.OpSpectral:
		return e.remoteSpectral(ctx, a, b)

	case types.OpCustom:
		if e.custom == nil {
			return nil, errors.Wrap(errors.ErrModeUnavailable, "Engine", "computeRemote",
				"no custom operation registered")
		}
		out, err := e.custom(a, b)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Engine", "computeRemote", "custom operation")
		}
		idx, mag := peakAbs(out)
		return &types.CorrelationResult{Output: out, Peak: normalizePeak(mag, inputs), PeakLag: idx}, nil

	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Engine", "computeRemote",
			"unknown operation "+string(req.Op))
	}
}

// remoteCoherence estimates magnitude-squared coherence with Welch segment
// averaging; segments are computed concurrently.
func (e *Engine) remoteCoherence(ctx context.Context, a, b []float64) (*types.CorrelationResult, error) {
	segCount := e.config.CoherenceSegments
	segLen := len(a) / segCount
	if segLen < 8 {
		segCount = 1
		segLen = len(a)
	}

	segments := make([]coherenceSegment, segCount)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < segCount; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sa := meanCentered(a[i*segLen : (i+1)*segLen])
			sb := meanCentered(b[i*segLen : (i+1)*segLen])
			segments[i] = computeCoherenceSegment(sa, sb)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := combineCoherence(segments)
	idx, mag := peakAbs(out)
	if mag > 1 {
		mag = 1
	}
	return &types.CorrelationResult{Output: out, Peak: mag, PeakLag: idx}, nil
}

// remoteSpectral computes the cross-spectrum magnitude per bin, normalized by
// the spectra norms so the peak lands in [0,1].
func (e *Engine) remoteSpectral(ctx context.Context, a, b []float64) (*types.CorrelationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	specA := magnitudeSpectrum(a)
	specB := magnitudeSpectrum(b)

	out := make([]float64, len(specA))
	for i := range out {
		out[i] = specA[i] * specB[i]
	}

	idx, mag := peakAbs(out)
	if denom := norm(specA) * norm(specB); denom > 0 {
		mag /= denom
	}
	if mag > 1 {
		mag = 1
	}
	return &types.CorrelationResult{Output: out, Peak: mag, PeakLag: idx}, nil
}
