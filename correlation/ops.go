package correlation

import (
	"math"
	"math/cmplx"
)

// xcorrResult is the raw outcome of a cross-correlation peak search.
type xcorrResult struct {
	output  []float64 // correlation values over the searched lag window
	peak    float64   // normalized to [0,1] by the product of input norms
	peakLag int       // lag in samples, negative = second signal leads
}

// crossCorrelate computes the frequency-domain cross-correlation of two
// equal-length signals: forward transforms, point-wise multiply with the
// conjugate, inverse transform, then a peak search over lags within +-N/4.
// The peak magnitude is normalized by the product of the input norms and
// clamped to [0,1].
func crossCorrelate(a, b []float64) xcorrResult {
	n := len(a)
	size := nextPow2(2 * n)

	fa := toComplex(a, size)
	fb := toComplex(b, size)
	fft(fa, false)
	fft(fb, false)
	// FB * conj(FA) puts the peak at positive lags when the second signal
	// trails the first, matching the result's lag convention.
	for i := range fa {
		fa[i] = fb[i] * cmplx.Conj(fa[i])
	}
	fft(fa, true)

	// Lags outside +-N/4 are dominated by edge effects; keep the search
	// window tight.
	maxLag := n / 4
	if maxLag < 1 {
		maxLag = 1
	}

	denom := norm(a) * norm(b)
	output := make([]float64, 2*maxLag+1)
	bestMag, bestLag := 0.0, 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		idx := lag
		if idx < 0 {
			idx += size
		}
		v := real(fa[idx])
		if denom > 0 {
			v /= denom
		}
		output[lag+maxLag] = v
		if mag := math.Abs(v); mag > bestMag {
			bestMag = mag
			bestLag = lag
		}
	}
	if bestMag > 1 {
		bestMag = 1
	}

	return xcorrResult{output: output, peak: bestMag, peakLag: bestLag}
}

// pointwiseMultiply mixes two signals sample by sample.
func pointwiseMultiply(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

// convolve computes the linear convolution of two signals via the frequency
// domain.
func convolve(a, b []float64) []float64 {
	outLen := len(a) + len(b) - 1
	size := nextPow2(outLen)

	fa := toComplex(a, size)
	fb := toComplex(b, size)
	fft(fa, false)
	fft(fb, false)
	for i := range fa {
		fa[i] *= fb[i]
	}
	fft(fa, true)

	out := make([]float64, outLen)
	for i := range out {
		out[i] = real(fa[i])
	}
	return out
}

// coherenceSegment computes the per-bin spectra of one segment pair, used by
// Welch-style averaging across segments.
type coherenceSegment struct {
	sxy []complex128 // cross-spectrum
	sxx []float64    // auto-spectrum of a
	syy []float64    // auto-spectrum of b
}

func computeCoherenceSegment(a, b []float64) coherenceSegment {
	size := nextPow2(len(a))
	fa := toComplex(a, size)
	fb := toComplex(b, size)
	fft(fa, false)
	fft(fb, false)

	bins := size / 2
	seg := coherenceSegment{
		sxy: make([]complex128, bins),
		sxx: make([]float64, bins),
		syy: make([]float64, bins),
	}
	for i := 0; i < bins; i++ {
		seg.sxy[i] = fa[i] * cmplx.Conj(fb[i])
		seg.sxx[i] = real(fa[i] * cmplx.Conj(fa[i]))
		seg.syy[i] = real(fb[i] * cmplx.Conj(fb[i]))
	}
	return seg
}

// combineCoherence averages segment spectra into magnitude-squared coherence
// per frequency bin: |Sxy|^2 / (Sxx * Syy), each averaged over segments.
func combineCoherence(segments []coherenceSegment) []float64 {
	if len(segments) == 0 {
		return nil
	}
	bins := len(segments[0].sxy)
	out := make([]float64, bins)
	for i := 0; i < bins; i++ {
		var sxy complex128
		var sxx, syy float64
		for _, seg := range segments {
			sxy += seg.sxy[i]
			sxx += seg.sxx[i]
			syy += seg.syy[i]
		}
		if denom := sxx * syy; denom > 0 {
			out[i] = real(sxy*cmplx.Conj(sxy)) / denom
		}
	}
	return out
}

// envelope computes the Hilbert envelope of a signal: analytic signal via the
// frequency domain (zero the negative frequencies, double the positive),
// then magnitude.
func envelope(signal []float64) []float64 {
	n := len(signal)
	size := nextPow2(n)

	data := toComplex(signal, size)
	fft(data, false)
	for i := 1; i < size/2; i++ {
		data[i] *= 2
	}
	for i := size/2 + 1; i < size; i++ {
		data[i] = 0
	}
	fft(data, true)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = cmplx.Abs(data[i])
	}
	return out
}

// magnitudeSpectrum returns the one-sided magnitude spectrum of a signal.
func magnitudeSpectrum(signal []float64) []float64 {
	size := nextPow2(len(signal))
	data := toComplex(signal, size)
	fft(data, false)

	out := make([]float64, size/2)
	for i := range out {
		out[i] = cmplx.Abs(data[i])
	}
	return out
}

// peakAbs finds the index and magnitude of the largest absolute value.
func peakAbs(values []float64) (int, float64) {
	bestIdx, bestMag := 0, 0.0
	for i, v := range values {
		if mag := math.Abs(v); mag > bestMag {
			bestMag = mag
			bestIdx = i
		}
	}
	return bestIdx, bestMag
}

// meanCentered returns the signal with its mean removed. Correlations on
// raw sensor data are dominated by DC offsets otherwise.
func meanCentered(signal []float64) []float64 {
	sum := 0.0
	for _, v := range signal {
		sum += v
	}
	mean := sum / float64(len(signal))

	out := make([]float64, len(signal))
	for i, v := range signal {
		out[i] = v - mean
	}
	return out
}
