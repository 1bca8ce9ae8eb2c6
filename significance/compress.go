package significance

import (
	"github.com/c360/bridgekit/types"
)

// testCompressibility quantizes both signals to 8 bits and compares zstd
// sizes: when compressing the signals together costs less than the
// configured fraction of compressing them apart, they share structure the
// compressor can exploit.
func (e *Evaluator) testCompressibility(a, b []float64) types.TestResult {
	qa := quantize(a)
	qb := quantize(b)

	sizeA := len(e.encoder.EncodeAll(qa, nil))
	sizeB := len(e.encoder.EncodeAll(qb, nil))
	sizeMixed := len(e.encoder.EncodeAll(append(append([]byte{}, qa...), qb...), nil))

	separate := sizeA + sizeB
	if separate == 0 {
		return types.TestResult{Passed: false, Score: 1}
	}

	ratio := float64(sizeMixed) / float64(separate)
	return types.TestResult{Passed: ratio < e.config.CompressionRatio, Score: ratio}
}

// quantize maps a signal onto 256 equal-width levels over its range.
func quantize(signal []float64) []byte {
	min, max := signal[0], signal[0]
	for _, v := range signal {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]byte, len(signal))
	if max == min {
		return out
	}
	scale := 255.0 / (max - min)
	for i, v := range signal {
		out[i] = byte((v - min) * scale)
	}
	return out
}
