package correlation

import "math"

// Radix-2 in-place FFT. Sized for the sample windows the engine sees
// (thousands to a few hundred thousand points); no assembly, no plan cache.

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// fft computes the in-place forward (invert=false) or inverse (invert=true)
// transform of data, whose length must be a power of two. The inverse is
// scaled by 1/N.
func fft(data []complex128, invert bool) {
	n := len(data)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			data[i], data[j] = data[j], data[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := 2 * math.Pi / float64(length)
		if !invert {
			angle = -angle
		}
		wl := complex(math.Cos(angle), math.Sin(angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			half := length / 2
			for k := 0; k < half; k++ {
				u := data[start+k]
				v := data[start+k+half] * w
				data[start+k] = u + v
				data[start+k+half] = u - v
				w *= wl
			}
		}
	}

	if invert {
		scale := complex(1/float64(n), 0)
		for i := range data {
			data[i] *= scale
		}
	}
}

// toComplex zero-pads a real signal into a complex buffer of the given size.
func toComplex(signal []float64, size int) []complex128 {
	out := make([]complex128, size)
	for i, v := range signal {
		out[i] = complex(v, 0)
	}
	return out
}

// norm returns the Euclidean norm of a signal.
func norm(signal []float64) float64 {
	sum := 0.0
	for _, v := range signal {
		sum += v * v
	}
	return math.Sqrt(sum)
}
