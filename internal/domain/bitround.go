package domain

import "math"

// BitRound rounds every finite value in data to keepbits significant
// mantissa bits, in place, and returns data. The mantissa is rounded to a
// step of 2^(keepbits-24) (single precision), bounding relative error to
// about 2^-keepbits while zeroing trailing mantissa bits so the lossless
// compressor downstream sees lower entropy. NaN and infinities pass through
// untouched, as does the whole slice when keepbits is zero or negative.
// Applying the same rounding twice is a no-op.
func BitRound(data []float32, keepbits int) []float32 {
	if keepbits <= 0 {
		return data
	}
	step := math.Ldexp(1, keepbits-24)
	for i, v := range data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		frac, exp := math.Frexp(f)
		frac = math.Round(frac/step) * step
		data[i] = float32(math.Ldexp(frac, exp))
	}
	return data
}
