package ppg

// MovingAverage denoises the input with a symmetric moving average of the
// given window size. Each output sample is the arithmetic mean of the inputs
// inside [i-size/2, i+size/2] (inclusive, integer half-window); near the
// boundaries the window truncates rather than padding or wrapping, so the
// output always has the same length as the input.
func MovingAverage(in []float64, size int) []float64 {
	out := make([]float64, len(in))
	if len(in) == 0 {
		return out
	}
	half := size / 2
	if half < 0 {
		half = 0
	}
	for i := range in {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(in)-1 {
			hi = len(in) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += in[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
