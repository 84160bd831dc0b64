package ppg

// Pole coefficients for the band-limiting cascade. These are fixed: the
// filter is an exponential baseline subtraction followed by single-pole
// exponential smoothing, not a frequency-selective design. The minHz/maxHz
// cutoffs are accepted by Bandlimit for interface fidelity but do not alter
// the coefficients; this is an acknowledged approximation of a bandpass over
// the physiological heart-rate range, kept deliberately crude.
const (
	highPassAlpha = 0.95
	lowPassAlpha  = 0.8
)

// highPassState carries the running baseline for the drift-removal stage.
type highPassState struct {
	baseline float64
	primed   bool
}

// process applies the baseline subtraction causally, left to right. The
// baseline seeds from the first sample, so the first output is always zero.
func (st *highPassState) process(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, s := range in {
		if !st.primed {
			st.baseline = s
			st.primed = true
		}
		out[i] = s - st.baseline
		st.baseline = highPassAlpha*st.baseline + (1-highPassAlpha)*s
	}
	return out
}

// lowPassState carries the previous output of the smoothing stage.
type lowPassState struct {
	prev   float64
	primed bool
}

// process applies single-pole exponential smoothing causally.
func (st *lowPassState) process(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, h := range in {
		if !st.primed {
			st.prev = h
			st.primed = true
		}
		v := lowPassAlpha*st.prev + (1-lowPassAlpha)*h
		out[i] = v
		st.prev = v
	}
	return out
}

// Bandlimit runs the high-pass/low-pass cascade over a smoothed waveform and
// returns an output of the same length. Filter state is created fresh per
// call: each processing cycle recomputes from scratch over its window.
// minHz, maxHz, and fps describe the intended passband and time-base; see the
// coefficient note above for why they leave the poles untouched.
func Bandlimit(in []float64, minHz, maxHz, fps float64) []float64 {
	_ = minHz
	_ = maxHz
	_ = fps
	hp := &highPassState{}
	lp := &lowPassState{}
	return lp.process(hp.process(in))
}
