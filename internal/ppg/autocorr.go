package ppg

import "gonum.org/v1/gonum/floats"

// Physiological search bounds for the autocorrelation lag scan, expressed as
// periods in seconds. Periods longer than 2s (under 30 bpm) and shorter than
// 0.5s (over 120 bpm) are excluded by construction; the 0.5s floor caps the
// detectable upper rate near the search ceiling.
const (
	maxPeriodSeconds = 2.0
	minPeriodSeconds = 0.5
)

// EstimateRate returns the dominant periodicity of the filtered waveform in
// beats per minute, found by scanning the unnormalized autocorrelation for
// its peak lag. It returns 0 when the rate is indeterminate: fewer than two
// samples, no usable sample rate, no lag inside the search range, or no
// positively correlated peak. The result is never negative.
func EstimateRate(signal []float64, fps float64) float64 {
	n := len(signal)
	if n < 2 {
		return 0
	}

	maxLag := int(fps * maxPeriodSeconds)
	if maxLag > n {
		maxLag = n
	}
	minLag := int(fps * minPeriodSeconds)
	if minLag < 0 {
		minLag = 0
	}

	// First lag to reach the maximum wins; later equal peaks do not
	// overwrite it. Starting the peak at zero means a flat or purely
	// negatively-correlated waveform yields no candidate at all.
	peak := 0.0
	peakLag := 0
	for lag := minLag; lag < maxLag; lag++ {
		ac := floats.Dot(signal[:n-lag], signal[lag:])
		if ac > peak {
			peak = ac
			peakLag = lag
		}
	}

	if peakLag <= 0 {
		return 0
	}
	return 60 / (float64(peakLag) / fps)
}
