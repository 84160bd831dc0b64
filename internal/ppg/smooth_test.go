package ppg

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMovingAverageLengthPreserved(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5, 64} {
		in := make([]float64, n)
		out := MovingAverage(in, 5)
		if len(out) != n {
			t.Errorf("length %d: got output length %d", n, len(out))
		}
	}
}

// Interior samples average exactly the inclusive [i-w/2, i+w/2] range: w
// values for odd w, w+1 for even w.
func TestMovingAverageInterior(t *testing.T) {
	in := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}

	out := MovingAverage(in, 3)
	// out[4] = mean(in[3..5]) = 5
	if !almostEqual(out[4], 5) {
		t.Errorf("odd window: out[4] = %f, want 5", out[4])
	}

	out = MovingAverage(in, 4)
	// half-window 2, inclusive range covers 5 values: mean(in[2..6]) = 5
	if !almostEqual(out[4], 5) {
		t.Errorf("even window: out[4] = %f, want 5", out[4])
	}
}

// Boundary windows truncate: no padding, no wraparound.
func TestMovingAverageEdges(t *testing.T) {
	in := []float64{10, 20, 30, 40}
	out := MovingAverage(in, 3)

	if !almostEqual(out[0], 15) { // mean(10, 20)
		t.Errorf("out[0] = %f, want 15", out[0])
	}
	if !almostEqual(out[3], 35) { // mean(30, 40)
		t.Errorf("out[3] = %f, want 35", out[3])
	}
}

func TestMovingAverageWindowOne(t *testing.T) {
	in := []float64{3, 1, 4, 1, 5}
	out := MovingAverage(in, 1)
	for i := range in {
		if !almostEqual(out[i], in[i]) {
			t.Fatalf("window 1 should pass through, out[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestMovingAverageConstantInput(t *testing.T) {
	in := []float64{7, 7, 7, 7, 7, 7}
	out := MovingAverage(in, 4)
	for i, v := range out {
		if !almostEqual(v, 7) {
			t.Errorf("out[%d] = %f, want 7", i, v)
		}
	}
}
