package obj

import (
	"math"
	"testing"
)

func latencyTrack() *RefTrack {
	return &RefTrack{
		Timestamps: []int64{0, 60000, 120000, 180000},
		DistX:      []float64{0, 6, 12, 18},
		DistY:      []float64{0, 0, 0, 0},
		VelX:       []float64{10, 10, 10, 10},
	}
}

func TestShiftLatencyLinear(t *testing.T) {
	r := latencyTrack()
	out := r.ShiftLatency(30000, false)

	// half a cycle back: interior cycles land between samples, the first
	// cycle falls off the grid and keeps its original value
	want := []float64{0, 3, 9, 15}
	for i := range want {
		if math.Abs(out.DistX[i]-want[i]) > 1e-9 {
			t.Errorf("DistX[%d] = %v, want %v", i, out.DistX[i], want[i])
		}
	}
	for i := range out.Timestamps {
		if out.Timestamps[i] != r.Timestamps[i] {
			t.Errorf("Timestamps[%d] = %d, want unchanged %d", i, out.Timestamps[i], r.Timestamps[i])
		}
	}
	if out.VelY != nil || out.Heading != nil || out.Valid != nil {
		t.Errorf("optional signals = (%v, %v, %v), want nil passthrough",
			out.VelY, out.Heading, out.Valid)
	}
}

func TestShiftLatencyEdgeKeepsOriginal(t *testing.T) {
	r := latencyTrack()
	r.DistX = []float64{7, 6, 12, 18}
	out := r.ShiftLatency(60000, false)

	want := []float64{7, 7, 6, 12}
	for i := range want {
		if math.Abs(out.DistX[i]-want[i]) > 1e-9 {
			t.Errorf("DistX[%d] = %v, want %v", i, out.DistX[i], want[i])
		}
	}
}

func TestShiftLatencyNaNFallsBack(t *testing.T) {
	r := latencyTrack()
	r.DistX = []float64{1, math.NaN(), 3, 4}
	out := r.ShiftLatency(30000, false)

	if math.Abs(out.DistX[0]-1) > 1e-9 {
		t.Errorf("DistX[0] = %v, want 1", out.DistX[0])
	}
	if !math.IsNaN(out.DistX[1]) {
		t.Errorf("DistX[1] = %v, want NaN", out.DistX[1])
	}
	// interpolation against the NaN neighbour fails, the cycle keeps its
	// own recorded value
	if math.Abs(out.DistX[2]-3) > 1e-9 {
		t.Errorf("DistX[2] = %v, want 3", out.DistX[2])
	}
	if math.Abs(out.DistX[3]-3.5) > 1e-9 {
		t.Errorf("DistX[3] = %v, want 3.5", out.DistX[3])
	}
}

func TestShiftLatencyValidNearest(t *testing.T) {
	r := latencyTrack()
	r.Valid = []float64{0, 1, 1, 0}
	out := r.ShiftLatency(40000, false)

	want := []float64{0, 0, 1, 1}
	for i := range want {
		if out.Valid[i] != want[i] {
			t.Errorf("Valid[%d] = %v, want %v", i, out.Valid[i], want[i])
		}
	}

	// exactly between two samples the lower one wins
	out = r.ShiftLatency(30000, false)
	if out.Valid[1] != 0 {
		t.Errorf("Valid[1] on tie = %v, want 0", out.Valid[1])
	}
}

func TestShiftLatencyHeadingAcrossPi(t *testing.T) {
	r := latencyTrack()
	r.Heading = []float64{3.0, 3.1, -3.08, -2.98}
	out := r.ShiftLatency(30000, false)

	// naive interpolation across the wrap would average 3.1 and -3.08
	// to almost zero; unwrapped the heading keeps climbing past π
	if out.Heading[2] < 3.0 || out.Heading[2] > 3.3 {
		t.Errorf("Heading[2] = %v, want a value just above π", out.Heading[2])
	}
	for i := 1; i < len(out.Heading); i++ {
		if math.Abs(out.Heading[i]-out.Heading[i-1]) > 0.5 {
			t.Errorf("Heading tear between cycle %d and %d: %v -> %v",
				i-1, i, out.Heading[i-1], out.Heading[i])
		}
	}
}

func TestShiftLatencyOncoming(t *testing.T) {
	r := latencyTrack()
	r.DistX = []float64{10, 10, 10, 10}
	out := r.ShiftLatency(0, true)

	for i := range out.DistX {
		if math.Abs(out.DistX[i]-5) > 1e-9 {
			t.Errorf("DistX[%d] = %v, want 5 after oncoming correction", i, out.DistX[i])
		}
	}
}

func TestUnwrap(t *testing.T) {
	in := []float64{3.0, 3.1, -3.08, -2.98}
	out := unwrap(in)

	if out[0] != 3.0 || math.Abs(out[1]-3.1) > 1e-9 {
		t.Errorf("unwrap start = %v, want [3.0 3.1 ...]", out[:2])
	}
	for i := 1; i < len(out); i++ {
		if d := out[i] - out[i-1]; d < 0 || d > 0.2 {
			t.Errorf("unwrap()[%d]-[%d] = %v, want a small positive step", i, i-1, d)
		}
	}
	if len(unwrap(nil)) != 0 {
		t.Errorf("unwrap(nil) length = %d, want 0", len(unwrap(nil)))
	}
}
