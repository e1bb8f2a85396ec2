package obj

import (
	"math"
	"sort"
)

// OncomingDistXOffset is subtracted from the shifted longitudinal
// distance for oncoming targets: the reference pose sits at the far end
// of the target while the radar reflects off the near face, about one
// vehicle length closer.
const OncomingDistXOffset = 5.0

// ShiftLatency compensates the reference system's acquisition delay by
// resampling every signal at t-delay on the original cycle grid, delay in
// µs. Continuous signals are interpolated linearly, the valid flag keeps
// its nearest sample, and the heading is unwrapped first so interpolation
// does not tear across the ±π boundary. Cycles whose shifted time falls
// outside the recording keep their uninterpolated value. When oncoming is
// set the longitudinal distance is additionally corrected by
// OncomingDistXOffset.
func (r *RefTrack) ShiftLatency(delay int64, oncoming bool) *RefTrack {
	out := &RefTrack{Timestamps: append([]int64(nil), r.Timestamps...)}
	out.DistX = shiftLinear(r.Timestamps, r.DistX, delay)
	out.DistY = shiftLinear(r.Timestamps, r.DistY, delay)
	out.VelX = shiftLinear(r.Timestamps, r.VelX, delay)
	out.VelY = shiftLinear(r.Timestamps, r.VelY, delay)
	if r.Heading != nil {
		out.Heading = shiftLinear(r.Timestamps, unwrap(r.Heading), delay)
	}
	if r.Valid != nil {
		out.Valid = shiftNearest(r.Timestamps, r.Valid, delay)
	}
	if oncoming {
		for i := range out.DistX {
			out.DistX[i] -= OncomingDistXOffset
		}
	}
	return out
}

// shiftLinear resamples the signal at t-delay per cycle. Shifted times
// outside the grid, and cycles where interpolation hits a NaN sample,
// fall back to the signal's own unshifted value.
func shiftLinear(ts []int64, sig []float64, delay int64) []float64 {
	if sig == nil {
		return nil
	}
	out := make([]float64, len(sig))
	for i := range sig {
		v := math.NaN()
		if i < len(ts) {
			v = interpLinear(ts, sig, float64(ts[i]-delay))
		}
		if math.IsNaN(v) {
			v = sig[i]
		}
		out[i] = v
	}
	return out
}

// shiftNearest resamples a flag signal at t-delay per cycle, keeping the
// nearest recorded sample instead of blending neighbours.
func shiftNearest(ts []int64, sig []float64, delay int64) []float64 {
	if sig == nil {
		return nil
	}
	out := make([]float64, len(sig))
	for i := range sig {
		v := math.NaN()
		if i < len(ts) {
			v = interpNearest(ts, sig, float64(ts[i]-delay))
		}
		if math.IsNaN(v) {
			v = sig[i]
		}
		out[i] = v
	}
	return out
}

// interpLinear samples the signal at time t by linear interpolation over
// the cycle grid. Times outside the grid return NaN.
func interpLinear(ts []int64, sig []float64, t float64) float64 {
	n := len(sig)
	if len(ts) < n {
		n = len(ts)
	}
	if n == 0 || t < float64(ts[0]) || t > float64(ts[n-1]) {
		return math.NaN()
	}
	k := sort.Search(n, func(i int) bool { return float64(ts[i]) >= t })
	if k == 0 {
		return sig[0]
	}
	t0, t1 := float64(ts[k-1]), float64(ts[k])
	if t1 == t0 {
		return sig[k]
	}
	w := (t - t0) / (t1 - t0)
	return sig[k-1] + w*(sig[k]-sig[k-1])
}

// interpNearest samples the signal at time t by picking the nearest grid
// sample, lower sample on ties. Times outside the grid return NaN.
func interpNearest(ts []int64, sig []float64, t float64) float64 {
	n := len(sig)
	if len(ts) < n {
		n = len(ts)
	}
	if n == 0 || t < float64(ts[0]) || t > float64(ts[n-1]) {
		return math.NaN()
	}
	k := sort.Search(n, func(i int) bool { return float64(ts[i]) >= t })
	if k == 0 {
		return sig[0]
	}
	if t-float64(ts[k-1]) <= float64(ts[k])-t {
		return sig[k-1]
	}
	return sig[k]
}

// unwrap removes 2π jumps between consecutive samples so the heading can
// be interpolated across the ±π boundary. The result is continuous but no
// longer bounded to [-π, π].
func unwrap(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}
	out[0] = phase[0]
	offset := 0.0
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		offset -= d - math.Remainder(d, 2*math.Pi)
		out[i] = phase[i] + offset
	}
	return out
}
