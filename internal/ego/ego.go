// Package ego integrates recorded vehicle kinematics into the driven path.
// Speed, longitudinal acceleration and yaw rate sampled per cycle are folded
// into cumulative position, heading and arc length, with speed-binned time
// and distance histograms for recording coverage reports.
package ego

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/openadas/stk/internal/units"
)

// ErrNotIncreasing is returned when the timestamp vector is not strictly
// increasing.
var ErrNotIncreasing = errors.New("ego: timestamp array is not strictly increasing")

// Taylor coefficients for the arc-chord correction of a constant-curvature
// step: delta_x = s*sin(psi)/psi, delta_y = s*(1-cos(psi))/psi.
const (
	dxTaylor1 = -1.0 / 6.0
	dxTaylor2 = 1.0 / 120.0
	dxTaylor3 = -1.0 / 5040.0
	dxTaylor4 = 1.0 / 362880.0
	dyTaylor1 = 1.0 / 2.0
	dyTaylor2 = -1.0 / 24.0
	dyTaylor3 = 1.0 / 720.0
	dyTaylor4 = -1.0 / 40320.0
)

// Config holds the tunable parameters of the path integration.
type Config struct {
	// DistanceToCOG is the longitudinal offset from the sensor to the
	// vehicle's center of gravity in meters.
	DistanceToCOG float64

	// SpeedBins are the histogram bin edges in km/h.
	SpeedBins []float64
}

// DefaultConfig returns the standard integration parameters.
func DefaultConfig() Config {
	return Config{
		DistanceToCOG: 2.75,
		SpeedBins:     []float64{0.0, 30.0, 60.0, 80.0, 100.0, 140.0, 180.0, 250.0},
	}
}

// Stats summarizes a signal.
type Stats struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// TimeStats summarizes the cycle-time vector.
type TimeStats struct {
	Stats
	Total float64
}

// Motion holds the integrated ego path. It is immutable after New.
type Motion struct {
	cfg        Config
	timestamps []int64
	speed      []float64
	accel      []float64
	yaw        []float64

	// motion rows: rel->abs dx, rel->abs dy, abs->rel dx, abs->rel dy,
	// absolute angle, abs->rel sin, abs->rel cos
	motion [7][]float64
	arc    []float64
}

// New integrates the given per-cycle kinematics. Timestamps are in
// microseconds and must be strictly increasing; all slices must have the
// same length of at least two cycles.
func New(timestamps []int64, speed, accel, yawRate []float64, cfg Config) (*Motion, error) {
	n := len(timestamps)
	if n < 2 {
		return nil, fmt.Errorf("ego: need at least 2 cycles, got %d", n)
	}
	if len(speed) != n || len(accel) != n || len(yawRate) != n {
		return nil, fmt.Errorf("ego: signal length mismatch: timestamps %d, speed %d, accel %d, yaw %d",
			n, len(speed), len(accel), len(yawRate))
	}
	for i := 1; i < n; i++ {
		if timestamps[i] <= timestamps[i-1] {
			return nil, ErrNotIncreasing
		}
	}
	if cfg.SpeedBins == nil {
		cfg.SpeedBins = DefaultConfig().SpeedBins
	}

	m := &Motion{
		cfg:        cfg,
		timestamps: timestamps,
		speed:      speed,
		accel:      accel,
		yaw:        yawRate,
	}
	m.integratePath()
	m.integrateArcLength()
	return m, nil
}

// integratePath folds the per-cycle kinematics into cumulative translation
// and rotation between the absolute frame (first cycle) and the moving
// vehicle frame.
func (m *Motion) integratePath() {
	n := len(m.speed)
	dt := m.CycleTimes()
	cog := m.cfg.DistanceToCOG

	psi := make([]float64, n)
	cosPsi := make([]float64, n)
	sinPsi := make([]float64, n)
	deltaS := make([]float64, n)
	dxAbs := make([]float64, n)
	dyAbs := make([]float64, n)
	for i := 0; i < n; i++ {
		psi[i] = m.yaw[i] * dt[i]
		cosPsi[i] = math.Cos(psi[i])
		sinPsi[i] = math.Sin(psi[i])
		psiSqr := psi[i] * psi[i]

		// chord displacement with small-angle series
		deltaS[i] = m.accel[i]*dt[i]*dt[i]*0.5 + m.speed[i]*dt[i]
		deltaX := deltaS[i] * (1 + (dxTaylor1+(dxTaylor2+(dxTaylor3+dxTaylor4*psiSqr)*psiSqr)*psiSqr)*psiSqr)
		deltaY := deltaS[i] * ((dyTaylor1 + (dyTaylor2+(dyTaylor3+dyTaylor4*psiSqr)*psiSqr)*psiSqr) * psi[i])

		// sensor offset from the rotation center folds into the step
		dxAbs[i] = cog*(cosPsi[i]-1.0) - deltaX*cosPsi[i] - deltaY*sinPsi[i]
		dyAbs[i] = -cog*sinPsi[i] + deltaX*sinPsi[i] - deltaY*cosPsi[i]
	}

	psiCum := make([]float64, n)
	floats.CumSum(psiCum, psi)

	absAngle := make([]float64, n)
	abs2relCos := make([]float64, n)
	abs2relSin := make([]float64, n)
	abs2relDx := make([]float64, n)
	abs2relDy := make([]float64, n)
	abs2relCos[0] = 1.0
	for i := 1; i < n; i++ {
		absAngle[i] = psiCum[i-1]
		abs2relCos[i] = math.Cos(psiCum[i-1])
		abs2relSin[i] = math.Sin(psiCum[i-1])
		abs2relDx[i] = cosPsi[i-1]*abs2relDx[i-1] + sinPsi[i-1]*abs2relDy[i-1] + dxAbs[i-1]
		abs2relDy[i] = -sinPsi[i-1]*abs2relDx[i-1] + cosPsi[i-1]*abs2relDy[i-1] + dyAbs[i-1]
	}

	rel2absDx := make([]float64, n)
	rel2absDy := make([]float64, n)
	for i := 0; i < n; i++ {
		rel2absDx[i] = abs2relSin[i]*abs2relDy[i] - abs2relDx[i]*abs2relCos[i]
		rel2absDy[i] = -abs2relCos[i]*abs2relDy[i] - abs2relDx[i]*abs2relSin[i]
	}

	m.motion = [7][]float64{rel2absDx, rel2absDy, abs2relDx, abs2relDy, absAngle, abs2relSin, abs2relCos}
}

// integrateArcLength accumulates the step lengths of the driven path.
func (m *Motion) integrateArcLength() {
	x, y := m.Coordinates()
	arc := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		arc[i] = arc[i-1] + math.Hypot(x[i]-x[i-1], y[i]-y[i-1])
	}
	m.arc = arc
}

// CycleTimes returns the per-cycle durations in seconds. The first cycle
// duration is copied from the second since there is no preceding timestamp.
func (m *Motion) CycleTimes() []float64 {
	n := len(m.timestamps)
	ct := make([]float64, n)
	ct[0] = float64(m.timestamps[1]-m.timestamps[0]) / 1e6
	for i := 1; i < n; i++ {
		ct[i] = float64(m.timestamps[i]-m.timestamps[i-1]) / 1e6
	}
	return ct
}

// SpeedKPH returns the speed vector converted to km/h.
func (m *Motion) SpeedKPH() []float64 {
	out := make([]float64, len(m.speed))
	for i, s := range m.speed {
		out[i] = units.ConvertSpeed(s, units.KPH)
	}
	return out
}

// Coordinates returns the driven path in the absolute frame anchored at the
// first cycle.
func (m *Motion) Coordinates() (x, y []float64) {
	return m.motion[0], m.motion[1]
}

// Heading returns the accumulated absolute heading per cycle in radians.
func (m *Motion) Heading() []float64 {
	return m.motion[4]
}

// MotionArray returns the packed motion rows: rel->abs dx/dy, abs->rel
// dx/dy, absolute angle, abs->rel sin and cos.
func (m *Motion) MotionArray() [7][]float64 {
	return m.motion
}

// ArcLength returns the cumulative driven arc length per cycle in meters.
func (m *Motion) ArcLength() []float64 {
	return m.arc
}

// DrivenDistance returns the total driven distance in meters.
func (m *Motion) DrivenDistance() float64 {
	return m.arc[len(m.arc)-1]
}

// DrivenDistanceBetween returns the distance driven between two cycle
// indices in meters.
func (m *Motion) DrivenDistanceBetween(start, end int) float64 {
	return m.arc[end] - m.arc[start]
}

// Displacement returns the per-cycle step lengths over [start, end). The
// first element is zero; element i holds the distance covered between
// cycles start+i-1 and start+i.
func (m *Motion) Displacement(start, end int) []float64 {
	x, y := m.Coordinates()
	out := make([]float64, end-start)
	for i := start + 1; i < end; i++ {
		out[i-start] = math.Hypot(x[i]-x[i-1], y[i]-y[i-1])
	}
	return out
}

// CycleTimeStats summarizes the cycle times in seconds.
func (m *Motion) CycleTimeStats() TimeStats {
	ct := m.CycleTimes()
	return TimeStats{
		Stats: Stats{
			Mean: stat.Mean(ct, nil),
			Std:  math.Sqrt(stat.PopVariance(ct, nil)),
			Min:  floats.Min(ct),
			Max:  floats.Max(ct),
		},
		Total: floats.Sum(ct),
	}
}

// SpeedStats summarizes the speed vector in m/s.
func (m *Motion) SpeedStats() Stats {
	return Stats{
		Mean: stat.Mean(m.speed, nil),
		Std:  math.Sqrt(stat.PopVariance(m.speed, nil)),
		Min:  floats.Min(m.speed),
		Max:  floats.Max(m.speed),
	}
}

// SpeedHistogram counts the given speed values into bins. Bin units follow
// the input units; nil bins select the configured km/h bins. The last bin
// includes its upper edge.
func (m *Motion) SpeedHistogram(speed []float64, bins []float64) []int {
	if bins == nil {
		bins = m.cfg.SpeedBins
	}
	counts := make([]int, len(bins)-1)
	weighted := histogram(speed, bins, nil)
	for i, w := range weighted {
		counts[i] = int(w)
	}
	return counts
}

// TimeSpeedHistogram accumulates driving time per speed bin in hours. Bins
// are in km/h; nil selects the configured bins.
func (m *Motion) TimeSpeedHistogram(bins []float64) []float64 {
	if bins == nil {
		bins = m.cfg.SpeedBins
	}
	hours := make([]float64, len(m.speed))
	for i, ct := range m.CycleTimes() {
		hours[i] = ct / 3600.0
	}
	return histogram(m.SpeedKPH(), bins, hours)
}

// DistSpeedHistogram accumulates driven distance per speed bin in km. Bins
// are in km/h; nil selects the configured bins.
func (m *Motion) DistSpeedHistogram(bins []float64) []float64 {
	if bins == nil {
		bins = m.cfg.SpeedBins
	}
	km := m.Displacement(0, len(m.speed))
	for i := range km {
		km[i] *= 1e-3
	}
	return histogram(m.SpeedKPH(), bins, km)
}

// AbsToRel returns the 3x3 matrix transforming homogeneous absolute-frame
// coordinates into the vehicle frame at the given cycle.
func (m *Motion) AbsToRel(index int) *mat.Dense {
	sin := m.motion[5][index]
	cos := m.motion[6][index]
	return mat.NewDense(3, 3, []float64{
		cos, sin, m.motion[2][index],
		-sin, cos, m.motion[3][index],
		0, 0, 1,
	})
}

// RelToAbs returns the 3x3 matrix transforming homogeneous vehicle-frame
// coordinates into the absolute frame at the given cycle.
func (m *Motion) RelToAbs(index int) *mat.Dense {
	sin := m.motion[5][index]
	cos := m.motion[6][index]
	return mat.NewDense(3, 3, []float64{
		cos, -sin, m.motion[0][index],
		sin, cos, m.motion[1][index],
		0, 0, 1,
	})
}

// histogram sums weights per bin. Each bin is half-open [lo, hi) except the
// last, which includes its upper edge. Values outside the bins are ignored.
// Nil weights count occurrences.
func histogram(values, bins, weights []float64) []float64 {
	out := make([]float64, len(bins)-1)
	last := len(bins) - 2
	for i, v := range values {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		for b := 0; b <= last; b++ {
			if v >= bins[b] && (v < bins[b+1] || (b == last && v == bins[b+1])) {
				out[b] += w
				break
			}
		}
	}
	return out
}
