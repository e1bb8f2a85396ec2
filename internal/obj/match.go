package obj

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/openadas/stk/internal/geo"
	"github.com/openadas/stk/internal/units"
)

// ErrNoReference is returned when the reference track carries no cycles.
var ErrNoReference = errors.New("obj: reference track has no cycles")

// MatcherConfig holds the gates applied when pairing radar objects with
// the reference per cycle.
type MatcherConfig struct {
	GateDistX float64 // coarse longitudinal gate (m)
	GateDistY float64 // coarse lateral gate (m)
	GateVelX  float64 // coarse velocity gate (m/s)
	GateStat  float64 // statistical distance gate (σ)
	NoiseStd  float64 // noise floor added to the reported standard deviations
	ReflGate  float64 // statistical gate against the reflection point (σ)

	// IDChangeGap is the cycle distance below which a new run counts as
	// an id change rather than a separate encounter. 16666 cycles of
	// 60 ms cover roughly 1000 s.
	IDChangeGap int
}

// DefaultMatcherConfig returns the gates for targets leading the ego
// vehicle.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		GateDistX:   3,
		GateDistY:   6,
		GateVelX:    5,
		GateStat:    3,
		NoiseStd:    0.8,
		ReflGate:    3.5,
		IDChangeGap: 16666,
	}
}

// CrossingMatcherConfig returns the wider gates used when the target
// crosses the ego path instead of leading it: the longitudinal gate opens
// up while the lateral and statistical gates follow the crossing
// geometry.
func CrossingMatcherConfig() MatcherConfig {
	cfg := DefaultMatcherConfig()
	cfg.GateDistX = 7
	cfg.GateDistY = 4
	cfg.GateStat = 4.5
	return cfg
}

// Matcher pairs the object tracks of one recording with a reference
// trajectory.
type Matcher struct {
	cfg     MatcherConfig
	objects ObjectList
}

// NewMatcher creates a matcher over the recording's object list.
func NewMatcher(objects ObjectList, cfg MatcherConfig) *Matcher {
	return &Matcher{cfg: cfg, objects: objects}
}

// candidate is one object sample competing for a reference cycle.
type candidate struct {
	obj   *Object
	local int // cycle index within the object's own lifetime
}

// candidates builds the per-cycle table of object samples alive at each
// reference cycle. Lifetimes are clipped to the reference window and the
// local index is derived from the clipped start, so tracks that began
// before the reference window stay aligned with it.
func (m *Matcher) candidates(ref *RefTrack) ([][]candidate, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}

	n := ref.Cycles()
	first, last := ref.Timestamps[0], ref.Timestamps[n-1]
	table := make([][]candidate, n)

	for _, o := range m.objects {
		if o.Life() == 0 {
			continue
		}
		start, stop := o.StartTime(), o.StopTime()
		if start >= last || stop <= first {
			continue
		}
		if start < first {
			start = first
		}
		if stop > last {
			stop = last
		}

		local := searchObject(o, start)
		for i := ref.cycleAt(start); i <= ref.cycleAt(stop) && i < n; i++ {
			if local >= o.Life() {
				break
			}
			table[i] = append(table[i], candidate{obj: o, local: local})
			local++
		}
	}

	return table, nil
}

// searchObject returns the object's local index of the first cycle at or
// after the timestamp.
func searchObject(o *Object, ts int64) int {
	return sort.Search(len(o.Timestamps), func(i int) bool {
		return o.Timestamps[i] >= ts
	})
}

// statDistance is the Mahalanobis-style distance between a candidate and
// a target position/velocity, with the reported standard deviations
// inflated by the matcher's noise floor.
func (m *Matcher) statDistance(c candidate, dx, dy, dvx float64) float64 {
	nn := m.cfg.NoiseStd * m.cfg.NoiseStd
	sx := valueAt(c.obj.DistXStd, c.local)
	sy := valueAt(c.obj.DistYStd, c.local)
	sv := valueAt(c.obj.VelXStd, c.local)
	return math.Sqrt(dx*dx/(sx*sx+nn) + dy*dy/(sy*sy+nn) + dvx*dvx/(sv*sv+nn))
}

// MatchByGate matches every reference cycle against the objects alive at
// that cycle. Candidates pass coarse position and velocity gates and a
// statistical distance gate; the closest candidate wins the cycle. The
// per-cycle winners are then stitched into runs and filtered.
func (m *Matcher) MatchByGate(ref *RefTrack) (*MatchSeries, error) {
	table, err := m.candidates(ref)
	if err != nil {
		return nil, err
	}

	n := ref.Cycles()
	winner := make([]candidate, n)
	got := make([]bool, n)
	dist := make([]float64, n)

	for i := range table {
		best := math.Inf(1)
		backup := math.Inf(1)
		for _, c := range table[i] {
			dx := valueAt(c.obj.DistX, c.local) - ref.DistX[i]
			dy := valueAt(c.obj.DistY, c.local) - ref.DistY[i]
			dvx := valueAt(c.obj.VelX, c.local) - ref.VelX[i]
			d := m.statDistance(c, dx, dy, dvx)
			if !math.IsNaN(d) && d < backup {
				backup = d
			}
			if math.Abs(dx) >= m.cfg.GateDistX ||
				math.Abs(dy) >= m.cfg.GateDistY ||
				math.Abs(dvx) >= m.cfg.GateVelX {
				continue
			}
			if d >= m.cfg.GateStat {
				continue
			}
			if d < best {
				best = d
				winner[i] = c
				got[i] = true
			}
		}
		switch {
		case got[i]:
			dist[i] = best
		case !math.IsInf(backup, 1):
			// no candidate passed the gates: keep the closest reject so
			// merged runs still carry a distance across their gap cycles
			dist[i] = backup
		default:
			dist[i] = math.NaN()
		}
	}

	return m.assemble(ref, winner, got, dist, nil), nil
}

// MatchByReflectionPoint gates candidates with an oriented box around the
// reference position and measures the statistical distance against the
// estimated radar reflection point instead of the reference origin.
// Length and width describe the target's physical extent in meters. The
// gate box extends a quarter length behind and beyond the target so late
// and early reflections still pass.
func (m *Matcher) MatchByReflectionPoint(ref *RefTrack, length, width float64) (*MatchSeries, error) {
	if length <= 0 || width <= 0 {
		return nil, fmt.Errorf("obj: invalid target extent %gx%g m", length, width)
	}
	table, err := m.candidates(ref)
	if err != nil {
		return nil, err
	}

	n := ref.Cycles()
	winner := make([]candidate, n)
	got := make([]bool, n)
	dist := make([]float64, n)
	refl := make([]geo.Point, n)

	for i := range table {
		gate := geo.NewBox(width*0.75, width*0.75, length*1.25, length*0.25)
		gate.Rotate(ref.heading(i))
		rp := gate.ReflectionPoint()
		refl[i] = geo.Point{X: ref.DistX[i] + rp.X, Y: ref.DistY[i] + rp.Y}

		best := math.Inf(1)
		for _, c := range table[i] {
			dx := valueAt(c.obj.DistX, c.local) - ref.DistX[i]
			dy := valueAt(c.obj.DistY, c.local) - ref.DistY[i]
			if !gate.Contains(dx, dy) {
				continue
			}
			dvx := valueAt(c.obj.VelX, c.local) - ref.VelX[i]
			if math.Abs(dvx) >= m.cfg.GateVelX {
				continue
			}
			d := m.statDistance(c,
				valueAt(c.obj.DistX, c.local)-refl[i].X,
				valueAt(c.obj.DistY, c.local)-refl[i].Y,
				dvx)
			if d >= m.cfg.ReflGate {
				continue
			}
			if d < best {
				best = d
				winner[i] = c
				got[i] = true
			}
		}
		if got[i] {
			dist[i] = best
		} else {
			dist[i] = math.NaN()
		}
	}

	return m.assemble(ref, winner, got, dist, refl), nil
}

// ObjectsInBox returns the objects whose position at the given reference
// cycle lies inside the box. The box is expected in vehicle coordinates,
// already shifted to wherever the zone of interest sits.
func (m *Matcher) ObjectsInBox(ref *RefTrack, box *geo.Box, cycle int) (ObjectList, error) {
	table, err := m.candidates(ref)
	if err != nil {
		return nil, err
	}
	if cycle < 0 || cycle >= len(table) {
		return nil, fmt.Errorf("obj: cycle %d outside reference range 0..%d", cycle, len(table)-1)
	}

	var hits ObjectList
	for _, c := range table[cycle] {
		if box.Contains(valueAt(c.obj.DistX, c.local), valueAt(c.obj.DistY, c.local)) {
			hits = append(hits, c.obj)
		}
	}
	return hits, nil
}

// Run is a stretch of consecutive reference cycles won by one tracker id.
type Run struct {
	Start  int // first reference cycle of the run
	Local  int // object cycle index at Start
	Life   int // cycles the run covers
	Object *Object
}

// Stop returns the first cycle after the run's marked range. The closing
// cycle of a run is excluded from the derived vectors.
func (r Run) Stop() int {
	return r.Start + r.Life - 1
}

// span clips the run's marked range [Start, Stop) to n cycles.
func (r Run) span(n int) (int, int) {
	stop := r.Stop()
	if stop > n {
		stop = n
	}
	return r.Start, stop
}

// MatchSeries is the per-cycle result of matching one recording against a
// reference track.
type MatchSeries struct {
	Ref  *RefTrack
	Runs []Run

	// WinnerIDs holds the stitched winner's tracker id per reference
	// cycle, -1 where no run covers the cycle.
	WinnerIDs []int

	// Distances holds the statistical distance per covered cycle and NaN
	// elsewhere.
	Distances []float64

	// Reflection holds the estimated reflection point per cycle when the
	// series came from MatchByReflectionPoint, nil otherwise.
	Reflection []geo.Point

	gap int
}

// assemble stitches the per-cycle winners into runs, filters flicker and
// derives the id and distance vectors.
func (m *Matcher) assemble(ref *RefTrack, winner []candidate, got []bool, dist []float64, refl []geo.Point) *MatchSeries {
	n := ref.Cycles()

	// Step 1: stitch consecutive cycles with the same winning id into runs
	var runs []Run
	curID := -1
	var cur Run
	open := false
	for i := 0; i < n; i++ {
		id := -1
		if got[i] {
			id = winner[i].obj.ID
		}
		if id != curID {
			if open && cur.Life > 0 {
				runs = append(runs, cur)
			}
			open = false
			if id != -1 {
				cur = Run{Start: i, Local: winner[i].local, Object: winner[i].obj}
				open = true
			}
			curID = id
		}
		if open {
			cur.Life++
		}
	}
	if open && cur.Life > 0 {
		runs = append(runs, cur)
	}

	// Step 2: drop flicker and bridge runs of the same track across gaps
	kept := make([]Run, 0, len(runs))
	for _, r := range runs {
		if len(kept) == 0 {
			if r.Life >= 2 {
				kept = append(kept, r)
			}
			continue
		}
		prev := &kept[len(kept)-1]
		switch {
		case r.Object.StartIndex == prev.Object.StartIndex:
			prev.Life = r.Start + r.Life - prev.Start
		case r.Life > 3:
			kept = append(kept, r)
		}
	}

	// Step 3: fill the per-cycle vectors from the surviving runs
	s := &MatchSeries{
		Ref:        ref,
		Runs:       kept,
		WinnerIDs:  make([]int, n),
		Distances:  nanVector(n),
		Reflection: refl,
		gap:        m.cfg.IDChangeGap,
	}
	for i := range s.WinnerIDs {
		s.WinnerIDs[i] = -1
	}
	for _, r := range kept {
		start, stop := r.span(n)
		for j := start; j < stop; j++ {
			s.WinnerIDs[j] = r.Object.ID
			s.Distances[j] = dist[j]
		}
	}
	return s
}

// IDChanges counts how often the winning tracker id flipped: a run counts
// as a change when it starts within the configured gap of the previous
// run's start. Runs further apart are separate encounters.
func (s *MatchSeries) IDChanges() int {
	changes := 0
	for i := 1; i < len(s.Runs); i++ {
		if s.Runs[i].Start-s.Runs[i-1].Start < s.gap {
			changes++
		}
	}
	return changes
}

// SignalOfBest assembles the winning object's signal on the reference
// cycle grid. Cycles not covered by a run are NaN; the second return
// marks the covered cycles. Orientation values are converted to degrees.
func (s *MatchSeries) SignalOfBest(sig Signal) ([]float64, []bool) {
	n := len(s.WinnerIDs)
	values := nanVector(n)
	covered := make([]bool, n)
	for _, r := range s.Runs {
		src := r.Object.signal(sig)
		start, stop := r.span(n)
		for j := start; j < stop; j++ {
			v := valueAt(src, r.Local+(j-r.Start))
			if sig == SignalOrient {
				v = units.RadToDeg(v)
			}
			values[j] = v
			covered[j] = true
		}
	}
	return values, covered
}

// ErrorOfBest returns the absolute per-cycle error between the reference
// signal and the winning object's signal. Cycles without a winner are
// NaN.
func (s *MatchSeries) ErrorOfBest(sig Signal, ref []float64) []float64 {
	values, covered := s.SignalOfBest(sig)
	out := nanVector(len(values))
	for i, ok := range covered {
		if !ok || i >= len(ref) {
			continue
		}
		out[i] = math.Abs(ref[i] - values[i])
	}
	return out
}

// MinDist returns the smallest per-cycle Euclidean distance between the
// reference and the object over the cycles both cover, NaN when their
// lifetimes do not overlap.
func MinDist(ref *RefTrack, o *Object) float64 {
	best := math.NaN()
	for local, ts := range o.Timestamps {
		i := ref.cycleAt(ts)
		if i >= ref.Cycles() || ref.Timestamps[i] != ts {
			continue
		}
		d := math.Hypot(valueAt(o.DistX, local)-ref.DistX[i], valueAt(o.DistY, local)-ref.DistY[i])
		if math.IsNaN(best) || d < best {
			best = d
		}
	}
	return best
}

func nanVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}
