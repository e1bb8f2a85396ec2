// Package obj matches radar object tracks against a reference trajectory
// and derives per-cycle quality vectors from the winning object. The
// matcher works on the recording's cycle grid: candidates are gated per
// cycle, the per-cycle winners are stitched into runs of constant tracker
// id, and short flicker runs are dropped or merged before any signal is
// read off the result.
package obj

import (
	"fmt"
	"sort"
)

// Classification is the sensor's class estimate for an object track.
type Classification int

const (
	ClassPoint Classification = iota
	ClassCar
	ClassTruck
	ClassPedestrian
	ClassMotorcycle
	ClassBicycle
	ClassWide
	ClassUnclassified
)

func (c Classification) String() string {
	switch c {
	case ClassPoint:
		return "point"
	case ClassCar:
		return "car"
	case ClassTruck:
		return "truck"
	case ClassPedestrian:
		return "pedestrian"
	case ClassMotorcycle:
		return "motorcycle"
	case ClassBicycle:
		return "bicycle"
	case ClassWide:
		return "wide"
	default:
		return "unclassified"
	}
}

// Signal identifies one per-cycle signal of an object track.
type Signal int

const (
	SignalDistX Signal = iota
	SignalDistY
	SignalVelX
	SignalVelY
	SignalDistXStd
	SignalDistYStd
	SignalVelXStd
	SignalOrient
)

func (s Signal) String() string {
	switch s {
	case SignalDistX:
		return "dist_x"
	case SignalDistY:
		return "dist_y"
	case SignalVelX:
		return "vel_x"
	case SignalVelY:
		return "vel_y"
	case SignalDistXStd:
		return "dist_x_std"
	case SignalDistYStd:
		return "dist_y_std"
	case SignalVelXStd:
		return "vel_x_std"
	case SignalOrient:
		return "orientation"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Object is one radar object track: per-cycle kinematics over its
// lifetime. All signal slices run in lockstep with Timestamps; index 0 is
// the cycle the tracker created the object. Standard deviations and the
// orientation may be nil when the recording did not carry them.
type Object struct {
	ID         int
	StartIndex int // cycle index of the first sample within the recording
	Class      Classification

	Timestamps []int64 // µs
	DistX      []float64
	DistY      []float64
	VelX       []float64
	VelY       []float64
	DistXStd   []float64
	DistYStd   []float64
	VelXStd    []float64
	Orient     []float64 // radians
}

// Life returns the number of cycles the track lived.
func (o *Object) Life() int {
	return len(o.Timestamps)
}

// StartTime returns the timestamp of the track's first cycle.
func (o *Object) StartTime() int64 {
	if len(o.Timestamps) == 0 {
		return 0
	}
	return o.Timestamps[0]
}

// StopTime returns the timestamp of the track's last cycle.
func (o *Object) StopTime() int64 {
	if len(o.Timestamps) == 0 {
		return 0
	}
	return o.Timestamps[len(o.Timestamps)-1]
}

func (o *Object) signal(s Signal) []float64 {
	switch s {
	case SignalDistX:
		return o.DistX
	case SignalDistY:
		return o.DistY
	case SignalVelX:
		return o.VelX
	case SignalVelY:
		return o.VelY
	case SignalDistXStd:
		return o.DistXStd
	case SignalDistYStd:
		return o.DistYStd
	case SignalVelXStd:
		return o.VelXStd
	case SignalOrient:
		return o.Orient
	default:
		return nil
	}
}

// valueAt reads a signal sample with the tracker's out-of-range
// convention: indexes past the recorded lifetime read as zero.
func valueAt(sig []float64, i int) float64 {
	if i < 0 || i >= len(sig) {
		return 0
	}
	return sig[i]
}

// ObjectList is the set of object tracks read from one recording.
type ObjectList []*Object

// ByID returns the tracks that carried the given tracker id. Ids are
// recycled, so several distinct tracks can share one.
func (l ObjectList) ByID(id int) ObjectList {
	var hits ObjectList
	for _, o := range l {
		if o.ID == id {
			hits = append(hits, o)
		}
	}
	return hits
}

// Longest returns the track with the most cycles, or nil for an empty
// list.
func (l ObjectList) Longest() *Object {
	var best *Object
	for _, o := range l {
		if best == nil || o.Life() > best.Life() {
			best = o
		}
	}
	return best
}

// RefTrack is the reference trajectory the radar objects are matched
// against, resampled onto the recording's cycle grid. VelY, Heading and
// Valid are optional; a nil slice stands for a signal the reference
// system did not provide.
type RefTrack struct {
	Timestamps []int64 // µs
	DistX      []float64
	DistY      []float64
	VelX       []float64
	VelY       []float64
	Heading    []float64 // radians
	Valid      []float64 // measurement-valid flag
}

// Cycles returns the number of reference cycles.
func (r *RefTrack) Cycles() int {
	return len(r.Timestamps)
}

func (r *RefTrack) validate() error {
	if r == nil || len(r.Timestamps) == 0 {
		return ErrNoReference
	}
	n := len(r.Timestamps)
	for _, sig := range []struct {
		name   string
		length int
	}{
		{"dist_x", len(r.DistX)},
		{"dist_y", len(r.DistY)},
		{"vel_x", len(r.VelX)},
	} {
		if sig.length != n {
			return fmt.Errorf("obj: reference signal %s has %d samples, want %d", sig.name, sig.length, n)
		}
	}
	for _, sig := range []struct {
		name   string
		length int
	}{
		{"vel_y", len(r.VelY)},
		{"heading", len(r.Heading)},
		{"valid", len(r.Valid)},
	} {
		if sig.length != 0 && sig.length != n {
			return fmt.Errorf("obj: reference signal %s has %d samples, want %d", sig.name, sig.length, n)
		}
	}
	return nil
}

// heading returns the reference heading at the cycle, zero when the
// reference carries no heading signal.
func (r *RefTrack) heading(i int) float64 {
	if i < 0 || i >= len(r.Heading) {
		return 0
	}
	return r.Heading[i]
}

// cycleAt returns the index of the first reference cycle at or after the
// timestamp.
func (r *RefTrack) cycleAt(ts int64) int {
	return sort.Search(len(r.Timestamps), func(i int) bool {
		return r.Timestamps[i] >= ts
	})
}
