// Package geo provides the rectangle primitives used for zone filtering and
// radar reflection-point estimation. Coordinates follow the vehicle frame:
// x forward, y to the left, angles counter-clockwise in radians.
package geo

import (
	"math"

	"github.com/openadas/stk/internal/deprecate"
)

// Point is an x/y pair in vehicle coordinates.
type Point struct {
	X float64
	Y float64
}

// Rotate rotates p counter-clockwise by angle around the given origin.
func Rotate(p Point, angle float64, origin Point) Point {
	sinPhi := math.Sin(angle)
	cosPhi := math.Cos(angle)
	return Point{
		X: (p.X-origin.X)*cosPhi - (p.Y-origin.Y)*sinPhi + origin.X,
		Y: (p.X-origin.X)*sinPhi + (p.Y-origin.Y)*cosPhi + origin.Y,
	}
}

// Rect is an axis-aligned rectangle given by its left/top/right/bottom
// extents. Corners are kept explicitly so the rectangle survives rotation.
//
//	          ^ y (top)
//	          |   1 ________ 2
//	          |    |        |
//	          |    |________|
//	          |   0          3
//	  --------+----------------> x (right)
type Rect struct {
	points [4]Point
}

// NewRect builds a rectangle from its extents.
func NewRect(left, top, right, bottom float64) *Rect {
	return &Rect{points: [4]Point{
		{left, bottom},
		{left, top},
		{right, top},
		{right, bottom},
	}}
}

// Points returns the four corners in construction order.
func (r *Rect) Points() []Point {
	return r.points[:]
}

// Rotate rotates the rectangle counter-clockwise around the given origin.
func (r *Rect) Rotate(angle float64, origin Point) {
	for i, p := range r.points {
		r.points[i] = Rotate(p, angle, origin)
	}
}

// Shift translates the rectangle.
func (r *Rect) Shift(dx, dy float64) {
	for i := range r.points {
		r.points[i].X += dx
		r.points[i].Y += dy
	}
}

// Contains reports whether the point lies inside the rectangle, rotated or
// not. Even-odd rule: a horizontal ray from the test point toward +x flips
// in/out at every edge crossing; edges touching the ray at their lower end
// do not count twice.
func (r *Rect) Contains(x, y float64) bool {
	inside := false
	n := len(r.points)

	p1 := r.points[0]
	for i := 0; i <= n; i++ {
		p2 := r.points[i%n]
		if y > math.Min(p1.Y, p2.Y) && y <= math.Max(p1.Y, p2.Y) && x <= math.Max(p1.X, p2.X) {
			if p1.X == p2.X {
				inside = !inside
			} else if p1.Y != p2.Y {
				xinters := (y-p1.Y)*(p2.X-p1.X)/(p2.Y-p1.Y) + p1.X
				if x <= xinters {
					inside = !inside
				}
			}
		}
		p1 = p2
	}

	return inside
}

// Box is a vehicle-oriented bounding box built from half extents around a
// reference point at the origin: left/right widths along y, front/rear
// lengths along x. The corner ring is closed (first point repeated) so the
// polygon tests below can walk plain edge pairs.
//
//	1--------2
//	|        |
//	|        |
//	0/4------3
type Box struct {
	points [5]Point
}

// NewBox builds a box from half extents. All arguments are positive
// distances from the reference point.
func NewBox(left, right, front, rear float64) *Box {
	return &Box{points: [5]Point{
		{-rear, left},
		{front, left},
		{front, -right},
		{-rear, -right},
		{-rear, left},
	}}
}

// Points returns the closed corner ring.
func (b *Box) Points() []Point {
	return b.points[:]
}

// Rotate rotates the box counter-clockwise around the origin.
func (b *Box) Rotate(orientation float64) {
	sinPhi := math.Sin(orientation)
	cosPhi := math.Cos(orientation)
	for i, p := range b.points {
		b.points[i] = Point{
			X: p.X*cosPhi - p.Y*sinPhi,
			Y: p.X*sinPhi + p.Y*cosPhi,
		}
	}
}

// Shift translates the box.
func (b *Box) Shift(dx, dy float64) {
	for i := range b.points {
		b.points[i].X += dx
		b.points[i].Y += dy
	}
}

// ReflectionPoint estimates where a radar return reflects off the box: take
// the corner nearest the sensor (minimum x) and return the midpoint of
// whichever adjacent edge stands more perpendicular to the line of sight.
func (b *Box) ReflectionPoint() Point {
	n := len(b.points)

	// nearest corner to the sensor
	index := 0
	for i, p := range b.points {
		if p.X < b.points[index].X {
			index = i
		}
	}
	point := b.points[index]

	// neighbouring corners connected to it; the ring is closed so the
	// duplicate closing point is skipped on wrap-around
	var left, right Point
	if index == 0 {
		left = b.points[n-2]
	} else {
		left = b.points[index-1]
	}
	if index == n-1 {
		right = b.points[1]
	} else {
		right = b.points[index+1]
	}

	if math.Abs(left.X-point.X) < math.Abs(left.Y-point.Y) {
		// left edge spans mostly in y: reflection sits in its middle
		return Point{X: (point.X + left.X) / 2, Y: (point.Y + left.Y) / 2}
	}
	return Point{X: (point.X + right.X) / 2, Y: (point.Y + right.Y) / 2}
}

// Contains reports whether the point lies inside the box using the same
// even-odd ray rule as Rect.Contains, walking the closed ring.
func (b *Box) Contains(x, y float64) bool {
	inside := false
	n := len(b.points)

	j := 0
	for i := 1; i < n; i++ {
		pi := b.points[i]
		pj := b.points[j]
		if (pi.Y > y) != (pj.Y > y) &&
			x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}

	return inside
}

// Rectangle builds a box from half extents under its old name.
//
// Deprecated: use NewBox.
func Rectangle(left, right, front, rear float64) *Box {
	deprecate.Warn("geo.Rectangle", "geo.NewBox")
	return NewBox(left, right, front, rear)
}

// PolygonContainsPoint reports whether the point lies inside the box.
//
// Deprecated: use Contains.
func (b *Box) PolygonContainsPoint(x, y float64) bool {
	deprecate.Warn("geo.Box.PolygonContainsPoint", "geo.Box.Contains")
	return b.Contains(x, y)
}

// CalcReflectionsPoint estimates the radar reflection point.
//
// Deprecated: use ReflectionPoint.
func (b *Box) CalcReflectionsPoint() Point {
	deprecate.Warn("geo.Box.CalcReflectionsPoint", "geo.Box.ReflectionPoint")
	return b.ReflectionPoint()
}
