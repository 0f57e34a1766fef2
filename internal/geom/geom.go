// Package geom holds the planar predicates used by every feasibility check:
// point containment, segment intersection and segment-versus-polygon tests.
package geom

import "math"

// Point is a position on the plane, in metres.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Rect is an axis-aligned bounding box.
type Rect struct {
	Min, Max Point
}

// Contains reports whether p lies inside r or on its border.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Overlaps reports whether r and o share at least one point.
func (r Rect) Overlaps(o Rect) bool {
	return r.Min.X <= o.Max.X && o.Min.X <= r.Max.X && r.Min.Y <= o.Max.Y && o.Min.Y <= r.Max.Y
}

// BBox returns the bounding box of pts. An empty slice yields the zero Rect.
func BBox(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}

// PointInPolygon applies the even-odd rule by casting a ray along +x from p.
// Edges are visited in order, wrapping from the last vertex to the first.
// A horizontal edge never toggles the result on its own: its crossing point
// is undefined, so it is skipped instead of reusing a previous edge's value.
func PointInPolygon(p Point, poly []Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	a := poly[0]
	for i := 1; i <= n; i++ {
		b := poly[i%n]
		if p.Y > math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y) && p.X <= math.Max(a.X, b.X) && a.Y != b.Y {
			if a.X == b.X {
				inside = !inside
			} else {
				xinters := (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y) + a.X
				if p.X <= xinters {
					inside = !inside
				}
			}
		}
		a = b
	}
	return inside
}

const (
	collinear = iota
	clockwise
	counterClockwise
)

func orientation(p, q, r Point) int {
	v := (q.Y-p.Y)*(r.X-q.X) - (q.X-p.X)*(r.Y-q.Y)
	switch {
	case v == 0:
		return collinear
	case v > 0:
		return clockwise
	default:
		return counterClockwise
	}
}

// onSegment reports whether q lies within the bounding box of p and r.
// Callers only use it for collinear triples.
func onSegment(p, q, r Point) bool {
	return q.X <= math.Max(p.X, r.X) && q.X >= math.Min(p.X, r.X) &&
		q.Y <= math.Max(p.Y, r.Y) && q.Y >= math.Min(p.Y, r.Y)
}

// SegmentsIntersect reports whether segments a1-a2 and b1-b2 share a point.
// Touching endpoints and collinear overlaps count as intersections.
func SegmentsIntersect(a1, a2, b1, b2 Point) bool {
	o1 := orientation(a1, a2, b1)
	o2 := orientation(a1, a2, b2)
	o3 := orientation(b1, b2, a1)
	o4 := orientation(b1, b2, a2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == collinear && onSegment(a1, b1, a2):
		return true
	case o2 == collinear && onSegment(a1, b2, a2):
		return true
	case o3 == collinear && onSegment(b1, a1, b2):
		return true
	case o4 == collinear && onSegment(b1, a2, b2):
		return true
	}
	return false
}

// SegmentCrossesPolygon reports whether the segment p1-p2 touches any edge of
// poly or has an endpoint inside it, which also covers a fully contained segment.
func SegmentCrossesPolygon(p1, p2 Point, poly []Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	if !BBox([]Point{p1, p2}).Overlaps(BBox(poly)) {
		return false
	}
	for i := 0; i < n; i++ {
		if SegmentsIntersect(p1, p2, poly[i], poly[(i+1)%n]) {
			return true
		}
	}
	return PointInPolygon(p1, poly) || PointInPolygon(p2, poly)
}
