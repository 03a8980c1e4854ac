package annotate

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// convexHull returns the convex hull of the given points in counterclockwise
// order, using Andrew's monotone chain. Fewer than three input points are
// returned as-is.
func convexHull(pts []r2.Point) []r2.Point {
	if len(pts) < 3 {
		return append([]r2.Point(nil), pts...)
	}
	sorted := append([]r2.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b r2.Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower []r2.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper []r2.Point
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// polygonArea returns the unsigned area of a polygon via the shoelace
// formula.
func polygonArea(poly []r2.Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	sum := 0.0
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(sum) / 2
}

// clipToRect clips a convex polygon to the axis-aligned rectangle
// [0,w] x [0,h] with Sutherland-Hodgman. The result may be empty when the
// polygon lies entirely outside.
func clipToRect(poly []r2.Point, w, h float64) []r2.Point {
	inside := []func(p r2.Point) bool{
		func(p r2.Point) bool { return p.X >= 0 },
		func(p r2.Point) bool { return p.X <= w },
		func(p r2.Point) bool { return p.Y >= 0 },
		func(p r2.Point) bool { return p.Y <= h },
	}
	intersect := []func(a, b r2.Point) r2.Point{
		func(a, b r2.Point) r2.Point { return intersectVertical(a, b, 0) },
		func(a, b r2.Point) r2.Point { return intersectVertical(a, b, w) },
		func(a, b r2.Point) r2.Point { return intersectHorizontal(a, b, 0) },
		func(a, b r2.Point) r2.Point { return intersectHorizontal(a, b, h) },
	}

	out := append([]r2.Point(nil), poly...)
	for edge := 0; edge < 4; edge++ {
		if len(out) == 0 {
			return nil
		}
		in := out
		out = nil
		for i := range in {
			cur := in[i]
			prev := in[(i+len(in)-1)%len(in)]
			curIn := inside[edge](cur)
			prevIn := inside[edge](prev)
			switch {
			case curIn && prevIn:
				out = append(out, cur)
			case curIn && !prevIn:
				out = append(out, intersect[edge](prev, cur), cur)
			case !curIn && prevIn:
				out = append(out, intersect[edge](prev, cur))
			}
		}
	}
	return out
}

func intersectVertical(a, b r2.Point, x float64) r2.Point {
	t := (x - a.X) / (b.X - a.X)
	return r2.Point{X: x, Y: a.Y + t*(b.Y-a.Y)}
}

func intersectHorizontal(a, b r2.Point, y float64) r2.Point {
	t := (y - a.Y) / (b.Y - a.Y)
	return r2.Point{X: a.X + t*(b.X-a.X), Y: y}
}

// boundingRect returns the min and max corners of a polygon.
func boundingRect(poly []r2.Point) (r2.Point, r2.Point) {
	if len(poly) == 0 {
		return r2.Point{}, r2.Point{}
	}
	lo, hi := poly[0], poly[0]
	for _, p := range poly[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi
}
