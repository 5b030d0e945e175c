// Package reach computes conservative swept-volume bounds for the robot and
// for nearby humans. Everything here over-approximates: a point that is
// physically reachable within the horizon is always inside some returned
// capsule, at the cost of capsules that are larger than strictly necessary.
package reach

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Capsule is a line segment with a radius: the conservative bounding volume
// for one body segment swept over a time interval. Capsules are ephemeral,
// rebuilt every cycle, and never persisted.
type Capsule struct {
	P1     r3.Vec
	P2     r3.Vec
	Radius float64
}

// Contains reports whether the point lies inside the capsule.
func (c Capsule) Contains(p r3.Vec) bool {
	return distPointSegment(p, c.P1, c.P2) <= c.Radius+1e-12
}

// Dist returns the minimum distance between the surfaces of two capsules.
// A negative value is the penetration depth of the overlap.
func Dist(a, b Capsule) float64 {
	return distSegmentSegment(a.P1, a.P2, b.P1, b.P2) - a.Radius - b.Radius
}

func distPointSegment(p, a, b r3.Vec) float64 {
	ab := r3.Sub(b, a)
	denom := r3.Dot(ab, ab)
	t := 0.0
	if denom > 0 {
		t = r3.Dot(r3.Sub(p, a), ab) / denom
		t = math.Max(0, math.Min(1, t))
	}
	closest := r3.Add(a, r3.Scale(t, ab))
	return r3.Norm(r3.Sub(p, closest))
}

// distSegmentSegment returns the minimum distance between segments [p1,q1]
// and [p2,q2] (Eberly's clamped quadratic method).
func distSegmentSegment(p1, q1, p2, q2 r3.Vec) float64 {
	d1 := r3.Sub(q1, p1)
	d2 := r3.Sub(q2, p2)
	r := r3.Sub(p1, p2)
	a := r3.Dot(d1, d1)
	e := r3.Dot(d2, d2)
	f := r3.Dot(d2, r)

	var s, t float64
	const eps = 1e-12

	switch {
	case a <= eps && e <= eps:
		// Both segments degenerate to points.
		return r3.Norm(r)
	case a <= eps:
		t = clamp01(f / e)
	case e <= eps:
		s = clamp01(-r3.Dot(d1, r) / a)
	default:
		c := r3.Dot(d1, r)
		b := r3.Dot(d1, d2)
		denom := a*e - b*b
		if denom > eps {
			s = clamp01((b*f - c*e) / denom)
		}
		t = (b*s + f) / e
		if t < 0 {
			t = 0
			s = clamp01(-c / a)
		} else if t > 1 {
			t = 1
			s = clamp01((b - c) / a)
		}
	}

	c1 := r3.Add(p1, r3.Scale(s, d1))
	c2 := r3.Add(p2, r3.Scale(t, d2))
	return r3.Norm(r3.Sub(c1, c2))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
