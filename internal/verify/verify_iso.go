package verify

import (
	"github.com/banshee-data/motionshield/internal/reach"
)

// VerifyISO applies the speed-and-separation-monitoring criterion: the
// required clearance between a robot capsule and a human capsule grows with
// the worst-case closing speed of the pair. A slow approach needs less
// separation to remain stoppable in time, but the margin never drops below
// MinDist.
//
// The per-capsule speed bounds are worst-case values fixed at construction;
// the closing speed of a pair is their sum, which over-approximates any
// actual relative velocity.
type VerifyISO struct {
	// MinDist is the floor on the required clearance, metres.
	MinDist float64
	// ReactionTime covers sensing and decision latency, seconds.
	ReactionTime float64
	// BrakeTime bounds the robot's stopping time, seconds.
	BrakeTime float64

	// RobotSpeed[i] bounds the surface speed of robot capsule i, m/s.
	RobotSpeed []float64
	// HumanSpeed[j] bounds the speed of human capsule j, m/s.
	HumanSpeed []float64
}

// requiredDist is the protective separation for a closing speed. Monotone
// non-decreasing in vClose and floored at MinDist.
func (v VerifyISO) requiredDist(vClose float64) float64 {
	d := vClose * (v.ReactionTime + v.BrakeTime)
	if d < v.MinDist {
		return v.MinDist
	}
	return d
}

// speedBound returns bounds[i], falling back to the largest configured bound
// when the capsule set is longer than the configured speeds. Falling back to
// the maximum keeps the check conservative instead of silently optimistic.
func speedBound(bounds []float64, i int) float64 {
	if i < len(bounds) {
		return bounds[i]
	}
	max := 0.0
	for _, b := range bounds {
		if b > max {
			max = b
		}
	}
	return max
}

// IsSafe checks every pair against its closing-speed margin.
func (v VerifyISO) IsSafe(robot, human []reach.Capsule) bool {
	for i, rc := range robot {
		for j, hc := range human {
			vClose := speedBound(v.RobotSpeed, i) + speedBound(v.HumanSpeed, j)
			if reach.Dist(rc, hc) < v.requiredDist(vClose) {
				return false
			}
		}
	}
	return true
}
