package reach

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionshield/internal/motion"
)

// ErrModelMismatch reports that a reachability computation could not produce
// a bound, e.g. the motion's joint count does not match the link model. The
// shield treats this as "safety cannot be proven" and brakes.
var ErrModelMismatch = errors.New("reach: model does not match motion")

// RobotReach computes conservative capsules for every robot link along a
// sampled motion segment.
//
// The kinematic model is a serial chain: joint 0 yaws the whole arm about the
// base Z axis, the remaining joints pitch within the arm plane. Real
// deployments with a full DH parameterisation substitute their own forward
// kinematics; the sweeping and inflation logic is independent of it.
type RobotReach struct {
	base    r3.Vec
	lengths []float64 // link lengths, metres
	radii   []float64 // link thickness bound, metres
}

// NewRobotReach builds a robot reachability model. lengths and radii must
// both have one entry per joint.
func NewRobotReach(base r3.Vec, lengths, radii []float64) (*RobotReach, error) {
	if len(lengths) == 0 || len(lengths) != len(radii) {
		return nil, fmt.Errorf("reach: need matching link lengths and radii, got %d/%d",
			len(lengths), len(radii))
	}
	for i, l := range lengths {
		if l <= 0 || radii[i] <= 0 {
			return nil, fmt.Errorf("reach: non-positive link geometry at joint %d", i)
		}
	}
	return &RobotReach{
		base:    base,
		lengths: append([]float64(nil), lengths...),
		radii:   append([]float64(nil), radii...),
	}, nil
}

// NbJoints returns the joint count of the link model.
func (r *RobotReach) NbJoints() int { return len(r.lengths) }

// jointPoints runs forward kinematics for joint configuration q and returns
// the chain points, base first.
func (r *RobotReach) jointPoints(q []float64) []r3.Vec {
	pts := make([]r3.Vec, len(q)+1)
	pts[0] = r.base

	yaw := q[0]
	pitch := 0.0
	for i := 0; i < len(q); i++ {
		if i > 0 {
			pitch += q[i]
		}
		dir := r3.Vec{
			X: math.Cos(yaw) * math.Cos(pitch),
			Y: math.Sin(yaw) * math.Cos(pitch),
			Z: math.Sin(pitch),
		}
		pts[i+1] = r3.Add(pts[i], r3.Scale(r.lengths[i], dir))
	}
	return pts
}

// Volumes returns one conservative capsule per link enclosing every sampled
// configuration in motions plus the motion possible between samples.
//
// sampleDt is the time spacing of the supplied motions; each link capsule's
// radius is inflated by the distance its fastest point can cover inside half
// a sample interval, bounding positions the sampling never observed.
// False negatives are forbidden here; growing the capsules is always the
// safe direction.
func (r *RobotReach) Volumes(motions []motion.Motion, sampleDt float64) ([]Capsule, error) {
	if len(motions) == 0 {
		return nil, fmt.Errorf("%w: no motion samples", ErrModelMismatch)
	}
	nb := len(r.lengths)
	for _, m := range motions {
		if m.NbJoints() != nb {
			return nil, fmt.Errorf("%w: motion has %d joints, model has %d",
				ErrModelMismatch, m.NbJoints(), nb)
		}
	}

	// Per-joint speed bound over the segment, for between-sample inflation.
	velBound := make([]float64, nb)
	for _, m := range motions {
		for j := 0; j < nb; j++ {
			if v := math.Abs(m.DQ[j]); v > velBound[j] {
				velBound[j] = v
			}
		}
	}

	// Chain points for every sample.
	sampled := make([][]r3.Vec, len(motions))
	for i, m := range motions {
		sampled[i] = r.jointPoints(m.Q)
	}

	caps := make([]Capsule, nb)
	reachLen := 0.0
	for i := 0; i < nb; i++ {
		reachLen += r.lengths[i]

		// Core segment: the link at the first sample. Every sampled
		// endpoint is enclosed by inflating the radius with the largest
		// endpoint deviation from that segment (distance to a segment is
		// convex, so endpoint checks cover the whole link).
		p1 := sampled[0][i]
		p2 := sampled[0][i+1]
		dev := 0.0
		for _, pts := range sampled[1:] {
			if d := distPointSegment(pts[i], p1, p2); d > dev {
				dev = d
			}
			if d := distPointSegment(pts[i+1], p1, p2); d > dev {
				dev = d
			}
		}

		// Linear speed of any point on link i is bounded by the summed
		// angular rates times the reach length up to that link.
		linSpeed := 0.0
		for j := 0; j <= i; j++ {
			linSpeed += velBound[j] * reachLen
		}
		inflation := linSpeed * sampleDt / 2

		caps[i] = Capsule{P1: p1, P2: p2, Radius: r.radii[i] + dev + inflation}
	}
	return caps, nil
}
