// Package traj provides the trajectory-generation boundary: the oracle that
// turns boundary conditions into a sampled long-term trajectory. The shield
// only depends on the Generator interface; the built-in jerk-limited
// generator stands in for an external solver.
package traj

import (
	"errors"
	"fmt"

	"github.com/banshee-data/motionshield/internal/motion"
)

// Limits are the per-joint kinematic bounds a generated trajectory must
// honor. All slices have one entry per joint.
type Limits struct {
	VMax []float64 // rad/s
	AMax []float64 // rad/s²
	JMax []float64 // rad/s³
}

// Validate checks internal consistency against a joint count.
func (l Limits) Validate(nbJoints int) error {
	if len(l.VMax) != nbJoints || len(l.AMax) != nbJoints || len(l.JMax) != nbJoints {
		return fmt.Errorf("traj: limits sized %d/%d/%d, want %d joints",
			len(l.VMax), len(l.AMax), len(l.JMax), nbJoints)
	}
	for i := 0; i < nbJoints; i++ {
		if l.VMax[i] <= 0 || l.AMax[i] <= 0 || l.JMax[i] <= 0 {
			return fmt.Errorf("traj: non-positive limit for joint %d", i)
		}
	}
	return nil
}

// ErrGenerate is wrapped by all generation failures.
var ErrGenerate = errors.New("traj: trajectory generation failed")

// Generator is the oracle contract: compute a time-parametrized trajectory
// from the start boundary state to the goal boundary state, honoring the
// limits. A bounded-computation-time, synchronous call; infeasible boundary
// conditions return an error wrapping ErrGenerate rather than panicking.
type Generator interface {
	Generate(start, goal motion.Motion, limits Limits) (*motion.LongTermTrajectory, error)
}
