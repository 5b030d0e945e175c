// Package motion defines the joint-space motion sample and the long-term
// trajectory buffer the shield executes against.
package motion

import (
	"fmt"
	"math"
)

// Motion is a snapshot of joint-space state plus path-progress scalars.
// Per-joint slices always share the same length (the robot's DoF count).
// A Motion is a value: once produced it is never mutated, only re-sampled.
type Motion struct {
	// Time is seconds since shield start at which this motion applies.
	Time float64

	// Q, DQ, DDQ are per-joint position (rad), velocity (rad/s) and
	// acceleration (rad/s²).
	Q   []float64
	DQ  []float64
	DDQ []float64

	// S is progress along the nominal trajectory in nominal seconds.
	// DS is the fraction of nominal speed (0 = standstill, 1 = full speed),
	// DDS its time derivative.
	S   float64
	DS  float64
	DDS float64
}

// New returns a zeroed Motion for a robot with nbJoints joints.
func New(nbJoints int) Motion {
	return Motion{
		Q:   make([]float64, nbJoints),
		DQ:  make([]float64, nbJoints),
		DDQ: make([]float64, nbJoints),
	}
}

// NewFromState builds a Motion from explicit joint state. The slices are
// copied so the caller may reuse its buffers.
func NewFromState(t float64, q, dq, ddq []float64) (Motion, error) {
	if len(q) != len(dq) || len(q) != len(ddq) {
		return Motion{}, fmt.Errorf("motion: mismatched joint slice lengths %d/%d/%d",
			len(q), len(dq), len(ddq))
	}
	m := New(len(q))
	m.Time = t
	copy(m.Q, q)
	copy(m.DQ, dq)
	copy(m.DDQ, ddq)
	return m, nil
}

// NbJoints returns the degree-of-freedom count of the motion.
func (m Motion) NbJoints() int { return len(m.Q) }

// Clone returns a deep copy of the motion.
func (m Motion) Clone() Motion {
	c := m
	c.Q = append([]float64(nil), m.Q...)
	c.DQ = append([]float64(nil), m.DQ...)
	c.DDQ = append([]float64(nil), m.DDQ...)
	return c
}

// HasSamePos reports whether the joint positions of both motions agree
// within tol on every joint. Used to skip redundant replanning requests.
func (m Motion) HasSamePos(other Motion, tol float64) bool {
	if len(m.Q) != len(other.Q) {
		return false
	}
	for i := range m.Q {
		if math.Abs(m.Q[i]-other.Q[i]) > tol {
			return false
		}
	}
	return true
}

// HasSameVel is the velocity analogue of HasSamePos.
func (m Motion) HasSameVel(other Motion, tol float64) bool {
	if len(m.DQ) != len(other.DQ) {
		return false
	}
	for i := range m.DQ {
		if math.Abs(m.DQ[i]-other.DQ[i]) > tol {
			return false
		}
	}
	return true
}

// MaxSpeed returns the largest absolute joint velocity in the motion.
func (m Motion) MaxSpeed() float64 {
	var max float64
	for _, v := range m.DQ {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	return max
}
