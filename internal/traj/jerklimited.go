package traj

import (
	"fmt"
	"math"

	"github.com/banshee-data/motionshield/internal/motion"
	"github.com/banshee-data/motionshield/internal/path"
)

// JerkLimitedGenerator is the built-in trajectory oracle. Per joint it plans
// a three-stage jerk-limited profile: brake the current velocity to rest,
// execute a rest-to-rest S-curve covering the remaining distance, then ramp
// to the goal velocity. Joints run their own time-optimal profiles and hold
// their final state until the slowest joint finishes; full time
// synchronization is the business of a real solver behind the Generator
// interface.
type JerkLimitedGenerator struct {
	// SampleTime is the spacing of the emitted trajectory samples, seconds.
	SampleTime float64
	// WindowK is the stop horizon in samples for the trajectory's
	// velocity/acceleration window aggregates.
	WindowK int
}

// stage is one jerk-limited profile piece in a mirrored frame: dir maps the
// mirrored coordinates back to joint space, so profiles always run at
// non-negative velocity internally.
type stage struct {
	p   path.Path
	dir float64
	dur float64
}

func (s stage) stateAt(t float64) (pos, vel, acc float64) {
	p, v, a := s.p.StateAt(t)
	return s.dir * p, s.dir * v, s.dir * a
}

// jointProfile is an ordered sequence of stages for a single joint.
type jointProfile struct {
	stages []stage
	total  float64
}

func (jp *jointProfile) append(st stage) {
	jp.stages = append(jp.stages, st)
	jp.total += st.dur
}

// stateAt samples the profile at absolute time t. Past the final stage the
// last stage keeps cruising (velocity 0 for a stop goal, goal velocity
// otherwise).
func (jp *jointProfile) stateAt(t float64) (pos, vel, acc float64) {
	for i, st := range jp.stages {
		if t <= st.dur || i == len(jp.stages)-1 {
			return st.stateAt(t)
		}
		t -= st.dur
	}
	return 0, 0, 0
}

const velEps = 1e-9

// Generate builds the sampled trajectory. The start motion's acceleration
// must already be within limits (the shield gates replanning on that); a
// violated bound surfaces as an ErrGenerate-wrapped error.
func (g *JerkLimitedGenerator) Generate(start, goal motion.Motion, limits Limits) (*motion.LongTermTrajectory, error) {
	nb := start.NbJoints()
	if goal.NbJoints() != nb {
		return nil, fmt.Errorf("%w: start has %d joints, goal has %d", ErrGenerate, nb, goal.NbJoints())
	}
	if err := limits.Validate(nb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerate, err)
	}
	if g.SampleTime <= 0 {
		return nil, fmt.Errorf("%w: non-positive sample time %g", ErrGenerate, g.SampleTime)
	}

	profiles := make([]jointProfile, nb)
	total := 0.0
	for j := 0; j < nb; j++ {
		jp, err := planJoint(start.Q[j], start.DQ[j], start.DDQ[j], goal.Q[j], goal.DQ[j],
			limits.VMax[j], limits.AMax[j], limits.JMax[j])
		if err != nil {
			return nil, fmt.Errorf("%w: joint %d: %v", ErrGenerate, j, err)
		}
		profiles[j] = jp
		if jp.total > total {
			total = jp.total
		}
	}

	n := int(math.Ceil(total/g.SampleTime)) + 1
	if n < 2 {
		n = 2
	}
	samples := make([]motion.Motion, n)
	for i := 0; i < n; i++ {
		t := float64(i) * g.SampleTime
		m := motion.New(nb)
		m.Time = t
		for j := 0; j < nb; j++ {
			m.Q[j], m.DQ[j], m.DDQ[j] = profiles[j].stateAt(t)
		}
		m.S = t
		m.DS = 1
		samples[i] = m
	}
	return motion.NewLongTermTrajectory(samples, g.SampleTime, g.WindowK)
}

// planJoint builds the stage sequence for one joint.
func planJoint(q0, v0, a0, qg, vg, vMax, aMax, jMax float64) (jointProfile, error) {
	var jp jointProfile
	pos := q0

	// Stage 1: bring the joint to rest from its current velocity and
	// acceleration. Skipped when already (numerically) at rest.
	if math.Abs(v0) > velEps || math.Abs(a0) > velEps {
		dir := sign(v0)
		if math.Abs(v0) <= velEps {
			dir = sign(a0)
		}
		p, err := path.Plan(pos*dir, v0*dir, a0*dir, 0, aMax, jMax)
		if err != nil {
			return jp, err
		}
		st := stage{p: p, dir: dir, dur: p.TotalTime()}
		jp.append(st)
		pos, _, _ = st.stateAt(st.dur)
	}

	// Stage 2: rest-to-rest S-curve over the remaining distance.
	dist := qg - pos
	if math.Abs(dist) > velEps {
		dir := sign(dist)
		up, down, err := restToRest(pos*dir, math.Abs(dist), vMax, aMax, jMax)
		if err != nil {
			return jp, err
		}
		jp.append(stage{p: up.p, dir: dir, dur: up.dur})
		jp.append(stage{p: down.p, dir: dir, dur: down.dur})
		pos = qg
	}

	// Stage 3: ramp to the goal velocity. For a stop goal this is a no-op;
	// otherwise the trajectory rolls through the goal position at vg.
	if math.Abs(vg) > velEps {
		dir := sign(vg)
		p, err := path.Plan(pos*dir, 0, 0, math.Abs(vg), aMax, jMax)
		if err != nil {
			return jp, err
		}
		jp.append(stage{p: p, dir: dir, dur: p.TotalTime()})
	}

	if len(jp.stages) == 0 {
		// Already at goal and at rest: a single zero-length hold.
		p, err := path.Plan(pos, 0, 0, 0, aMax, jMax)
		if err != nil {
			return jp, err
		}
		jp.append(stage{p: p, dir: 1, dur: 0})
	}
	return jp, nil
}

// restToRest builds a symmetric S-curve covering dist ≥ 0 from standstill to
// standstill: ramp to a peak velocity, cruise, ramp back down. The peak is
// vMax when the distance allows, otherwise solved in closed form. The result
// is two stages: the up-ramp (whose duration includes the cruise — a Path
// holds its final velocity past the profile end) and the down-ramp planned
// from the cruise exit state.
func restToRest(pos, dist, vMax, aMax, jMax float64) (up, down stage, err error) {
	// Ramp time from 0 to v at full jerk/acceleration; ramp distance is
	// v·tRamp/2 because the velocity profile of a ramp is antisymmetric.
	rampTime := func(v float64) float64 {
		if v >= aMax*aMax/jMax {
			return v/aMax + aMax/jMax
		}
		return 2 * math.Sqrt(v/jMax)
	}

	vPk := vMax
	if vPk*rampTime(vPk) > dist {
		// No cruise phase fits: shrink the peak. Try the trapezoidal-
		// acceleration case first, fall back to the triangular one.
		if solved := (-aMax*aMax/jMax + math.Sqrt(math.Pow(aMax*aMax/jMax, 2)+4*dist*aMax)) / 2; solved >= aMax*aMax/jMax {
			vPk = solved
		} else {
			vPk = math.Cbrt(dist * dist * jMax / 4)
		}
	}

	upPath, err := path.Plan(pos, 0, 0, vPk, aMax, jMax)
	if err != nil {
		return stage{}, stage{}, err
	}
	tUp := upPath.TotalTime()
	distUp := vPk * tUp / 2
	cruise := 0.0
	if vPk > velEps {
		cruise = (dist - 2*distUp) / vPk
		if cruise < 0 {
			cruise = 0
		}
	}

	endPos, endVel, _ := upPath.StateAt(tUp + cruise)
	downPath, err := path.Plan(endPos, endVel, 0, 0, aMax, jMax)
	if err != nil {
		return stage{}, stage{}, err
	}
	up = stage{p: upPath, dur: tUp + cruise}
	down = stage{p: downPath, dur: downPath.TotalTime()}
	return up, down, nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
