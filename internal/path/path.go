// Package path builds and advances jerk-limited profiles of the trajectory
// progress parameter. A Path is either the short-term continuation the shield
// proposes each cycle or the braking maneuver it keeps as fallback.
package path

import (
	"fmt"
	"math"
)

// A phase is an interval of constant jerk. End is the phase end time measured
// from the start of the path.
type phase struct {
	End  float64
	Jerk float64
}

// Path is a piecewise constant-jerk profile of the path parameter. Pos, Vel
// and Acc are the current state of the profile; Advance integrates them along
// the phase schedule. A Path is dynamically feasible with respect to the
// bounds it was planned under by construction.
type Path struct {
	Pos float64 // progress s, in nominal seconds
	Vel float64 // path velocity ds, fraction of nominal speed
	Acc float64 // path acceleration dds

	phases  [3]phase
	elapsed float64
}

// TotalTime returns the duration of the whole profile.
func (p *Path) TotalTime() float64 { return p.phases[2].End }

// Done reports whether the profile has been fully consumed.
func (p *Path) Done() bool { return p.elapsed >= p.phases[2].End }

// jerkAt returns the planned jerk at path-local time t.
func (p *Path) jerkAt(t float64) float64 {
	for _, ph := range p.phases {
		if t < ph.End {
			return ph.Jerk
		}
	}
	return 0
}

// Advance integrates the profile state forward by dt, splitting the step at
// phase boundaries so the piecewise-constant jerk integration stays exact.
// Velocity is clamped at 0: a braking profile must not reverse progress.
func (p *Path) Advance(dt float64) {
	remaining := dt
	for remaining > 1e-12 {
		step := remaining
		t := p.elapsed
		for _, ph := range p.phases {
			if t < ph.End && ph.End-t < step {
				step = ph.End - t
				break
			}
		}
		j := p.jerkAt(t)
		p.Pos += p.Vel*step + 0.5*p.Acc*step*step + j*step*step*step/6
		p.Vel += p.Acc*step + 0.5*j*step*step
		p.Acc += j * step
		p.elapsed += step
		remaining -= step
	}
	if p.elapsed >= p.phases[2].End {
		// Past the profile end the target state holds exactly; snap away
		// the accumulated floating point residue.
		p.Acc = 0
	}
	if p.Vel < 0 {
		p.Vel = 0
		p.Acc = 0
	}
}

// FinalState returns the state at the end of the profile without advancing it.
func (p *Path) FinalState() (pos, vel, acc float64) {
	cp := *p
	cp.Advance(cp.phases[2].End - cp.elapsed)
	return cp.Pos, cp.Vel, cp.Acc
}

// StateAt returns the state dt seconds ahead without advancing the path.
func (p *Path) StateAt(dt float64) (pos, vel, acc float64) {
	cp := *p
	cp.Advance(dt)
	return cp.Pos, cp.Vel, cp.Acc
}

func (p *Path) String() string {
	return fmt.Sprintf("path(s=%.4f ds=%.4f dds=%.4f T=%.4f)", p.Pos, p.Vel, p.Acc, p.TotalTime())
}

// planEps tolerates floating point noise in boundary-condition checks.
const planEps = 1e-9

// ErrInfeasible is returned when no bounded-jerk profile satisfies the
// boundary conditions, e.g. the boundary acceleration already exceeds the
// allowed maximum. Callers keep the previously committed failsafe path.
var ErrInfeasible = fmt.Errorf("path: no feasible jerk-limited profile")

// Plan builds the minimum-time jerk-limited profile from the boundary state
// (pos, vel, acc) to the target velocity ve with zero end acceleration,
// honoring aMax and jMax.
//
// The profile has at most three phases: ramp the acceleration to a peak value
// aPk, hold it, ramp it back to zero. Whether aPk is positive or negative is
// decided by comparing ve with the velocity reached by ramping the boundary
// acceleration straight to zero; the peak is then solved in closed form and
// clipped to ±aMax, with the hold phase absorbing the remaining velocity
// change.
func Plan(pos, vel, acc, ve, aMax, jMax float64) (Path, error) {
	if aMax <= 0 || jMax <= 0 {
		return Path{}, fmt.Errorf("%w: non-positive bounds a_max=%g j_max=%g", ErrInfeasible, aMax, jMax)
	}
	if math.Abs(acc) > aMax+planEps {
		return Path{}, fmt.Errorf("%w: boundary acceleration %g exceeds a_max %g", ErrInfeasible, acc, aMax)
	}

	p := Path{Pos: pos, Vel: vel, Acc: acc}

	// Velocity reached if the boundary acceleration is ramped directly to
	// zero at full jerk. ve above it means the peak acceleration must be
	// positive, below it negative.
	vBar := vel + acc*math.Abs(acc)/(2*jMax)

	dir := 1.0
	dv := ve - vel
	if ve < vBar {
		dir = -1.0
		dv = -dv
	}

	// Solve the no-hold peak: dir·(2·aPk² − acc²)/(2·jMax) = dv.
	// dv is measured so the radicand is non-negative by the vBar branch.
	radicand := jMax*dv + acc*acc/2
	if radicand < 0 {
		radicand = 0
	}
	aPk := dir * math.Sqrt(radicand)

	var t1, t2, t3 float64
	if math.Abs(aPk) <= aMax {
		t1 = math.Abs(aPk-acc) / jMax
		t2 = 0
		t3 = math.Abs(aPk) / jMax
	} else {
		aPk = dir * aMax
		t1 = math.Abs(aPk-acc) / jMax
		t3 = math.Abs(aPk) / jMax
		j1 := sign(aPk-acc) * jMax
		dv1 := acc*t1 + 0.5*j1*t1*t1
		dv3 := aPk*t3 - 0.5*sign(aPk)*jMax*t3*t3
		t2 = (ve - vel - dv1 - dv3) / aPk
		if t2 < -planEps {
			return Path{}, fmt.Errorf("%w: inconsistent hold phase %g", ErrInfeasible, t2)
		}
		if t2 < 0 {
			t2 = 0
		}
	}

	j1 := sign(aPk-acc) * jMax
	if t1 < planEps {
		j1 = 0
		t1 = 0
	}
	j3 := -sign(aPk) * jMax
	if t3 < planEps {
		j3 = 0
		t3 = 0
	}

	p.phases[0] = phase{End: t1, Jerk: j1}
	p.phases[1] = phase{End: t1 + t2, Jerk: 0}
	p.phases[2] = phase{End: t1 + t2 + t3, Jerk: j3}
	return p, nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
