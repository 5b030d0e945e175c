package shield

import (
	"math"
	"time"

	"github.com/banshee-data/motionshield/internal/monitoring"
	"github.com/banshee-data/motionshield/internal/motion"
	"github.com/banshee-data/motionshield/internal/path"
	"github.com/banshee-data/motionshield/internal/traj"
)

// Step runs one control cycle. It is driven synchronously by the external
// real-time clock and must complete within the sample period; an overrun is
// reported in the result, and the caller is expected to treat it like a
// failed verification for that cycle.
func (s *SafetyShield) Step(cycleBegin time.Time) CycleResult {
	s.cycle++
	res := CycleResult{Cycle: s.cycle}

	// Consume the goal mailbox. A new submission preempts any in-flight,
	// not-yet-verified trajectory candidate: newest wins.
	s.mailbox.mu.Lock()
	if p := s.mailbox.pending; p != nil {
		s.goal = p
		s.mailbox.pending = nil
		s.newGoal = true
		s.pendingLTT = nil
		s.haveLastReplan = false
	}
	s.mailbox.mu.Unlock()

	cur := s.currentMotion()

	// Replanning: only from a state whose acceleration the trajectory
	// planner can continue from, and only when the start state moved since
	// the in-flight candidate was requested.
	replanRequested := false
	if s.newGoal && s.checkCurrentMotionForReplanning(cur) {
		reuse := s.pendingLTT != nil && s.haveLastReplan &&
			cur.HasSamePos(s.lastReplanStart, replanTol) &&
			cur.HasSameVel(s.lastReplanStart, replanTol)
		if !reuse {
			goalMotion, err := motion.NewFromState(0, s.goal.q, s.goal.dq, make([]float64, s.cfg.NbJoints))
			if err == nil {
				var cand *motion.LongTermTrajectory
				cand, err = s.generator.Generate(cur, goalMotion, s.lttLimits())
				if err == nil {
					s.pendingLTT = cand
					s.newLTTProcessed = false
					s.lastReplanStart = cur
					s.haveLastReplan = true
					replanRequested = true
				}
			}
			if err != nil {
				monitoring.Logf("shield: replanning toward goal %s failed: %v", s.goal.id, err)
			}
		}
	}

	// Candidate frame: a pending new trajectory starts at the current
	// joint state, so its frame origin maps the current motion to
	// (s=0, ds=1, dds=0) with velocity continuity by construction.
	frame := s.ltt
	start := s.curPath
	usePending := s.pendingLTT != nil
	if usePending {
		frame = s.pendingLTT
		start = path.Path{Pos: 0, Vel: 1, Acc: 0}
	}

	// The maneuver bounds are derated so this cycle's profile stays
	// continuous with the previously commanded velocities.
	aMan, jMan := path.BoundManoeuvreLimits(s.manoeuvreSpeeds(frame, start),
		s.cfg.AMaxLTT, s.cfg.JMaxLTT, s.cfg.AMaxAllowed, s.cfg.JMaxAllowed)

	// Potential path back to nominal speed, and the braking fallback from
	// the state one cycle into it. Both are always built: no motion is
	// committed without a verified fallback ready.
	pot, errPot := path.Plan(start.Pos, start.Vel, start.Acc, 1.0, aMan, jMan)
	var fs2 path.Path
	errFS := errPot
	if errPot == nil {
		adv := pot
		adv.Advance(s.cfg.SampleTime)
		fs2, errFS = path.Plan(adv.Pos, adv.Vel, adv.Acc, 0, aMan, jMan)
	}

	safe := s.verdict(frame, pot, fs2, errPot, errFS)

	if safe {
		if usePending {
			// The candidate's potential path has now verified safe, so
			// the swap is allowed. Committed wholesale at the cycle
			// boundary; readers never observe a half-updated trajectory.
			s.ltt = s.pendingLTT
			s.pendingLTT = nil
			s.newGoal = false
			s.goal = nil
			s.newLTTProcessed = true
			res.LTTCommitted = true
		}
		s.curPath = pot
		s.curPath.Advance(s.cfg.SampleTime)
		s.failsafePath = fs2
		s.recovery = s.curPath.Vel < 1-1e-9
	} else {
		if usePending {
			// An unverified candidate is never executed; drop it and let
			// the pending goal trigger a fresh request. The committed
			// trajectory and failsafe stay authoritative.
			s.pendingLTT = nil
		}
		s.failsafePath.Advance(s.cfg.SampleTime)
		s.curPath = s.failsafePath
		s.recovery = true
		s.failsafeCycles++
	}
	s.isSafe = safe

	s.clampProgress()
	next := s.ltt.Interpolate(s.curPath.Pos, clamp01(s.curPath.Vel), s.curPath.Acc)
	next.Time = float64(s.cycle) * s.cfg.SampleTime
	s.nextMotion = next

	if err := s.publisher.Publish(next); err != nil {
		monitoring.Logf("shield: publish failed: %v", err)
	}

	res.Motion = next
	res.Safe = safe
	res.PathS = s.curPath.Pos
	res.PathDS = s.curPath.Vel
	res.TrajectoryID = s.ltt.ID()
	switch {
	case !safe:
		res.State = StateExecutingFailsafe
	case replanRequested || res.LTTCommitted:
		res.State = StateReplanning
	case s.recovery:
		res.State = StateRecovering
	default:
		res.State = StateNormal
	}

	res.Elapsed = time.Since(cycleBegin)
	if res.Elapsed > time.Duration(s.cfg.SampleTime*float64(time.Second)) {
		s.deadlineMisses++
		res.DeadlineMissed = true
		monitoring.Logf("shield: cycle %d overran the sample period: %s", s.cycle, res.Elapsed)
	}
	return res
}

// verdict decides whether the potential path may be executed. Anything that
// prevents proving safety — planning infeasibility, an over-long stop,
// a reachability failure — counts as unsafe.
func (s *SafetyShield) verdict(frame *motion.LongTermTrajectory, pot, fs2 path.Path, errPot, errFS error) bool {
	if !s.cfg.ActivateShield {
		// Bypass mode forwards the potential motion unconditionally, as
		// long as one could be planned at all.
		return errPot == nil
	}
	if errPot != nil || errFS != nil {
		return false
	}
	if fs2.TotalTime() > s.cfg.MaxSStop {
		return false
	}

	motions := s.sampleHorizon(frame, pot, fs2)
	robotCaps, err := s.robotReach.Volumes(motions, s.cfg.SampleTime)
	if err != nil {
		// Safety cannot be proven without a bound; brake.
		monitoring.Logf("shield: robot reachability failed: %v", err)
		return false
	}
	humanCaps, err := s.humanReach.Volumes(s.cfg.TBuff + fs2.TotalTime())
	if err != nil {
		monitoring.Logf("shield: human reachability failed: %v", err)
		return false
	}
	return s.verifier.IsSafe(robotCaps, humanCaps)
}

// sampleHorizon collects the motions swept by executing the potential path
// for one cycle and then braking along the fallback, clamped to the frame's
// domain.
func (s *SafetyShield) sampleHorizon(frame *motion.LongTermTrajectory, pot, fs path.Path) []motion.Motion {
	dt := s.cfg.SampleTime
	var out []motion.Motion
	add := func(p path.Path) {
		sPos := p.Pos
		if sPos > frame.Duration() {
			sPos = frame.Duration()
		}
		out = append(out, frame.Interpolate(sPos, clamp01(p.Vel), p.Acc))
	}

	p := pot
	add(p)
	p.Advance(dt)
	add(p)

	q := fs
	limit := fs.TotalTime() + dt
	for t := 0.0; t <= limit; t += dt {
		q.Advance(dt)
		add(q)
		if q.Done() && q.Vel <= 1e-9 {
			break
		}
	}
	return out
}

// currentMotion interpolates the committed trajectory at the executed path
// state.
func (s *SafetyShield) currentMotion() motion.Motion {
	p := s.curPath
	sPos := p.Pos
	if sPos > s.ltt.Duration() {
		sPos = s.ltt.Duration()
	}
	m := s.ltt.Interpolate(sPos, clamp01(p.Vel), p.Acc)
	m.Time = float64(s.cycle-1) * s.cfg.SampleTime
	return m
}

// checkCurrentMotionForReplanning gates replanning on the current motion
// lying within the trajectory planner's own bounds: a braking or otherwise
// saturated state cannot serve as a continuity-preserving start boundary.
func (s *SafetyShield) checkCurrentMotionForReplanning(cur motion.Motion) bool {
	for i := 0; i < s.cfg.NbJoints; i++ {
		if math.Abs(cur.DQ[i]) > s.cfg.VMaxAllowed[i] {
			return false
		}
		if math.Abs(cur.DDQ[i]) > s.cfg.AMaxLTT[i] {
			return false
		}
	}
	return true
}

// manoeuvreSpeeds bounds, per joint, the nominal-frame speed the derating in
// BoundManoeuvreLimits divides by: the larger of the last commanded speed and
// the trajectory's windowed nominal maximum near the current progress. Using
// only the commanded speed would let a standing robot plan an unboundedly
// sharp ramp-up.
func (s *SafetyShield) manoeuvreSpeeds(frame *motion.LongTermTrajectory, start path.Path) []float64 {
	speeds := make([]float64, s.cfg.NbJoints)
	idx := int(start.Pos / frame.SampleTime())
	if idx >= frame.Len() {
		idx = frame.Len() - 1
	}
	window := frame.MaxVelocityWindow(idx)
	for i := 0; i < s.cfg.NbJoints; i++ {
		sp := math.Abs(s.nextMotion.DQ[i])
		if window != nil && window[i] > sp {
			sp = window[i]
		}
		if window == nil && s.cfg.VMaxAllowed[i] > sp {
			// No window aggregates on this trajectory; fall back to the
			// hard velocity limit, which is conservative.
			sp = s.cfg.VMaxAllowed[i]
		}
		speeds[i] = sp
	}
	return speeds
}

func (s *SafetyShield) lttLimits() traj.Limits {
	return traj.Limits{
		VMax: s.cfg.VMaxAllowed,
		AMax: s.cfg.AMaxLTT,
		JMax: s.cfg.JMaxLTT,
	}
}

// clampProgress keeps the executed progress inside the committed
// trajectory's domain; at the end of the trajectory the final sample holds.
func (s *SafetyShield) clampProgress() {
	if s.curPath.Pos > s.ltt.Duration() {
		s.curPath.Pos = s.ltt.Duration()
	}
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
