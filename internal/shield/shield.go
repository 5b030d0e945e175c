// Package shield implements the per-cycle verification-and-replanning
// protocol that sits between the motion planner and the actuator. Every
// cycle it proves the proposed continuation collision-free against the human
// reachable set, or substitutes the pre-verified braking maneuver. The
// shield never commits an unverified motion.
package shield

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motionshield/internal/motion"
	"github.com/banshee-data/motionshield/internal/path"
	"github.com/banshee-data/motionshield/internal/publish"
	"github.com/banshee-data/motionshield/internal/reach"
	"github.com/banshee-data/motionshield/internal/traj"
	"github.com/banshee-data/motionshield/internal/verify"
)

// State is the logical state of the shield for one cycle.
type State string

const (
	StateNormal            State = "normal"
	StateReplanning        State = "replanning"
	StateExecutingFailsafe State = "executing_failsafe"
	StateRecovering        State = "recovering"
)

var (
	// ErrGoalRejected reports a submitted goal outside the configured
	// joint or velocity bounds. The committed trajectory is unchanged.
	ErrGoalRejected = errors.New("shield: goal rejected")
	// ErrConfig reports an unrecoverable construction error.
	ErrConfig = errors.New("shield: invalid configuration")
)

// maxQ is the absolute joint angle envelope accepted for goals, radians.
const maxQ = 3.1

// replanTol is the joint-space tolerance below which a replanning request is
// considered identical to the previous one and skipped.
const replanTol = 1e-3

// Config carries the construction parameters of the shield. The per-joint
// slices must all have NbJoints entries; mismatches abort construction.
type Config struct {
	// ActivateShield disables all verification when false: the potential
	// motion is forwarded unconditionally. Testing/disabled mode only.
	ActivateShield bool

	NbJoints   int
	SampleTime float64 // control cycle period, seconds

	// TBuff extends the human reachability horizon beyond the stop time.
	TBuff float64
	// MaxSStop is the maximum admissible stopping time of a failsafe
	// maneuver; a braking profile that would take longer is unsafe.
	MaxSStop float64

	// Hard per-joint limits for any commanded motion.
	VMaxAllowed []float64
	AMaxAllowed []float64
	JMaxAllowed []float64

	// Limits of the long-term trajectory's own segments, used for
	// replanning gates and maneuver derating.
	AMaxLTT []float64
	JMaxLTT []float64
}

func (c Config) validate() error {
	if c.NbJoints <= 0 {
		return fmt.Errorf("%w: nb_joints %d", ErrConfig, c.NbJoints)
	}
	if c.SampleTime <= 0 {
		return fmt.Errorf("%w: sample_time %g", ErrConfig, c.SampleTime)
	}
	if c.MaxSStop <= 0 {
		return fmt.Errorf("%w: max_s_stop %g", ErrConfig, c.MaxSStop)
	}
	for name, s := range map[string][]float64{
		"v_max_allowed": c.VMaxAllowed,
		"a_max_allowed": c.AMaxAllowed,
		"j_max_allowed": c.JMaxAllowed,
		"a_max_ltt":     c.AMaxLTT,
		"j_max_ltt":     c.JMaxLTT,
	} {
		if len(s) != c.NbJoints {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrConfig, name, len(s), c.NbJoints)
		}
	}
	return nil
}

// goalRequest is the single-slot mailbox payload for goal submission.
type goalRequest struct {
	id uuid.UUID
	q  []float64
	dq []float64
}

// CycleResult reports what one Step did.
type CycleResult struct {
	Cycle  uint64
	Motion motion.Motion
	Safe   bool
	State  State

	PathS  float64
	PathDS float64

	// LTTCommitted is true when a new long-term trajectory was swapped in
	// this cycle (always after its derived potential path verified safe).
	LTTCommitted bool
	TrajectoryID uuid.UUID

	// DeadlineMissed is true when the cycle overran the sample period. The
	// safety guarantee does not hold for such a cycle; callers treat it
	// like a failed verification.
	DeadlineMissed bool
	Elapsed        time.Duration
}

// SafetyShield owns the committed long-term trajectory and runs the per-cycle
// decision protocol. The collaborators are injected and externally owned;
// the shield never allocates or frees them.
type SafetyShield struct {
	cfg Config

	robotReach *reach.RobotReach
	humanReach reach.HumanReach
	verifier   verify.Verifier
	generator  traj.Generator
	publisher  publish.Publisher

	// Cross-cycle state. Everything else is recomputed each cycle.
	ltt          *motion.LongTermTrajectory
	curPath      path.Path // executed profile state: Pos=s, Vel=ds, Acc=dds
	failsafePath path.Path // committed verified braking fallback
	isSafe       bool
	recovery     bool
	nextMotion   motion.Motion

	pendingLTT      *motion.LongTermTrajectory
	newGoal         bool
	goal            *goalRequest
	newLTTProcessed bool
	lastReplanStart motion.Motion
	haveLastReplan  bool

	mailbox struct {
		mu      sync.Mutex
		pending *goalRequest
	}

	cycle          uint64
	deadlineMisses uint64
	failsafeCycles uint64
}

// New constructs a shield around an initial long-term trajectory. The shield
// starts at rest (ds=0) and unverified, so the first motions it issues are a
// standstill until verification passes.
func New(cfg Config, initial *motion.LongTermTrajectory,
	robotReach *reach.RobotReach, humanReach reach.HumanReach,
	verifier verify.Verifier, generator traj.Generator, publisher publish.Publisher) (*SafetyShield, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if initial == nil {
		return nil, fmt.Errorf("%w: nil initial trajectory", ErrConfig)
	}
	if initial.NbJoints() != cfg.NbJoints {
		return nil, fmt.Errorf("%w: trajectory has %d joints, config %d",
			ErrConfig, initial.NbJoints(), cfg.NbJoints)
	}
	if robotReach != nil && robotReach.NbJoints() != cfg.NbJoints {
		return nil, fmt.Errorf("%w: robot model has %d joints, config %d",
			ErrConfig, robotReach.NbJoints(), cfg.NbJoints)
	}
	if cfg.ActivateShield && (robotReach == nil || humanReach == nil || verifier == nil) {
		return nil, fmt.Errorf("%w: active shield needs reach and verify collaborators", ErrConfig)
	}
	if generator == nil {
		return nil, fmt.Errorf("%w: nil trajectory generator", ErrConfig)
	}
	if publisher == nil {
		return nil, fmt.Errorf("%w: nil publisher", ErrConfig)
	}

	s := &SafetyShield{
		cfg:        cfg,
		robotReach: robotReach,
		humanReach: humanReach,
		verifier:   verifier,
		generator:  generator,
		publisher:  publisher,
		ltt:        initial,
	}
	// At rest at the start of the trajectory, unverified.
	s.curPath = path.Path{}
	s.failsafePath = path.Path{}
	s.nextMotion = initial.Interpolate(0, 0, 0)
	return s, nil
}

// SubmitGoal requests a new long-term trajectory toward the given joint
// positions and velocities. Safe to call from any goroutine; the request is
// consumed at the start of the next cycle, newest submission wins. A goal
// outside the configured bounds returns ErrGoalRejected and changes nothing.
func (s *SafetyShield) SubmitGoal(q, dq []float64) (uuid.UUID, error) {
	if len(q) != s.cfg.NbJoints || len(dq) != s.cfg.NbJoints {
		return uuid.Nil, fmt.Errorf("%w: got %d/%d joints, want %d",
			ErrGoalRejected, len(q), len(dq), s.cfg.NbJoints)
	}
	for i := range q {
		if math.Abs(q[i]) > maxQ {
			return uuid.Nil, fmt.Errorf("%w: joint %d position %g exceeds ±%g",
				ErrGoalRejected, i, q[i], maxQ)
		}
		if math.Abs(dq[i]) > s.cfg.VMaxAllowed[i] {
			return uuid.Nil, fmt.Errorf("%w: joint %d velocity %g exceeds v_max %g",
				ErrGoalRejected, i, dq[i], s.cfg.VMaxAllowed[i])
		}
	}
	req := &goalRequest{
		id: uuid.New(),
		q:  append([]float64(nil), q...),
		dq: append([]float64(nil), dq...),
	}
	s.mailbox.mu.Lock()
	s.mailbox.pending = req // newest wins, preempting an unverified candidate
	s.mailbox.mu.Unlock()
	return req.id, nil
}

// Trajectory returns the committed long-term trajectory.
func (s *SafetyShield) Trajectory() *motion.LongTermTrajectory { return s.ltt }

// DeadlineMisses returns the number of cycles that overran the sample period.
func (s *SafetyShield) DeadlineMisses() uint64 { return s.deadlineMisses }

// FailsafeCycles returns the number of cycles resolved by the failsafe path.
func (s *SafetyShield) FailsafeCycles() uint64 { return s.failsafeCycles }

// LastMotion returns the most recently issued motion.
func (s *SafetyShield) LastMotion() motion.Motion { return s.nextMotion }
