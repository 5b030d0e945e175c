package shield

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionshield/internal/motion"
	"github.com/banshee-data/motionshield/internal/publish"
	"github.com/banshee-data/motionshield/internal/reach"
	"github.com/banshee-data/motionshield/internal/traj"
	"github.com/banshee-data/motionshield/internal/verify"
)

const testDT = 0.01

func testConfig() Config {
	return Config{
		ActivateShield: true,
		NbJoints:       2,
		SampleTime:     testDT,
		TBuff:          0.02,
		MaxSStop:       5.0,
		VMaxAllowed:    []float64{1, 1},
		AMaxAllowed:    []float64{10, 10},
		JMaxAllowed:    []float64{400, 400},
		AMaxLTT:        []float64{2, 2},
		JMaxLTT:        []float64{50, 50},
	}
}

// standstillLTT holds position q at rest; the window aggregates are disabled
// so the maneuver derating falls back to the hard velocity limits.
func standstillLTT(t *testing.T, q []float64) *motion.LongTermTrajectory {
	t.Helper()
	zero := make([]float64, len(q))
	samples := make([]motion.Motion, 3)
	for i := range samples {
		m, err := motion.NewFromState(float64(i)*testDT, q, zero, zero)
		require.NoError(t, err)
		samples[i] = m
	}
	ltt, err := motion.NewLongTermTrajectory(samples, testDT, 0)
	require.NoError(t, err)
	return ltt
}

type fixture struct {
	shield *SafetyShield
	human  *reach.StaticHumanReach
	pub    *publish.ChanPublisher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	rr, err := reach.NewRobotReach(r3.Vec{}, []float64{0.5, 0.5}, []float64{0.05, 0.05})
	require.NoError(t, err)
	human := reach.NewStaticHumanReach(
		[]reach.BodySegment{{A: 0, B: 1, Radius: 0.1}}, 1.0, 0)
	gen := &traj.JerkLimitedGenerator{SampleTime: testDT, WindowK: 25}
	pub := publish.NewChanPublisher(4096)

	sh, err := New(cfg, standstillLTT(t, []float64{0, 0}),
		rr, human, verify.Verify{MinDist: 0.05}, gen, pub)
	require.NoError(t, err)
	return &fixture{shield: sh, human: human, pub: pub}
}

// The robot arm at q=(0,0) spans (0,0,0)..(1,0,0).
func (f *fixture) humanClose() {
	f.human.Update([]r3.Vec{{X: 0.5, Y: 0, Z: -0.2}, {X: 0.5, Y: 0, Z: 0.5}})
}

func (f *fixture) humanFar() {
	f.human.Update([]r3.Vec{{X: 10, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 1}})
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	initial := standstillLTT(t, []float64{0, 0})
	rr, err := reach.NewRobotReach(r3.Vec{}, []float64{0.5, 0.5}, []float64{0.05, 0.05})
	require.NoError(t, err)
	human := reach.NewStaticHumanReach(nil, 1.0, 0)
	gen := &traj.JerkLimitedGenerator{SampleTime: testDT}
	pub := publish.NewChanPublisher(1)
	ver := verify.Verify{MinDist: 0.05}

	t.Run("nil trajectory", func(t *testing.T) {
		_, err := New(cfg, nil, rr, human, ver, gen, pub)
		assert.ErrorIs(t, err, ErrConfig)
	})
	t.Run("nil generator", func(t *testing.T) {
		_, err := New(cfg, initial, rr, human, ver, nil, pub)
		assert.ErrorIs(t, err, ErrConfig)
	})
	t.Run("nil publisher", func(t *testing.T) {
		_, err := New(cfg, initial, rr, human, ver, gen, nil)
		assert.ErrorIs(t, err, ErrConfig)
	})
	t.Run("active shield without verifier", func(t *testing.T) {
		_, err := New(cfg, initial, rr, human, nil, gen, pub)
		assert.ErrorIs(t, err, ErrConfig)
	})
	t.Run("joint count mismatch", func(t *testing.T) {
		_, err := New(cfg, standstillLTT(t, []float64{0, 0, 0}), rr, human, ver, gen, pub)
		assert.ErrorIs(t, err, ErrConfig)
	})
	t.Run("bad slice length", func(t *testing.T) {
		bad := testConfig()
		bad.VMaxAllowed = []float64{1}
		_, err := New(bad, initial, rr, human, ver, gen, pub)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestSubmitGoalRejectsOutOfBounds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.humanFar()
	before := f.shield.Trajectory().ID()

	_, err := f.shield.SubmitGoal([]float64{0.5, 0.5}, []float64{2.0, 0})
	assert.ErrorIs(t, err, ErrGoalRejected, "goal velocity beyond v_max")

	_, err = f.shield.SubmitGoal([]float64{3.2, 0}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrGoalRejected, "goal position beyond joint envelope")

	_, err = f.shield.SubmitGoal([]float64{0.5}, []float64{0})
	assert.ErrorIs(t, err, ErrGoalRejected, "wrong joint count")

	res := f.shield.Step(time.Now())
	assert.Equal(t, before, res.TrajectoryID, "rejected goals never reach the cycle")
	assert.False(t, res.LTTCommitted)
}

func TestUnsafeEmitsFailsafe(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.humanClose()

	res := f.shield.Step(time.Now())
	assert.False(t, res.Safe)
	assert.Equal(t, StateExecutingFailsafe, res.State)
	assert.EqualValues(t, 1, f.shield.FailsafeCycles())
	assert.InDelta(t, 0.0, res.PathDS, 1e-12, "failsafe from standstill stays at rest")

	published := <-f.pub.Motions()
	for j := 0; j < 2; j++ {
		assert.InDelta(t, 0.0, published.DQ[j], 1e-12)
	}
}

func TestMissingHumanMeasurementIsUnsafe(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	// No Update call: the human model has nothing to bound.
	res := f.shield.Step(time.Now())
	assert.False(t, res.Safe)
	assert.Equal(t, StateExecutingFailsafe, res.State)
}

func TestRecoveryAfterClear(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.humanClose()
	res := f.shield.Step(time.Now())
	require.False(t, res.Safe)

	f.humanFar()
	sawRecovering := false
	lastDS := res.PathDS
	for i := 0; i < 200; i++ {
		res = f.shield.Step(time.Now())
		require.True(t, res.Safe, "cycle %d unsafe with the human far away", res.Cycle)
		require.GreaterOrEqual(t, res.PathDS, lastDS, "speed fraction dips during recovery")
		lastDS = res.PathDS
		if res.State == StateRecovering {
			sawRecovering = true
		}
		if res.State == StateNormal {
			break
		}
	}
	assert.True(t, sawRecovering, "ramp back to nominal speed takes more than one cycle")
	assert.Equal(t, StateNormal, res.State)
	assert.InDelta(t, 1.0, res.PathDS, 1e-9)
}

func TestGoalCommitAndTracking(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.humanFar()
	before := f.shield.Trajectory().ID()

	goalQ := []float64{0.5, 0.3}
	_, err := f.shield.SubmitGoal(goalQ, []float64{0, 0})
	require.NoError(t, err)

	res := f.shield.Step(time.Now())
	require.True(t, res.Safe)
	assert.True(t, res.LTTCommitted, "verified candidate commits in the same cycle")
	assert.Equal(t, StateReplanning, res.State)
	assert.NotEqual(t, before, res.TrajectoryID)

	dur := f.shield.Trajectory().Duration()
	lastS := res.PathS
	for i := 0; i < int(dur/testDT)+50; i++ {
		res = f.shield.Step(time.Now())
		require.True(t, res.Safe)
		require.GreaterOrEqual(t, res.PathS, lastS, "progress regressed at cycle %d", res.Cycle)
		lastS = res.PathS
		if res.PathS >= dur {
			break
		}
	}
	require.GreaterOrEqual(t, res.PathS, dur, "trajectory never finished")

	got := f.shield.LastMotion()
	for j := range goalQ {
		assert.InDelta(t, goalQ[j], got.Q[j], 1e-3, "joint %d settles at the goal", j)
		assert.InDelta(t, 0.0, got.DQ[j], 1e-3)
	}
	assert.EqualValues(t, 0, f.shield.FailsafeCycles())
}

func TestUnsafeCandidateNotCommitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.humanClose()
	before := f.shield.Trajectory().ID()

	_, err := f.shield.SubmitGoal([]float64{0.5, 0.3}, []float64{0, 0})
	require.NoError(t, err)

	res := f.shield.Step(time.Now())
	assert.False(t, res.Safe)
	assert.False(t, res.LTTCommitted, "unverified candidate must not commit")
	assert.Equal(t, before, res.TrajectoryID)

	// The goal survives the discarded candidate and commits once clear.
	f.humanFar()
	res = f.shield.Step(time.Now())
	require.True(t, res.Safe)
	assert.True(t, res.LTTCommitted)
	assert.NotEqual(t, before, res.TrajectoryID)
}

func TestNewestGoalWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.humanFar()

	_, err := f.shield.SubmitGoal([]float64{0.8, -0.2}, []float64{0, 0})
	require.NoError(t, err)
	_, err = f.shield.SubmitGoal([]float64{0.2, 0.4}, []float64{0, 0})
	require.NoError(t, err)

	res := f.shield.Step(time.Now())
	require.True(t, res.LTTCommitted)

	goal := f.shield.Trajectory().Goal()
	assert.InDelta(t, 0.2, goal.Q[0], 1e-6)
	assert.InDelta(t, 0.4, goal.Q[1], 1e-6)
}

func TestBypassModeForwardsUnconditionally(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ActivateShield = false
	gen := &traj.JerkLimitedGenerator{SampleTime: testDT, WindowK: 25}
	pub := publish.NewChanPublisher(4096)

	sh, err := New(cfg, standstillLTT(t, []float64{0, 0}), nil, nil, nil, gen, pub)
	require.NoError(t, err)

	_, err = sh.SubmitGoal([]float64{0.3, 0.1}, []float64{0, 0})
	require.NoError(t, err)

	res := sh.Step(time.Now())
	assert.True(t, res.Safe, "bypass mode never brakes")
	assert.True(t, res.LTTCommitted)
	assert.EqualValues(t, 0, sh.FailsafeCycles())
}

func TestDeadlineMissReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.humanFar()

	res := f.shield.Step(time.Now().Add(-time.Second))
	assert.True(t, res.DeadlineMissed)
	assert.EqualValues(t, 1, f.shield.DeadlineMisses())
}
