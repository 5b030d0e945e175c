package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampTrajectory builds a 1-joint trajectory with q(t)=t², dq(t)=2t, ddq=2
// sampled at dt, which makes the interpolation result easy to check in
// closed form.
func rampTrajectory(t *testing.T, n int, dt float64, windowK int) *LongTermTrajectory {
	t.Helper()
	samples := make([]Motion, n)
	for i := range samples {
		ts := float64(i) * dt
		m, err := NewFromState(ts, []float64{ts * ts}, []float64{2 * ts}, []float64{2})
		require.NoError(t, err)
		samples[i] = m
	}
	ltt, err := NewLongTermTrajectory(samples, dt, windowK)
	require.NoError(t, err)
	return ltt
}

func TestInterpolateGridPointsExact(t *testing.T) {
	t.Parallel()

	dt := 0.004
	ltt := rampTrajectory(t, 50, dt, 0)

	// At every exact grid point with ds=1, dds=0 the stored sample must be
	// reproduced bit-for-bit: no interpolation drift is acceptable here.
	for i := 0; i < ltt.Len(); i++ {
		s := float64(i) * dt
		got := ltt.Interpolate(s, 1, 0)
		want := ltt.Sample(i)
		assert.Equal(t, want.Q[0], got.Q[0], "position at grid point %d", i)
		assert.Equal(t, want.DQ[0], got.DQ[0], "velocity at grid point %d", i)
		assert.Equal(t, want.DDQ[0], got.DDQ[0], "acceleration at grid point %d", i)
	}
}

func TestInterpolateChainRule(t *testing.T) {
	t.Parallel()

	dt := 0.01
	ltt := rampTrajectory(t, 100, dt, 0)

	s, ds, dds := 0.123, 0.5, -0.2
	got := ltt.Interpolate(s, ds, dds)

	// Stored derivatives interpolate linearly between samples; the scaled
	// outputs follow the chain rule exactly.
	idx := math.Floor(s / dt)
	frac := s/dt - idx
	lo, hi := ltt.Sample(int(idx)), ltt.Sample(int(idx)+1)
	vHat := lo.DQ[0] + frac*(hi.DQ[0]-lo.DQ[0])
	aHat := lo.DDQ[0] + frac*(hi.DDQ[0]-lo.DDQ[0])

	assert.InDelta(t, ds*vHat, got.DQ[0], 1e-12)
	assert.InDelta(t, dds*vHat+ds*ds*aHat, got.DDQ[0], 1e-12)
	assert.Equal(t, s, got.S)
	assert.Equal(t, ds, got.DS)
	assert.Equal(t, dds, got.DDS)
}

func TestInterpolateMatchesClosedForm(t *testing.T) {
	t.Parallel()

	dt := 0.002
	ltt := rampTrajectory(t, 200, dt, 0)

	// Off-grid positions should track the underlying q(t)=t² to within the
	// linear-interpolation error bound (dt²/4 · max|q''|).
	for _, s := range []float64{0.0013, 0.0507, 0.1999, 0.3331} {
		got := ltt.Interpolate(s, 1, 0)
		assert.InDelta(t, s*s, got.Q[0], dt*dt/2)
		assert.InDelta(t, 2*s, got.DQ[0], 1e-9)
	}
}

func TestInterpolateOutOfRangePanics(t *testing.T) {
	t.Parallel()

	ltt := rampTrajectory(t, 10, 0.1, 0)

	assert.Panics(t, func() { ltt.Interpolate(-0.5, 1, 0) })
	assert.Panics(t, func() { ltt.Interpolate(ltt.Duration()+0.1, 1, 0) })
	assert.NotPanics(t, func() { ltt.Interpolate(ltt.Duration(), 1, 0) })
}

func TestWindowMaxima(t *testing.T) {
	t.Parallel()

	dt := 0.1
	samples := make([]Motion, 5)
	vels := []float64{1, 5, 2, 3, 0}
	for i := range samples {
		m, err := NewFromState(float64(i)*dt, []float64{0}, []float64{vels[i]}, []float64{-vels[i]})
		require.NoError(t, err)
		samples[i] = m
	}
	ltt, err := NewLongTermTrajectory(samples, dt, 2)
	require.NoError(t, err)

	assert.Equal(t, 5.0, ltt.MaxVelocityWindow(0)[0], "window [0..2]")
	assert.Equal(t, 5.0, ltt.MaxVelocityWindow(1)[0], "window [1..3]")
	assert.Equal(t, 3.0, ltt.MaxVelocityWindow(2)[0], "window [2..4]")
	assert.Equal(t, 3.0, ltt.MaxAccelerationWindow(3)[0], "window clipped at the end")
}

func TestNewLongTermTrajectoryValidation(t *testing.T) {
	t.Parallel()

	_, err := NewLongTermTrajectory(nil, 0.1, 0)
	assert.Error(t, err)

	m1, err := NewFromState(0, []float64{0}, []float64{0}, []float64{0})
	require.NoError(t, err)
	_, err = NewLongTermTrajectory([]Motion{m1}, 0, 0)
	assert.Error(t, err, "sample time must be positive")

	m2 := New(3)
	_, err = NewLongTermTrajectory([]Motion{m1, m2}, 0.1, 0)
	assert.Error(t, err, "joint count must be uniform")

	_, err = NewLongTermTrajectory([]Motion{m1}, 0.1, 0)
	assert.NoError(t, err)
}
