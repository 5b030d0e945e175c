package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motionshield/internal/store"
	"github.com/banshee-data/motionshield/internal/timeutil"
)

func TestControlLoopRunsCyclesOnTicks(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	recorder := store.NewRecorder(srv.db, 64)

	clk := timeutil.NewMockClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runControlLoop(ctx, clk, 10*time.Millisecond, srv.shield, srv, recorder)
		close(done)
	}()

	// Advance repeatedly: the first ticks may land before the loop has
	// registered its ticker with the mock clock.
	require.Eventually(t, func() bool {
		clk.Advance(10 * time.Millisecond)
		return srv.last.Load() != nil
	}, 2*time.Second, time.Millisecond, "control loop never ran a cycle")

	cancel()
	<-done
	recorder.Close()

	cycles, err := srv.db.Cycles(100)
	require.NoError(t, err)
	assert.NotEmpty(t, cycles, "cycles are persisted to the flight recorder")
	assert.GreaterOrEqual(t, cycles[0].Cycle, srv.last.Load().Cycle)
}

func TestStandstillTrajectory(t *testing.T) {
	t.Parallel()

	ltt, err := standstillTrajectory(3, 0.004)
	require.NoError(t, err)

	m := ltt.Interpolate(0, 1, 0)
	assert.Equal(t, []float64{0, 0, 0}, m.Q)
	assert.Equal(t, []float64{0, 0, 0}, m.DQ)
}
