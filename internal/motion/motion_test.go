package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromState(t *testing.T) {
	t.Parallel()

	t.Run("copies slices", func(t *testing.T) {
		t.Parallel()
		q := []float64{1, 2}
		m, err := NewFromState(0.5, q, []float64{3, 4}, []float64{5, 6})
		require.NoError(t, err)

		q[0] = 99
		assert.Equal(t, 1.0, m.Q[0])
		assert.Equal(t, 2, m.NbJoints())
		assert.Equal(t, 0.5, m.Time)
	})

	t.Run("rejects mismatched lengths", func(t *testing.T) {
		t.Parallel()
		_, err := NewFromState(0, []float64{1, 2}, []float64{3}, []float64{5, 6})
		assert.Error(t, err)
	})
}

func TestHasSamePos(t *testing.T) {
	t.Parallel()

	a, err := NewFromState(0, []float64{1.0, 2.0}, []float64{0, 0}, []float64{0, 0})
	require.NoError(t, err)
	b, err := NewFromState(0, []float64{1.0005, 2.0}, []float64{0, 0}, []float64{0, 0})
	require.NoError(t, err)

	assert.True(t, a.HasSamePos(b, 1e-3))
	assert.False(t, a.HasSamePos(b, 1e-4))
	assert.False(t, a.HasSamePos(New(3), 1.0), "joint count mismatch is never equal")
}

func TestMaxSpeed(t *testing.T) {
	t.Parallel()

	m, err := NewFromState(0, []float64{0, 0}, []float64{-2.5, 1.0}, []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 2.5, m.MaxSpeed())
}
