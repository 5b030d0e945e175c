package publish

import (
	"bytes"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motionshield/internal/motion"
)

func testMotion(t *testing.T) motion.Motion {
	t.Helper()
	m, err := motion.NewFromState(1.5, []float64{0.1, 0.2}, []float64{0.3, 0.4}, []float64{0, 0})
	require.NoError(t, err)
	m.S, m.DS = 0.5, 1.0
	return m
}

func TestUDPPublisher(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	pub, err := NewUDPPublisher(pc.LocalAddr().String())
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(testMotion(t)))

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	var got wireMotion
	require.NoError(t, json.Unmarshal(buf[:n], &got))
	assert.Equal(t, []float64{0.1, 0.2}, got.Q)
	assert.Equal(t, []float64{0.3, 0.4}, got.DQ)
	assert.Equal(t, 0.5, got.S)
}

func TestChanPublisherDropsOldest(t *testing.T) {
	t.Parallel()

	pub := NewChanPublisher(2)
	for i := 0; i < 5; i++ {
		m := motion.New(1)
		m.Time = float64(i)
		require.NoError(t, pub.Publish(m))
	}

	// Only the two freshest commands survive.
	first := <-pub.Motions()
	second := <-pub.Motions()
	assert.Equal(t, 3.0, first.Time)
	assert.Equal(t, 4.0, second.Time)
}

type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closableBuffer) Close() error {
	c.closed = true
	return nil
}

func TestSerialPublisherLineFormat(t *testing.T) {
	t.Parallel()

	var buf closableBuffer
	pub := newSerialPublisherFrom(&buf)
	require.NoError(t, pub.Publish(testMotion(t)))

	line := buf.String()
	assert.Equal(t, "M,1.500000,0.100000,0.200000,0.300000,0.400000\n", line)

	require.NoError(t, pub.Close())
	assert.True(t, buf.closed)
}
