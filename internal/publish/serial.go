package publish

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"

	"github.com/banshee-data/motionshield/internal/motion"
)

// SerialPublisher writes line-oriented motion commands to a serial port, for
// actuator bridges hanging off an embedded controller. The line format is
// "M,<time>,<q0>,...,<dq0>,...\n" — positions then velocities, both
// fixed-width decimal.
type SerialPublisher struct {
	port io.WriteCloser
}

// NewSerialPublisher opens the port at 115200 8N1, matching the bridge
// firmware.
func NewSerialPublisher(portName string) (*SerialPublisher, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("publish: open serial %s: %w", portName, err)
	}
	return &SerialPublisher{port: port}, nil
}

// newSerialPublisherFrom wires an already-open writer; used by tests.
func newSerialPublisherFrom(w io.WriteCloser) *SerialPublisher {
	return &SerialPublisher{port: w}
}

// Publish writes one command line.
func (s *SerialPublisher) Publish(m motion.Motion) error {
	var b strings.Builder
	fmt.Fprintf(&b, "M,%.6f", m.Time)
	for _, q := range m.Q {
		fmt.Fprintf(&b, ",%.6f", q)
	}
	for _, dq := range m.DQ {
		fmt.Fprintf(&b, ",%.6f", dq)
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(s.port, b.String()); err != nil {
		return fmt.Errorf("publish: serial write: %w", err)
	}
	return nil
}

// Close closes the port.
func (s *SerialPublisher) Close() error { return s.port.Close() }
