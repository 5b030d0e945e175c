// Package publish delivers commanded motions to the actuator interface.
// Publishing is fire-and-forget from the shield's perspective: it must never
// block the control cycle.
package publish

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/banshee-data/motionshield/internal/motion"
)

// Publisher is the actuator publish boundary.
type Publisher interface {
	Publish(m motion.Motion) error
	Close() error
}

// wireMotion is the JSON datagram layout for network transports.
type wireMotion struct {
	Time float64   `json:"time"`
	Q    []float64 `json:"q"`
	DQ   []float64 `json:"dq"`
	DDQ  []float64 `json:"ddq"`
	S    float64   `json:"s"`
	DS   float64   `json:"ds"`
}

// UDPPublisher sends one JSON datagram per motion to a fixed address.
type UDPPublisher struct {
	conn net.Conn
}

// NewUDPPublisher dials the actuator bridge at addr ("host:port").
func NewUDPPublisher(addr string) (*UDPPublisher, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("publish: dial %s: %w", addr, err)
	}
	return &UDPPublisher{conn: conn}, nil
}

// Publish marshals and sends the motion. A lost datagram is the transport's
// problem; the shield keeps its own last-issued state.
func (u *UDPPublisher) Publish(m motion.Motion) error {
	b, err := json.Marshal(wireMotion{
		Time: m.Time, Q: m.Q, DQ: m.DQ, DDQ: m.DDQ, S: m.S, DS: m.DS,
	})
	if err != nil {
		return fmt.Errorf("publish: marshal: %w", err)
	}
	if _, err := u.conn.Write(b); err != nil {
		return fmt.Errorf("publish: write: %w", err)
	}
	return nil
}

// Close releases the socket.
func (u *UDPPublisher) Close() error { return u.conn.Close() }

// ChanPublisher hands motions to an in-process consumer. Used by tests and
// by the disabled/dev mode of the daemon. When the channel is full the
// oldest pending motion is dropped: the consumer always sees fresh commands.
type ChanPublisher struct {
	mu sync.Mutex
	ch chan motion.Motion
}

// NewChanPublisher creates a publisher with the given buffer depth.
func NewChanPublisher(depth int) *ChanPublisher {
	return &ChanPublisher{ch: make(chan motion.Motion, depth)}
}

// Motions returns the receive side.
func (c *ChanPublisher) Motions() <-chan motion.Motion { return c.ch }

// Publish enqueues the motion, evicting the oldest entry if needed.
func (c *ChanPublisher) Publish(m motion.Motion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case c.ch <- m:
			return nil
		default:
			select {
			case <-c.ch:
			default:
			}
		}
	}
}

// Close is a no-op; the channel stays open for draining.
func (c *ChanPublisher) Close() error { return nil }
