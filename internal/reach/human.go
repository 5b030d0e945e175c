package reach

import (
	"errors"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNoMeasurement reports that no human measurement has arrived yet, so no
// reachable-set bound can be produced.
var ErrNoMeasurement = errors.New("reach: no human measurement available")

// HumanReach bounds every position a human could occupy within a horizon.
// Implementations must over-approximate: declaring a reachable point
// unreachable is forbidden. The internal kinematic model is pluggable.
type HumanReach interface {
	Volumes(horizon float64) ([]Capsule, error)
}

// BodySegment names one tracked human body part as an index pair into the
// measured joint positions.
type BodySegment struct {
	A, B   int
	Radius float64 // body-part thickness bound, metres
}

// StaticHumanReach is the worst-case velocity model: each measured body
// segment is inflated by the distance the fastest assumed human motion can
// cover during the horizon plus the measurement delay. It carries no
// articulation constraints, which keeps it conservative for any posture.
type StaticHumanReach struct {
	segments []BodySegment
	vMax     float64 // worst-case human speed, m/s
	delay    float64 // measurement acquisition delay, s

	mu        sync.Mutex
	points    []r3.Vec
	havePoint bool
}

// NewStaticHumanReach builds the worst-case human model. vMax is the assumed
// maximum speed of any body part, delay the age of a measurement at the time
// it is consumed.
func NewStaticHumanReach(segments []BodySegment, vMax, delay float64) *StaticHumanReach {
	return &StaticHumanReach{
		segments: append([]BodySegment(nil), segments...),
		vMax:     vMax,
		delay:    delay,
	}
}

// Update records a new set of measured body-point positions. Safe to call
// from outside the cycle loop.
func (h *StaticHumanReach) Update(points []r3.Vec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = append(h.points[:0], points...)
	h.havePoint = true
}

// Volumes returns one capsule per body segment, inflated by
// vMax·(horizon+delay).
func (h *StaticHumanReach) Volumes(horizon float64) ([]Capsule, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.havePoint {
		return nil, ErrNoMeasurement
	}
	inflation := h.vMax * (horizon + h.delay)
	caps := make([]Capsule, 0, len(h.segments))
	for _, seg := range h.segments {
		if seg.A >= len(h.points) || seg.B >= len(h.points) {
			return nil, ErrNoMeasurement
		}
		caps = append(caps, Capsule{
			P1:     h.points[seg.A],
			P2:     h.points[seg.B],
			Radius: seg.Radius + inflation,
		})
	}
	return caps, nil
}
