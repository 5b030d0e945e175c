// Package verify decides whether a set of robot reachable volumes can safely
// coexist with a set of human reachable volumes.
package verify

import (
	"github.com/banshee-data/motionshield/internal/reach"
)

// Verifier is the safety verdict capability the shield is written against.
// Any compliant strategy can be substituted at construction time.
type Verifier interface {
	// IsSafe returns true only when every (robot, human) capsule pair keeps
	// the required separation. Implementations must err on the side of
	// false: an unproven situation is unsafe.
	IsSafe(robot, human []reach.Capsule) bool
}

// Verify is the base strategy: a fixed minimum separation distance between
// every robot capsule and every human capsule.
type Verify struct {
	// MinDist is the required surface-to-surface clearance in metres.
	MinDist float64
}

// IsSafe checks pairwise capsule clearance against the fixed margin.
func (v Verify) IsSafe(robot, human []reach.Capsule) bool {
	for _, rc := range robot {
		for _, hc := range human {
			if reach.Dist(rc, hc) < v.MinDist {
				return false
			}
		}
	}
	return true
}
