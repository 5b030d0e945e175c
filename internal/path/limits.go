package path

import "math"

// speedFloor avoids dividing by a near-zero joint speed when deriving path
// bounds: a joint that is barely moving does not constrain the maneuver.
const speedFloor = 1e-4

// BoundManoeuvreLimits derates the nominal path acceleration and jerk bounds
// so that the maneuver planned this cycle stays continuous with the joint
// acceleration implied by the previous cycle's commanded velocities.
//
// With q̇ᵢ = ṡ·q′ᵢ the joint acceleration satisfies
// |q̈ᵢ| ≤ s̈·|q′ᵢ| + ṡ²·|q″ᵢ| ≤ s̈·|q̇ᵢ,prev| + aMaxSeg[i], so keeping joint i
// within its allowed acceleration requires
// s̈ ≤ (aMaxAllowed[i] − aMaxSeg[i]) / |q̇ᵢ,prev|, and the jerk bound follows
// from the analogous expansion of q⃛ with the already-derated s̈ substituted.
//
// The acceleration bound is additionally capped at
// min (jMaxAllowed[i] − jMaxSeg[i]) / (6·aMaxSeg[i]): a slow joint inflates
// the raw acceleration quotient without limit, and an uncapped s̈ substituted
// into the jerk expansion would consume the entire jerk allowance. The cap
// reserves half of every joint's jerk headroom for the maneuver, which keeps
// both bounds non-increasing in the previous speeds. Both bounds are floored
// at zero: if the previous speeds leave no headroom, no maneuver acceleration
// is admissible this cycle and planning reports infeasible.
func BoundManoeuvreLimits(prevSpeed, aMaxSeg, jMaxSeg, aMaxAllowed, jMaxAllowed []float64) (aMaxMan, jMaxMan float64) {
	aMaxMan = math.Inf(1)
	for i := range prevSpeed {
		sp := math.Abs(prevSpeed[i])
		if sp < speedFloor {
			sp = speedFloor
		}
		c := (aMaxAllowed[i] - aMaxSeg[i]) / sp
		if c < aMaxMan {
			aMaxMan = c
		}
	}
	for i := range aMaxSeg {
		if aMaxSeg[i] <= 0 {
			continue
		}
		c := (jMaxAllowed[i] - jMaxSeg[i]) / (6 * aMaxSeg[i])
		if c < aMaxMan {
			aMaxMan = c
		}
	}
	if aMaxMan < 0 {
		aMaxMan = 0
	}

	jMaxMan = math.Inf(1)
	for i := range prevSpeed {
		sp := math.Abs(prevSpeed[i])
		if sp < speedFloor {
			sp = speedFloor
		}
		d := (jMaxAllowed[i] - 3*aMaxMan*aMaxSeg[i] - jMaxSeg[i]) / sp
		if d < jMaxMan {
			jMaxMan = d
		}
	}
	if jMaxMan < 0 {
		jMaxMan = 0
	}
	return aMaxMan, jMaxMan
}
