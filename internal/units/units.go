// Package units provides shared constants and conversion for joint angle units
package units

import "math"

// Unit constants
const (
	RAD = "rad"
	DEG = "deg"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{RAD, DEG}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "rad, deg"
}

// ToRadians converts an angle from the source units to radians.
// Joint state is stored and computed in radians throughout.
func ToRadians(value float64, sourceUnits string) float64 {
	switch sourceUnits {
	case DEG:
		return value * math.Pi / 180.0
	default:
		return value // already radians, or unknown unit
	}
}

// FromRadians converts an angle in radians to the target units.
func FromRadians(value float64, targetUnits string) float64 {
	switch targetUnits {
	case DEG:
		return value * 180.0 / math.Pi
	default:
		return value
	}
}

// SliceToRadians converts a slice of angles to radians, returning a new slice.
func SliceToRadians(values []float64, sourceUnits string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = ToRadians(v, sourceUnits)
	}
	return out
}
