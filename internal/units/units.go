// Package units provides shared constants and conversions for the speed
// and angle units used across matching, ego-motion and reporting.
package units

import "math"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ValidUnitsString returns a comma-separated string of valid units for error messages
func ValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Kinematic signals are carried in m/s throughout the toolkit.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// KMHToMPS converts km/h to m/s. Speed-bin boundaries are configured in
// km/h while recorded ego speeds arrive in m/s.
func KMHToMPS(kmh float64) float64 {
	return kmh / 3.6
}

// RadToDeg converts an angle in radians to degrees. Object orientation is
// recorded in radians and reported in degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// DegToRad converts an angle in degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
