// Package units provides shared constants and conversion for speed units.
// The wire protocol carries car speeds in km/h; all internal kinematics
// (interpolation distances, pace model) work in m/s.
package units

// Unit constants
const (
	MPS = "mps"
	MPH = "mph"
	KPH = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// KPHToMPS converts a wire speed (km/h) to meters per second.
func KPHToMPS(kph float64) float64 {
	return kph / 3.6
}

// MPSToKPH converts meters per second to the wire unit (km/h).
func MPSToKPH(mps float64) float64 {
	return mps * 3.6
}

// ConvertSpeed converts a wire speed (km/h) to the target units for display.
func ConvertSpeed(speedKPH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedKPH / 3.6
	case MPH:
		return speedKPH * 0.621371
	case KPH:
		return speedKPH
	default:
		return speedKPH // default to km/h if unknown unit
	}
}
