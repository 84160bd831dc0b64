// Package units provides shared constants and validation for rate units.
package units

// Unit constants
const (
	BPM = "bpm"
	HZ  = "hz"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{BPM, HZ}

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
	return "bpm, hz"
}

// ConvertRate converts a rate from beats per minute to the target units.
// Estimates are stored in bpm.
func ConvertRate(rateBPM float64, targetUnits string) float64 {
	switch targetUnits {
	case HZ:
		return rateBPM / 60 // beats per minute to beats per second
	case BPM:
		return rateBPM // no conversion needed
	default:
		return rateBPM // default to bpm if unknown unit
	}
}

// PeriodSeconds returns the beat period for a rate in bpm, or 0 for the
// indeterminate sentinel.
func PeriodSeconds(rateBPM float64) float64 {
	if rateBPM <= 0 {
		return 0
	}
	return 60 / rateBPM
}
