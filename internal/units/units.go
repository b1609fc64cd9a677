// Package units provides shared constants and conversion for sensor velocity units.
package units

import (
	"fmt"
	"strings"
)

// Unit constants. All lengths are in the same length unit as the configured
// vertical field of view; only the time base and the length prefix differ.
const (
	MPS  = "mps"  // length per second (canonical)
	MPM  = "mpm"  // length per minute
	MMPS = "mmps" // thousandths of a length per second
	MMPM = "mmpm" // thousandths of a length per minute
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPM, MMPS, MMPM}

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
	return strings.Join(ValidUnits, ", ")
}

// PerSecondFactor returns the multiplier that converts a reading in unit into
// length per second.
func PerSecondFactor(unit string) (float64, error) {
	switch unit {
	case MPS:
		return 1, nil
	case MPM:
		return 1.0 / 60.0, nil
	case MMPS:
		return 1.0 / 1000.0, nil
	case MMPM:
		return 1.0 / 60000.0, nil
	default:
		return 0, fmt.Errorf("unknown velocity unit %q (valid: %s)", unit, GetValidUnitsString())
	}
}

// ToPerSecond converts a raw sensor reading into length per second. Unknown
// units are passed through unchanged.
func ToPerSecond(value float64, unit string) float64 {
	f, err := PerSecondFactor(unit)
	if err != nil {
		return value
	}
	return value * f
}
