// Package units is the single conversion point between the display
// amounts and water levels used at the API boundary and the native
// integer units used by the ledger and the settlement chain. Every
// cross-boundary amount goes through here; no call site carries its
// own scale factor.
package units

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// AmountScale is the number of native ledger units per display
	// currency unit (6 fixed decimals).
	AmountScale = 1_000_000

	// LevelScale is the number of native level units per metre
	// (levels are stored as centimetres).
	LevelScale = 100
)

// MaxDisplayAmount bounds a single display amount so the native
// representation cannot overflow int64.
const MaxDisplayAmount = float64(math.MaxInt64) / AmountScale

// AmountToNative converts a display-decimal amount to ledger-native
// integer units. Negative and non-finite amounts are rejected.
func AmountToNative(display float64) (int64, error) {
	if math.IsNaN(display) || math.IsInf(display, 0) {
		return 0, fmt.Errorf("amount is not a finite number")
	}
	if display < 0 {
		return 0, fmt.Errorf("amount cannot be negative: %f", display)
	}
	if display > MaxDisplayAmount {
		return 0, fmt.Errorf("amount %f exceeds maximum representable value", display)
	}
	return int64(math.Round(display * AmountScale)), nil
}

// AmountToDisplay converts ledger-native integer units back to a
// display-decimal amount.
func AmountToDisplay(native int64) float64 {
	return float64(native) / AmountScale
}

// LevelToNative converts a level in metres to native centimetre units.
func LevelToNative(metres float64) (int64, error) {
	if math.IsNaN(metres) || math.IsInf(metres, 0) {
		return 0, fmt.Errorf("level is not a finite number")
	}
	if metres < 0 {
		return 0, fmt.Errorf("level cannot be negative: %f", metres)
	}
	return int64(math.Round(metres * LevelScale)), nil
}

// LevelToDisplay converts a native centimetre level back to metres.
func LevelToDisplay(native int64) float64 {
	return float64(native) / LevelScale
}

// FormatLevel renders a native level as metres with two decimals.
func FormatLevel(native int64) string {
	return strconv.FormatFloat(LevelToDisplay(native), 'f', 2, 64)
}
