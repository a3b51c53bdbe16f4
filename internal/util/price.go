// Package util provides small numeric helpers shared by pricing and normalization.
package util

import "math"

// PennyTick is the minimum price increment for option premiums.
const PennyTick = 0.01

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundToPenny rounds x to whole cents.
func RoundToPenny(x float64) float64 {
	return RoundToTick(x, PennyTick)
}

// FloorAt returns x, or floor when x is below floor or not a number.
func FloorAt(x, floor float64) float64 {
	if math.IsNaN(x) || x < floor {
		return floor
	}
	return x
}

// Finite reports whether x is neither NaN nor infinite.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
