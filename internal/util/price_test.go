package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "basic rounding down",
			x:        1.2345,
			tick:     0.01,
			expected: 1.23,
		},
		{
			name:     "basic rounding up",
			x:        1.2371,
			tick:     0.01,
			expected: 1.24,
		},
		{
			name:     "negative basic rounding",
			x:        -1.2345,
			tick:     0.01,
			expected: -1.23,
		},
		{
			name:     "larger tick size",
			x:        1.27,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "exact multiple",
			x:        1.25,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "zero tick returns input",
			x:        1.2345,
			tick:     0,
			expected: 1.2345,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestRoundToPenny(t *testing.T) {
	if got := RoundToPenny(3.14159); math.Abs(got-3.14) > 1e-10 {
		t.Errorf("RoundToPenny(3.14159) = %v, expected 3.14", got)
	}
}

func TestFloorAt(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		expected float64
	}{
		{"above floor unchanged", 1.5, 1.5},
		{"below floor clamped", 0.0001, 0.01},
		{"negative clamped", -3, 0.01},
		{"NaN clamped", math.NaN(), 0.01},
		{"exactly floor", 0.01, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FloorAt(tt.x, 0.01); got != tt.expected {
				t.Errorf("FloorAt(%v, 0.01) = %v, expected %v", tt.x, got, tt.expected)
			}
		})
	}
}

func TestFinite(t *testing.T) {
	if !Finite(1.0) {
		t.Error("1.0 should be finite")
	}
	if Finite(math.NaN()) || Finite(math.Inf(1)) || Finite(math.Inf(-1)) {
		t.Error("NaN and Inf should not be finite")
	}
}
