package uci

import (
	"testing"
)

func TestMateDistanceToValue(t *testing.T) {
	tests := []struct {
		name string
		d    int
		want int
	}{
		{"mate in 1", 1, 31999},
		{"mate in 2", 2, 31997},
		{"mate in 10", 10, 31981},
		{"mated in 1", -1, -31998},
		{"mated in 2", -2, -31996},
		{"no mate", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MateDistanceToValue(tt.d); got != tt.want {
				t.Errorf("MateDistanceToValue(%d) = %d, want %d", tt.d, got, tt.want)
			}
		})
	}
}

func TestMateDistanceOrdering(t *testing.T) {
	// Shorter mates must outrank longer ones on each side.
	for d := 1; d < 100; d++ {
		if MateDistanceToValue(d) <= MateDistanceToValue(d+1) {
			t.Errorf("value(%d) = %d not greater than value(%d) = %d",
				d, MateDistanceToValue(d), d+1, MateDistanceToValue(d+1))
		}
		if MateDistanceToValue(-d) >= MateDistanceToValue(-(d + 1)) {
			t.Errorf("value(%d) = %d not less than value(%d) = %d",
				-d, MateDistanceToValue(-d), -(d + 1), MateDistanceToValue(-(d+1)))
		}
	}
}

func TestMateValueExceedsCentipawnRange(t *testing.T) {
	// Engines cap centipawn scores well below MaxScore; any converted mate
	// must saturate outside that range.
	const maxPlausibleCP = 30000
	for d := 1; d <= 500; d++ {
		if v := MateDistanceToValue(d); v <= maxPlausibleCP {
			t.Fatalf("value(%d) = %d inside centipawn range", d, v)
		}
		if v := MateDistanceToValue(-d); v >= -maxPlausibleCP {
			t.Fatalf("value(%d) = %d inside centipawn range", -d, v)
		}
	}
}

func TestPawns(t *testing.T) {
	if got := Pawns(-150); got != -1.5 {
		t.Errorf("Pawns(-150) = %v, want -1.5", got)
	}
	if got := Pawns(30); got != 0.3 {
		t.Errorf("Pawns(30) = %v, want 0.3", got)
	}
}
