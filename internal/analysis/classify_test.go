package analysis

import (
	"testing"
)

func TestNAGString(t *testing.T) {
	if got := NAGBlunder.String(); got != "$4" {
		t.Errorf("NAGBlunder = %q, want $4", got)
	}
	if got := NAGNone.String(); got != "$0" {
		t.Errorf("NAGNone = %q, want $0", got)
	}
}

func TestBadNag(t *testing.T) {
	tests := []struct {
		name     string
		posScore float64
		engScore float64
		want     NAG
	}{
		{"blunder", -2.0, 0.0, NAGBlunder},
		{"mistake", -1.0, 0.0, NAGMistake},
		{"dubious", -0.5, 0.0, NAGDubious},
		{"missed win is a mistake", 0.5, 2.0, NAGMistake},
		{"even position", 0.0, 0.1, NAGNone},
		{"outscoring the engine is interesting", 1.0, 0.5, NAGInteresting},
		// The override fires despite -2.0 < -1.50: equal scores are at
		// worst interesting, never a blunder.
		{"equal bad scores override", -2.0, -2.0, NAGInteresting},
		{"both losing but move was better", -2.0, -3.0, NAGInteresting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BadNag(tt.posScore, tt.engScore); got != tt.want {
				t.Errorf("BadNag(%v, %v) = %v, want %v", tt.posScore, tt.engScore, got, tt.want)
			}
		})
	}
}

func TestGoodNag(t *testing.T) {
	tests := []struct {
		name        string
		posScore    float64
		engScore    float64
		complexity  int
		moveChanges int
		want        NAG
	}{
		{"very good", 1.0, 0.5, 45, 4, NAGVeryGood},
		{"complexity just below very good falls to good", 1.0, 0.5, 44, 4, NAGGood},
		{"good", 0.5, 0.5, 30, 3, NAGGood},
		{"interesting", 0.0, 0.5, 20, 2, NAGInteresting},
		{"quiet position", 0.0, 0.5, 10, 1, NAGNone},
		{"score out of band", 3.5, 0.5, 50, 5, NAGNone},
		{"losing score out of band", -0.5, -0.5, 50, 5, NAGNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GoodNag(tt.posScore, tt.engScore, tt.complexity, tt.moveChanges)
			if got != tt.want {
				t.Errorf("GoodNag(%v, %v, %d, %d) = %v, want %v",
					tt.posScore, tt.engScore, tt.complexity, tt.moveChanges, got, tt.want)
			}
		})
	}
}

func TestSidePOV(t *testing.T) {
	if got := SidePOV(1.5, true); got != 1.5 {
		t.Errorf("SidePOV(1.5, white) = %v, want 1.5", got)
	}
	if got := SidePOV(1.5, false); got != -1.5 {
		t.Errorf("SidePOV(1.5, black) = %v, want -1.5", got)
	}
}
