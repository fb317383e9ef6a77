package analysis

import "fmt"

// NAG is a PGN numeric annotation glyph.
type NAG int

const (
	NAGNone        NAG = 0 // GUIs do not display $0
	NAGGood        NAG = 1 // !
	NAGMistake     NAG = 2 // ?
	NAGVeryGood    NAG = 3 // !!
	NAGBlunder     NAG = 4 // ??
	NAGInteresting NAG = 5 // !?
	NAGDubious     NAG = 6 // ?!
)

func (n NAG) String() string {
	return fmt.Sprintf("$%d", int(n))
}

// SidePOV converts a white-POV score to the mover's point of view.
func SidePOV(score float64, white bool) float64 {
	if white {
		return score
	}
	return -score
}

// BadNag classifies a played move that differs from the engine's choice.
// Both scores are side-to-move POV pawn units.
//
// The final posScore >= engScore check runs unconditionally last and can
// cancel any branch above it: a move that scores at least as well as the
// engine's own choice is at worst interesting.
func BadNag(posScore, engScore float64) NAG {
	nag := NAGNone
	switch {
	case posScore < -1.50 && engScore >= -1.50:
		nag = NAGBlunder
	case posScore < -0.75 && engScore >= -0.75:
		nag = NAGMistake
	case posScore < -0.15 && engScore >= -0.15:
		nag = NAGDubious
	case engScore > 1.50 && posScore <= 1.50:
		// Engine found a win the player missed.
		nag = NAGMistake
	}
	if posScore >= engScore {
		nag = NAGInteresting
	}
	return nag
}

// GoodNag classifies a played move that matches the engine's choice, using
// the search complexity of the position. Both scores are side-to-move POV
// pawn units.
func GoodNag(posScore, engScore float64, complexityNumber, moveChanges int) NAG {
	switch {
	case posScore > engScore && moveChanges >= 4 && complexityNumber >= 45 &&
		posScore >= 0.75 && posScore <= 3.0:
		return NAGVeryGood
	case moveChanges >= 3 && complexityNumber >= 30 &&
		posScore >= -0.15 && posScore <= 3.0:
		return NAGGood
	case moveChanges >= 2 && complexityNumber >= 20 &&
		posScore >= -0.15 && posScore <= 3.0:
		return NAGInteresting
	}
	return NAGNone
}
