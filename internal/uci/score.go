package uci

// MaxScore is the ceiling used when converting mate distances into
// centipawn-comparable values. A converted mate always sits outside the
// range any real centipawn score can reach.
const MaxScore = 32000

// MateDistanceToValue converts a distance to mate (negative when the side
// to move is getting mated) into a centipawn-comparable value. Mate in 1
// outranks mate in 2, and symmetrically on the losing side.
func MateDistanceToValue(d int) int {
	if d < 0 {
		return -2*d - MaxScore
	}
	if d > 0 {
		return MaxScore - 2*d + 1
	}
	return 0
}

// Pawns converts a centipawn value to pawn units.
func Pawns(cp int) float64 {
	return float64(cp) / 100.0
}
