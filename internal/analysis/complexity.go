package analysis

import (
	"github.com/freeeve/annotator/internal/uci"
)

// complexityMinDepth discards shallow iterations; below depth 10 the pv
// flips too often to mean anything.
const complexityMinDepth = 10

// Complexity derives the complexity number and the pv move-change count
// from one search's depth/move trace. Samples below depth 10 are dropped
// first; a retained sample counts when both its pv move and its depth
// differ from the previous retained sample, adding the current depth to
// the complexity number.
func Complexity(trace []uci.TraceSample) (complexityNumber, moveChanges int) {
	var (
		havePrev  bool
		lastDepth int
		lastMove  string
	)
	for _, s := range trace {
		if s.Depth < complexityMinDepth {
			continue
		}
		if havePrev && s.Move != lastMove && s.Depth != lastDepth {
			complexityNumber += s.Depth
			moveChanges++
		}
		lastDepth = s.Depth
		lastMove = s.Move
		havePrev = true
	}
	return complexityNumber, moveChanges
}
