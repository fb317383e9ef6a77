package analysis

import (
	"fmt"
	"os"
	"strings"
)

// bookComment tags book alternatives in the movetext.
const bookComment = "cerebellum"

// MoveAnnotation is one classified half-move ready to be rendered.
// PosScore and EngScore are white-POV pawn units; BookMove and EngMove are
// SAN, empty when absent.
type MoveAnnotation struct {
	San         string
	MoveNumber  int
	White       bool
	PosScore    *float64
	BookMove    string
	EngMove     string
	EngScore    float64
	GameOver    bool
	Complexity  int
	MoveChanges int
}

// Writer renders annotations into exact PGN movetext and EPD line syntax.
// Every write opens the output file in append mode and closes it again, so
// a crash mid-run preserves everything already flushed. The only state
// carried across writes is the units-on-this-line counter.
type Writer struct {
	path       string
	engineName string
	lineUnits  int
}

func NewWriter(path, engineName string) *Writer {
	return &Writer{path: path, engineName: engineName}
}

// ResetLine clears the wrap counter at the start of a game.
func (w *Writer) ResetLine() {
	w.lineUnits = 0
}

func (w *Writer) append(text string) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}

// writeUnit appends one movetext unit, counting it toward the wrap limit.
// Lines only ever break after a Black move.
func (w *Writer) writeUnit(text string, white bool, wrapLimit int) error {
	w.lineUnits++
	if !white && w.lineUnits >= wrapLimit {
		w.lineUnits = 0
		text += "\n"
	}
	return w.append(text)
}

func (w *Writer) shortEngineName() string {
	fields := strings.Fields(w.engineName)
	if len(fields) == 0 {
		return w.engineName
	}
	return fields[0]
}

// WriteMove dispatches one annotation to the single literal format keyed
// by the presence of its score, book move and engine move. A finished game
// short-circuits to the bare move.
func (w *Writer) WriteMove(a MoveAnnotation) error {
	if a.GameOver {
		return w.writeSanMove(a)
	}
	hasPos, hasBook, hasEng := a.PosScore != nil, a.BookMove != "", a.EngMove != ""
	switch {
	case hasPos && !hasBook && !hasEng:
		return w.writePosScore(a)
	case hasPos && hasBook && !hasEng:
		return w.writePosScoreBookMove(a)
	case hasPos && !hasBook && hasEng:
		return w.writePosScoreEngMove(a)
	case hasPos && hasBook && hasEng:
		return w.writePosScoreBookMoveEngMove(a)
	case !hasPos && hasBook && !hasEng:
		return w.writeBookMove(a)
	case !hasPos && hasBook && hasEng:
		return w.writeBookMoveEngMove(a)
	case !hasPos && !hasBook && hasEng:
		return w.writeEngMove(a)
	default:
		return w.writeSanMove(a)
	}
}

// (0)/(8) bare move.
func (w *Writer) writeSanMove(a MoveAnnotation) error {
	if a.White {
		return w.writeUnit(fmt.Sprintf("%d. %s ", a.MoveNumber, a.San), true, 4)
	}
	return w.writeUnit(fmt.Sprintf("%s ", a.San), false, 4)
}

// (1) move with position score.
func (w *Writer) writePosScore(a MoveAnnotation) error {
	if a.White {
		return w.writeUnit(fmt.Sprintf("%d. %s {%+.2f} ", a.MoveNumber, a.San, *a.PosScore), true, 4)
	}
	return w.writeUnit(fmt.Sprintf("%s {%+.2f} ", a.San, *a.PosScore), false, 4)
}

// (2) move with score and book alternative.
func (w *Writer) writePosScoreBookMove(a MoveAnnotation) error {
	if a.White {
		return w.writeUnit(fmt.Sprintf("%d. %s {%+.2f} (%d. %s {%s}) ",
			a.MoveNumber, a.San, *a.PosScore, a.MoveNumber, a.BookMove, bookComment), true, 2)
	}
	return w.writeUnit(fmt.Sprintf("%d... %s {%+.2f} (%d... %s {%s}) ",
		a.MoveNumber, a.San, *a.PosScore, a.MoveNumber, a.BookMove, bookComment), false, 2)
}

// (3) move with score and engine alternative; the glyph comes from the
// classifiers, side-POV.
func (w *Writer) writePosScoreEngMove(a MoveAnnotation) error {
	eng := w.shortEngineName()
	if a.San != a.EngMove {
		nag := BadNag(SidePOV(*a.PosScore, a.White), SidePOV(a.EngScore, a.White))
		if a.White {
			return w.writeUnit(fmt.Sprintf("%d. %s %s {%+.2f} (%d. %s {%+.2f - %s}) ",
				a.MoveNumber, a.San, nag, *a.PosScore,
				a.MoveNumber, a.EngMove, a.EngScore, eng), true, 2)
		}
		return w.writeUnit(fmt.Sprintf("%d... %s %s {%+.2f} (%d... %s {%+.2f - %s}) ",
			a.MoveNumber, a.San, nag, *a.PosScore,
			a.MoveNumber, a.EngMove, a.EngScore, eng), false, 2)
	}
	nag := GoodNag(SidePOV(*a.PosScore, a.White), SidePOV(a.EngScore, a.White),
		a.Complexity, a.MoveChanges)
	if a.White {
		return w.writeUnit(fmt.Sprintf("%d. %s %s {%+.2f} ", a.MoveNumber, a.San, nag, *a.PosScore), true, 2)
	}
	return w.writeUnit(fmt.Sprintf("%s %s {%+.2f} ", a.San, nag, *a.PosScore), false, 2)
}

// (4) move with score, book alternative and engine alternative.
func (w *Writer) writePosScoreBookMoveEngMove(a MoveAnnotation) error {
	eng := w.shortEngineName()
	if a.San != a.EngMove {
		nag := BadNag(SidePOV(*a.PosScore, a.White), SidePOV(a.EngScore, a.White))
		if a.White {
			return w.writeUnit(fmt.Sprintf("%d. %s %s {%+.2f} (%d. %s {%s}) (%d. %s {%+.2f - %s}) ",
				a.MoveNumber, a.San, nag, *a.PosScore,
				a.MoveNumber, a.BookMove, bookComment,
				a.MoveNumber, a.EngMove, a.EngScore, eng), true, 2)
		}
		return w.writeUnit(fmt.Sprintf("%d... %s %s {%+.2f} (%d... %s {%s}) (%d... %s {%+.2f - %s}) ",
			a.MoveNumber, a.San, nag, *a.PosScore,
			a.MoveNumber, a.BookMove, bookComment,
			a.MoveNumber, a.EngMove, a.EngScore, eng), false, 2)
	}
	if a.White {
		return w.writeUnit(fmt.Sprintf("%d. %s {%+.2f} (%d. %s {%s}) ",
			a.MoveNumber, a.San, *a.PosScore, a.MoveNumber, a.BookMove, bookComment), true, 2)
	}
	return w.writeUnit(fmt.Sprintf("%d... %s {%+.2f} (%d... %s {%s}) ",
		a.MoveNumber, a.San, *a.PosScore, a.MoveNumber, a.BookMove, bookComment), false, 2)
}

// (5) move with book alternative only.
func (w *Writer) writeBookMove(a MoveAnnotation) error {
	if a.White {
		return w.writeUnit(fmt.Sprintf("%d. %s (%d. %s {%s}) ",
			a.MoveNumber, a.San, a.MoveNumber, a.BookMove, bookComment), true, 2)
	}
	return w.writeUnit(fmt.Sprintf("%d... %s (%d... %s {%s}) ",
		a.MoveNumber, a.San, a.MoveNumber, a.BookMove, bookComment), false, 2)
}

// (6) move with book and engine alternatives, no score.
func (w *Writer) writeBookMoveEngMove(a MoveAnnotation) error {
	eng := w.shortEngineName()
	if a.San != a.EngMove {
		if a.White {
			return w.writeUnit(fmt.Sprintf("%d. %s (%d. %s {%s}) (%d. %s {%+.2f - %s}) ",
				a.MoveNumber, a.San,
				a.MoveNumber, a.BookMove, bookComment,
				a.MoveNumber, a.EngMove, a.EngScore, eng), true, 2)
		}
		return w.writeUnit(fmt.Sprintf("%d... %s (%d... %s {%s}) (%d... %s {%+.2f - %s}) ",
			a.MoveNumber, a.San,
			a.MoveNumber, a.BookMove, bookComment,
			a.MoveNumber, a.EngMove, a.EngScore, eng), false, 2)
	}
	if a.White {
		return w.writeUnit(fmt.Sprintf("%d. %s (%d. %s {%s}) ",
			a.MoveNumber, a.San, a.MoveNumber, a.BookMove, bookComment), true, 2)
	}
	return w.writeUnit(fmt.Sprintf("%d... %s (%d... %s {%s}) ",
		a.MoveNumber, a.San, a.MoveNumber, a.BookMove, bookComment), false, 2)
}

// (7) move with engine alternative only. This case never counts toward the
// wrap counter.
func (w *Writer) writeEngMove(a MoveAnnotation) error {
	eng := w.shortEngineName()
	if a.San != a.EngMove {
		if a.White {
			return w.append(fmt.Sprintf("%d. %s (%d. %s {%+.2f - %s}) ",
				a.MoveNumber, a.San, a.MoveNumber, a.EngMove, a.EngScore, eng))
		}
		return w.append(fmt.Sprintf("%d... %s (%d... %s {%+.2f - %s}) ",
			a.MoveNumber, a.San, a.MoveNumber, a.EngMove, a.EngScore, eng))
	}
	if a.White {
		return w.append(fmt.Sprintf("%d. %s ", a.MoveNumber, a.San))
	}
	return w.append(fmt.Sprintf("%d... %s ", a.MoveNumber, a.San))
}

// WriteTag writes one PGN tag pair.
func (w *Writer) WriteTag(key, value string) error {
	return w.append(fmt.Sprintf("[%s \"%s\"]\n", key, value))
}

// WriteAnnotatorTag closes the tag section with the synthesized Annotator
// tag and the blank line before the movetext.
func (w *Writer) WriteAnnotatorTag() error {
	return w.append(fmt.Sprintf("[Annotator \"%s\"]\n\n", w.engineName))
}

// WriteStaticPreamble notes that move comments come from static
// evaluation.
func (w *Writer) WriteStaticPreamble() error {
	return w.append("{Move comments are from engine static evaluation.}\n")
}

// WriteSearchPreamble notes the search settings behind the move comments.
func (w *Writer) WriteSearchPreamble(hashMB, threads, movetimeMs int) error {
	return w.append(fmt.Sprintf("{Hash %dmb, Threads %d, @ %.1fs/pos}\n",
		hashMB, threads, float64(movetimeMs)/1000.0))
}

// WriteResult terminates a game's movetext.
func (w *Writer) WriteResult(result string) error {
	return w.append(fmt.Sprintf("%s\n\n", result))
}

// WriteEPDStatic writes one statically evaluated EPD record. ce is
// side-POV centipawns.
func (w *Writer) WriteEPDStatic(epd string, ce int) error {
	return w.append(fmt.Sprintf("%s ce %+d; c0 \"%s\"; Ae \"%s\";\n",
		epd, ce, "ce is static eval of engine", w.engineName))
}

// WriteEPDSearch writes one search-evaluated EPD record.
func (w *Writer) WriteEPDSearch(epd string, acd, acs int, bm string, ce int) error {
	return w.append(fmt.Sprintf("%s acd %d; acs %d; bm %s; ce %+d; Ae \"%s\";\n",
		epd, acd, acs, bm, ce, w.engineName))
}

// WriteTestReport appends the EPD test-suite summary.
func (w *Writer) WriteTestReport(inputPath string, movetimeMs, total, valid, correct int) error {
	pct := 0.0
	if valid > 0 {
		pct = 100.0 * float64(correct) / float64(valid)
	}
	var b strings.Builder
	fmt.Fprintf(&b, ":: EPD %s TEST RESULTS ::\n", inputPath)
	fmt.Fprintf(&b, "Engine        : %s\n", w.engineName)
	fmt.Fprintf(&b, "Time/pos (sec): %.1f\n\n", float64(movetimeMs)/1000.0)
	fmt.Fprintf(&b, "Total epd lines       : %d\n", total)
	fmt.Fprintf(&b, "Total tested positions: %d\n", valid)
	fmt.Fprintf(&b, "Total correct         : %d\n", correct)
	fmt.Fprintf(&b, "Correct percentage    : %.1f\n", pct)
	return w.append(b.String())
}
