package analysis

import (
	"strings"
)

// epdRecord is one EPD line reduced to what the annotator reads.
type epdRecord struct {
	EPD  string   // first four fields: pieces, side, castling, ep square
	BM   []string // accepted best moves in SAN; nil when no bm opcode
	HMVC string   // half-move clock opcode value, "0" when absent
}

// parseEPD extracts the position fields and the bm/hmvc opcodes from one
// EPD line. Lines with fewer than four fields are rejected.
func parseEPD(line string) (epdRecord, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 4 {
		return epdRecord{}, false
	}
	return epdRecord{
		EPD:  strings.Join(fields[:4], " "),
		BM:   parseBM(fields),
		HMVC: parseHMVC(fields),
	}, true
}

// fen synthesizes a FEN the engine accepts, supplying the half-move clock
// and a full-move number of 1.
func (r epdRecord) fen(hmvc string) string {
	return r.EPD + " " + hmvc + " 1"
}

// parseBM returns the bm opcode values. There can be more than one
// accepted best move; the opcode value runs up to the first semicolon.
func parseBM(fields []string) []string {
	for i, f := range fields {
		if f != "bm" {
			continue
		}
		rest := strings.Join(fields[i+1:], " ")
		rest = strings.TrimSpace(strings.SplitN(rest, ";", 2)[0])
		return strings.Fields(rest)
	}
	return nil
}

func parseHMVC(fields []string) string {
	for i, f := range fields {
		if f == "hmvc" && i+1 < len(fields) {
			return strings.TrimSuffix(fields[i+1], ";")
		}
	}
	return "0"
}

// isCorrectBM reports whether the engine's best move exactly matches any
// accepted best move.
func isCorrectBM(engineBM string, accepted []string) bool {
	for _, bm := range accepted {
		if bm == engineBM {
			return true
		}
	}
	return false
}
