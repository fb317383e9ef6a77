// Package analysis turns engine evaluations into annotated PGN and EPD
// output: move classification, movetext rendering, and the per-half-move
// orchestration that drives one engine session per request.
package analysis

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/freeeve/annotator/internal/uci"
)

// BookMode selects the opening-book probing behavior.
type BookMode string

// EvalMode selects how position scores are obtained.
type EvalMode string

// JobMode selects between annotating and suite-testing.
type JobMode string

const (
	BookNone       BookMode = "none"
	BookCerebellum BookMode = "cerebellum"

	EvalNone   EvalMode = "none"
	EvalStatic EvalMode = "static"
	EvalSearch EvalMode = "search"

	JobAnalyze JobMode = "analyze"
	JobTest    JobMode = "test"
)

func ParseBookMode(s string) (BookMode, error) {
	switch BookMode(s) {
	case BookNone, BookCerebellum:
		return BookMode(s), nil
	}
	return "", fmt.Errorf("unknown book mode %q", s)
}

func ParseEvalMode(s string) (EvalMode, error) {
	switch EvalMode(s) {
	case EvalNone, EvalStatic, EvalSearch:
		return EvalMode(s), nil
	}
	return "", fmt.Errorf("unknown eval mode %q", s)
}

func ParseJobMode(s string) (JobMode, error) {
	switch JobMode(s) {
	case JobAnalyze, JobTest:
		return JobMode(s), nil
	}
	return "", fmt.Errorf("unknown job mode %q", s)
}

// InputKind is the detected input file type.
type InputKind int

const (
	InputUnknown InputKind = iota
	InputPGN
	InputEPD
)

// KindOfInput detects the input type from the file extension, looking
// through a trailing .zst.
func KindOfInput(path string) InputKind {
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".zst"))) {
	case ".pgn":
		return InputPGN
	case ".epd":
		return InputEPD
	}
	return InputUnknown
}

// Config carries the full job description plus the pipeline tunables that
// used to be scattered constants. Zero values get defaults in
// withDefaults.
type Config struct {
	InputPath  string
	OutputPath string
	EnginePath string

	Book BookMode
	Eval EvalMode
	Job  JobMode

	MoveTimeMs int // search time per position
	HashMB     int // engine hash table size
	Threads    int // engine threads
	MoveStart  int // full-move number where engine analysis begins
	BookFile   string

	BookMoveLimit    int     // book probes past this full move mark the book exhausted
	BookSearchTimeMs int     // movetime for book probes
	WinScore         float64 // pawns; beyond this the position is decided
}

func (c Config) withDefaults() Config {
	if c.Book == "" {
		c.Book = BookNone
	}
	if c.Eval == "" {
		c.Eval = EvalStatic
	}
	if c.Job == "" {
		c.Job = JobAnalyze
	}
	if c.HashMB == 0 {
		c.HashMB = 32
	}
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.MoveStart == 0 {
		c.MoveStart = 8
	}
	if c.BookFile == "" {
		c.BookFile = "Cerebellum_Light.bin"
	}
	if c.BookMoveLimit == 0 {
		c.BookMoveLimit = 30
	}
	if c.BookSearchTimeMs == 0 {
		c.BookSearchTimeMs = 200
	}
	if c.WinScore == 0 {
		c.WinScore = 6.0
	}
	return c
}

// Annotator sequences book lookup, evaluation, classification and writing
// per half-move or EPD record. All engine work is synchronous; one session
// is opened, driven and torn down per request.
type Annotator struct {
	cfg        Config
	log        zerolog.Logger
	w          *Writer
	engineName string
}

// New applies config defaults and identifies the engine. The identify
// round-trip doubles as the startup check that the engine actually speaks
// UCI.
func New(cfg Config, log zerolog.Logger) (*Annotator, error) {
	cfg = cfg.withDefaults()
	name, err := engineIDName(cfg.EnginePath, log)
	if err != nil {
		return nil, fmt.Errorf("identify engine: %w", err)
	}
	return &Annotator{
		cfg:        cfg,
		log:        log,
		w:          NewWriter(cfg.OutputPath, name),
		engineName: name,
	}, nil
}

// EngineName returns the engine id name captured at startup.
func (a *Annotator) EngineName() string {
	return a.engineName
}

// Run dispatches on the input file type and job mode.
func (a *Annotator) Run(ctx context.Context) error {
	switch KindOfInput(a.cfg.InputPath) {
	case InputEPD:
		if a.cfg.Job == JobTest {
			return a.TestEPD(ctx)
		}
		return a.AnnotateEPD(ctx)
	case InputPGN:
		return a.AnnotatePGN(ctx)
	}
	return fmt.Errorf("input %q is not an epd or pgn file", a.cfg.InputPath)
}

// AnnotatePGN reads games from the input file and writes each one back out
// with tags, glyphs, scores and alternative lines.
func (a *Annotator) AnnotatePGN(ctx context.Context) error {
	book := a.cfg.Book
	if book == BookCerebellum && !strings.Contains(a.engineName, "Brainfish") {
		book = BookNone
		a.log.Warn().Str("engine", a.engineName).
			Msg("engine is not Brainfish, cerebellum book disabled")
	}

	in, err := openInput(a.cfg.InputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	scanner := chess.NewScanner(in)
	gameCnt := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		game := scanner.Next()
		gameCnt++
		a.log.Info().Int("game", gameCnt).Msg("annotating game")
		if err := a.annotateGame(game, book); err != nil {
			return fmt.Errorf("game %d: %w", gameCnt, err)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("parse pgn: %w", err)
	}
	a.log.Info().Int("games", gameCnt).Msg("pgn annotation complete")
	return nil
}

func (a *Annotator) annotateGame(game *chess.Game, book BookMode) error {
	a.w.ResetLine()

	result := "*"
	for _, tp := range game.TagPairs() {
		if err := a.w.WriteTag(tp.Key, tp.Value); err != nil {
			return err
		}
		if tp.Key == "Result" {
			result = tp.Value
		}
	}
	if err := a.w.WriteAnnotatorTag(); err != nil {
		return err
	}
	switch a.cfg.Eval {
	case EvalStatic:
		if err := a.w.WriteStaticPreamble(); err != nil {
			return err
		}
	case EvalSearch:
		if err := a.w.WriteSearchPreamble(a.cfg.HashMB, a.cfg.Threads, a.cfg.MoveTimeMs); err != nil {
			return err
		}
	case EvalNone:
	}

	moves := game.Moves()
	positions := game.Positions()
	bookExhausted := false

	for i, mv := range moves {
		if i+1 >= len(positions) {
			break
		}
		before, after := positions[i], positions[i+1]
		white := before.Turn() == chess.White
		fmvn := fullMoveNumber(before)
		san := chess.AlgebraicNotation{}.Encode(before, mv)

		// Below the consultation move with no book configured, the raw
		// move goes straight out with no engine work.
		if fmvn < a.cfg.MoveStart && book != BookCerebellum {
			if err := a.w.WriteMove(MoveAnnotation{San: san, MoveNumber: fmvn, White: white}); err != nil {
				return err
			}
			continue
		}

		// Probe the book on the pre-move position. Once a probe fails past
		// the book move limit, the book is exhausted for the whole game.
		bookMove := ""
		if book == BookCerebellum && !bookExhausted {
			bm, err := a.bookProbe(before.String())
			if err != nil {
				return err
			}
			bookMove = bm
			if bookMove == "" && fmvn > a.cfg.BookMoveLimit {
				bookExhausted = true
			}
		}

		// Below the consultation move a pending book move is still shown.
		if fmvn < a.cfg.MoveStart && bookMove != "" {
			if err := a.w.WriteMove(MoveAnnotation{
				San: san, MoveNumber: fmvn, White: white, BookMove: bookMove,
			}); err != nil {
				return err
			}
			continue
		}

		var posScore *float64
		complexityNumber, moveChanges := 0, 0
		switch a.cfg.Eval {
		case EvalStatic:
			v, err := a.staticEvalAfterMove(after.String())
			if err != nil {
				return err
			}
			posScore = &v
		case EvalSearch:
			v, cn, mc, err := a.searchAfterMove(after.String(), white)
			if err != nil {
				return err
			}
			posScore = &v
			complexityNumber, moveChanges = cn, mc
		case EvalNone:
		}

		// The engine's own recommendation, skipped once the position is
		// clearly decided.
		engMove, engScore := "", 0.0
		if posScore != nil && math.Abs(*posScore) <= a.cfg.WinScore && a.cfg.Job == JobAnalyze {
			bm, sc, err := a.searchBeforeMove(before.String(), white)
			if err != nil {
				return err
			}
			engMove, engScore = bm, sc
		}

		status := after.Status()
		gameOver := status == chess.Checkmate || status == chess.Stalemate

		if err := a.w.WriteMove(MoveAnnotation{
			San:         san,
			MoveNumber:  fmvn,
			White:       white,
			PosScore:    posScore,
			BookMove:    bookMove,
			EngMove:     engMove,
			EngScore:    engScore,
			GameOver:    gameOver,
			Complexity:  complexityNumber,
			MoveChanges: moveChanges,
		}); err != nil {
			return err
		}
	}

	return a.w.WriteResult(result)
}

// AnnotateEPD evaluates each EPD record and writes it back with engine
// opcodes: ce/c0 in static mode, acd/acs/bm/ce in search mode.
func (a *Annotator) AnnotateEPD(ctx context.Context) error {
	in, err := openInput(a.cfg.InputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	sc := bufio.NewScanner(in)
	cnt := 0
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cnt++
		rec, ok := parseEPD(line)
		if !ok {
			a.log.Warn().Int("epd", cnt).Str("line", line).Msg("unparsable epd line, skipped")
			continue
		}
		fen := rec.fen("0")
		a.log.Info().Int("epd", cnt).Str("position", rec.EPD).Msg("annotating epd")

		over, err := isTerminal(fen)
		if err != nil {
			a.log.Warn().Err(err).Str("epd", rec.EPD).Msg("invalid position, skipped")
			continue
		}
		if over {
			a.log.Warn().Str("epd", rec.EPD).Msg("no legal move, skipped")
			continue
		}

		switch a.cfg.Eval {
		case EvalStatic:
			ce, err := a.epdStaticEval(fen)
			if err != nil {
				return err
			}
			a.log.Info().Int("ce", ce).Msg("static eval")
			if err := a.w.WriteEPDStatic(rec.EPD, ce); err != nil {
				return err
			}
		case EvalSearch:
			acd, acs, bm, ce, err := a.epdSearch(fen)
			if err != nil {
				return err
			}
			a.log.Info().Str("bm", bm).Int("ce", ce).Int("acd", acd).Msg("search eval")
			if err := a.w.WriteEPDSearch(rec.EPD, acd, acs, bm, ce); err != nil {
				return err
			}
		case EvalNone:
			// Rejected at startup; nothing to annotate with.
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read epd: %w", err)
	}
	a.log.Info().Int("records", cnt).Msg("epd annotation complete")
	return nil
}

// TestEPD runs the engine against a test suite and aggregates how often
// its best move matches a bm opcode. Terminal and bm-less records are
// excluded from the percentage base.
func (a *Annotator) TestEPD(ctx context.Context) error {
	in, err := openInput(a.cfg.InputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	sc := bufio.NewScanner(in)
	cntEpd, cntValid, cntCorrect := 0, 0, 0
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cntEpd++
		rec, ok := parseEPD(line)
		if !ok {
			a.log.Warn().Int("epd", cntEpd).Str("line", line).Msg("unparsable epd line, skipped")
			continue
		}
		fen := rec.fen(rec.HMVC)
		a.log.Info().Int("epd", cntEpd).Str("fen", fen).Msg("testing epd")

		over, err := isTerminal(fen)
		if err != nil {
			a.log.Warn().Err(err).Str("epd", rec.EPD).Msg("invalid position, skipped")
			continue
		}
		if over {
			a.log.Warn().Str("epd", rec.EPD).Msg("no legal move, skipped")
			continue
		}
		if len(rec.BM) == 0 {
			a.log.Warn().Str("epd", rec.EPD).Msg("no bm opcode, skipped")
			continue
		}

		_, _, bm, _, err := a.epdSearch(fen)
		if err != nil {
			return err
		}
		cntValid++
		if isCorrectBM(bm, rec.BM) {
			cntCorrect++
		}
		a.log.Info().Str("engine_bm", bm).Strs("accepted", rec.BM).Int("correct", cntCorrect).Msg("tested")
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read epd: %w", err)
	}

	pct := 0.0
	if cntValid > 0 {
		pct = 100.0 * float64(cntCorrect) / float64(cntValid)
	}
	a.log.Info().
		Int("total", cntEpd).
		Int("tested", cntValid).
		Int("correct", cntCorrect).
		Float64("pct", pct).
		Msg("epd test complete")
	return a.w.WriteTestReport(a.cfg.InputPath, a.cfg.MoveTimeMs, cntEpd, cntValid, cntCorrect)
}

// engineIDName opens a throwaway session just for the handshake.
func engineIDName(path string, log zerolog.Logger) (string, error) {
	s, err := uci.Open(path, log)
	if err != nil {
		return "", err
	}
	defer s.Close()
	return s.Name(), nil
}

// bookProbe asks a fresh engine for a book move on the pre-move position.
// Empty result means the book had nothing.
func (a *Annotator) bookProbe(fen string) (string, error) {
	s, err := uci.Open(a.cfg.EnginePath, a.log)
	if err != nil {
		return "", err
	}
	defer s.Close()
	if err := s.ConfigureBook(a.cfg.BookFile); err != nil {
		return "", err
	}
	if err := s.SetPosition(fen); err != nil {
		return "", err
	}
	mv, fromBook, err := s.BookProbe(a.cfg.BookSearchTimeMs)
	if err != nil {
		return "", err
	}
	if !fromBook {
		return "", nil
	}
	return uciToSAN(fen, mv)
}

// staticEvalAfterMove returns the engine's static evaluation of the
// post-move position, white-POV pawn units as the engine prints it.
func (a *Annotator) staticEvalAfterMove(fen string) (float64, error) {
	s, err := uci.Open(a.cfg.EnginePath, a.log)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	if err := s.Ready(); err != nil {
		return 0, err
	}
	if err := s.SetPosition(fen); err != nil {
		return 0, err
	}
	return s.StaticEval()
}

// searchBeforeMove asks a fresh engine for its own best move and score on
// the pre-move position. The score comes back side-POV and is converted to
// white POV here, the only place that happens for this request kind.
func (a *Annotator) searchBeforeMove(fen string, white bool) (bestSAN string, scoreP float64, err error) {
	s, err := uci.Open(a.cfg.EnginePath, a.log)
	if err != nil {
		return "", 0, err
	}
	defer s.Close()
	if err := s.Configure(a.cfg.HashMB, a.cfg.Threads); err != nil {
		return "", 0, err
	}
	if err := s.SetPosition(fen); err != nil {
		return "", 0, err
	}
	r, err := s.Search(a.cfg.MoveTimeMs, false)
	if err != nil {
		return "", 0, err
	}
	if !r.HasScore {
		return "", 0, fmt.Errorf("search returned no score for %q", fen)
	}
	san, err := uciToSAN(fen, r.BestMove)
	if err != nil {
		return "", 0, err
	}
	score := r.Value()
	if !white {
		score = -score
	}
	return san, uci.Pawns(score), nil
}

// searchAfterMove scores the post-move position. The raw score is negated
// once because the engine is judging the opponent's turn, then converted
// to white POV. The complexity trace is only collected on long analyze
// searches; shorter ones are too noisy.
func (a *Annotator) searchAfterMove(fen string, white bool) (scoreP float64, complexityNumber, moveChanges int, err error) {
	collect := a.cfg.Job == JobAnalyze && a.cfg.MoveTimeMs >= 2000

	s, err := uci.Open(a.cfg.EnginePath, a.log)
	if err != nil {
		return 0, 0, 0, err
	}
	defer s.Close()
	if err := s.Configure(a.cfg.HashMB, a.cfg.Threads); err != nil {
		return 0, 0, 0, err
	}
	if err := s.SetPosition(fen); err != nil {
		return 0, 0, 0, err
	}
	r, err := s.Search(a.cfg.MoveTimeMs, collect)
	if err != nil {
		return 0, 0, 0, err
	}
	if !r.HasScore {
		return 0, 0, 0, fmt.Errorf("search returned no score for %q", fen)
	}
	if collect {
		complexityNumber, moveChanges = Complexity(r.Trace)
	}
	score := -r.Value()
	if !white {
		score = -score
	}
	return uci.Pawns(score), complexityNumber, moveChanges, nil
}

// epdSearch returns the acd, acs, bm and ce opcode values for one record.
// ce stays side-POV centipawns as the engine reports it.
func (a *Annotator) epdSearch(fen string) (acd, acs int, bmSAN string, ce int, err error) {
	s, err := uci.Open(a.cfg.EnginePath, a.log)
	if err != nil {
		return 0, 0, "", 0, err
	}
	defer s.Close()
	if err := s.Configure(a.cfg.HashMB, a.cfg.Threads); err != nil {
		return 0, 0, "", 0, err
	}
	if err := s.SetPosition(fen); err != nil {
		return 0, 0, "", 0, err
	}
	r, err := s.Search(a.cfg.MoveTimeMs, false)
	if err != nil {
		return 0, 0, "", 0, err
	}
	if r.Depth == 0 {
		return 0, 0, "", 0, fmt.Errorf("engine did not search %q", fen)
	}
	if !r.HasScore {
		return 0, 0, "", 0, fmt.Errorf("search returned no score for %q", fen)
	}
	bmSAN, err = uciToSAN(fen, r.BestMove)
	if err != nil {
		return 0, 0, "", 0, err
	}
	return r.Depth, a.cfg.MoveTimeMs / 1000, bmSAN, r.Value(), nil
}

// epdStaticEval returns the ce opcode value for one record: side-POV
// centipawns derived from the engine's white-POV static eval.
func (a *Annotator) epdStaticEval(fen string) (int, error) {
	s, err := uci.Open(a.cfg.EnginePath, a.log)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	if err := s.Ready(); err != nil {
		return 0, err
	}
	if err := s.SetPosition(fen); err != nil {
		return 0, err
	}
	scoreP, err := s.StaticEval()
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		scoreP = -scoreP
	}
	return int(scoreP * 100.0), nil
}

// uciToSAN renders a UCI move string as SAN for the given position.
func uciToSAN(fen, uciMove string) (string, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("fen %q: %w", fen, err)
	}
	pos := chess.NewGame(fenOpt).Position()
	mv, err := chess.UCINotation{}.Decode(pos, uciMove)
	if err != nil {
		return "", fmt.Errorf("decode move %q: %w", uciMove, err)
	}
	return chess.AlgebraicNotation{}.Encode(pos, mv), nil
}

// isTerminal reports whether the position has no legal continuation.
func isTerminal(fen string) (bool, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return false, err
	}
	status := chess.NewGame(fenOpt).Position().Status()
	return status == chess.Checkmate || status == chess.Stalemate, nil
}

// fullMoveNumber reads the full-move counter out of the position's FEN;
// the board model does not expose it directly.
func fullMoveNumber(pos *chess.Position) int {
	fields := strings.Fields(pos.String())
	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[5]); err == nil {
			return n
		}
	}
	return 1
}

// openInput opens path for reading, transparently decompressing .zst.
func openInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &zstdReadCloser{zr: zr, f: f}, nil
}

type zstdReadCloser struct {
	zr *zstd.Decoder
	f  *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.zr.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.zr.Close()
	return z.f.Close()
}
