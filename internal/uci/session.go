// Package uci drives a UCI engine process through one request at a time.
//
// A Session owns exactly one engine process: spawn, handshake, configure,
// query, quit. Sessions are never reused across requests; the per-call
// process reset keeps every evaluation independent of engine state.
package uci

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrProtocol reports that the engine stream ended before the reply the
// protocol requires. There is no partial-result meaning without the
// terminal token, so this is fatal to the enclosing run.
var ErrProtocol = errors.New("uci: stream closed before expected reply")

// TraceSample is one `info depth ... pv ...` observation from a search.
type TraceSample struct {
	Depth int
	Move  string // first pv move, UCI notation
}

// Reply is the parsed outcome of one search request.
type Reply struct {
	BestMove string
	ScoreCP  int
	Mate     bool
	MateIn   int
	Depth    int
	HasScore bool
	Trace    []TraceSample
}

// Value returns the reply score as a centipawn-comparable value, mate
// distances converted via MateDistanceToValue.
func (r Reply) Value() int {
	if r.Mate {
		return MateDistanceToValue(r.MateIn)
	}
	return r.ScoreCP
}

// Session is a line-oriented exchange with one engine process.
type Session struct {
	name string
	cmd  *exec.Cmd
	in   io.WriteCloser
	out  *bufio.Scanner
	log  zerolog.Logger
}

// Open spawns the engine and completes the uci handshake, capturing the
// `id name` reply. Callers must Close the session on every exit path.
func Open(path string, log zerolog.Logger) (*Session, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd: cmd,
		in:  stdin,
		out: bufio.NewScanner(stdout),
		log: log,
	}
	if err := s.send("uci"); err != nil {
		s.Close()
		return nil, err
	}
	name, err := readHandshake(s.out, defaultName(path))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.name = name
	s.log.Debug().Str("engine", name).Msg("handshake complete")
	return s, nil
}

// defaultName is the id-name fallback when the engine never identifies
// itself: the executable filename minus its extension.
func defaultName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Name returns the engine id name captured during the handshake.
func (s *Session) Name() string {
	return s.name
}

// Configure sets the Hash and Threads options and waits for readyok.
// Must run before any go/eval command.
func (s *Session) Configure(hashMB, threads int) error {
	if err := s.send(fmt.Sprintf("setoption name Hash value %d", hashMB)); err != nil {
		return err
	}
	if err := s.send(fmt.Sprintf("setoption name Threads value %d", threads)); err != nil {
		return err
	}
	return s.Ready()
}

// ConfigureBook points the engine at its opening book and pins it to one
// thread, then waits for readyok.
func (s *Session) ConfigureBook(bookPath string) error {
	if err := s.send(fmt.Sprintf("setoption name BookPath value %s", bookPath)); err != nil {
		return err
	}
	if err := s.send("setoption name Threads value 1"); err != nil {
		return err
	}
	return s.Ready()
}

// Ready issues isready and blocks until readyok.
func (s *Session) Ready() error {
	if err := s.send("isready"); err != nil {
		return err
	}
	return readUntil(s.out, "readyok")
}

// SetPosition resets the engine game state and loads a FEN.
func (s *Session) SetPosition(fen string) error {
	if err := s.send("ucinewgame"); err != nil {
		return err
	}
	return s.send("position fen " + fen)
}

// Search runs `go movetime` and consumes lines until bestmove, extracting
// score, depth and, when collectTrace is set, the per-depth pv samples.
func (s *Session) Search(movetimeMs int, collectTrace bool) (Reply, error) {
	if err := s.send(fmt.Sprintf("go movetime %d", movetimeMs)); err != nil {
		return Reply{}, err
	}
	return readSearchReply(s.out, collectTrace)
}

// StaticEval runs the engine's `eval` command and parses the
// `Total Evaluation:` line into white-POV pawn units.
func (s *Session) StaticEval() (float64, error) {
	if err := s.send("eval"); err != nil {
		return 0, err
	}
	return readStaticEval(s.out)
}

// BookProbe runs a short search and reports whether the returned move came
// from the engine's book: a book hit never emits an `info depth` line
// before bestmove.
func (s *Session) BookProbe(movetimeMs int) (move string, fromBook bool, err error) {
	if err := s.send(fmt.Sprintf("go movetime %d", movetimeMs)); err != nil {
		return "", false, err
	}
	return readBookProbe(s.out)
}

// Close sends quit and waits for the process to exit. Safe to call more
// than once.
func (s *Session) Close() error {
	if s.cmd == nil {
		return nil
	}
	_ = s.send("quit")
	_ = s.in.Close()
	err := s.cmd.Wait()
	s.cmd = nil
	return err
}

func (s *Session) send(line string) error {
	if _, err := io.WriteString(s.in, line+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", line, err)
	}
	return nil
}

// readHandshake consumes lines until uciok, capturing an `id name` line if
// one appears.
func readHandshake(sc *bufio.Scanner, fallback string) (string, error) {
	name := fallback
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.Contains(line, "id name ") {
			fields := strings.Fields(line)
			if len(fields) > 2 {
				name = strings.Join(fields[2:], " ")
			}
		}
		if strings.Contains(line, "uciok") {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: uciok", ErrProtocol)
}

// readUntil consumes lines until one contains token.
func readUntil(sc *bufio.Scanner, token string) error {
	for sc.Scan() {
		if strings.Contains(sc.Text(), token) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProtocol, token)
}

// readSearchReply consumes lines until bestmove. Bound lines
// (upperbound/lowerbound) never contribute trace samples.
func readSearchReply(sc *bufio.Scanner, collectTrace bool) (Reply, error) {
	var r Reply
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		fields := strings.Fields(line)

		if collectTrace &&
			strings.Contains(line, "info depth ") && strings.Contains(line, " pv ") &&
			!strings.Contains(line, "upperbound") && !strings.Contains(line, "lowerbound") {
			depth, dok := fieldAfter(fields, "depth", 1)
			mv, mok := fieldAfter(fields, "pv", 1)
			if dok && mok {
				if d, err := strconv.Atoi(depth); err == nil {
					r.Trace = append(r.Trace, TraceSample{Depth: d, Move: mv})
				}
			}
		}
		if strings.Contains(line, "score cp ") {
			if v, ok := intFieldAfter(fields, "score", 2); ok {
				r.ScoreCP, r.Mate, r.HasScore = v, false, true
			}
		}
		if strings.Contains(line, "score mate ") {
			if v, ok := intFieldAfter(fields, "score", 2); ok {
				r.MateIn, r.Mate, r.HasScore = v, true, true
			}
		}
		if strings.Contains(line, "depth ") {
			if v, ok := intFieldAfter(fields, "depth", 1); ok {
				r.Depth = v
			}
		}
		if strings.Contains(line, "bestmove ") {
			if len(fields) < 2 {
				return r, fmt.Errorf("uci: malformed bestmove line %q", line)
			}
			r.BestMove = fields[1]
			return r, nil
		}
	}
	return r, fmt.Errorf("%w: bestmove", ErrProtocol)
}

// readStaticEval consumes lines until `Total Evaluation:` and parses the
// numeric field preceding the parenthesized remainder.
func readStaticEval(sc *bufio.Scanner) (float64, error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.Contains(line, "Total Evaluation:") {
			continue
		}
		if i := strings.Index(line, "("); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return 0, fmt.Errorf("uci: malformed eval line %q", line)
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return 0, fmt.Errorf("uci: parse eval %q: %w", fields[2], err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: Total Evaluation", ErrProtocol)
}

// readBookProbe consumes lines until bestmove, tracking whether any
// `info depth` line appeared. No info depth means the move is a book move.
func readBookProbe(sc *bufio.Scanner) (string, bool, error) {
	sawInfoDepth := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.Contains(line, "info depth") {
			sawInfoDepth = true
		}
		if strings.Contains(line, "bestmove ") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return "", false, fmt.Errorf("uci: malformed bestmove line %q", line)
			}
			return fields[1], !sawInfoDepth, nil
		}
	}
	return "", false, fmt.Errorf("%w: bestmove", ErrProtocol)
}

// fieldAfter returns the field offset positions after the first exact
// occurrence of key.
func fieldAfter(fields []string, key string, offset int) (string, bool) {
	for i, f := range fields {
		if f == key {
			if i+offset < len(fields) {
				return fields[i+offset], true
			}
			return "", false
		}
	}
	return "", false
}

func intFieldAfter(fields []string, key string, offset int) (int, bool) {
	s, ok := fieldAfter(fields, key, offset)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
