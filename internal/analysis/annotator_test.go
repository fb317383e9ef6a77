package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// stubEngine writes a shell script that speaks just enough UCI for the
// orchestrator: fixed id name, cp 30 on every search, best move e2e4 for
// White and e7e5 for Black, and a constant static eval.
func stubEngine(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
side=w
while read -r line; do
  case "$line" in
    uci)
      echo "id name StubEngine 1.0"
      echo "uciok"
      ;;
    isready)
      echo "readyok"
      ;;
    position\ fen\ *)
      rest=${line#position fen }
      set -- $rest
      side=$2
      ;;
    go\ *)
      if [ "$side" = "b" ]; then mv=e7e5; else mv=e2e4; fi
      echo "info depth 20 seldepth 25 multipv 1 score cp 30 nodes 1000 pv $mv"
      echo "bestmove $mv"
      ;;
    eval)
      echo "Total Evaluation: 0.30 (white side)"
      ;;
    quit)
      exit 0
      ;;
  esac
done
`
	path := filepath.Join(t.TempDir(), "stub-engine.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub engine: %v", err)
	}
	return path
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func runJob(t *testing.T, cfg Config) string {
	t.Helper()
	cfg.OutputPath = filepath.Join(t.TempDir(), "out.txt")
	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return string(data)
}

const testEPD = `rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - bm e5; id "open";`

func TestAnnotateEPDSearch(t *testing.T) {
	got := runJob(t, Config{
		InputPath:  writeInput(t, "in.epd", testEPD+"\n"),
		EnginePath: stubEngine(t),
		Eval:       EvalSearch,
		MoveTimeMs: 2000,
	})
	want := `rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - acd 20; acs 2; bm e5; ce +30; Ae "StubEngine 1.0";` + "\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestAnnotateEPDStatic(t *testing.T) {
	got := runJob(t, Config{
		InputPath:  writeInput(t, "in.epd", testEPD+"\n"),
		EnginePath: stubEngine(t),
		Eval:       EvalStatic,
		MoveTimeMs: 2000,
	})
	// Black to move: the engine's +0.30 white-POV eval flips to -30 side-POV
	// centipawns.
	want := `rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - ce -30; c0 "ce is static eval of engine"; Ae "StubEngine 1.0";` + "\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestTestEPD(t *testing.T) {
	got := runJob(t, Config{
		InputPath:  writeInput(t, "in.epd", testEPD+"\n"),
		EnginePath: stubEngine(t),
		Eval:       EvalSearch,
		Job:        JobTest,
		MoveTimeMs: 2000,
	})
	for _, want := range []string{
		"Engine        : StubEngine 1.0\n",
		"Total epd lines       : 1\n",
		"Total tested positions: 1\n",
		"Total correct         : 1\n",
		"Correct percentage    : 100.0\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestAnnotatePGNSearch(t *testing.T) {
	pgn := "[Event \"Test\"]\n[Result \"*\"]\n\n1. e4 e5 *\n"
	got := runJob(t, Config{
		InputPath:  writeInput(t, "in.pgn", pgn),
		EnginePath: stubEngine(t),
		Eval:       EvalSearch,
		MoveTimeMs: 2000,
		MoveStart:  1,
	})
	for _, want := range []string{
		"[Annotator \"StubEngine 1.0\"]\n\n",
		"{Hash 32mb, Threads 1, @ 2.0s/pos}\n",
		// Both moves match the stub's own choice: glyph $0 and the post-move
		// score, negated to white POV.
		"1. e4 $0 {-0.30} e5 $0 {+0.30} ",
		"*\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestRunRejectsUnknownInput(t *testing.T) {
	a, err := New(Config{
		InputPath:  "games.txt",
		OutputPath: filepath.Join(t.TempDir(), "out.txt"),
		EnginePath: stubEngine(t),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run accepted a non-pgn, non-epd input")
	}
}

func TestKindOfInput(t *testing.T) {
	tests := []struct {
		path string
		want InputKind
	}{
		{"games.pgn", InputPGN},
		{"games.PGN", InputPGN},
		{"games.pgn.zst", InputPGN},
		{"suite.epd", InputEPD},
		{"suite.epd.zst", InputEPD},
		{"games.txt", InputUnknown},
		{"games", InputUnknown},
	}
	for _, tt := range tests {
		if got := KindOfInput(tt.path); got != tt.want {
			t.Errorf("KindOfInput(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Book != BookNone || cfg.Eval != EvalStatic || cfg.Job != JobAnalyze {
		t.Errorf("mode defaults = %v/%v/%v", cfg.Book, cfg.Eval, cfg.Job)
	}
	if cfg.HashMB != 32 || cfg.Threads != 1 || cfg.MoveStart != 8 {
		t.Errorf("engine defaults = %d/%d/%d", cfg.HashMB, cfg.Threads, cfg.MoveStart)
	}
	if cfg.BookMoveLimit != 30 || cfg.BookSearchTimeMs != 200 || cfg.WinScore != 6.0 {
		t.Errorf("book defaults = %d/%d/%v", cfg.BookMoveLimit, cfg.BookSearchTimeMs, cfg.WinScore)
	}
}

func TestParseModes(t *testing.T) {
	if _, err := ParseBookMode("cerebellum"); err != nil {
		t.Errorf("ParseBookMode(cerebellum): %v", err)
	}
	if _, err := ParseBookMode("polyglot"); err == nil {
		t.Error("ParseBookMode accepted polyglot")
	}
	if _, err := ParseEvalMode("search"); err != nil {
		t.Errorf("ParseEvalMode(search): %v", err)
	}
	if _, err := ParseEvalMode("deep"); err == nil {
		t.Error("ParseEvalMode accepted deep")
	}
	if _, err := ParseJobMode("test"); err != nil {
		t.Errorf("ParseJobMode(test): %v", err)
	}
	if _, err := ParseJobMode("bench"); err == nil {
		t.Error("ParseJobMode accepted bench")
	}
}
