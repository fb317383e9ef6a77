package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/freeeve/annotator/internal/analysis"
	"github.com/freeeve/annotator/internal/logx"
)

func main() {
	defaultEngine := "./stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultEngine = envPath
	}

	var (
		inFile     = flag.String("infile", "", "Input .pgn or .epd file (supports .zst)")
		outFile    = flag.String("outfile", "", "Annotated output file")
		enginePath = flag.String("eng", defaultEngine, "Path to UCI engine executable")
		bookOpt    = flag.String("book", "none", "Book mode: none or cerebellum")
		evalOpt    = flag.String("eval", "static", "Eval mode: none, static or search")
		moveTime   = flag.Int("movetime", 0, "Search time per position in milliseconds")
		engHash    = flag.Int("enghash", 32, "Engine hash size in MB")
		engThreads = flag.Int("engthreads", 1, "Engine thread count")
		moveStart  = flag.Int("movestart", 8, "Full-move number where engine analysis begins")
		jobOpt     = flag.String("job", "analyze", "Job mode: analyze or test")
		bookFile   = flag.String("bookfile", "Cerebellum_Light.bin", "Cerebellum book file for Brainfish engines")
	)
	flag.Parse()

	if *inFile == "" || *outFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: annotate --infile <file.pgn|file.epd> --outfile <file> --eng <engine> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger()

	book, err := analysis.ParseBookMode(*bookOpt)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -book")
	}
	evalMode, err := analysis.ParseEvalMode(*evalOpt)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -eval")
	}
	job, err := analysis.ParseJobMode(*jobOpt)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -job")
	}

	// All configuration problems are fatal before any engine work starts.
	if _, err := os.Stat(*inFile); err != nil {
		logger.Fatal().Str("file", *inFile).Msg("input file is missing")
	}
	if *inFile == *outFile {
		logger.Fatal().Str("file", *inFile).Msg("input and output filename is the same")
	}
	if _, err := os.Stat(*enginePath); err != nil {
		logger.Fatal().Str("file", *enginePath).Msg("engine is missing")
	}

	kind := analysis.KindOfInput(*inFile)
	switch kind {
	case analysis.InputPGN:
		if book == analysis.BookNone && evalMode == analysis.EvalNone {
			logger.Fatal().Msg("nothing to do: both -book and -eval are none")
		}
		if job != analysis.JobAnalyze {
			logger.Fatal().Str("job", *jobOpt).Msg("pgn input requires -job analyze")
		}
	case analysis.InputEPD:
		if *moveTime <= 0 {
			logger.Fatal().Msg("epd input requires -movetime above zero")
		}
		if evalMode == analysis.EvalNone && job != analysis.JobTest {
			logger.Fatal().Msg("epd annotation requires -eval static or search")
		}
	default:
		logger.Fatal().Str("file", *inFile).Msg("input is not an epd or pgn file")
	}

	// A missing book silently downgrades to no book.
	if book == analysis.BookCerebellum {
		if _, err := os.Stat(*bookFile); err != nil {
			book = analysis.BookNone
			logger.Warn().Str("file", *bookFile).Msg("cerebellum book is missing, book disabled")
		}
	}

	// The output is append-only; stale runs must not leak through.
	if err := os.Remove(*outFile); err != nil && !os.IsNotExist(err) {
		logger.Fatal().Err(err).Str("file", *outFile).Msg("remove existing output")
	}

	cfg := analysis.Config{
		InputPath:  *inFile,
		OutputPath: *outFile,
		EnginePath: *enginePath,
		Book:       book,
		Eval:       evalMode,
		Job:        job,
		MoveTimeMs: *moveTime,
		HashMB:     *engHash,
		Threads:    *engThreads,
		MoveStart:  *moveStart,
		BookFile:   *bookFile,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ann, err := analysis.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("start engine")
	}
	logger.Info().Str("engine", ann.EngineName()).Msg("analyzing engine")

	if err := ann.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("annotation failed")
	}
	logger.Info().Msg("done")
}
