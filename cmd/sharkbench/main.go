package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jaydenshi99/sharkbench/internal/logx"
	"github.com/jaydenshi99/sharkbench/internal/match"
	"github.com/jaydenshi99/sharkbench/internal/pgnarchive"
	"github.com/jaydenshi99/sharkbench/internal/uci"
)

func main() {
	var (
		engine1  = flag.String("engine1", "", "Path to the first engine executable")
		engine2  = flag.String("engine2", "", "Path to the second engine executable")
		name1    = flag.String("name1", "", "Display name for engine 1 (default: executable name)")
		name2    = flag.String("name2", "", "Display name for engine 2 (default: executable name)")
		args1    = flag.String("args1", "", "Extra arguments passed to engine 1")
		args2    = flag.String("args2", "", "Extra arguments passed to engine 2")
		games    = flag.Int("n", 10, "Number of games to play")
		moveSecs = flag.Float64("t", 0.1, "Time per move in seconds")
		startFEN = flag.String("fen", "", "Starting position FEN (default: standard start)")
		output   = flag.String("out", "", "Archive path, .pgn or .pgn.zst (default: match_<unix>.pgn)")
		maxPlies = flag.Int("max-plies", 400, "Adjudicate a draw after this many plies")
		threads  = flag.Int("threads", 1, "Threads option sent to both engines")
		verbose  = flag.Bool("v", false, "Verbose logging")
		quiet    = flag.Bool("quiet", false, "Only log warnings and errors")
	)
	flag.Parse()

	if *engine1 == "" || *engine2 == "" {
		fmt.Fprintln(os.Stderr, "Usage: sharkbench -engine1 <path> -engine2 <path> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.New(logx.Level(*verbose, *quiet))

	idA := uci.Identity{Name: engineName(*name1, *engine1), Path: *engine1, Args: strings.Fields(*args1)}
	idB := uci.Identity{Name: engineName(*name2, *engine2), Path: *engine2, Args: strings.Fields(*args2)}
	moveTime := time.Duration(*moveSecs * float64(time.Second))

	archivePath := *output
	if archivePath == "" {
		archivePath = pgnarchive.DefaultPath()
	}
	event := fmt.Sprintf("%s vs %s", idA.Name, idB.Name)
	archive, err := pgnarchive.NewWriter(archivePath, event, moveTime, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open archive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sb, runErr := match.Run(ctx, match.Config{
		EngineA:  idA,
		EngineB:  idB,
		Games:    *games,
		MoveTime: moveTime,
		StartFEN: *startFEN,
		MaxPlies: *maxPlies,
		Options:  map[string]string{"Threads": fmt.Sprint(*threads)},
		Recorder: archive,
		Logger:   logger,
	})
	if err := archive.Close(); err != nil {
		logger.Error().Err(err).Msg("close archive")
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn().Msg("match interrupted, partial results follow")
		} else {
			logger.Fatal().Err(runErr).Msg("match failed")
		}
	}

	if sb != nil {
		fmt.Println()
		fmt.Println(sb.Summary())
		fmt.Printf("\nGames saved to: %s\n", archivePath)
	}
}

// engineName prefers the explicit name flag and falls back to the
// executable's base name without extension.
func engineName(name, path string) string {
	if name != "" {
		return name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
