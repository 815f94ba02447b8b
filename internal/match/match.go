package match

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jaydenshi99/sharkbench/internal/uci"
)

// Config is the full configuration for one match, populated by the CLI
// layer and passed in as plain parameters.
type Config struct {
	EngineA uci.Identity
	EngineB uci.Identity

	Games    int
	MoveTime time.Duration
	// InitTimeout bounds the handshake and readiness exchange of each
	// engine at game start.
	InitTimeout time.Duration
	// StartFEN is the starting position for every game; empty means the
	// standard start.
	StartFEN string
	// MaxPlies caps game length; once reached the game is adjudicated a
	// draw. Zero selects the default.
	MaxPlies int
	// Options is sent to both engines after the handshake, e.g.
	// constraining them to single-threaded search.
	Options map[string]string

	Recorder Recorder
	Logger   zerolog.Logger

	// Launcher creates the process handle for an identity. Left nil it
	// spawns real subprocesses; tests inject scripted players.
	Launcher func(uci.Identity) (Player, error)
}

const (
	defaultGames       = 10
	defaultMoveTime    = 100 * time.Millisecond
	defaultInitTimeout = 10 * time.Second
	defaultMaxPlies    = 400
)

// Run plays the configured number of games and returns the final
// scoreboard. Engine A takes White in odd-numbered games and engine B in
// even-numbered ones, so colors alternate strictly regardless of results.
// A fresh pair of engine processes is spawned for every game and fully torn
// down before its result is recorded; a single game's crash, timeout, or
// illegal move never aborts the match. Only configuration-time problems
// (missing executable, bad FEN) and context cancellation end the run early,
// in which case the scoreboard of the games played so far is returned
// alongside the error.
func Run(ctx context.Context, cfg Config) (*Scoreboard, error) {
	if cfg.Games <= 0 {
		cfg.Games = defaultGames
	}
	if cfg.MoveTime <= 0 {
		cfg.MoveTime = defaultMoveTime
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaultInitTimeout
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = defaultMaxPlies
	}
	if cfg.Recorder == nil {
		cfg.Recorder = Discard
	}
	log := cfg.Logger

	// Scoreboard attribution is by name; two copies of the same engine
	// need distinct labels.
	if cfg.EngineB.Name == cfg.EngineA.Name {
		cfg.EngineB.Name += " (2)"
	}

	if cfg.Launcher == nil {
		// Launch failures after this point are per-game crashes; a
		// missing or unrunnable executable is fatal before any game
		// starts.
		for _, id := range []uci.Identity{cfg.EngineA, cfg.EngineB} {
			if err := validateExecutable(id.Path); err != nil {
				return nil, fmt.Errorf("%s: %w", id.Name, err)
			}
		}
		cfg.Launcher = func(id uci.Identity) (Player, error) {
			e, err := uci.Launch(id, log)
			if err != nil {
				return nil, err
			}
			return e, nil
		}
	}

	matchID := uuid.New()
	sb := NewScoreboard(cfg.EngineA.Name, cfg.EngineB.Name)
	log.Info().
		Str("match_id", matchID.String()).
		Str("engine_a", cfg.EngineA.Name).
		Str("engine_b", cfg.EngineB.Name).
		Int("games", cfg.Games).
		Dur("move_time", cfg.MoveTime).
		Msg("match started")

	startTime := time.Now()
	for i := 1; i <= cfg.Games; i++ {
		white, black := cfg.EngineA, cfg.EngineB
		if i%2 == 0 {
			white, black = black, white
		}

		gcfg := gameConfig{
			matchID:     matchID,
			gameID:      uuid.New(),
			index:       i,
			white:       white,
			black:       black,
			launch:      cfg.Launcher,
			options:     cfg.Options,
			startFEN:    cfg.StartFEN,
			moveTime:    cfg.MoveTime,
			initTimeout: cfg.InitTimeout,
			maxPlies:    cfg.MaxPlies,
			log:         log,
		}

		log.Info().
			Int("game", i).
			Str("white", white.Name).
			Str("black", black.Name).
			Msg("game started")

		result, err := playGame(ctx, gcfg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Warn().Int("game", i).Msg("match interrupted")
			}
			return sb, err
		}

		// The handles are down by now; the result is safe to publish.
		sb.Update(result)
		if err := cfg.Recorder.Record(result); err != nil {
			log.Warn().Err(err).Int("game", i).Msg("archiving game failed")
		}

		ev := log.Info().
			Int("game", i).
			Str("result", result.Outcome.String()).
			Str("reason", result.Reason.String()).
			Int("plies", len(result.Moves)).
			Str("score", sb.ScoreLine())
		if result.Offender != "" {
			ev = ev.Str("offender", result.Offender)
		}
		if result.Comment != "" {
			ev = ev.Str("detail", result.Comment)
		}
		ev.Msg("game finished")
	}

	stats := sb.Stats()
	log.Info().
		Dur("elapsed", time.Since(startTime)).
		Int("games", sb.Games).
		Float64("win_fraction", stats.WinningFraction).
		Float64("elo_diff", stats.EloDifference).
		Float64("los", stats.LOS).
		Msg("match finished")

	return sb, nil
}

// validateExecutable rejects paths that cannot possibly launch, so a
// misconfigured match fails before any game starts.
func validateExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("engine executable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("engine executable %s is a directory", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("engine executable %s is not executable", path)
	}
	return nil
}
