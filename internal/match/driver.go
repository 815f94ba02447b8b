package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jaydenshi99/sharkbench/internal/board"
	"github.com/jaydenshi99/sharkbench/internal/uci"
)

// gameConfig describes one game between two engines. The driver owns both
// handles for the duration of the game and tears them down on every path.
type gameConfig struct {
	matchID uuid.UUID
	gameID  uuid.UUID
	index   int

	white uci.Identity
	black uci.Identity

	launch      func(uci.Identity) (Player, error)
	options     map[string]string
	startFEN    string
	moveTime    time.Duration
	initTimeout time.Duration
	maxPlies    int

	log zerolog.Logger
}

// playGame drives one complete game to a terminal result. Engine
// malfunction of any kind is folded into the GameResult; a non-nil error is
// returned only for context cancellation or configuration problems, which
// abort the match.
func playGame(ctx context.Context, cfg gameConfig) (GameResult, error) {
	tracker, err := board.NewTracker(cfg.startFEN)
	if err != nil {
		return GameResult{}, err
	}

	base := GameResult{
		MatchID:  cfg.matchID,
		GameID:   cfg.gameID,
		Index:    cfg.index,
		White:    cfg.white.Name,
		Black:    cfg.black.Name,
		StartFEN: cfg.startFEN,
	}

	// Initializing: launch and prepare both engines. Preparation runs in
	// parallel; the failing side, not its opponent, is charged with the
	// loss.
	var whiteP, blackP Player
	var whiteErr, blackErr error
	var g errgroup.Group
	g.Go(func() error {
		whiteP, whiteErr = startPlayer(cfg, cfg.white)
		return whiteErr
	})
	g.Go(func() error {
		blackP, blackErr = startPlayer(cfg, cfg.black)
		return blackErr
	})
	initErr := g.Wait()

	defer func() {
		if whiteP != nil {
			whiteP.Shutdown()
		}
		if blackP != nil {
			blackP.Shutdown()
		}
	}()

	if initErr != nil {
		// An engine that cannot complete its pre-game exchange is scored
		// as a crash whatever form the failure took; the game never
		// started, so no move clock was running. White is charged first
		// when both sides fail.
		if whiteErr != nil {
			return lossResult(base, tracker, board.White, ReasonCrash, whiteErr), nil
		}
		return lossResult(base, tracker, board.Black, ReasonCrash, blackErr), nil
	}

	for {
		if state, winner, over := tracker.Terminal(); over {
			return ruleResult(base, tracker, state, winner), nil
		}
		if cfg.maxPlies > 0 && tracker.PlyCount() >= cfg.maxPlies {
			base.Moves = tracker.Moves()
			base.Outcome = OutcomeDraw
			base.Reason = ReasonDrawRule
			base.Comment = fmt.Sprintf("adjudicated draw after %d plies", tracker.PlyCount())
			return base, nil
		}
		select {
		case <-ctx.Done():
			return GameResult{}, ctx.Err()
		default:
		}

		color := tracker.SideToMove()
		mover := whiteP
		if color == board.Black {
			mover = blackP
		}

		// Full position resync every turn; engines that cannot track
		// incremental state stay consistent.
		if err := mover.SetPosition(cfg.startFEN, tracker.Moves()); err != nil {
			return lossResult(base, tracker, color, classify(err), err), nil
		}
		move, err := mover.Search(cfg.moveTime)
		if err != nil {
			return lossResult(base, tracker, color, classify(err), err), nil
		}
		if err := tracker.Apply(move); err != nil {
			if errors.Is(err, board.ErrIllegalMove) {
				return lossResult(base, tracker, color, ReasonIllegalMove, err), nil
			}
			return GameResult{}, err
		}
		cfg.log.Debug().
			Int("game", cfg.index).
			Int("ply", tracker.PlyCount()).
			Str("side", color.String()).
			Str("move", move).
			Msg("move applied")
	}
}

// startPlayer launches one engine and runs its pre-game exchange.
func startPlayer(cfg gameConfig, id uci.Identity) (Player, error) {
	p, err := cfg.launch(id)
	if err != nil {
		return nil, err
	}
	if err := p.Prepare(cfg.options, cfg.initTimeout); err != nil {
		// The handle stays non-nil so the caller's teardown still runs.
		return p, err
	}
	return p, nil
}

// classify maps an engine failure onto a termination reason. Protocol
// violations and process exits are both scored as crashes; only a missed
// deadline is a timeout.
func classify(err error) Reason {
	if errors.Is(err, uci.ErrTimeout) {
		return ReasonTimeout
	}
	return ReasonCrash
}

// lossResult charges the game to the given side. A malfunction is never a
// draw: the opponent cannot be blamed for it.
func lossResult(base GameResult, tracker *board.Tracker, loser board.Color, reason Reason, cause error) GameResult {
	base.Moves = tracker.Moves()
	base.Reason = reason
	base.Comment = cause.Error()
	if loser == board.White {
		base.Outcome = OutcomeBlackWin
		base.Offender = base.White
	} else {
		base.Outcome = OutcomeWhiteWin
		base.Offender = base.Black
	}
	return base
}

// ruleResult converts the tracker's terminal verdict into a result. The
// tracker is authoritative: whatever the engines believed about the
// position, the game ends exactly when it says so.
func ruleResult(base GameResult, tracker *board.Tracker, state board.State, winner board.Color) GameResult {
	base.Moves = tracker.Moves()
	switch state {
	case board.StateCheckmate:
		base.Reason = ReasonCheckmate
		if winner == board.White {
			base.Outcome = OutcomeWhiteWin
		} else {
			base.Outcome = OutcomeBlackWin
		}
	case board.StateStalemate:
		base.Reason = ReasonStalemate
		base.Outcome = OutcomeDraw
	default:
		base.Reason = ReasonDrawRule
		base.Outcome = OutcomeDraw
	}
	return base
}
