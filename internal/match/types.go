// Package match runs engine-versus-engine chess matches: a per-game driver
// that alternates timed searches between two engine process handles, and an
// orchestrator that plays N games with alternating colors and aggregates
// the scoreboard.
package match

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the win/loss/draw result of one game.
type Outcome uint8

const (
	OutcomeDraw Outcome = iota
	OutcomeWhiteWin
	OutcomeBlackWin
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWhiteWin:
		return "1-0"
	case OutcomeBlackWin:
		return "0-1"
	}
	return "1/2-1/2"
}

// Reason classifies why a game ended, independent of the outcome.
type Reason uint8

const (
	ReasonCheckmate Reason = iota
	ReasonStalemate
	ReasonDrawRule
	ReasonCrash
	ReasonIllegalMove
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonCheckmate:
		return "checkmate"
	case ReasonStalemate:
		return "stalemate"
	case ReasonDrawRule:
		return "draw rule"
	case ReasonCrash:
		return "crash"
	case ReasonIllegalMove:
		return "illegal move"
	case ReasonTimeout:
		return "timeout"
	}
	return "unknown"
}

// GameResult is the immutable record of one finished game. It is produced
// exactly once per game, after both engine handles have been torn down.
type GameResult struct {
	MatchID uuid.UUID
	GameID  uuid.UUID
	Index   int

	White    string
	Black    string
	StartFEN string
	Moves    []string

	Outcome Outcome
	Reason  Reason
	// Offender names the engine charged with a crash, timeout, or
	// illegal-move loss. Empty for games that ended by rule.
	Offender string
	// Comment carries human-readable detail, such as the underlying
	// protocol error.
	Comment string
}

// Player is what the game driver needs from an engine process handle.
// *uci.Engine implements it; tests substitute scripted fakes.
type Player interface {
	Name() string
	Prepare(options map[string]string, timeout time.Duration) error
	SetPosition(startFEN string, moves []string) error
	Search(moveTime time.Duration) (string, error)
	Shutdown()
}

// Recorder receives each finished game for archival. Implementations own
// all formatting; the driver and orchestrator never touch files.
type Recorder interface {
	Record(result GameResult) error
}

type discardRecorder struct{}

func (discardRecorder) Record(GameResult) error { return nil }

// Discard is a Recorder that drops every game, for archive-less runs.
var Discard Recorder = discardRecorder{}
