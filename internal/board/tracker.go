// Package board tracks the state of one chess game and answers the legality
// and terminal-state questions the match driver asks each ply. All chess
// rules are delegated to notnil/chess; this package only adapts its API to
// the UCI long-algebraic moves engines speak.
package board

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"
)

// ErrIllegalMove is returned by Apply when a move does not parse as UCI
// long algebraic or is not legal in the current position.
var ErrIllegalMove = errors.New("illegal move")

// Color identifies a side.
type Color int8

const (
	NoColor Color = iota
	White
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	}
	return "none"
}

// Other returns the opposing side.
func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	}
	return NoColor
}

// State classifies a finished game.
type State int8

const (
	StateOngoing State = iota
	StateCheckmate
	StateStalemate
	StateDrawRule
)

func (s State) String() string {
	switch s {
	case StateCheckmate:
		return "checkmate"
	case StateStalemate:
		return "stalemate"
	case StateDrawRule:
		return "draw rule"
	}
	return "ongoing"
}

// Tracker holds one game's position as the append-only sequence of moves
// applied since the start. Moves are never retracted.
type Tracker struct {
	game     *chess.Game
	startFEN string
	moves    []string
}

// NewTracker starts a game from startFEN, or from the standard starting
// position when startFEN is empty.
func NewTracker(startFEN string) (*Tracker, error) {
	t := &Tracker{startFEN: startFEN}
	if startFEN == "" {
		t.game = chess.NewGame()
		return t, nil
	}
	fen, err := chess.FEN(startFEN)
	if err != nil {
		return nil, fmt.Errorf("parse FEN %q: %w", startFEN, err)
	}
	t.game = chess.NewGame(fen)
	return t, nil
}

// SideToMove returns the color whose turn it is.
func (t *Tracker) SideToMove() Color {
	if t.game.Position().Turn() == chess.White {
		return White
	}
	return Black
}

// LegalMoves returns the legal moves of the current position in UCI
// notation.
func (t *Tracker) LegalMoves() []string {
	pos := t.game.Position()
	valid := pos.ValidMoves()
	moves := make([]string, len(valid))
	for i, m := range valid {
		moves[i] = chess.UCINotation{}.Encode(pos, m)
	}
	return moves
}

// Apply validates uciMove against the current position and plays it,
// returning ErrIllegalMove when it does not parse or is not in the legal
// move set. After a legal move, draws the side to move is entitled to claim
// (threefold repetition, fifty-move rule) are claimed immediately.
func (t *Tracker) Apply(uciMove string) error {
	pos := t.game.Position()
	move, err := chess.UCINotation{}.Decode(pos, uciMove)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIllegalMove, uciMove, err)
	}
	if err := t.game.Move(move); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIllegalMove, uciMove, err)
	}
	t.moves = append(t.moves, uciMove)
	t.claimDraws()
	return nil
}

// claimDraws claims a repetition or fifty-move draw as soon as one becomes
// available. The match is unattended, so claimable draws are adjudicated
// rather than left to the engines.
func (t *Tracker) claimDraws() {
	if t.game.Outcome() != chess.NoOutcome {
		return
	}
	for _, method := range t.game.EligibleDraws() {
		if method == chess.ThreefoldRepetition || method == chess.FiftyMoveRule {
			_ = t.game.Draw(method)
			return
		}
	}
}

// Terminal reports whether the game is over, and if so how. winner is
// NoColor for draws.
func (t *Tracker) Terminal() (state State, winner Color, over bool) {
	switch t.game.Outcome() {
	case chess.NoOutcome:
		return StateOngoing, NoColor, false
	case chess.WhiteWon:
		winner = White
	case chess.BlackWon:
		winner = Black
	}
	switch t.game.Method() {
	case chess.Checkmate:
		state = StateCheckmate
	case chess.Stalemate:
		state = StateStalemate
	default:
		// Repetition, fifty/seventy-five move, insufficient material.
		state = StateDrawRule
	}
	return state, winner, true
}

// Moves returns the applied move list in UCI notation, from the game start.
func (t *Tracker) Moves() []string { return t.moves }

// PlyCount returns the number of plies applied so far.
func (t *Tracker) PlyCount() int { return len(t.moves) }

// StartFEN returns the configured starting position, empty for the
// standard start.
func (t *Tracker) StartFEN() string { return t.startFEN }

// FEN returns the current position.
func (t *Tracker) FEN() string { return t.game.Position().String() }
