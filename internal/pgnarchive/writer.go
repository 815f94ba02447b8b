// Package pgnarchive formats finished games as PGN and appends them to the
// match archive file. It is the persistence collaborator of the match
// orchestrator: it receives completed move lists plus metadata and owns all
// formatting; nothing here influences match play.
package pgnarchive

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/jaydenshi99/sharkbench/internal/match"
)

const movetextWidth = 80

// Writer appends one PGN game per recorded result. Paths ending in .zst
// are zstd-compressed, matching the archive convention for large PGN sets.
type Writer struct {
	path        string
	file        *os.File
	zw          *zstd.Encoder
	out         io.Writer
	event       string
	timeControl string
	log         zerolog.Logger
	games       int
}

// DefaultPath returns a timestamped archive name in the working directory.
func DefaultPath() string {
	return fmt.Sprintf("match_%d.pgn", time.Now().Unix())
}

// NewWriter creates (truncating) the archive at path. moveTime is recorded
// in each game's TimeControl tag.
func NewWriter(path, event string, moveTime time.Duration, logger zerolog.Logger) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	w := &Writer{
		path:        path,
		file:        file,
		out:         file,
		event:       event,
		timeControl: fmt.Sprintf("%gs per move", moveTime.Seconds()),
		log:         logger,
	}
	if strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		w.zw = zw
		w.out = zw
	}
	return w, nil
}

// Path returns the archive location.
func (w *Writer) Path() string { return w.path }

// Record implements match.Recorder.
func (w *Writer) Record(r match.GameResult) error {
	movetext, err := renderMovetext(r.StartFEN, r.Moves)
	if err != nil {
		return fmt.Errorf("game %d: %w", r.Index, err)
	}

	tags := [][2]string{
		{"Event", w.event},
		{"Site", "sharkbench"},
		{"Date", time.Now().Format("2006.01.02")},
		{"Round", strconv.Itoa(r.Index)},
		{"White", r.White},
		{"Black", r.Black},
		{"Result", r.Outcome.String()},
		{"TimeControl", w.timeControl},
		{"Termination", r.Reason.String()},
		{"GameId", r.GameID.String()},
		{"MatchId", r.MatchID.String()},
	}
	if r.StartFEN != "" {
		tags = append(tags, [2]string{"SetUp", "1"}, [2]string{"FEN", r.StartFEN})
	}

	var sb strings.Builder
	for _, tag := range tags {
		fmt.Fprintf(&sb, "[%s %q]\n", tag[0], tag[1])
	}
	sb.WriteString("\n")
	body := movetext
	if body != "" {
		body += " "
	}
	body += r.Outcome.String()
	sb.WriteString(wrap(body, movetextWidth))
	sb.WriteString("\n\n")

	if _, err := io.WriteString(w.out, sb.String()); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	w.games++
	w.log.Debug().Int("game", r.Index).Str("path", w.path).Msg("game archived")
	return nil
}

// Close flushes and closes the archive.
func (w *Writer) Close() error {
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			w.file.Close()
			return fmt.Errorf("close zstd writer: %w", err)
		}
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	w.log.Info().Int("games", w.games).Str("path", w.path).Msg("archive written")
	return nil
}

// renderMovetext replays the UCI move list and renders numbered SAN
// movetext. The moves were validated during play, so a replay failure
// means the record itself is corrupt.
func renderMovetext(startFEN string, uciMoves []string) (string, error) {
	var opts []func(*chess.Game)
	moveNo := 1
	if startFEN != "" {
		fen, err := chess.FEN(startFEN)
		if err != nil {
			return "", fmt.Errorf("replay FEN: %w", err)
		}
		opts = append(opts, fen)
		if fields := strings.Fields(startFEN); len(fields) == 6 {
			if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
				moveNo = n
			}
		}
	}
	game := chess.NewGame(opts...)

	var tokens []string
	for i, uciMove := range uciMoves {
		pos := game.Position()
		move, err := chess.UCINotation{}.Decode(pos, uciMove)
		if err != nil {
			return "", fmt.Errorf("replay move %q: %w", uciMove, err)
		}
		san := chess.AlgebraicNotation{}.Encode(pos, move)
		if pos.Turn() == chess.White {
			tokens = append(tokens, fmt.Sprintf("%d.", moveNo), san)
		} else {
			if i == 0 {
				tokens = append(tokens, fmt.Sprintf("%d...", moveNo), san)
			} else {
				tokens = append(tokens, san)
			}
			moveNo++
		}
		if err := game.Move(move); err != nil {
			return "", fmt.Errorf("replay move %q: %w", uciMove, err)
		}
	}
	return strings.Join(tokens, " "), nil
}

// wrap folds movetext at width columns, breaking only at spaces.
func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}
	var sb strings.Builder
	lineLen := 0
	for i, word := range words {
		if i > 0 {
			if lineLen+1+len(word) > width {
				sb.WriteString("\n")
				lineLen = 0
			} else {
				sb.WriteString(" ")
				lineLen++
			}
		}
		sb.WriteString(word)
		lineLen += len(word)
	}
	return sb.String()
}
