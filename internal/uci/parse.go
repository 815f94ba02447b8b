package uci

import (
	"fmt"
	"strings"
)

// parseBestMove extracts the move from a "bestmove <move> [ponder <move>]"
// line. Engines report "(none)" or "0000" when they have no move, which is
// unusable for match play and treated as a protocol violation.
func parseBestMove(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", fmt.Errorf("%w: bad bestmove line %q", ErrProtocol, line)
	}
	move := fields[1]
	if move == "(none)" || move == "0000" {
		return "", fmt.Errorf("%w: engine reported no move in %q", ErrProtocol, line)
	}
	return move, nil
}

// parseIDName extracts the engine name from an "id name <name>" line.
func parseIDName(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "id" || fields[1] != "name" {
		return "", false
	}
	return strings.Join(fields[2:], " "), true
}
