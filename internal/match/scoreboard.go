package match

import (
	"fmt"
	"math"
	"strings"
)

// Scoreboard aggregates results for one match. It is owned by the
// orchestrator and updated exactly once per completed game; updates are
// never rolled back.
type Scoreboard struct {
	EngineA string
	EngineB string

	WinsA    int
	WinsB    int
	Draws    int
	CrashesA int
	CrashesB int
	Games    int
}

// NewScoreboard returns an empty scoreboard for the two named engines.
func NewScoreboard(engineA, engineB string) *Scoreboard {
	return &Scoreboard{EngineA: engineA, EngineB: engineB}
}

// Update folds one finished game into the tallies. Crash and timeout
// terminations additionally increment the offender's crash counter, so a
// consistently malfunctioning engine is visible in aggregate.
func (s *Scoreboard) Update(r GameResult) {
	s.Games++
	switch r.Outcome {
	case OutcomeDraw:
		s.Draws++
	case OutcomeWhiteWin:
		if r.White == s.EngineA {
			s.WinsA++
		} else {
			s.WinsB++
		}
	case OutcomeBlackWin:
		if r.Black == s.EngineA {
			s.WinsA++
		} else {
			s.WinsB++
		}
	}
	if r.Reason == ReasonCrash || r.Reason == ReasonTimeout {
		switch r.Offender {
		case s.EngineA:
			s.CrashesA++
		case s.EngineB:
			s.CrashesB++
		}
	}
}

// ScoreLine renders the running score from engine A's perspective, in the
// conventional wins-losses-draws form.
func (s *Scoreboard) ScoreLine() string {
	return fmt.Sprintf("%d - %d - %d", s.WinsA, s.WinsB, s.Draws)
}

// Stats holds match statistics from engine A's perspective.
type Stats struct {
	WinningFraction float64
	EloDifference   float64
	LOS             float64
}

// Stats computes the winning fraction, Elo difference, and likelihood of
// superiority for engine A.
// https://www.chessprogramming.org/Match_Statistics
func (s *Scoreboard) Stats() Stats {
	return computeStats(s.WinsA, s.WinsB, s.Draws)
}

func computeStats(wins, losses, draws int) Stats {
	games := wins + losses + draws
	if games == 0 {
		return Stats{WinningFraction: 0.5, LOS: 0.5}
	}
	fraction := (float64(wins) + 0.5*float64(draws)) / float64(games)
	var elo float64
	switch {
	case fraction <= 0:
		elo = math.Inf(-1)
	case fraction >= 1:
		elo = math.Inf(1)
	default:
		elo = -math.Log(1/fraction-1) * 400 / math.Ln10
	}
	los := 0.5
	if wins+losses > 0 {
		los = 0.5 + 0.5*math.Erf(float64(wins-losses)/math.Sqrt(2*float64(wins+losses)))
	}
	return Stats{WinningFraction: fraction, EloDifference: elo, LOS: los}
}

// Summary renders the final human-readable report.
func (s *Scoreboard) Summary() string {
	var sb strings.Builder
	line := strings.Repeat("=", 60)
	fmt.Fprintln(&sb, line)
	fmt.Fprintln(&sb, "MATCH RESULTS")
	fmt.Fprintln(&sb, line)
	fmt.Fprintf(&sb, "Total games:      %d\n", s.Games)
	fmt.Fprintf(&sb, "%s wins: %d\n", pad(s.EngineA), s.WinsA)
	fmt.Fprintf(&sb, "%s wins: %d\n", pad(s.EngineB), s.WinsB)
	fmt.Fprintf(&sb, "Draws:            %d\n", s.Draws)
	fmt.Fprintf(&sb, "%s crashes: %d\n", pad(s.EngineA), s.CrashesA)
	fmt.Fprintf(&sb, "%s crashes: %d\n", pad(s.EngineB), s.CrashesB)
	if s.Games > 0 {
		stats := s.Stats()
		fmt.Fprintf(&sb, "Score (%s): %.1f%%, Elo diff: %+.1f, LOS: %.1f%%\n",
			s.EngineA,
			stats.WinningFraction*100,
			stats.EloDifference,
			stats.LOS*100)
	}
	fmt.Fprint(&sb, line)
	return sb.String()
}

func pad(name string) string {
	if len(name) < 12 {
		return name + strings.Repeat(" ", 12-len(name))
	}
	return name
}
