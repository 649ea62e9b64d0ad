// Package stats implements the Stats Accumulator (C3): folding one
// completed match into each participant's PlayerStats, idempotently by
// matchId (spec §4.3).
package stats

import (
	"time"

	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/rating"
	"github.com/rpsarena/match-engine/internal/rules"
)

// Result is a player's outcome for one match, from that player's side.
type Result int

const (
	Won Result = iota
	Lost
	Drawn
)

// Apply is the entry point the Match Registry calls on a just-terminal
// match (spec §4.3's "Consumes a completed match"). It derives each
// player's per-round move/win history from the match's RoundHistory, folds
// it into both players' stats, and returns each player's updated rating.
// Calling Apply twice with the same matchID is a no-op for a player whose
// stats already carry that matchID as LastAppliedMatchID — the idempotence
// spec §4.3 and §8 require.
func Apply(ratingCfg rating.Config, m *domain.Match, p1Stats, p2Stats domain.PlayerStats, p1Rating, p2Rating int) (domain.PlayerStats, domain.PlayerStats, int, int) {
	p1Result, p2Result := deriveResults(m)

	completedAt := time.Now()
	if m.CompletedAt != nil {
		completedAt = *m.CompletedAt
	}

	// Both players are rated against the opponent's pre-match rating, so
	// the two deltas come from the same inputs and stay zero-sum.
	p1Before, p2Before := p1Rating, p2Rating
	if m.MatchID == "" || p1Stats.LastAppliedMatchID != m.MatchID {
		p1Stats = foldRounds(p1Stats, m, true)
		p1Stats, p1Rating = applyOutcome(ratingCfg, p1Stats, p1Rating, p2Before, m.MatchID, p1Result, completedAt)
	}
	if m.MatchID == "" || p2Stats.LastAppliedMatchID != m.MatchID {
		p2Stats = foldRounds(p2Stats, m, false)
		p2Stats, p2Rating = applyOutcome(ratingCfg, p2Stats, p2Rating, p1Before, m.MatchID, p2Result, completedAt)
	}

	return p1Stats, p2Stats, p1Rating, p2Rating
}

func deriveResults(m *domain.Match) (Result, Result) {
	switch m.State {
	case domain.Completed:
		if m.WinnerID == m.Player1ID {
			return Won, Lost
		}
		return Lost, Won
	default:
		// TimedOut with neither player submitting: spec §9's open
		// question is resolved as a played draw for both participants.
		return Drawn, Drawn
	}
}

func foldRounds(s domain.PlayerStats, m *domain.Match, isPlayer1 bool) domain.PlayerStats {
	for _, r := range m.RoundHistory {
		var mv rules.Move
		var won bool
		if isPlayer1 {
			mv = r.P1Move
			won = r.Outcome == rules.P1Win
		} else {
			mv = r.P2Move
			won = r.Outcome == rules.P2Win
		}
		if !mv.Valid() {
			continue // the forfeited side contributed no move this round
		}
		accumulateMove(&s.Moves, mv, won)
	}
	return s
}

func accumulateMove(h *domain.MoveHistogram, mv rules.Move, won bool) {
	switch mv {
	case rules.Rock:
		h.RockPlayed++
		if won {
			h.RockWon++
		}
	case rules.Paper:
		h.PaperPlayed++
		if won {
			h.PaperWon++
		}
	case rules.Scissors:
		h.ScissorsPlayed++
		if won {
			h.ScissorsWon++
		}
	}
}

func applyOutcome(ratingCfg rating.Config, s domain.PlayerStats, playerRating, opponentRating int, matchID string, result Result, completedAt time.Time) (domain.PlayerStats, int) {
	if matchID != "" && s.LastAppliedMatchID == matchID {
		return s, playerRating
	}

	s.GamesPlayed++
	switch result {
	case Won:
		s.GamesWon++
		s.CurrentWinStreak++
		s.CurrentLossStreak = 0
		if s.CurrentWinStreak > s.BestWinStreak {
			s.BestWinStreak = s.CurrentWinStreak
		}
	case Lost:
		s.GamesLost++
		s.CurrentLossStreak++
		s.CurrentWinStreak = 0
		if s.CurrentLossStreak > s.WorstLossStreak {
			s.WorstLossStreak = s.CurrentLossStreak
		}
	case Drawn:
		s.GamesDrawn++
		// Streaks freeze across draws: spec §9 resolves the source's
		// inconsistency by leaving both current streaks untouched.
	}

	completed := completedAt
	s.LastGameAt = &completed

	newRating := playerRating
	if result != Drawn {
		outcome := rules.P2Win
		if result == Won {
			outcome = rules.P1Win
		}
		deltas := rating.Update(ratingCfg, playerRating, opponentRating, outcome)
		newRating = playerRating + deltas.Delta1
		if result == Won {
			s.LastWinAt = &completed
		}
	}

	if matchID != "" {
		s.LastAppliedMatchID = matchID
	}

	return s, newRating
}
