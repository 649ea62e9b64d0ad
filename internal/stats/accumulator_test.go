package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/rating"
	"github.com/rpsarena/match-engine/internal/rules"
)

func completedMatch() *domain.Match {
	completed := time.Now()
	return &domain.Match{
		MatchID:   "m1",
		Player1ID: "p1",
		Player2ID: "p2",
		State:     domain.Completed,
		WinnerID:  "p1",
		P1Score:   2,
		P2Score:   1,
		RoundHistory: []domain.Round{
			{P1Move: rules.Rock, P2Move: rules.Scissors, Outcome: rules.P1Win, CompletedAt: completed},
			{P1Move: rules.Paper, P2Move: rules.Paper, Outcome: rules.Draw, CompletedAt: completed},
			{P1Move: rules.Rock, P2Move: rules.Scissors, Outcome: rules.P1Win, CompletedAt: completed},
		},
		CompletedAt: &completed,
	}
}

func TestApplyWinnerAndLoserAreZeroSum(t *testing.T) {
	cfg := rating.DefaultConfig()
	m := completedMatch()

	p1s, p2s, r1, r2 := Apply(cfg, m, domain.ZeroStats("p1"), domain.ZeroStats("p2"), 1200, 1200)

	assert.Equal(t, 1, p1s.GamesPlayed)
	assert.Equal(t, 1, p1s.GamesWon)
	assert.Equal(t, 1, p2s.GamesPlayed)
	assert.Equal(t, 1, p2s.GamesLost)

	assert.Greater(t, r1, 1200, "winner's rating must increase")
	assert.Less(t, r2, 1200, "loser's rating must decrease")
	assert.Zero(t, (r1-1200)+(r2-1200), "rating deltas must be zero-sum")
}

func TestApplyFoldsMoveHistogram(t *testing.T) {
	cfg := rating.DefaultConfig()
	m := completedMatch()

	p1s, p2s, _, _ := Apply(cfg, m, domain.ZeroStats("p1"), domain.ZeroStats("p2"), 1200, 1200)

	assert.Equal(t, 2, p1s.Moves.RockPlayed)
	assert.Equal(t, 2, p1s.Moves.RockWon)
	assert.Equal(t, 1, p1s.Moves.PaperPlayed)
	assert.Equal(t, 0, p1s.Moves.PaperWon)

	assert.Equal(t, 2, p2s.Moves.ScissorsPlayed)
	assert.Equal(t, 0, p2s.Moves.ScissorsWon)
	assert.Equal(t, 1, p2s.Moves.PaperPlayed)
}

func TestApplyIsIdempotentByMatchID(t *testing.T) {
	cfg := rating.DefaultConfig()
	m := completedMatch()

	p1s, p2s, r1, r2 := Apply(cfg, m, domain.ZeroStats("p1"), domain.ZeroStats("p2"), 1200, 1200)
	p1s2, p2s2, r1b, r2b := Apply(cfg, m, p1s, p2s, r1, r2)

	require.Equal(t, p1s, p1s2, "replaying the same matchId must not double-count")
	assert.Equal(t, p2s, p2s2)
	assert.Equal(t, r1, r1b)
	assert.Equal(t, r2, r2b)
}

func TestApplyDrawnStreaksFreeze(t *testing.T) {
	cfg := rating.DefaultConfig()
	completed := time.Now()
	m := &domain.Match{
		MatchID:     "m2",
		Player1ID:   "p1",
		Player2ID:   "p2",
		State:       domain.TimedOut,
		CompletedAt: &completed,
	}

	p1Before := domain.ZeroStats("p1")
	p1Before.CurrentWinStreak = 3

	p1s, p2s, r1, r2 := Apply(cfg, m, p1Before, domain.ZeroStats("p2"), 1200, 1200)

	assert.Equal(t, 1, p1s.GamesPlayed)
	assert.Equal(t, 1, p1s.GamesDrawn)
	assert.Equal(t, 3, p1s.CurrentWinStreak, "draws must not reset or extend streaks")
	assert.Equal(t, 1, p2s.GamesDrawn)
	assert.Equal(t, 1200, r1, "draws do not move rating")
	assert.Equal(t, 1200, r2)
}

func TestApplyForfeitedRoundsContributeNoMove(t *testing.T) {
	cfg := rating.DefaultConfig()
	completed := time.Now()
	m := &domain.Match{
		MatchID:   "m3",
		Player1ID: "p1",
		Player2ID: "p2",
		State:     domain.Completed,
		WinnerID:  "p1",
		P1Score:   1,
		RoundHistory: []domain.Round{
			{P1Move: rules.Rock, Outcome: rules.P1Win, CompletedAt: completed},
		},
		CompletedAt: &completed,
	}

	p1s, p2s, _, _ := Apply(cfg, m, domain.ZeroStats("p1"), domain.ZeroStats("p2"), 1200, 1200)

	assert.Equal(t, 1, p1s.Moves.RockPlayed)
	assert.Zero(t, p2s.Moves.RockPlayed+p2s.Moves.PaperPlayed+p2s.Moves.ScissorsPlayed, "forfeiting side logged no move")
}
