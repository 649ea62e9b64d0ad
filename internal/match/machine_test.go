package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/rules"
)

func testConfig() Config {
	return Config{MoveTimeout: 20 * time.Second, MaxBestOf: 5}
}

func TestCreateRejectsEvenBestOf(t *testing.T) {
	_, err := Create(testConfig(), "m1", "p1", domain.ModeQuick, 4, time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
}

func TestCreateRejectsBestOfAboveMax(t *testing.T) {
	_, err := Create(testConfig(), "m1", "p1", domain.ModeQuick, 9, time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
}

func TestJoinRejectsSelfJoin(t *testing.T) {
	now := time.Now()
	m, err := Create(testConfig(), "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)

	_, err = Join(testConfig(), m, "p1", now)
	require.Error(t, err)
	assert.Equal(t, apperr.SelfJoin, apperr.KindOf(err))
}

func TestJoinArmsDeadline(t *testing.T) {
	now := time.Now()
	m, err := Create(testConfig(), "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)

	eff, err := Join(testConfig(), m, "p2", now)
	require.NoError(t, err)
	assert.True(t, eff.ArmDeadline)
	assert.Equal(t, domain.AwaitingMoves, m.State)
	assert.True(t, m.Invariant())
}

func TestSubmitMoveResolvesRoundAndCompletesMatch(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	// p1 wins two straight rounds with rock vs scissors.
	for i := 0; i < 2; i++ {
		_, err = SubmitMove(cfg, m, "p1", rules.Rock, now)
		require.NoError(t, err)
		eff, err := SubmitMove(cfg, m, "p2", rules.Scissors, now)
		require.NoError(t, err)
		if i == 1 {
			assert.True(t, eff.JustCompleted)
		}
	}

	assert.Equal(t, domain.Completed, m.State)
	assert.Equal(t, "p1", m.WinnerID)
	assert.Equal(t, 2, m.P1Score)
	assert.True(t, m.Invariant())
}

func TestSubmitMoveRejectsDoubleSubmit(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	_, err = SubmitMove(cfg, m, "p1", rules.Rock, now)
	require.NoError(t, err)

	_, err = SubmitMove(cfg, m, "p1", rules.Paper, now)
	require.Error(t, err)
	assert.Equal(t, apperr.DoubleSubmit, apperr.KindOf(err))
}

func TestSubmitMoveRejectsNonParticipant(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	_, err = SubmitMove(cfg, m, "stranger", rules.Rock, now)
	require.Error(t, err)
	assert.Equal(t, apperr.NotParticipant, apperr.KindOf(err))
}

func TestDrawRoundDoesNotAdvanceScore(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	_, err = SubmitMove(cfg, m, "p1", rules.Rock, now)
	require.NoError(t, err)
	eff, err := SubmitMove(cfg, m, "p2", rules.Rock, now)
	require.NoError(t, err)

	assert.True(t, eff.ArmDeadline)
	assert.Equal(t, 0, m.P1Score)
	assert.Equal(t, 0, m.P2Score)
	assert.Len(t, m.RoundHistory, 1)
	assert.Equal(t, rules.Draw, m.RoundHistory[0].Outcome)
}

func TestOnDeadlineForfeitsNonSubmitter(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	_, err = SubmitMove(cfg, m, "p1", rules.Rock, now)
	require.NoError(t, err)

	eff := OnDeadline(cfg, m, m.DeadlineEpoch, now.Add(cfg.MoveTimeout))
	assert.True(t, eff.ArmDeadline)
	assert.Equal(t, 1, m.P1Score)
	assert.Nil(t, m.P1Move)
}

func TestOnDeadlineWithNoSubmissionsTimesOutMatch(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	eff := OnDeadline(cfg, m, m.DeadlineEpoch, now.Add(cfg.MoveTimeout))
	assert.True(t, eff.JustCompleted)
	assert.True(t, eff.CancelDeadline)
	assert.Equal(t, domain.TimedOut, m.State)
}

func TestOnDeadlineStaleEpochIsNoOp(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	staleEpoch := m.DeadlineEpoch - 1
	eff := OnDeadline(cfg, m, staleEpoch, now)
	assert.Equal(t, Effect{}, eff)
	assert.Equal(t, domain.AwaitingMoves, m.State)
}

func TestCommandCancelOnlyLegalBeforeJoin(t *testing.T) {
	now := time.Now()
	m, err := Create(testConfig(), "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)

	eff, err := CommandCancel(m, "p1", now)
	require.NoError(t, err)
	assert.True(t, eff.JustCompleted)
	assert.Equal(t, domain.Cancelled, m.State)
}

func TestCommandCancelRejectedAfterJoin(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	m, err := Create(cfg, "m1", "p1", domain.ModeQuick, 3, now)
	require.NoError(t, err)
	_, err = Join(cfg, m, "p2", now)
	require.NoError(t, err)

	_, err = CommandCancel(m, "p1", now)
	require.Error(t, err)
	assert.Equal(t, apperr.IllegalState, apperr.KindOf(err))
}
