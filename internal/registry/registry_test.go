package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/match"
	"github.com/rpsarena/match-engine/internal/rating"
	"github.com/rpsarena/match-engine/internal/rules"
	"github.com/rpsarena/match-engine/internal/store"
)

// fakeRepo is an in-memory store.Repository stand-in: just enough to let
// the registry's completion flush path run without a database.
type fakeRepo struct {
	mu    sync.Mutex
	stats map[string]domain.PlayerStats
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stats: make(map[string]domain.PlayerStats)}
}

func (f *fakeRepo) LoadPlayerByExternalID(ctx context.Context, extID string) (domain.Player, error) {
	return domain.Player{}, apperr.New("loadPlayerByExternalId", apperr.NotFound, "unused in this test")
}

func (f *fakeRepo) CreatePlayer(ctx context.Context, extID, displayName string, ratingSeed int) (domain.Player, error) {
	return domain.Player{}, apperr.New("createPlayer", apperr.NotFound, "unused in this test")
}

func (f *fakeRepo) LoadStats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stats[playerID]; ok {
		return s, nil
	}
	return domain.ZeroStats(playerID), nil
}

func (f *fakeRepo) SaveCompletedMatch(ctx context.Context, m *domain.Match, p1 domain.PlayerStats, p1Rating int, p2 domain.PlayerStats, p2Rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[m.Player1ID] = p1
	f.stats[m.Player2ID] = p2
	return nil
}

func (f *fakeRepo) ListRecentMatchesForPlayer(ctx context.Context, playerID string, limit int) ([]store.MatchSummary, error) {
	return nil, nil
}

var _ store.Repository = (*fakeRepo)(nil)

func testRegistry() *Registry {
	return New(Config{
		Match:  match.Config{MoveTimeout: 20 * time.Second, MaxBestOf: 5},
		Rating: rating.DefaultConfig(),
	}, zap.NewNop(), newFakeRepo(), nil)
}

func player(id string) domain.Player {
	return domain.Player{PlayerID: id, Rating: 1200}
}

func TestCreateMatchRejectsWhenPlayerBusy(t *testing.T) {
	r := testRegistry()

	_, err := r.CreateMatch(player("p1"), domain.ModeQuick, 3, time.Now())
	require.NoError(t, err)

	_, err = r.CreateMatch(player("p1"), domain.ModeQuick, 3, time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.PlayerBusy, apperr.KindOf(err))
}

func TestFindOpenQuickMatchExcludesCreator(t *testing.T) {
	r := testRegistry()
	m, err := r.CreateMatch(player("p1"), domain.ModeQuick, 3, time.Now())
	require.NoError(t, err)

	_, ok := r.FindOpenQuickMatch("p1")
	assert.False(t, ok, "creator must never match their own quick match")

	found, ok := r.FindOpenQuickMatch("p2")
	require.True(t, ok)
	assert.Equal(t, m.MatchID, found)
}

func TestJoinMatchRemovesFromQueueAndFreesSlotOnFailure(t *testing.T) {
	r := testRegistry()
	m, err := r.CreateMatch(player("p1"), domain.ModeQuick, 3, time.Now())
	require.NoError(t, err)

	_, err = r.JoinMatch(m.MatchID, player("p1"), time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.SelfJoin, apperr.KindOf(err))

	// p1's failed self-join must not have left them marked busy twice, nor
	// blocked a legitimate opponent from joining afterwards.
	_, err = r.JoinMatch(m.MatchID, player("p2"), time.Now())
	require.NoError(t, err)

	_, ok := r.FindOpenQuickMatch("p3")
	assert.False(t, ok, "match must have left the join queue once joined")
}

func TestSubmitMoveCompletionFlushesStatsAndEvictsMatch(t *testing.T) {
	r := testRegistry()
	m, err := r.CreateMatch(player("p1"), domain.ModeQuick, 1, time.Now())
	require.NoError(t, err)
	_, err = r.JoinMatch(m.MatchID, player("p2"), time.Now())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = r.SubmitMove(ctx, m.MatchID, "p1", rules.Rock, time.Now())
	require.NoError(t, err)
	_, err = r.SubmitMove(ctx, m.MatchID, "p2", rules.Scissors, time.Now())
	require.NoError(t, err)

	_, ok := r.GetMatch(m.MatchID)
	assert.False(t, ok, "completed match must be evicted from the live table")

	_, busy := r.CurrentMatchID("p1")
	assert.False(t, busy, "player must be freed to start a new match")

	stats, err := r.repo.LoadStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GamesWon)
}

func TestConcurrentSubmitMoveResolvesExactlyOnce(t *testing.T) {
	r := testRegistry()
	m, err := r.CreateMatch(player("p1"), domain.ModeQuick, 1, time.Now())
	require.NoError(t, err)
	_, err = r.JoinMatch(m.MatchID, player("p2"), time.Now())
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = r.SubmitMove(ctx, m.MatchID, "p1", rules.Rock, time.Now())
	}()
	go func() {
		defer wg.Done()
		_, _ = r.SubmitMove(ctx, m.MatchID, "p2", rules.Paper, time.Now())
	}()
	wg.Wait()

	_, ok := r.GetMatch(m.MatchID)
	assert.False(t, ok, "bestOf=1 decisive round must complete and evict the match exactly once")
}
