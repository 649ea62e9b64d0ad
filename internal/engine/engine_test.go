package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/match"
	"github.com/rpsarena/match-engine/internal/rating"
	"github.com/rpsarena/match-engine/internal/registry"
	"github.com/rpsarena/match-engine/internal/store"
)

// fakeCache is a completionCache stand-in: an in-memory map keyed by
// matchId, mirroring matchcache.Cache's JSON-blob-in, bool-hit-out shape
// without a real redis client.
type fakeCache struct {
	byMatchID map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, matchID string) ([]byte, bool) {
	data, ok := c.byMatchID[matchID]
	return data, ok
}

// fakeRepo mints a fresh domain.Player keyed by externalId on first sight,
// just enough of store.Repository for the Command Surface to register
// players and flush completed matches without a database.
type fakeRepo struct {
	players map[string]domain.Player
	stats   map[string]domain.PlayerStats
	seq     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		players: make(map[string]domain.Player),
		stats:   make(map[string]domain.PlayerStats),
	}
}

func (f *fakeRepo) LoadPlayerByExternalID(ctx context.Context, extID string) (domain.Player, error) {
	if p, ok := f.players[extID]; ok {
		return p, nil
	}
	return domain.Player{}, apperr.New("loadPlayerByExternalId", apperr.NotFound, "no such player")
}

func (f *fakeRepo) CreatePlayer(ctx context.Context, extID, displayName string, ratingSeed int) (domain.Player, error) {
	f.seq++
	p := domain.Player{PlayerID: extID + "-id", DisplayName: displayName, Rating: ratingSeed}
	f.players[extID] = p
	return p, nil
}

func (f *fakeRepo) LoadStats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	if s, ok := f.stats[playerID]; ok {
		return s, nil
	}
	return domain.ZeroStats(playerID), nil
}

func (f *fakeRepo) SaveCompletedMatch(ctx context.Context, m *domain.Match, p1 domain.PlayerStats, p1Rating int, p2 domain.PlayerStats, p2Rating int) error {
	f.stats[m.Player1ID] = p1
	f.stats[m.Player2ID] = p2
	for extID, p := range f.players {
		if p.PlayerID == m.Player1ID {
			p.Rating = p1Rating
			f.players[extID] = p
		}
		if p.PlayerID == m.Player2ID {
			p.Rating = p2Rating
			f.players[extID] = p
		}
	}
	return nil
}

func (f *fakeRepo) ListRecentMatchesForPlayer(ctx context.Context, playerID string, limit int) ([]store.MatchSummary, error) {
	return nil, nil
}

var _ store.Repository = (*fakeRepo)(nil)

func testEngine(t *testing.T) (*Engine, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	reg := registry.New(registry.Config{
		Match:  match.Config{MoveTimeout: 20 * time.Second, MaxBestOf: 5},
		Rating: rating.DefaultConfig(),
	}, zap.NewNop(), repo, nil)
	return New(reg, repo, nil, rating.DefaultConfig(), 1), repo
}

func register(t *testing.T, e *Engine, extID string) domain.Player {
	t.Helper()
	p, err := e.RegisterPlayer(context.Background(), extID, extID)
	require.NoError(t, err)
	return p
}

func TestMatchViewHidesOpponentMoveUntilRoundResolves(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	p1 := register(t, e, "alice")
	p2 := register(t, e, "bob")

	mv, err := e.CreateQuickMatch(ctx, p1.PlayerID, 3)
	require.NoError(t, err)
	mv, err = e.JoinMatchByID(ctx, p2.PlayerID, mv.MatchID)
	require.NoError(t, err)

	mv, err = e.SubmitMove(ctx, p1.PlayerID, mv.MatchID, "rock")
	require.NoError(t, err)

	require.NotNil(t, mv.You.CurrentRoundMove, "the submitting player's own view must still show the move")
	assert.Equal(t, "rock", *mv.You.CurrentRoundMove)

	oppSide, err := e.GetMatchView(ctx, p2.PlayerID, mv.MatchID)
	require.NoError(t, err)
	assert.True(t, oppSide.Opponent.CurrentRoundMoveHidden, "p1's submitted move must read as hidden, not revealed, to p2")
	assert.Nil(t, oppSide.You.CurrentRoundMove)
}

func TestMatchViewRevealsMovesInResolvedRoundHistory(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	p1 := register(t, e, "alice")
	p2 := register(t, e, "bob")

	mv, err := e.CreateQuickMatch(ctx, p1.PlayerID, 1)
	require.NoError(t, err)
	mv, err = e.JoinMatchByID(ctx, p2.PlayerID, mv.MatchID)
	require.NoError(t, err)

	_, err = e.SubmitMove(ctx, p1.PlayerID, mv.MatchID, "rock")
	require.NoError(t, err)
	final, err := e.SubmitMove(ctx, p2.PlayerID, mv.MatchID, "scissors")
	require.NoError(t, err)

	// final is p2's view, so p2's scissors is "your" move.
	require.Len(t, final.RoundHistory, 1)
	assert.Equal(t, "scissors", final.RoundHistory[0].YourMove)
	assert.Equal(t, "rock", final.RoundHistory[0].OpponentMove)
	assert.Equal(t, string(domain.Completed), final.State)
	assert.Equal(t, p1.PlayerID, final.WinnerID)
}

func TestGetPlayerStatsRejectsUnregisteredPlayerID(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.GetPlayerStats(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestCreateQuickMatchDefaultsBestOfWhenUnspecified(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	p1 := register(t, e, "alice")

	mv, err := e.CreateQuickMatch(ctx, p1.PlayerID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, mv.BestOf, "bestOf=0 must fall back to the configured default, not be rejected")
}

func TestGetMatchViewFallsBackToCompletionCacheOnceMatchLeavesRegistry(t *testing.T) {
	repo := newFakeRepo()
	reg := registry.New(registry.Config{
		Match:  match.Config{MoveTimeout: 20 * time.Second, MaxBestOf: 5},
		Rating: rating.DefaultConfig(),
	}, zap.NewNop(), repo, nil)
	completed := time.Now()
	cachedMatch := &domain.Match{
		MatchID:     "gone-from-registry",
		Player1ID:   "p1",
		Player2ID:   "p2",
		State:       domain.Completed,
		WinnerID:    "p1",
		P1Score:     1,
		CompletedAt: &completed,
	}
	data, err := json.Marshal(cachedMatch)
	require.NoError(t, err)
	cache := &fakeCache{byMatchID: map[string][]byte{"gone-from-registry": data}}

	e := New(reg, repo, cache, rating.DefaultConfig(), 1)

	mv, err := e.GetMatchView(context.Background(), "p1", "gone-from-registry")
	require.NoError(t, err, "a match absent from the live registry must still render from the completion cache")
	assert.Equal(t, "gone-from-registry", mv.MatchID)
	assert.Equal(t, "p1", mv.WinnerID)

	_, err = e.GetMatchView(context.Background(), "p1", "neither-live-nor-cached")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
