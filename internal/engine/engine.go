// Package engine implements the Command Surface (C8): the narrow,
// transport-neutral façade spec §4.8 describes. Every exported method maps
// directly onto one operation from that list, except the supplemented
// GetRecentMatches and the CurrentMatchID lookup for adapters; adapters
// (internal/transport/*) are thin wrappers that decode a request, call one of these, and encode the
// result. Grounded on merev-ds-game-api's Handler→Repository split, pushed
// one layer further so the same façade can back both an HTTP adapter and a
// chat-style one without duplicating the viewer-restriction and
// error-mapping logic.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/rating"
	"github.com/rpsarena/match-engine/internal/registry"
	"github.com/rpsarena/match-engine/internal/rules"
	"github.com/rpsarena/match-engine/internal/store"
)

// completionCache is the narrow slice of matchcache.Cache GetMatchView
// needs; declared here (mirroring internal/registry's own narrow interface
// for the same concrete type) so the engine doesn't import the redis
// package directly. A nil cache (or a nil *Engine.cache field) disables the
// post-completion read path: GetMatchView then only ever sees live matches.
type completionCache interface {
	Get(ctx context.Context, matchID string) ([]byte, bool)
}

// Engine is the Command Surface implementation.
type Engine struct {
	reg           *registry.Registry
	repo          store.Repository
	cache         completionCache
	ratingCfg     rating.Config
	defaultBestOf int

	// The Repository Contract indexes players by external id only (spec
	// §4.7 names exactly five operations, with no loadPlayerById). Every
	// other Command Surface operation is handed the internal playerId, so
	// the engine keeps this process-local reverse index — populated on
	// registerPlayer — to rehydrate a Player (and its current rating) for
	// those calls. A playerId this process never saw via registerPlayer
	// (e.g. after a restart) surfaces as NotFound rather than silently
	// replaying the seed rating.
	mu              sync.RWMutex
	extIDByPlayerID map[string]string
}

func New(reg *registry.Registry, repo store.Repository, cache completionCache, ratingCfg rating.Config, defaultBestOf int) *Engine {
	return &Engine{
		reg:             reg,
		repo:            repo,
		cache:           cache,
		ratingCfg:       ratingCfg,
		defaultBestOf:   defaultBestOf,
		extIDByPlayerID: make(map[string]string),
	}
}

// YouView is the viewer's own per-match projection.
type YouView struct {
	PlayerID         string  `json:"playerId"`
	Score            int     `json:"score"`
	CurrentRoundMove *string `json:"currentRoundMove,omitempty"`
}

// OpponentView never exposes the opponent's in-flight move; only whether
// one has been submitted this round.
type OpponentView struct {
	PlayerID               *string `json:"playerId,omitempty"`
	Score                  int     `json:"score"`
	CurrentRoundMoveHidden bool    `json:"currentRoundMoveHidden"`
}

// RoundView is one resolved round from the viewer's perspective.
type RoundView struct {
	YourMove     string    `json:"yourMove"`
	OpponentMove string    `json:"opponentMove"`
	Outcome      string    `json:"outcome"`
	At           time.Time `json:"at"`
}

// MatchView is the viewer-restricted projection spec §6 defines.
type MatchView struct {
	MatchID      string       `json:"matchId"`
	State        string       `json:"state"`
	Mode         string       `json:"mode"`
	BestOf       int          `json:"bestOf"`
	RoundsToWin  int          `json:"roundsToWin"`
	You          YouView      `json:"you"`
	Opponent     OpponentView `json:"opponent"`
	RoundHistory []RoundView  `json:"roundHistory"`
	Deadline     *time.Time   `json:"deadline,omitempty"`
	WinnerID     string       `json:"winnerId,omitempty"`
	Cancellable  bool         `json:"cancellable"`
}

// StatsView is the rendered form of PlayerStats spec §6 defines, including
// the rank label the rating bands supplement adds.
type StatsView struct {
	PlayerID         string  `json:"playerId"`
	GamesPlayed      int     `json:"gamesPlayed"`
	GamesWon         int     `json:"gamesWon"`
	GamesLost        int     `json:"gamesLost"`
	GamesDrawn       int     `json:"gamesDrawn"`
	WinRatePercent   float64 `json:"winRatePercent"`
	CurrentWinStreak int     `json:"currentWinStreak"`
	BestWinStreak    int     `json:"bestWinStreak"`
	MostPlayedMove   string  `json:"mostPlayedMove"`
	Rating           int     `json:"rating"`
	RankLabel        string  `json:"rankLabel"`
}

func (e *Engine) RegisterPlayer(ctx context.Context, extID, displayName string) (domain.Player, error) {
	p, err := e.repo.LoadPlayerByExternalID(ctx, extID)
	if err != nil {
		if !apperr.Is(err, apperr.NotFound) {
			return domain.Player{}, err
		}
		p, err = e.repo.CreatePlayer(ctx, extID, displayName, e.ratingCfg.Seed)
		if err != nil {
			return domain.Player{}, err
		}
	}

	e.mu.Lock()
	e.extIDByPlayerID[p.PlayerID] = extID
	e.mu.Unlock()
	return p, nil
}

func (e *Engine) CreateQuickMatch(ctx context.Context, playerID string, bestOf int) (MatchView, error) {
	return e.create(ctx, playerID, domain.ModeQuick, bestOf)
}

func (e *Engine) CreatePrivateMatch(ctx context.Context, playerID string, bestOf int) (MatchView, error) {
	return e.create(ctx, playerID, domain.ModePrivate, bestOf)
}

func (e *Engine) create(ctx context.Context, playerID string, mode domain.Mode, bestOf int) (MatchView, error) {
	player, err := e.loadPlayer(ctx, playerID)
	if err != nil {
		return MatchView{}, err
	}
	if bestOf == 0 {
		bestOf = e.defaultBestOf
	}
	m, err := e.reg.CreateMatch(player, mode, bestOf, time.Now())
	if err != nil {
		return MatchView{}, err
	}
	return render(playerID, m), nil
}

func (e *Engine) JoinOpenQuickMatch(ctx context.Context, playerID string) (MatchView, error) {
	matchID, ok := e.reg.FindOpenQuickMatch(playerID)
	if !ok {
		return MatchView{}, apperr.New("joinOpenQuickMatch", apperr.NoMatchAvailable, "no open match")
	}
	return e.JoinMatchByID(ctx, playerID, matchID)
}

func (e *Engine) JoinMatchByID(ctx context.Context, playerID, matchID string) (MatchView, error) {
	player, err := e.loadPlayer(ctx, playerID)
	if err != nil {
		return MatchView{}, err
	}
	m, err := e.reg.JoinMatch(matchID, player, time.Now())
	if err != nil {
		return MatchView{}, err
	}
	return render(playerID, m), nil
}

func (e *Engine) SubmitMove(ctx context.Context, playerID, matchID, moveStr string) (MatchView, error) {
	mv, ok := rules.ParseMove(moveStr)
	if !ok {
		return MatchView{}, apperr.New("submitMove", apperr.InvalidArgument, "unrecognised move")
	}
	m, err := e.reg.SubmitMove(ctx, matchID, playerID, mv, time.Now())
	if err != nil {
		return MatchView{}, err
	}
	return render(playerID, m), nil
}

func (e *Engine) CancelMatch(ctx context.Context, playerID, matchID string) (MatchView, error) {
	m, err := e.reg.CancelMatch(ctx, matchID, playerID, time.Now())
	if err != nil {
		return MatchView{}, err
	}
	return render(playerID, m), nil
}

// GetMatchView checks the live Match Registry first, since it's always
// authoritative while a match is in flight. A match that has already
// completed and left the registry falls through to the short-TTL
// completion cache (spec §4.5) before surfacing NotFound.
func (e *Engine) GetMatchView(ctx context.Context, playerID, matchID string) (MatchView, error) {
	if m, ok := e.reg.GetMatch(matchID); ok {
		return render(playerID, m), nil
	}

	if e.cache != nil {
		if data, ok := e.cache.Get(ctx, matchID); ok {
			var m domain.Match
			if err := json.Unmarshal(data, &m); err == nil {
				return render(playerID, &m), nil
			}
		}
	}

	return MatchView{}, apperr.New("getMatchView", apperr.NotFound, "match not found")
}

func (e *Engine) GetPlayerStats(ctx context.Context, playerID string) (StatsView, error) {
	player, err := e.loadPlayer(ctx, playerID)
	if err != nil {
		return StatsView{}, err
	}
	s, err := e.repo.LoadStats(ctx, playerID)
	if err != nil {
		return StatsView{}, err
	}
	return renderStats(e.ratingCfg, player, s), nil
}

// GetRecentMatches is the supplemented history-list feature: a thin
// pass-through over the Repository Contract's listRecentMatchesForPlayer.
func (e *Engine) GetRecentMatches(ctx context.Context, playerID string, limit int) ([]store.MatchSummary, error) {
	return e.repo.ListRecentMatchesForPlayer(ctx, playerID, limit)
}

// CurrentMatchID exposes the registry's playerId->matchId index for
// adapters (like the chat-style one) that address the caller's active
// match implicitly rather than by id.
func (e *Engine) CurrentMatchID(playerID string) (string, bool) {
	return e.reg.CurrentMatchID(playerID)
}

func (e *Engine) loadPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	e.mu.RLock()
	extID, ok := e.extIDByPlayerID[playerID]
	e.mu.RUnlock()
	if !ok {
		return domain.Player{}, apperr.New("loadPlayer", apperr.NotFound, "player not registered this session")
	}
	return e.repo.LoadPlayerByExternalID(ctx, extID)
}

func render(viewerID string, m *domain.Match) MatchView {
	isP1 := viewerID == m.Player1ID

	var yourScore, oppScore int
	var yourMove *rules.Move
	var oppMoveFilled bool
	var oppID *string

	if isP1 {
		yourScore, oppScore = m.P1Score, m.P2Score
		yourMove = m.P1Move
		oppMoveFilled = m.P2Move != nil
	} else {
		yourScore, oppScore = m.P2Score, m.P1Score
		yourMove = m.P2Move
		oppMoveFilled = m.P1Move != nil
	}
	if m.Player2ID != "" {
		if isP1 {
			id := m.Player2ID
			oppID = &id
		} else {
			id := m.Player1ID
			oppID = &id
		}
	}

	var yourMoveStr *string
	if yourMove != nil {
		s := string(*yourMove)
		yourMoveStr = &s
	}

	rounds := make([]RoundView, 0, len(m.RoundHistory))
	for _, r := range m.RoundHistory {
		var yourMv, oppMv rules.Move
		outcome := r.Outcome
		if isP1 {
			yourMv, oppMv = r.P1Move, r.P2Move
		} else {
			yourMv, oppMv = r.P2Move, r.P1Move
			outcome = rules.Flip(outcome)
		}
		rounds = append(rounds, RoundView{
			YourMove:     moveOrForfeited(yourMv),
			OpponentMove: moveOrForfeited(oppMv),
			Outcome:      string(outcome),
			At:           r.CompletedAt,
		})
	}

	var deadline *time.Time
	if !m.CurrentRoundDeadline.IsZero() {
		d := m.CurrentRoundDeadline
		deadline = &d
	}

	return MatchView{
		MatchID:     m.MatchID,
		State:       string(m.State),
		Mode:        string(m.Mode),
		BestOf:      m.BestOf,
		RoundsToWin: m.RoundsToWin(),
		You: YouView{
			PlayerID:         viewerID,
			Score:            yourScore,
			CurrentRoundMove: yourMoveStr,
		},
		Opponent: OpponentView{
			PlayerID:               oppID,
			Score:                  oppScore,
			CurrentRoundMoveHidden: oppMoveFilled,
		},
		RoundHistory: rounds,
		Deadline:     deadline,
		WinnerID:     m.WinnerID,
		Cancellable:  m.State == domain.AwaitingOpponent,
	}
}

func moveOrForfeited(mv rules.Move) string {
	if !mv.Valid() {
		return "forfeited"
	}
	return string(mv)
}

func renderStats(cfg rating.Config, player domain.Player, s domain.PlayerStats) StatsView {
	winRate := 0.0
	if s.GamesPlayed > 0 {
		winRate = float64(s.GamesWon) / float64(s.GamesPlayed) * 100
	}

	most := "none"
	best := 0
	if s.Moves.RockPlayed > best {
		most, best = "rock", s.Moves.RockPlayed
	}
	if s.Moves.PaperPlayed > best {
		most, best = "paper", s.Moves.PaperPlayed
	}
	if s.Moves.ScissorsPlayed > best {
		most = "scissors"
	}

	return StatsView{
		PlayerID:         player.PlayerID,
		GamesPlayed:      s.GamesPlayed,
		GamesWon:         s.GamesWon,
		GamesLost:        s.GamesLost,
		GamesDrawn:       s.GamesDrawn,
		WinRatePercent:   winRate,
		CurrentWinStreak: s.CurrentWinStreak,
		BestWinStreak:    s.BestWinStreak,
		MostPlayedMove:   most,
		Rating:           player.Rating,
		RankLabel:        rating.RankLabel(cfg, player.Rating),
	}
}
