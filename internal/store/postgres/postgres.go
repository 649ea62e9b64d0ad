// Package postgres is the Repository Contract's (C7) concrete backing
// store. It is grounded on merev-ds-game-api's internal/database (pgxpool
// bootstrap + Migrate running raw DDL with CREATE TABLE IF NOT EXISTS) and
// internal/game's Repository (context-scoped queries over *pgxpool.Pool,
// pgx.ErrNoRows mapped to a domain-level "not found"), generalised from
// the darts schema to players / player_stats / completed_matches.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/idgen"
	"github.com/rpsarena/match-engine/internal/store"
)

// NewPool mirrors database.NewPool: parse, connect, ping, all bounded by a
// short startup timeout.
func NewPool(dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema, the same CREATE TABLE IF NOT EXISTS style
// database.Migrate used for the darts schema.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	const enablePgcrypto = `CREATE EXTENSION IF NOT EXISTS pgcrypto;`

	const playersTable = `
CREATE TABLE IF NOT EXISTS players (
    id              UUID PRIMARY KEY,
    external_id     TEXT NOT NULL UNIQUE,
    display_name    TEXT NOT NULL,
    rating          INT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_active_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

	const playerStatsTable = `
CREATE TABLE IF NOT EXISTS player_stats (
    player_id             UUID PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
    games_played          INT NOT NULL DEFAULT 0,
    games_won             INT NOT NULL DEFAULT 0,
    games_lost            INT NOT NULL DEFAULT 0,
    games_drawn           INT NOT NULL DEFAULT 0,
    rock_played           INT NOT NULL DEFAULT 0,
    rock_won              INT NOT NULL DEFAULT 0,
    paper_played          INT NOT NULL DEFAULT 0,
    paper_won             INT NOT NULL DEFAULT 0,
    scissors_played       INT NOT NULL DEFAULT 0,
    scissors_won          INT NOT NULL DEFAULT 0,
    current_win_streak    INT NOT NULL DEFAULT 0,
    best_win_streak       INT NOT NULL DEFAULT 0,
    current_loss_streak   INT NOT NULL DEFAULT 0,
    worst_loss_streak     INT NOT NULL DEFAULT 0,
    last_game_at          TIMESTAMPTZ,
    last_win_at           TIMESTAMPTZ,
    last_applied_match_id TEXT,
    version               INT NOT NULL DEFAULT 0
);
`

	const completedMatchesTable = `
CREATE TABLE IF NOT EXISTS completed_matches (
    id           UUID PRIMARY KEY,
    mode         TEXT NOT NULL,
    best_of      INT NOT NULL,
    player1_id   UUID NOT NULL REFERENCES players(id) ON DELETE RESTRICT,
    player2_id   UUID NOT NULL REFERENCES players(id) ON DELETE RESTRICT,
    state        TEXT NOT NULL,
    winner_id    UUID REFERENCES players(id),
    p1_score     INT NOT NULL,
    p2_score     INT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);
`

	for _, stmt := range []string{enablePgcrypto, playersTable, playerStatsTable, completedMatchesTable} {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Repository implements store.Repository over a pgxpool.Pool.
type Repository struct {
	db         *pgxpool.Pool
	ratingSeed int
}

func NewRepository(db *pgxpool.Pool, ratingSeed int) *Repository {
	return &Repository{db: db, ratingSeed: ratingSeed}
}

var _ store.Repository = (*Repository)(nil)

func (r *Repository) LoadPlayerByExternalID(ctx context.Context, extID string) (domain.Player, error) {
	var p domain.Player
	err := r.db.QueryRow(ctx, `
SELECT id::text, external_id, display_name, rating, created_at, last_active_at
FROM players
WHERE external_id = $1;
`, extID).Scan(&p.PlayerID, &p.ExternalID, &p.DisplayName, &p.Rating, &p.CreatedAt, &p.LastActiveAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Player{}, apperr.New("loadPlayerByExternalId", apperr.NotFound, "player not registered")
		}
		return domain.Player{}, apperr.Wrap("loadPlayerByExternalId", apperr.TransientBackend, err)
	}
	return p, nil
}

func (r *Repository) CreatePlayer(ctx context.Context, extID, displayName string, ratingSeed int) (domain.Player, error) {
	now := time.Now()
	p := domain.NewPlayer(idgen.New(), extID, displayName, ratingSeed, now)

	_, err := r.db.Exec(ctx, `
INSERT INTO players (id, external_id, display_name, rating, created_at, last_active_at)
VALUES ($1, $2, $3, $4, $5, $6);
`, p.PlayerID, p.ExternalID, p.DisplayName, p.Rating, p.CreatedAt, p.LastActiveAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return domain.Player{}, apperr.New("createPlayer", apperr.Conflict, "player already registered")
		}
		return domain.Player{}, apperr.Wrap("createPlayer", apperr.TransientBackend, err)
	}

	if _, err := r.db.Exec(ctx, `
INSERT INTO player_stats (player_id) VALUES ($1)
ON CONFLICT (player_id) DO NOTHING;
`, p.PlayerID); err != nil {
		return domain.Player{}, apperr.Wrap("createPlayer", apperr.TransientBackend, err)
	}

	return p, nil
}

func (r *Repository) LoadStats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	s := domain.ZeroStats(playerID)

	var lastAppliedMatchID *string
	err := r.db.QueryRow(ctx, `
SELECT games_played, games_won, games_lost, games_drawn,
       rock_played, rock_won, paper_played, paper_won, scissors_played, scissors_won,
       current_win_streak, best_win_streak, current_loss_streak, worst_loss_streak,
       last_game_at, last_win_at, last_applied_match_id, version
FROM player_stats
WHERE player_id = $1;
`, playerID).Scan(
		&s.GamesPlayed, &s.GamesWon, &s.GamesLost, &s.GamesDrawn,
		&s.Moves.RockPlayed, &s.Moves.RockWon, &s.Moves.PaperPlayed, &s.Moves.PaperWon, &s.Moves.ScissorsPlayed, &s.Moves.ScissorsWon,
		&s.CurrentWinStreak, &s.BestWinStreak, &s.CurrentLossStreak, &s.WorstLossStreak,
		&s.LastGameAt, &s.LastWinAt, &lastAppliedMatchID, &s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ZeroStats(playerID), nil
		}
		return domain.PlayerStats{}, apperr.Wrap("loadStats", apperr.TransientBackend, err)
	}
	if lastAppliedMatchID != nil {
		s.LastAppliedMatchID = *lastAppliedMatchID
	}
	return s, nil
}

// errVersionConflict signals that a player_stats compare-and-swap lost the
// race: the row's version no longer matched what was loaded, so the caller
// must reload and retry rather than overwrite a concurrently-written update.
var errVersionConflict = errors.New("player_stats version conflict")

// SaveCompletedMatch persists the match record and both players' folded
// stats/rating in one transaction. The match row insert is ON CONFLICT DO
// NOTHING: a match is flushed exactly once in its lifetime, so a retried
// flush of the same matchId is simply a benign no-op there, not a genuine
// concurrency hazard. The two player_stats/rating writes are different:
// a second match for the same player can complete and flush concurrently
// with a retried pending flush, so those are compare-and-swapped against
// PlayerStats.Version to avoid a lost update.
func (r *Repository) SaveCompletedMatch(ctx context.Context, m *domain.Match, p1 domain.PlayerStats, p1Rating int, p2 domain.PlayerStats, p2Rating int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Wrap("saveCompletedMatch", apperr.TransientBackend, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var winnerID *string
	if m.WinnerID != "" {
		winnerID = &m.WinnerID
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO completed_matches (id, mode, best_of, player1_id, player2_id, state, winner_id, p1_score, p2_score, created_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING;
`, m.MatchID, string(m.Mode), m.BestOf, m.Player1ID, m.Player2ID, string(m.State), winnerID, m.P1Score, m.P2Score, m.CreatedAt, m.CompletedAt); err != nil {
		return mapWriteErr("saveCompletedMatch", err)
	}

	if err := upsertStats(ctx, tx, m.Player1ID, p1, p1Rating); err != nil {
		if errors.Is(err, errVersionConflict) {
			return apperr.New("saveCompletedMatch", apperr.Conflict, "player_stats version conflict")
		}
		return mapWriteErr("saveCompletedMatch", err)
	}
	if err := upsertStats(ctx, tx, m.Player2ID, p2, p2Rating); err != nil {
		if errors.Is(err, errVersionConflict) {
			return apperr.New("saveCompletedMatch", apperr.Conflict, "player_stats version conflict")
		}
		return mapWriteErr("saveCompletedMatch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap("saveCompletedMatch", apperr.TransientBackend, err)
	}
	return nil
}

// upsertStats writes s at version s.Version+1. For a player with no existing
// row, the INSERT simply succeeds. For an existing row, the ON CONFLICT
// branch only fires if the row is still at s.Version — the compare half of
// compare-and-swap — and errVersionConflict is returned if nothing matched,
// meaning some other flush already moved the row to a newer version first.
func upsertStats(ctx context.Context, tx pgx.Tx, playerID string, s domain.PlayerStats, newRating int) error {
	tag, err := tx.Exec(ctx, `
INSERT INTO player_stats (
    player_id, games_played, games_won, games_lost, games_drawn,
    rock_played, rock_won, paper_played, paper_won, scissors_played, scissors_won,
    current_win_streak, best_win_streak, current_loss_streak, worst_loss_streak,
    last_game_at, last_win_at, last_applied_match_id, version
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (player_id) DO UPDATE SET
    games_played = EXCLUDED.games_played,
    games_won = EXCLUDED.games_won,
    games_lost = EXCLUDED.games_lost,
    games_drawn = EXCLUDED.games_drawn,
    rock_played = EXCLUDED.rock_played,
    rock_won = EXCLUDED.rock_won,
    paper_played = EXCLUDED.paper_played,
    paper_won = EXCLUDED.paper_won,
    scissors_played = EXCLUDED.scissors_played,
    scissors_won = EXCLUDED.scissors_won,
    current_win_streak = EXCLUDED.current_win_streak,
    best_win_streak = EXCLUDED.best_win_streak,
    current_loss_streak = EXCLUDED.current_loss_streak,
    worst_loss_streak = EXCLUDED.worst_loss_streak,
    last_game_at = EXCLUDED.last_game_at,
    last_win_at = EXCLUDED.last_win_at,
    last_applied_match_id = EXCLUDED.last_applied_match_id,
    version = EXCLUDED.version
WHERE player_stats.version = $20;
`, playerID, s.GamesPlayed, s.GamesWon, s.GamesLost, s.GamesDrawn,
		s.Moves.RockPlayed, s.Moves.RockWon, s.Moves.PaperPlayed, s.Moves.PaperWon, s.Moves.ScissorsPlayed, s.Moves.ScissorsWon,
		s.CurrentWinStreak, s.BestWinStreak, s.CurrentLossStreak, s.WorstLossStreak,
		s.LastGameAt, s.LastWinAt, nullableString(s.LastAppliedMatchID), s.Version+1,
		s.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errVersionConflict
	}

	_, err = tx.Exec(ctx, `UPDATE players SET rating = $1, last_active_at = now() WHERE id = $2;`, newRating, playerID)
	return err
}

func (r *Repository) ListRecentMatchesForPlayer(ctx context.Context, playerID string, limit int) ([]store.MatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
SELECT id::text, player1_id::text, player2_id::text, best_of, winner_id::text, state, completed_at
FROM completed_matches
WHERE player1_id = $1 OR player2_id = $1
ORDER BY completed_at DESC
LIMIT $2;
`, playerID, limit)
	if err != nil {
		return nil, apperr.Wrap("listRecentMatchesForPlayer", apperr.TransientBackend, err)
	}
	defer rows.Close()

	summaries := make([]store.MatchSummary, 0, limit)
	for rows.Next() {
		var matchID, p1ID, p2ID, state string
		var bestOf int
		var winnerID *string
		var completedAt *time.Time

		if err := rows.Scan(&matchID, &p1ID, &p2ID, &bestOf, &winnerID, &state, &completedAt); err != nil {
			return nil, apperr.Wrap("listRecentMatchesForPlayer", apperr.TransientBackend, err)
		}

		opponent := p2ID
		if playerID == p2ID {
			opponent = p1ID
		}
		summary := store.MatchSummary{
			MatchID:    matchID,
			OpponentID: opponent,
			BestOf:     bestOf,
			Won:        winnerID != nil && *winnerID == playerID,
			Drawn:      state == string(domain.TimedOut),
		}
		if completedAt != nil {
			summary.CompletedAt = completedAt.Format(time.RFC3339)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap("listRecentMatchesForPlayer", apperr.TransientBackend, err)
	}
	return summaries, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperr.New(op, apperr.Conflict, "unique constraint violated")
		}
	}
	return apperr.Wrap(op, apperr.TransientBackend, err)
}
