// Package store defines the Repository Contract (C7): the abstract
// persistence boundary the core depends on. Concrete implementations
// (package postgres) live outside the core and are wired at startup.
package store

import (
	"context"

	"github.com/rpsarena/match-engine/internal/domain"
)

// MatchSummary is the lightweight projection listRecentMatchesForPlayer
// returns — enough to render a history list without reloading full round
// histories.
type MatchSummary struct {
	MatchID     string
	OpponentID  string
	BestOf      int
	Won         bool
	Drawn       bool
	CompletedAt string // RFC3339; kept as a string at this boundary so the
	// interface has no time-zone-handling opinion baked into it beyond
	// what the underlying driver already enforces.
}

// Repository is the Repository Contract from spec §4.7. Every operation is
// failable; callers map the returned error's apperr.Kind to their own
// handling (Conflict retries, TransientBackend surfaces, NotFound surfaces).
type Repository interface {
	// LoadPlayerByExternalID returns apperr.NotFound if no player is
	// registered under extID.
	LoadPlayerByExternalID(ctx context.Context, extID string) (domain.Player, error)

	// CreatePlayer returns apperr.Conflict if extID is already registered.
	CreatePlayer(ctx context.Context, extID, displayName string, ratingSeed int) (domain.Player, error)

	// LoadStats returns a zero-initialised PlayerStats if none exists yet.
	LoadStats(ctx context.Context, playerID string) (domain.PlayerStats, error)

	// SaveCompletedMatch atomically persists the match record and both
	// players' updated stats/rating. The match row is written exactly
	// once per matchId (a retried flush of an already-saved match is a
	// benign no-op); the two stats/rating writes are compare-and-swapped
	// against PlayerStats.Version, since those rows can genuinely be
	// targeted by two concurrent completion flushes for the same player.
	// Returns apperr.Conflict on a version clash; the caller (registry)
	// reloads stats and retries the accumulation, which is safe because
	// Apply is idempotent by matchId.
	SaveCompletedMatch(ctx context.Context, m *domain.Match, p1 domain.PlayerStats, p1Rating int, p2 domain.PlayerStats, p2Rating int) error

	// ListRecentMatchesForPlayer returns up to limit summaries, newest first.
	ListRecentMatchesForPlayer(ctx context.Context, playerID string, limit int) ([]MatchSummary, error)
}
