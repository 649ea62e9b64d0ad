// Package domain holds the persistent and short-lived entities the match
// engine operates on (spec §3): Player, PlayerStats, Match and the value
// types nested in it. The constructors only build fresh values; they do no
// validation. Match.Invariant and PlayerStats.Valid check the invariants
// spec §3 lists, and the state machine in package match performs the
// validation of its own inputs.
package domain

import "time"

// Player is the persistent identity backing one participant.
type Player struct {
	PlayerID     string    `json:"playerId"`
	ExternalID   string    `json:"externalId"`
	DisplayName  string    `json:"displayName"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// NewPlayer builds a Player at the configured rating seed. playerID is
// expected to already be a fresh, unique id (see internal/idgen).
func NewPlayer(playerID, externalID, displayName string, ratingSeed int, now time.Time) Player {
	return Player{
		PlayerID:     playerID,
		ExternalID:   externalID,
		DisplayName:  displayName,
		Rating:       ratingSeed,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// MoveHistogram counts, per move, how many times it was played and how many
// of those plays won their round.
type MoveHistogram struct {
	RockPlayed     int `json:"rockPlayed"`
	RockWon        int `json:"rockWon"`
	PaperPlayed    int `json:"paperPlayed"`
	PaperWon       int `json:"paperWon"`
	ScissorsPlayed int `json:"scissorsPlayed"`
	ScissorsWon    int `json:"scissorsWon"`
}

// PlayerStats is the one-to-one cumulative record attached to a Player
// (spec §3's PlayerStats entity).
type PlayerStats struct {
	PlayerID string `json:"playerId"`

	GamesPlayed int `json:"gamesPlayed"`
	GamesWon    int `json:"gamesWon"`
	GamesLost   int `json:"gamesLost"`
	GamesDrawn  int `json:"gamesDrawn"`

	Moves MoveHistogram `json:"moves"`

	CurrentWinStreak  int `json:"currentWinStreak"`
	BestWinStreak     int `json:"bestWinStreak"`
	CurrentLossStreak int `json:"currentLossStreak"`
	WorstLossStreak   int `json:"worstLossStreak"`

	LastGameAt *time.Time `json:"lastGameAt,omitempty"`
	LastWinAt  *time.Time `json:"lastWinAt,omitempty"`

	// LastAppliedMatchID is the dedupe token spec §4.3 requires for
	// idempotent accumulation: the Stats Accumulator records the most
	// recently folded matchId here and refuses to apply it twice.
	LastAppliedMatchID string `json:"lastAppliedMatchId,omitempty"`

	// Version is the optimistic-concurrency token the Repository Contract
	// uses when writing this row back (spec §4.7/§7): Apply carries it
	// through unchanged from whatever was loaded, and the repository's
	// compare-and-swap only commits if the persisted row is still at this
	// version, so two concurrent completion flushes for the same player
	// (e.g. a live flush racing a retried pending one) can't silently
	// stomp one another's delta.
	Version int `json:"-"`
}

// ZeroStats returns a freshly initialised PlayerStats row, as the
// Repository Contract (§4.7) does for a player with no history.
func ZeroStats(playerID string) PlayerStats {
	return PlayerStats{PlayerID: playerID}
}

// Valid reports whether the invariants in spec §3's PlayerStats entity
// currently hold. A violation here is a programming error, not a
// user-facing one. Package stats does not call it after its mutations.
func (s PlayerStats) Valid() bool {
	if s.GamesWon+s.GamesLost+s.GamesDrawn != s.GamesPlayed {
		return false
	}
	if s.GamesPlayed < 0 || s.GamesWon < 0 || s.GamesLost < 0 || s.GamesDrawn < 0 {
		return false
	}
	if s.CurrentWinStreak > 0 && s.CurrentLossStreak > 0 {
		return false
	}
	if s.BestWinStreak < s.CurrentWinStreak || s.WorstLossStreak < s.CurrentLossStreak {
		return false
	}
	return true
}
