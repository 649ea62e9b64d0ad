package domain

import (
	"time"

	"github.com/rpsarena/match-engine/internal/rules"
)

// Mode distinguishes a quick (join-queue visible) match from a private one.
type Mode string

const (
	ModeQuick   Mode = "quick"
	ModePrivate Mode = "private"
)

// State is the match lifecycle state (spec §3).
type State string

const (
	AwaitingOpponent State = "AwaitingOpponent"
	AwaitingMoves    State = "AwaitingMoves"
	Completed        State = "Completed"
	Cancelled        State = "Cancelled"
	TimedOut         State = "TimedOut"
)

// Terminal reports whether no further mutation is permitted in this state.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == TimedOut
}

// Round is one resolved pair of moves (spec §3's roundHistory entry).
type Round struct {
	P1Move      rules.Move    `json:"p1Move"`
	P2Move      rules.Move    `json:"p2Move"`
	Outcome     rules.Outcome `json:"outcome"`
	CompletedAt time.Time     `json:"completedAt"`
}

// Match is the short-lived best-of-N coordination object the Match State
// Machine (C4) owns exclusively for its in-memory lifetime (spec §3).
type Match struct {
	MatchID string
	Mode    Mode
	BestOf  int // odd, 1..matchMaxBestOf

	Player1ID string
	Player2ID string // empty until join

	State State

	P1Move *rules.Move // nil == empty slot
	P2Move *rules.Move

	P1Score int
	P2Score int

	RoundHistory []Round

	CurrentRoundDeadline time.Time // zero == none
	DeadlineEpoch        int       // incremented every time a deadline is (re)armed

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	WinnerID    string
}

// RoundsToWin is ⌈bestOf/2⌉, the number of round wins needed to take the
// match (spec §3).
func (m *Match) RoundsToWin() int {
	return (m.BestOf + 1) / 2
}

// NewMatch constructs a fresh match in AwaitingOpponent. Validation of
// bestOf's bounds against the configured matchMaxBestOf is the caller's
// (internal/match) job, since the bound is policy, not an algorithmic
// invariant of the domain type itself.
func NewMatch(matchID, player1ID string, mode Mode, bestOf int, now time.Time) *Match {
	return &Match{
		MatchID:   matchID,
		Mode:      mode,
		BestOf:    bestOf,
		Player1ID: player1ID,
		State:     AwaitingOpponent,
		CreatedAt: now,
	}
}

// Invariant checks the subset of spec §3's invariants that can be verified
// from the struct alone, without consulting the rest of the registry. A
// failure here is a programming error, per spec §7's propagation policy.
// The state machine in package match does not call it after its
// transitions; it is checked by that package's tests.
func (m *Match) Invariant() bool {
	switch m.State {
	case AwaitingOpponent:
		if m.Player2ID != "" || m.P1Move != nil || m.P2Move != nil || m.P1Score != 0 || m.P2Score != 0 {
			return false
		}
	case AwaitingMoves:
		if m.Player1ID == "" || m.Player2ID == "" {
			return false
		}
		if m.P1Move != nil && m.P2Move != nil {
			return false // both-filled must have been resolved already
		}
		if m.CurrentRoundDeadline.IsZero() {
			return false
		}
	case Completed:
		maxScore := m.P1Score
		if m.P2Score > maxScore {
			maxScore = m.P2Score
		}
		if maxScore != m.RoundsToWin() {
			return false
		}
		if m.WinnerID == "" {
			return false
		}
	}
	if m.Player1ID != "" && m.Player1ID == m.Player2ID {
		return false
	}
	return true
}
