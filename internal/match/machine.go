// Package match implements the Match State Machine (C4): the sole
// authority over a single match's legal transitions. Every exported
// function here assumes the caller (package registry) already holds the
// per-match exclusion lock described in spec §5 — nothing in this package
// takes a lock of its own, and nothing in this package performs I/O.
package match

import (
	"time"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/rules"
)

// Config carries the policy knobs spec §6 lists that the state machine
// itself consults (timeout duration, bestOf bounds).
type Config struct {
	MoveTimeout  time.Duration
	MaxBestOf    int
}

// Effect describes what the caller (the registry, holding the Timeout
// Scheduler) must do after a transition. At most one of ArmDeadline /
// CancelDeadline is meaningful per call.
type Effect struct {
	ArmDeadline   bool
	DeadlineAt    time.Time
	Epoch         int
	CancelDeadline bool
	// JustCompleted is true the instant a transition lands the match in a
	// terminal state; the registry uses this to trigger stats accumulation
	// and the repository flush exactly once, outside the lock.
	JustCompleted bool
}

// Create validates and constructs a new match in AwaitingOpponent.
func Create(cfg Config, matchID, player1ID string, mode domain.Mode, bestOf int, now time.Time) (*domain.Match, error) {
	const op = "create"
	if player1ID == "" {
		return nil, apperr.New(op, apperr.InvalidArgument, "player1 is required")
	}
	if bestOf < 1 || bestOf > cfg.MaxBestOf {
		return nil, apperr.New(op, apperr.InvalidArgument, "bestOf out of range")
	}
	if bestOf%2 == 0 {
		return nil, apperr.New(op, apperr.InvalidArgument, "bestOf must be odd")
	}
	return domain.NewMatch(matchID, player1ID, mode, bestOf, now), nil
}

// Join seats player 2 and opens the first round (spec §4.4's join op).
func Join(cfg Config, m *domain.Match, player2ID string, now time.Time) (Effect, error) {
	const op = "join"
	if m.State.Terminal() {
		return Effect{}, apperr.New(op, apperr.IllegalState, "match is terminal")
	}
	if m.State != domain.AwaitingOpponent {
		return Effect{}, apperr.New(op, apperr.AlreadyJoined, "match already has an opponent")
	}
	if player2ID == m.Player1ID {
		return Effect{}, apperr.New(op, apperr.SelfJoin, "cannot join your own match")
	}

	m.Player2ID = player2ID
	m.State = domain.AwaitingMoves
	started := now
	m.StartedAt = &started

	eff := armDeadline(cfg, m, now)
	return eff, nil
}

// SubmitMove fills the caller's round slot and, if both slots are now
// filled, resolves the round (spec §4.4's submitMove op and round
// resolution algorithm).
func SubmitMove(cfg Config, m *domain.Match, playerID string, mv rules.Move, now time.Time) (Effect, error) {
	const op = "submitMove"
	if m.State.Terminal() {
		return Effect{}, apperr.New(op, apperr.IllegalState, "match is terminal")
	}
	if m.State != domain.AwaitingMoves {
		return Effect{}, apperr.New(op, apperr.IllegalState, "match is not accepting moves")
	}
	if playerID != m.Player1ID && playerID != m.Player2ID {
		return Effect{}, apperr.New(op, apperr.NotParticipant, "player is not in this match")
	}
	if !m.CurrentRoundDeadline.IsZero() && !now.Before(m.CurrentRoundDeadline) {
		return Effect{}, apperr.New(op, apperr.DeadlineExceeded, "round deadline has passed")
	}

	if playerID == m.Player1ID {
		if m.P1Move != nil {
			return Effect{}, apperr.New(op, apperr.DoubleSubmit, "move already submitted")
		}
		move := mv
		m.P1Move = &move
	} else {
		if m.P2Move != nil {
			return Effect{}, apperr.New(op, apperr.DoubleSubmit, "move already submitted")
		}
		move := mv
		m.P2Move = &move
	}

	if m.P1Move == nil || m.P2Move == nil {
		return Effect{}, nil
	}

	return resolveRound(cfg, m, now), nil
}

// OnDeadline applies the timeout policy for a fired deadline (spec §4.4).
// A mismatched epoch means a stale timer fired after the round already
// moved on; it is silently ignored, never surfaced as an error, since the
// scheduler cannot know in advance whether its timer is still live.
func OnDeadline(cfg Config, m *domain.Match, epoch int, now time.Time) Effect {
	if m.State.Terminal() || m.State != domain.AwaitingMoves {
		return Effect{}
	}
	if epoch != m.DeadlineEpoch {
		return Effect{}
	}

	switch {
	case m.P1Move != nil && m.P2Move == nil:
		return forfeitRound(cfg, m, now, m.Player1ID)
	case m.P2Move != nil && m.P1Move == nil:
		return forfeitRound(cfg, m, now, m.Player2ID)
	default:
		m.State = domain.TimedOut
		completed := now
		m.CompletedAt = &completed
		return Effect{CancelDeadline: true, JustCompleted: true}
	}
}

// Cancel transitions a pre-AwaitingMoves-or-AwaitingMoves match to
// Cancelled. Per spec §5, cancellation during AwaitingMoves is reserved for
// the deadline path or administrative action; ordinary player-initiated
// cancellation (the Command Surface's cancelMatch, spec §4.8) is only legal
// in AwaitingOpponent, which CommandCancel enforces separately.
func Cancel(m *domain.Match, reason string, now time.Time) (Effect, error) {
	const op = "cancel"
	if m.State.Terminal() {
		return Effect{}, apperr.New(op, apperr.IllegalState, "match is terminal")
	}
	m.State = domain.Cancelled
	completed := now
	m.CompletedAt = &completed
	return Effect{CancelDeadline: true, JustCompleted: true}, nil
}

// CommandCancel is the stricter variant the Command Surface's cancelMatch
// uses: only a participant may cancel, and only before an opponent joins.
func CommandCancel(m *domain.Match, playerID string, now time.Time) (Effect, error) {
	const op = "cancelMatch"
	if playerID != m.Player1ID && playerID != m.Player2ID {
		return Effect{}, apperr.New(op, apperr.NotParticipant, "player is not in this match")
	}
	if m.State != domain.AwaitingOpponent {
		return Effect{}, apperr.New(op, apperr.IllegalState, "match can no longer be cancelled by a player")
	}
	return Cancel(m, "player_cancelled", now)
}

func resolveRound(cfg Config, m *domain.Match, now time.Time) Effect {
	outcome := rules.Resolve(*m.P1Move, *m.P2Move)
	m.RoundHistory = append(m.RoundHistory, domain.Round{
		P1Move:      *m.P1Move,
		P2Move:      *m.P2Move,
		Outcome:     outcome,
		CompletedAt: now,
	})
	m.P1Move = nil
	m.P2Move = nil

	if outcome == rules.Draw {
		return armDeadline(cfg, m, now)
	}

	if outcome == rules.P1Win {
		m.P1Score++
	} else {
		m.P2Score++
	}

	if m.P1Score == m.RoundsToWin() || m.P2Score == m.RoundsToWin() {
		m.State = domain.Completed
		completed := now
		m.CompletedAt = &completed
		if m.P1Score > m.P2Score {
			m.WinnerID = m.Player1ID
		} else {
			m.WinnerID = m.Player2ID
		}
		return Effect{CancelDeadline: true, JustCompleted: true}
	}

	return armDeadline(cfg, m, now)
}

// forfeitRound treats the non-submitter's slot as a loss: the round is
// appended to history using whatever the submitter played against an empty
// slot recorded as a forfeit (represented here by resolving straight to a
// win for the submitter, without inventing an opposing move), then checks
// for match completion exactly as a normal round would.
func forfeitRound(cfg Config, m *domain.Match, now time.Time, forfeiterID string) Effect {
	winnerIsP1 := forfeiterID != m.Player1ID

	var submittedMove rules.Move
	if winnerIsP1 {
		submittedMove = *m.P1Move
	} else {
		submittedMove = *m.P2Move
	}

	round := domain.Round{CompletedAt: now}
	if winnerIsP1 {
		round.P1Move = submittedMove
		round.Outcome = rules.P1Win
		m.P1Score++
	} else {
		round.P2Move = submittedMove
		round.Outcome = rules.P2Win
		m.P2Score++
	}
	m.RoundHistory = append(m.RoundHistory, round)
	m.P1Move = nil
	m.P2Move = nil

	if m.P1Score == m.RoundsToWin() || m.P2Score == m.RoundsToWin() {
		m.State = domain.Completed
		completed := now
		m.CompletedAt = &completed
		if m.P1Score > m.P2Score {
			m.WinnerID = m.Player1ID
		} else {
			m.WinnerID = m.Player2ID
		}
		return Effect{CancelDeadline: true, JustCompleted: true}
	}

	return armDeadline(cfg, m, now)
}

func armDeadline(cfg Config, m *domain.Match, now time.Time) Effect {
	m.DeadlineEpoch++
	m.CurrentRoundDeadline = now.Add(cfg.MoveTimeout)
	return Effect{ArmDeadline: true, DeadlineAt: m.CurrentRoundDeadline, Epoch: m.DeadlineEpoch}
}
