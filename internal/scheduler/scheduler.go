// Package scheduler implements the Timeout Scheduler (C6): per-match
// deadline timers that fire an onDeadline event into the Match Registry.
// It is deliberately dumb — timers are keyed by matchId and each carries
// the epoch it was armed with, so a superseded timer firing late is a
// no-op at the call site, per spec §4.6. Grounded on the pack's background-goroutine timer style
// (Byabasaija-playpool's StartExpiryChecker / StartDisconnectChecker),
// adapted here to one timer per match instead of a periodic sweep, since
// spec §4.6 calls for per-match deadlines rather than a shared poll loop.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeadlineFunc is invoked when a match's armed deadline elapses. The
// scheduler runs it on its own per-timer goroutine (via time.AfterFunc),
// so it may block without holding up other timers; the callee acquires the
// match's lock itself (the Match Registry wires this to onDeadline, and
// runs the completion flush from there).
type DeadlineFunc func(matchID string, epoch int)

// Scheduler owns one time.Timer per match with a live deadline.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	onFire  DeadlineFunc
	logger  *zap.Logger
}

func New(logger *zap.Logger, onFire DeadlineFunc) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		onFire: onFire,
		logger: logger,
	}
}

// Arm schedules onFire(matchID, epoch) to run at deadline. A prior timer
// for the same match, if any, is stopped first — armings for the same
// match supersede each other, per spec §4.6, and the superseded timer's
// firing (if it raced past Stop) is still safe because the registry
// re-checks the epoch under the match lock before acting on it.
func (s *Scheduler) Arm(matchID string, deadline time.Time, epoch int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[matchID]; ok {
		t.Stop()
	}

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	s.timers[matchID] = time.AfterFunc(d, func() {
		s.logger.Debug("deadline fired", zap.String("matchId", matchID), zap.Int("epoch", epoch))
		s.onFire(matchID, epoch)
	})
}

// Cancel stops the timer for matchID, if one is armed. epoch is accepted
// for symmetry with Arm and logging, but cancellation always stops
// whatever timer is currently registered: a cancel request is only ever
// issued by the same lock-holder that would otherwise re-arm or terminate
// the match, so there is no stale-epoch cancel to guard against the way
// there is for firings.
func (s *Scheduler) Cancel(matchID string, epoch int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[matchID]; ok {
		t.Stop()
		delete(s.timers, matchID)
		s.logger.Debug("deadline cancelled", zap.String("matchId", matchID), zap.Int("epoch", epoch))
	}
}

// Forget drops the timer entry for matchID without stopping it — used once
// a match is confirmed terminal and its timer has already fired or been
// cancelled, to bound the map's size.
func (s *Scheduler) Forget(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, matchID)
}
