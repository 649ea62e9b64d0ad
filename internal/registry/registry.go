// Package registry implements the Match Registry (C5): the process-wide
// index of live matches, the quick-match join queue, and the per-match
// mutual exclusion spec §5 mandates. Grounded on Byabasaija-playpool's
// GameManager (map-of-games + map-of-player-to-game + sync.RWMutex +
// background expiry goroutines) and LukeAtkinz-dashdice's GameEngine
// (map-of-ActiveMatch behind matchesMutex, a cleanup loop), generalized
// from those ad-hoc locking schemes to the spec's explicit
// one-lock-per-match discipline: the registry's own mutex only ever guards
// the index maps, never match internals. Match-state mutation happens
// under the per-entry lock, held only for the duration of one transition,
// matching spec §5.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/domain"
	"github.com/rpsarena/match-engine/internal/idgen"
	"github.com/rpsarena/match-engine/internal/match"
	"github.com/rpsarena/match-engine/internal/rating"
	"github.com/rpsarena/match-engine/internal/rules"
	"github.com/rpsarena/match-engine/internal/scheduler"
	"github.com/rpsarena/match-engine/internal/stats"
	"github.com/rpsarena/match-engine/internal/store"
)

// entry pairs a match with the lock that serialises its transitions and a
// snapshot of each participant's Player record. Ratings travel on these
// snapshots rather than being re-read from the repository mid-transition,
// so that resolving a round never needs repository I/O while the match
// lock is held (spec §5's suspension-point rule).
type entry struct {
	mu sync.Mutex
	m  *domain.Match
	p1 domain.Player
	p2 domain.Player
}

// pendingFlush is a completion flush that hit TransientBackend, queued for
// RetryPendingFlushes. It carries the two Player snapshots (ratings as of
// match completion) alongside the match so a retry recomputes Elo from the
// same inputs the original attempt used, rather than reloading — or worse,
// zero-valuing — the players.
type pendingFlush struct {
	m  *domain.Match
	p1 domain.Player
	p2 domain.Player
}

// Config bundles the policy knobs the registry threads through to the
// state machine and the stats accumulator.
type Config struct {
	Match  match.Config
	Rating rating.Config
	// AbandonedGrace bounds how long an AwaitingOpponent match may sit
	// unjoined before Sweep cancels it — the idle-match reaping feature
	// SPEC_FULL.md adds beyond the distilled spec.
	AbandonedGrace time.Duration
}

// Registry is the Match Registry. It owns the Timeout Scheduler and
// forwards completed matches to the Repository Contract and Stats
// Accumulator.
type Registry struct {
	cfg    Config
	logger *zap.Logger
	repo   store.Repository
	sched  *scheduler.Scheduler
	cache  completionCache

	mu          sync.RWMutex
	matches     map[string]*entry
	playerMatch map[string]string // non-terminal matches only
	joinQueue   []string          // FIFO, quick-mode matchIDs in AwaitingOpponent

	flushMu sync.Mutex
	pending []pendingFlush // matches whose flush hit TransientBackend

	notifier changeNotifier
}

// completionCache is the narrow slice of matchcache.Cache the registry
// needs; declared here so the registry doesn't import the concrete redis
// package directly.
type completionCache interface {
	Put(ctx context.Context, matchID string, view any)
}

// changeNotifier is the narrow slice of ws.Hub the registry needs to push a
// "this match changed, re-fetch your view" ping. The registry never renders
// a MatchView itself — that's viewer-restricted and belongs to the Command
// Surface — so only the matchId is passed, not any match content.
type changeNotifier interface {
	Broadcast(matchID string, payload any)
}

func New(cfg Config, logger *zap.Logger, repo store.Repository, cache completionCache) *Registry {
	r := &Registry{
		cfg:         cfg,
		logger:      logger,
		repo:        repo,
		cache:       cache,
		matches:     make(map[string]*entry),
		playerMatch: make(map[string]string),
	}
	r.sched = scheduler.New(logger, r.handleDeadline)
	return r
}

// SetNotifier wires an optional real-time push adapter. Called once at
// startup; nil (the default) disables pushes entirely.
func (r *Registry) SetNotifier(n changeNotifier) {
	r.notifier = n
}

// CreateMatch allocates a fresh match for player1 (spec §4.8
// createQuickMatch / createPrivateMatch, backed by C4's create op). The
// whole operation runs under the registry's single write lock: no match
// entry exists yet to serialise on, and match.Create performs no I/O, so
// holding the coarse lock here never risks the suspension-point violation
// spec §5 warns against.
func (r *Registry) CreateMatch(player1 domain.Player, mode domain.Mode, bestOf int, now time.Time) (*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.playerMatch[player1.PlayerID]; busy {
		return nil, apperr.New("create", apperr.PlayerBusy, "player already in a match")
	}

	matchID := idgen.New()
	m, err := match.Create(r.cfg.Match, matchID, player1.PlayerID, mode, bestOf, now)
	if err != nil {
		return nil, err
	}

	r.matches[matchID] = &entry{m: m, p1: player1}
	r.playerMatch[player1.PlayerID] = matchID
	if mode == domain.ModeQuick {
		r.joinQueue = append(r.joinQueue, matchID)
	}

	r.logger.Info("match created",
		zap.String("matchId", matchID), zap.String("player1", player1.PlayerID), zap.String("mode", string(mode)))
	return snapshot(m), nil
}

// FindOpenQuickMatch returns the oldest quick match awaiting an opponent
// that excludePlayer didn't create, or ok=false (spec §4.5's
// findOpenQuickMatch, backing §4.8's joinOpenQuickMatch).
func (r *Registry) FindOpenQuickMatch(excludePlayer string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.joinQueue {
		e, ok := r.matches[id]
		if !ok {
			continue
		}
		e.mu.Lock()
		isOpen := e.m.State == domain.AwaitingOpponent
		creator := e.m.Player1ID
		e.mu.Unlock()
		if isOpen && creator != excludePlayer {
			return id, true
		}
	}
	return "", false
}

// JoinMatch seats player2 into matchID (spec §4.8 joinOpenQuickMatch /
// joinMatchById, backed by C4's join op). The player-busy slot is reserved
// under the registry lock before the match lock is touched, and rolled
// back if the join itself is rejected, so two concurrent joins by the same
// player can never both succeed even though the two locks are distinct.
func (r *Registry) JoinMatch(matchID string, player2 domain.Player, now time.Time) (*domain.Match, error) {
	r.mu.Lock()
	// Player1ID never changes after creation, so it is safe to read here
	// without the match lock. Checked before the busy check, since the
	// creator is always busy with their own match.
	if e, ok := r.matches[matchID]; ok && e.m.Player1ID == player2.PlayerID {
		r.mu.Unlock()
		return nil, apperr.New("join", apperr.SelfJoin, "cannot join your own match")
	}
	if _, busy := r.playerMatch[player2.PlayerID]; busy {
		r.mu.Unlock()
		return nil, apperr.New("join", apperr.PlayerBusy, "player already in a match")
	}
	e, ok := r.matches[matchID]
	if !ok {
		r.mu.Unlock()
		return nil, apperr.New("join", apperr.NotFound, "match not found")
	}
	r.playerMatch[player2.PlayerID] = matchID
	r.mu.Unlock()

	e.mu.Lock()
	eff, err := match.Join(r.cfg.Match, e.m, player2.PlayerID, now)
	if err == nil {
		e.p2 = player2
	}
	var snap *domain.Match
	if err == nil {
		snap = snapshot(e.m)
	}
	e.mu.Unlock()

	if err != nil {
		r.mu.Lock()
		delete(r.playerMatch, player2.PlayerID)
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	r.removeFromJoinQueueLocked(matchID)
	r.mu.Unlock()

	if eff.ArmDeadline {
		r.sched.Arm(matchID, eff.DeadlineAt, eff.Epoch)
	}

	r.logger.Info("match joined", zap.String("matchId", matchID), zap.String("player2", player2.PlayerID))
	return snap, nil
}

// SubmitMove applies playerID's move (spec §4.8 submitMove, backed by C4's
// submitMove op and round-resolution algorithm). If the round or match
// completes, the stats/repository flush happens synchronously here, after
// the match lock has been released, per spec §5's suspension-point rule.
func (r *Registry) SubmitMove(ctx context.Context, matchID, playerID string, mv rules.Move, now time.Time) (*domain.Match, error) {
	r.mu.RLock()
	e, ok := r.matches[matchID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New("submitMove", apperr.NotFound, "match not found")
	}

	e.mu.Lock()
	eff, err := match.SubmitMove(r.cfg.Match, e.m, playerID, mv, now)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snap := snapshot(e.m)
	var finalizeM *domain.Match
	p1, p2 := e.p1, e.p2
	if eff.JustCompleted {
		finalizeM = snapshot(e.m)
	}
	e.mu.Unlock()

	r.applyEffect(matchID, eff)
	if finalizeM != nil {
		r.finalizeTerminal(ctx, finalizeM, p1, p2)
	}
	return snap, nil
}

// CancelMatch is the player-initiated cancellation path (spec §4.8
// cancelMatch), legal only while the match is still AwaitingOpponent.
func (r *Registry) CancelMatch(ctx context.Context, matchID, playerID string, now time.Time) (*domain.Match, error) {
	r.mu.RLock()
	e, ok := r.matches[matchID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New("cancelMatch", apperr.NotFound, "match not found")
	}

	e.mu.Lock()
	eff, err := match.CommandCancel(e.m, playerID, now)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snap := snapshot(e.m)
	p1, p2 := e.p1, e.p2
	e.mu.Unlock()

	r.applyEffect(matchID, eff)
	r.finalizeTerminal(ctx, snap, p1, p2)
	return snap, nil
}

// CurrentMatchID returns the non-terminal match playerID currently occupies,
// if any. Chat-style adapters use this to resolve a bare "/rock" to a
// matchId without the caller tracking one itself.
func (r *Registry) CurrentMatchID(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.playerMatch[playerID]
	return id, ok
}

// GetMatch returns a snapshot of a live match, or ok=false if matchID isn't
// in the live table (it may never have existed, or may already have been
// flushed and evicted after completing).
func (r *Registry) GetMatch(matchID string) (*domain.Match, bool) {
	r.mu.RLock()
	e, ok := r.matches[matchID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.m), true
}

// handleDeadline is the scheduler.DeadlineFunc the Timeout Scheduler (C6)
// invokes when an armed deadline elapses. It acquires the match lock itself
// (the scheduler never holds any lock while calling this), matching spec
// §5's "arrival of an onDeadline event acquires this lock" requirement.
func (r *Registry) handleDeadline(matchID string, epoch int) {
	r.mu.RLock()
	e, ok := r.matches[matchID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	eff := match.OnDeadline(r.cfg.Match, e.m, epoch, time.Now())
	var finalizeM *domain.Match
	p1, p2 := e.p1, e.p2
	if eff.JustCompleted {
		finalizeM = snapshot(e.m)
	}
	e.mu.Unlock()

	r.applyEffect(matchID, eff)
	if finalizeM != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.finalizeTerminal(ctx, finalizeM, p1, p2)
	}
}

func (r *Registry) applyEffect(matchID string, eff match.Effect) {
	switch {
	case eff.ArmDeadline:
		r.sched.Arm(matchID, eff.DeadlineAt, eff.Epoch)
	case eff.CancelDeadline:
		r.sched.Cancel(matchID, eff.Epoch)
	}
	if r.notifier != nil {
		r.notifier.Broadcast(matchID, map[string]string{"matchId": matchID, "event": "updated"})
	}
}

// finalizeTerminal evicts a just-terminal match from the live indices and,
// for Completed/TimedOut matches, folds the outcome into both players'
// stats and flushes it through the Repository Contract (spec §4.5's "On
// terminal transition, remove the match from indices, invoke stats
// accumulation, persist"). Cancelled matches carry no stats and are simply
// evicted.
func (r *Registry) finalizeTerminal(ctx context.Context, m *domain.Match, p1, p2 domain.Player) {
	r.mu.Lock()
	delete(r.matches, m.MatchID)
	delete(r.playerMatch, m.Player1ID)
	if m.Player2ID != "" {
		delete(r.playerMatch, m.Player2ID)
	}
	r.removeFromJoinQueueLocked(m.MatchID)
	r.mu.Unlock()
	r.sched.Forget(m.MatchID)

	if m.State != domain.Completed && m.State != domain.TimedOut {
		return
	}
	r.flushCompletedMatch(ctx, m, p1, p2)
}

// flushCompletedMatch performs the idempotent-by-matchId stats fold and the
// repository save, retrying a bounded number of times on Conflict (spec
// §4.7) and queueing for later retry on TransientBackend without reverting
// the in-memory completion (spec §7).
func (r *Registry) flushCompletedMatch(ctx context.Context, m *domain.Match, p1, p2 domain.Player) {
	const maxConflictRetries = 3

	p1Stats, err := r.repo.LoadStats(ctx, m.Player1ID)
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		r.queuePendingFlush(m, p1, p2)
		r.logger.Warn("flush: load p1 stats failed", zap.String("matchId", m.MatchID), zap.Error(err))
		return
	}
	p2Stats, err := r.repo.LoadStats(ctx, m.Player2ID)
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		r.queuePendingFlush(m, p1, p2)
		r.logger.Warn("flush: load p2 stats failed", zap.String("matchId", m.MatchID), zap.Error(err))
		return
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		p1s, p2s, r1, r2 := stats.Apply(r.cfg.Rating, m, p1Stats, p2Stats, p1.Rating, p2.Rating)

		err := r.repo.SaveCompletedMatch(ctx, m, p1s, r1, p2s, r2)
		if err == nil {
			if r.cache != nil {
				r.cache.Put(ctx, m.MatchID, m)
			}
			return
		}
		if apperr.Is(err, apperr.Conflict) {
			p1Stats, _ = r.repo.LoadStats(ctx, m.Player1ID)
			p2Stats, _ = r.repo.LoadStats(ctx, m.Player2ID)
			continue
		}

		r.logger.Warn("flush: save failed, queued for retry",
			zap.String("matchId", m.MatchID), zap.Error(err))
		r.queuePendingFlush(m, p1, p2)
		return
	}

	r.logger.Warn("flush: exhausted conflict retries, queued for retry", zap.String("matchId", m.MatchID))
	r.queuePendingFlush(m, p1, p2)
}

func (r *Registry) queuePendingFlush(m *domain.Match, p1, p2 domain.Player) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()
	r.pending = append(r.pending, pendingFlush{m: m, p1: p1, p2: p2})
}

// RetryPendingFlushes re-attempts every queued flush. It is meant to be
// driven by a periodic background job (see StartBackgroundJobs); stats
// accumulation's idempotence-by-matchId makes re-running a successful flush
// harmless.
func (r *Registry) RetryPendingFlushes(ctx context.Context) {
	r.flushMu.Lock()
	batch := r.pending
	r.pending = nil
	r.flushMu.Unlock()

	for _, pf := range batch {
		r.flushCompletedMatch(ctx, pf.m, pf.p1, pf.p2)
	}
}

// Sweep cancels AwaitingOpponent matches older than AbandonedGrace — the
// idle-match reaping feature SPEC_FULL.md adds. It does not touch
// AwaitingMoves matches: those are already bounded by the per-round
// deadline, which is the mechanism spec §4.6 defines for that case.
func (r *Registry) Sweep(now time.Time) {
	if r.cfg.AbandonedGrace <= 0 {
		return
	}

	r.mu.RLock()
	candidates := make([]string, 0)
	for id, e := range r.matches {
		e.mu.Lock()
		stale := e.m.State == domain.AwaitingOpponent && now.Sub(e.m.CreatedAt) > r.cfg.AbandonedGrace
		e.mu.Unlock()
		if stale {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range candidates {
		r.mu.RLock()
		e, ok := r.matches[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		var snap *domain.Match
		var p1, p2 domain.Player
		if e.m.State == domain.AwaitingOpponent && now.Sub(e.m.CreatedAt) > r.cfg.AbandonedGrace {
			if _, err := match.Cancel(e.m, "abandoned", now); err == nil {
				snap = snapshot(e.m)
				p1, p2 = e.p1, e.p2
			}
		}
		e.mu.Unlock()

		if snap != nil {
			r.logger.Info("match reaped as abandoned", zap.String("matchId", id))
			r.finalizeTerminal(context.Background(), snap, p1, p2)
		}
	}
}

// StartBackgroundJobs launches the abandoned-match sweep and the pending
// stats/repository flush retry as explicit goroutines tied to ctx, rather
// than as an implicit side effect of construction — spec §9 calls for
// components to be "wired at startup" explicitly.
func (r *Registry) StartBackgroundJobs(ctx context.Context, sweepInterval, retryInterval time.Duration) {
	go r.loop(ctx, sweepInterval, func() { r.Sweep(time.Now()) })
	go r.loop(ctx, retryInterval, func() {
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		r.RetryPendingFlushes(flushCtx)
	})
}

func (r *Registry) loop(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func snapshot(m *domain.Match) *domain.Match {
	cp := *m
	cp.RoundHistory = append([]domain.Round(nil), m.RoundHistory...)
	return &cp
}

func (r *Registry) removeFromJoinQueueLocked(matchID string) {
	for i, id := range r.joinQueue {
		if id == matchID {
			r.joinQueue = append(r.joinQueue[:i], r.joinQueue[i+1:]...)
			return
		}
	}
}
