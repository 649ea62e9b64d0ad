// Package chat is the chat-style command-surface adapter spec §6 sketches:
// a line of text in, a line of text out, backed by the same engine.Engine
// the HTTP adapter uses. Nothing about this package is specific to any one
// chat platform — Dispatch takes the sender's external id and a raw command
// line and returns the reply text; a bot integration wires stdin/a socket/a
// webhook to this function.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/engine"
)

const helpText = `/start - register
/play [bestOf] - create a quick match
/join [matchId] - join an open match, or a specific one by id
/rock | /paper | /scissors - submit a move in your current match
/stats - show your stats
/help - this message`

// Adapter dispatches chat command lines onto the Command Surface. It keeps
// a process-local senderId->playerId cache, populated by /start, the same
// way the HTTP adapter's caller is expected to cache the playerId a
// registerPlayer call returns.
type Adapter struct {
	eng *engine.Engine

	mu         sync.Mutex
	playerByID map[string]string
}

func NewAdapter(eng *engine.Engine) *Adapter {
	return &Adapter{eng: eng, playerByID: make(map[string]string)}
}

// Dispatch runs one command line from senderID and returns the reply.
func (a *Adapter) Dispatch(ctx context.Context, senderID, line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return helpText
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/start":
		return a.start(ctx, senderID)
	case "/play":
		return a.play(ctx, senderID, args)
	case "/join":
		return a.join(ctx, senderID, args)
	case "/rock", "/paper", "/scissors":
		return a.move(ctx, senderID, strings.TrimPrefix(cmd, "/"))
	case "/stats":
		return a.stats(ctx, senderID)
	case "/help":
		return helpText
	default:
		return "unrecognised command; try /help"
	}
}

func (a *Adapter) start(ctx context.Context, senderID string) string {
	p, err := a.eng.RegisterPlayer(ctx, senderID, senderID)
	if err != nil {
		return "registration failed: " + describe(err)
	}
	a.mu.Lock()
	a.playerByID[senderID] = p.PlayerID
	a.mu.Unlock()
	return fmt.Sprintf("welcome, your playerId is %s", p.PlayerID)
}

func (a *Adapter) play(ctx context.Context, senderID string, args []string) string {
	playerID, ok := a.resolve(senderID)
	if !ok {
		return "run /start first"
	}
	bestOf := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return "bestOf must be a number"
		}
		bestOf = n
	}
	view, err := a.eng.CreateQuickMatch(ctx, playerID, bestOf)
	if err != nil {
		return "could not create match: " + describe(err)
	}
	return fmt.Sprintf("match %s created, waiting for an opponent", view.MatchID)
}

func (a *Adapter) join(ctx context.Context, senderID string, args []string) string {
	playerID, ok := a.resolve(senderID)
	if !ok {
		return "run /start first"
	}

	var view engine.MatchView
	var err error
	if len(args) > 0 {
		view, err = a.eng.JoinMatchByID(ctx, playerID, args[0])
	} else {
		view, err = a.eng.JoinOpenQuickMatch(ctx, playerID)
	}
	if err != nil {
		return "could not join: " + describe(err)
	}
	return fmt.Sprintf("joined match %s, best of %d", view.MatchID, view.BestOf)
}

func (a *Adapter) move(ctx context.Context, senderID, move string) string {
	playerID, ok := a.resolve(senderID)
	if !ok {
		return "run /start first"
	}
	matchID, ok := a.eng.CurrentMatchID(playerID)
	if !ok {
		return "you are not in a match; try /play or /join"
	}
	view, err := a.eng.SubmitMove(ctx, playerID, matchID, move)
	if err != nil {
		return "move rejected: " + describe(err)
	}
	return fmt.Sprintf("move accepted; score %d-%d", view.You.Score, view.Opponent.Score)
}

func (a *Adapter) stats(ctx context.Context, senderID string) string {
	playerID, ok := a.resolve(senderID)
	if !ok {
		return "run /start first"
	}
	s, err := a.eng.GetPlayerStats(ctx, playerID)
	if err != nil {
		return "could not load stats: " + describe(err)
	}
	return fmt.Sprintf("%d played, %d won (%.0f%%), rating %d (%s), streak %d",
		s.GamesPlayed, s.GamesWon, s.WinRatePercent, s.Rating, s.RankLabel, s.CurrentWinStreak)
}

func (a *Adapter) resolve(senderID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.playerByID[senderID]
	return id, ok
}

func describe(err error) string {
	return apperr.KindOf(err).String()
}
