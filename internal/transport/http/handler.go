// Package http is the HTTP transport adapter over the Command Surface
// (C8), grounded on merev-ds-game-api's internal/game.Handler: one
// context.WithTimeout per request, chi.URLParam for path params, a shared
// writeJSON helper, and apperr.Kind mapped onto the nearest HTTP status and
// a kind-only message — never the teacher's blanket
// http.Error(... err.Error()), which would leak internal error text (driver
// messages, query fragments) to the client. The full error is logged
// server-side instead, per spec §7.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rpsarena/match-engine/internal/apperr"
	"github.com/rpsarena/match-engine/internal/engine"
	"github.com/rpsarena/match-engine/internal/transport/chat"
	"github.com/rpsarena/match-engine/internal/transport/ws"
)

const requestTimeout = 3 * time.Second

type Handler struct {
	eng    *engine.Engine
	chat   *chat.Adapter
	hub    *ws.Hub
	logger *zap.Logger
}

// NewHandler wires the Command Surface facade. chatAdapter and hub are
// both optional (nil disables the corresponding route); chat and
// websocket push are additive transports, never a dependency of the core.
func NewHandler(eng *engine.Engine, chatAdapter *chat.Adapter, hub *ws.Hub, logger *zap.Logger) *Handler {
	return &Handler{eng: eng, chat: chatAdapter, hub: hub, logger: logger}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Post("/players", h.RegisterPlayer)
		api.Post("/matches/quick", h.CreateQuickMatch)
		api.Post("/matches/private", h.CreatePrivateMatch)
		api.Post("/matches/join/open", h.JoinOpenQuickMatch)
		api.Post("/matches/{id}/join", h.JoinMatchByID)
		api.Post("/matches/{id}/moves", h.SubmitMove)
		api.Post("/matches/{id}/cancel", h.CancelMatch)
		api.Get("/matches/{id}", h.GetMatchView)
		api.Get("/players/{id}/stats", h.GetPlayerStats)
		api.Get("/players/{id}/matches", h.GetRecentMatches)
		if h.chat != nil {
			api.Post("/chat", h.Chat)
		}
		if h.hub != nil {
			api.Get("/matches/{id}/ws", h.Watch)
		}
	})

	return r
}

type chatRequest struct {
	SenderID string `json:"senderId"`
	Line     string `json:"line"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	reply := h.chat.Dispatch(ctx, req.SenderID, req.Line)
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")
	h.hub.ServeMatch(w, r, matchID)
}

type registerPlayerRequest struct {
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) RegisterPlayer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req registerPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	p, err := h.eng.RegisterPlayer(ctx, req.ExternalID, req.DisplayName)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type createMatchRequest struct {
	PlayerID string `json:"playerId"`
	BestOf   int    `json:"bestOf"`
}

func (h *Handler) CreateQuickMatch(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.eng.CreateQuickMatch)
}

func (h *Handler) CreatePrivateMatch(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.eng.CreatePrivateMatch)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, op func(context.Context, string, int) (engine.MatchView, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	view, err := op(ctx, req.PlayerID, req.BestOf)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type joinRequest struct {
	PlayerID string `json:"playerId"`
}

func (h *Handler) JoinOpenQuickMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	view, err := h.eng.JoinOpenQuickMatch(ctx, req.PlayerID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) JoinMatchByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	matchID := chi.URLParam(r, "id")
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	view, err := h.eng.JoinMatchByID(ctx, req.PlayerID, matchID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type submitMoveRequest struct {
	PlayerID string `json:"playerId"`
	Move     string `json:"move"`
}

func (h *Handler) SubmitMove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	matchID := chi.URLParam(r, "id")
	var req submitMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	view, err := h.eng.SubmitMove(ctx, req.PlayerID, matchID, req.Move)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	matchID := chi.URLParam(r, "id")
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	view, err := h.eng.CancelMatch(ctx, req.PlayerID, matchID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetMatchView(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	matchID := chi.URLParam(r, "id")
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		http.Error(w, "playerId query param is required", http.StatusBadRequest)
		return
	}

	view, err := h.eng.GetMatchView(ctx, playerID, matchID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	playerID := chi.URLParam(r, "id")
	stats, err := h.eng.GetPlayerStats(ctx, playerID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetRecentMatches(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	playerID := chi.URLParam(r, "id")
	summaries, err := h.eng.GetRecentMatches(ctx, playerID, 20)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the error's apperr.Kind onto the nearest HTTP status and a
// kind-only message — the same describe(err)-style pattern chat.Adapter
// uses. The full error, which may carry driver/query detail, is logged
// server-side and never reaches the client.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.InvalidArgument, apperr.SelfJoin, apperr.DoubleSubmit:
		status = http.StatusBadRequest
	case apperr.NotFound, apperr.NoMatchAvailable:
		status = http.StatusNotFound
	case apperr.IllegalState, apperr.NotParticipant, apperr.AlreadyJoined, apperr.PlayerBusy, apperr.DeadlineExceeded:
		status = http.StatusConflict
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.TransientBackend:
		status = http.StatusServiceUnavailable
	}
	if h.logger != nil {
		h.logger.Warn("request failed", zap.String("kind", kind.String()), zap.Error(err))
	}
	http.Error(w, kind.String(), status)
}
