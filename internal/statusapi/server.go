// Package statusapi serves a read-only operator view of the running bot.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/park285/Cheese-Lichess-bot/internal/archive"
	"github.com/park285/Cheese-Lichess-bot/internal/game"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"github.com/park285/Cheese-Lichess-bot/pkg/botdto"
	"go.uber.org/zap"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// SessionSource is satisfied by *game.Manager.
type SessionSource interface {
	Count() int
	Sessions() []game.Snapshot
	Session(gameID string) (game.Snapshot, bool)
}

// RecentSource is satisfied by *archive.MemoryStore.
type RecentSource interface {
	Recent(limit int) []*archive.GameRecord
}

type handler struct {
	sessions SessionSource
	recent   RecentSource
	hub      *Hub
}

// NewRouter builds the status routes. recent and hub may be nil; the matching
// routes then answer 503.
func NewRouter(sessions SessionSource, recent RecentSource, hub *Hub) http.Handler {
	h := &handler{sessions: sessions, recent: recent, hub: hub}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/sessions", h.listSessions)
	r.Get("/sessions/{id}", h.getSession)
	r.Get("/games/recent", h.recentGames)
	r.Get("/ws", h.ws)
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.Clients()
	}
	respondJSON(w, http.StatusOK, botdto.Health{Status: "ok", Sessions: h.sessions.Count(), Clients: clients})
}

func (h *handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	snaps := h.sessions.Sessions()
	out := botdto.SessionList{Count: len(snaps), Sessions: make([]botdto.SessionView, 0, len(snaps))}
	for _, s := range snaps {
		out.Sessions = append(out.Sessions, SessionView(s))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := h.sessions.Session(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "no live session "+id)
		return
	}
	respondJSON(w, http.StatusOK, SessionView(snap))
}

func (h *handler) recentGames(w http.ResponseWriter, r *http.Request) {
	if h.recent == nil {
		respondError(w, http.StatusServiceUnavailable, "history_disabled", "game history is not kept")
		return
	}
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	recs := h.recent.Recent(limit)
	out := botdto.GameList{Count: len(recs), Games: make([]botdto.GameSummary, 0, len(recs))}
	for _, rec := range recs {
		out.Games = append(out.Games, GameSummary(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handler) ws(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "feed_disabled", "notice feed is not enabled")
		return
	}
	h.hub.ServeWS(w, r)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		obslog.L().Debug("status_encode_failed", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, botdto.ErrorResponse{Code: code, Message: msg})
}

// Server runs the status router until its context ends.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run listens and serves; it shuts the server down when ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	obslog.L().Info("status_api_listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		// hijacked websocket connections are not tracked by Shutdown
		_ = s.srv.Shutdown(shutdownCtx)
		return nil
	}
}
