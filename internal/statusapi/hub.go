package statusapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/game"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

type subscriber struct {
	ch chan game.Notice
}

// Hub fans session lifecycle notices out to websocket subscribers. A slow
// subscriber loses notices instead of stalling the game that produced them.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Notify implements game.Notifier.
func (h *Hub) Notify(n game.Notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.ch <- n:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts notices discarded because a subscriber was not keeping up.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribe() *subscriber {
	s := &subscriber{ch: make(chan game.Notice, clientBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams notices as JSON text frames until
// either side goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		obslog.L().Warn("status_ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	sub := h.subscribe()
	defer h.unsubscribe(sub)
	obslog.L().Debug("status_ws_connected", zap.String("remote", r.RemoteAddr))

	// the feed is one-way; CloseRead handles control frames and cancels ctx
	// once the peer closes.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case n := <-sub.ch:
			if err := h.write(ctx, conn, n); err != nil {
				obslog.L().Debug("status_ws_write_failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, n game.Notice) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, n)
}
