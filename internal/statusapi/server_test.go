package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/archive"
	"github.com/park285/Cheese-Lichess-bot/internal/chess"
	"github.com/park285/Cheese-Lichess-bot/internal/game"
	"github.com/park285/Cheese-Lichess-bot/pkg/botdto"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type fakeSessions struct {
	list []game.Snapshot
}

func (f *fakeSessions) Count() int                { return len(f.list) }
func (f *fakeSessions) Sessions() []game.Snapshot { return f.list }
func (f *fakeSessions) Session(id string) (game.Snapshot, bool) {
	for _, s := range f.list {
		if s.ID == id {
			return s, true
		}
	}
	return game.Snapshot{}, false
}

func newFixture(t *testing.T, hub *Hub) (*httptest.Server, *archive.MemoryStore) {
	t.Helper()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := &fakeSessions{list: []game.Snapshot{
		{
			ID:         "abcd1234",
			RunID:      "run-1",
			Color:      chess.White,
			InitialFEN: chess.StartFEN,
			FEN:        "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2",
			Moves:      []string{"e2e4", "e7e5"},
			Status:     "started",
			Clock:      chess.ClockState{WhiteMs: 170000, BlackMs: 175000, WhiteIncMs: 2000, BlackIncMs: 2000},
			ThinkTimes: []time.Duration{1500 * time.Millisecond},
			Opponent:   "someone",
			Variant:    "standard",
			Speed:      "blitz",
			StartedAt:  started,
		},
	}}
	mem := archive.NewMemoryStore(10)
	srv := httptest.NewServer(NewRouter(sessions, mem, hub))
	t.Cleanup(srv.Close)
	return srv, mem
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newFixture(t, NewHub())

	var h botdto.Health
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &h))
	require.Equal(t, "ok", h.Status)
	require.Equal(t, 1, h.Sessions)
	require.Equal(t, 0, h.Clients)
}

func TestSessions(t *testing.T) {
	srv, _ := newFixture(t, nil)

	var list botdto.SessionList
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/sessions", &list))
	require.Equal(t, 1, list.Count)
	v := list.Sessions[0]
	require.Equal(t, "abcd1234", v.GameID)
	require.Equal(t, "white", v.Color)
	require.Equal(t, 2, v.Ply)
	require.Equal(t, int64(170000), v.Clock.WhiteMs)
	require.Equal(t, int64(1500), v.LastThinkMs)

	var one botdto.SessionView
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/sessions/abcd1234", &one))
	require.Equal(t, []string{"e2e4", "e7e5"}, one.Moves)

	var missing botdto.ErrorResponse
	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/sessions/nope", &missing))
	require.Equal(t, "session_not_found", missing.Code)
}

func TestRecentGames(t *testing.T) {
	srv, mem := newFixture(t, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"g1", "g2", "g3"} {
		require.NoError(t, mem.SaveResult(context.Background(), &archive.GameRecord{
			GameID:       id,
			BotColor:     "white",
			Status:       "mate",
			Winner:       "white",
			MovesUCI:     []string{"e2e4"},
			MovesSAN:     []string{"e4"},
			ThinkTimesMs: []int64{100, 300},
			EndedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	var list botdto.GameList
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/games/recent?limit=2", &list))
	require.Equal(t, 2, list.Count)
	require.Equal(t, "g3", list.Games[0].GameID)
	require.Equal(t, "g2", list.Games[1].GameID)
	require.Equal(t, "white", list.Games[0].Result)
	require.Equal(t, int64(200), list.Games[0].AvgThinkMs)
	require.Equal(t, 1, list.Games[0].Plies)

	var bad botdto.ErrorResponse
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/games/recent?limit=zero", &bad))
	require.Equal(t, "bad_limit", bad.Code)
}

func TestRecentGamesDisabled(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&fakeSessions{}, nil, nil))
	defer srv.Close()

	var e botdto.ErrorResponse
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/games/recent", &e))
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/ws", &e))
}

func TestNoticeFeed(t *testing.T) {
	hub := NewHub()
	srv, _ := newFixture(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Notify(game.Notice{Kind: game.NoticeMovePlayed, GameID: "abcd1234", Move: "g1f3", ThinkMs: 420})

	var got game.Notice
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	require.Equal(t, game.NoticeMovePlayed, got.Kind)
	require.Equal(t, "g1f3", got.Move)
	require.Equal(t, int64(420), got.ThinkMs)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.subscribe()
	defer hub.unsubscribe(sub)

	for i := 0; i < clientBuffer+5; i++ {
		hub.Notify(game.Notice{Kind: game.NoticeMovePlayed})
	}
	require.Len(t, sub.ch, clientBuffer)
	require.Equal(t, uint64(5), hub.Dropped())
}
