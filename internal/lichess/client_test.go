package lichess

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path   string
	auth   string
	form   url.Values
	method string
}

type callLog struct {
	mu    sync.Mutex
	items []recorded
}

func (l *callLog) add(r recorded) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, r)
}

func (l *callLog) all() []recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recorded(nil), l.items...)
}

func newFakePlatform(t *testing.T, moveStatuses []int) (*httptest.Server, *callLog, *atomic.Int32) {
	t.Helper()
	calls := &callLog{}
	var moveHits atomic.Int32
	record := func(r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		calls.add(recorded{path: r.URL.Path, auth: r.Header.Get("Authorization"), form: form, method: r.Method})
	}

	r := chi.NewRouter()
	r.Get("/api/account", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cheesebot","username":"CheeseBot","title":"BOT"}`))
	})
	r.Post("/api/challenge/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if chi.URLParam(r, "id") == "gone" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Post("/api/challenge/{id}/decline", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Post("/api/bot/game/{id}/move/{move}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		n := int(moveHits.Add(1)) - 1
		status := http.StatusOK
		if n < len(moveStatuses) {
			status = moveStatuses[n]
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	})
	r.Post("/api/bot/game/{id}/chat", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, calls, &moveHits
}

func TestClientAccount(t *testing.T) {
	srv, calls, _ := newFakePlatform(t, nil)
	c := NewClient(srv.URL, "tok")

	acct, err := c.Account(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cheesebot", acct.ID)
	require.Equal(t, "BOT", acct.Title)
	require.Len(t, calls.all(), 1)
	require.Equal(t, "Bearer tok", calls.all()[0].auth)
}

func TestClientAcceptAndDecline(t *testing.T) {
	srv, calls, _ := newFakePlatform(t, nil)
	c := NewClient(srv.URL, "tok")
	ctx := context.Background()

	require.NoError(t, c.AcceptChallenge(ctx, "c1"))
	require.NoError(t, c.DeclineChallenge(ctx, "c2", DeclineVariant))

	require.Len(t, calls.all(), 2)
	require.Equal(t, "/api/challenge/c1/accept", calls.all()[0].path)
	require.Equal(t, "/api/challenge/c2/decline", calls.all()[1].path)
	require.Equal(t, "variant", calls.all()[1].form.Get("reason"))
}

func TestClientNotFoundMapsToSentinel(t *testing.T) {
	srv, _, _ := newFakePlatform(t, nil)
	c := NewClient(srv.URL, "tok")

	err := c.AcceptChallenge(context.Background(), "gone")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClientMakeMoveRetriesTransientStatus(t *testing.T) {
	srv, calls, hits := newFakePlatform(t, []int{http.StatusServiceUnavailable, http.StatusTooManyRequests})
	c := NewClient(srv.URL, "tok", WithRetry(3))

	require.NoError(t, c.MakeMove(context.Background(), "g1", "e2e4"))
	require.Equal(t, int32(3), hits.Load())
	require.Equal(t, "/api/bot/game/g1/move/e2e4", calls.all()[2].path)
}

func TestClientMakeMoveDoesNotRetryBadRequest(t *testing.T) {
	srv, _, hits := newFakePlatform(t, []int{http.StatusBadRequest})
	c := NewClient(srv.URL, "tok", WithRetry(3))

	err := c.MakeMove(context.Background(), "g1", "e2e5")
	require.ErrorIs(t, err, ErrBadRequest)
	require.Equal(t, int32(1), hits.Load())
}

func TestClientMakeMoveGivesUpAfterRetries(t *testing.T) {
	srv, _, hits := newFakePlatform(t, []int{500, 500, 500, 500})
	c := NewClient(srv.URL, "tok", WithRetry(2))

	err := c.MakeMove(context.Background(), "g1", "e2e4")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 500, apiErr.Status)
	require.Equal(t, int32(2), hits.Load())
}

func TestClientSendChat(t *testing.T) {
	srv, calls, _ := newFakePlatform(t, nil)
	c := NewClient(srv.URL, "tok")

	require.NoError(t, c.SendChat(context.Background(), "g1", "player", "good luck"))
	require.Equal(t, "player", calls.all()[0].form.Get("room"))
	require.Equal(t, "good luck", calls.all()[0].form.Get("text"))
}

func TestClientHonorsCanceledContext(t *testing.T) {
	srv, _, hits := newFakePlatform(t, nil)
	c := NewClient(srv.URL, "tok")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.MakeMove(ctx, "g1", "e2e4")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(0), hits.Load())
}

func TestBackoffDuration(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, backoffDuration(1))
	require.Equal(t, 200*time.Millisecond, backoffDuration(2))
	require.Equal(t, 3200*time.Millisecond, backoffDuration(10))
}

type countingFetcher struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (f *countingFetcher) Account(context.Context) (*Account, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("boom")
	}
	return &Account{ID: "cheesebot", Username: "CheeseBot"}, nil
}

func TestIdentityCachesOnlySuccess(t *testing.T) {
	f := &countingFetcher{}
	f.fail.Store(true)
	id := NewIdentity(f)

	_, err := id.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, "", id.ID())

	f.fail.Store(false)
	acct, err := id.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cheesebot", acct.ID)

	_, err = id.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), f.calls.Load())
	require.Equal(t, "cheesebot", id.ID())
}
