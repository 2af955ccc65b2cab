package lichess

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const (
	maxLineBytes       = 1 << 20
	defaultIdleTimeout = 60 * time.Second
)

// ErrStreamIdle is returned when a stream sends nothing, keepalives included,
// for longer than the idle timeout.
var ErrStreamIdle = errors.New("lichess: stream idle")

// Streamer opens the long-lived NDJSON streams.
type Streamer struct {
	baseURL     string
	token       string
	http        *http.Client
	idleTimeout time.Duration
}

type StreamOption func(*Streamer)

func WithIdleTimeout(d time.Duration) StreamOption {
	return func(s *Streamer) { s.idleTimeout = d }
}

func WithHTTPClient(c *http.Client) StreamOption {
	return func(s *Streamer) { s.http = c }
}

func NewStreamer(baseURL, token string, opts ...StreamOption) *Streamer {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	s := &Streamer{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       strings.TrimSpace(token),
		http:        &http.Client{},
		idleTimeout: defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StreamEvents delivers global events in order until the stream ends, ctx is
// canceled or fn returns an error. Undecodable lines are logged and skipped.
func (s *Streamer) StreamEvents(ctx context.Context, fn func(Event) error) error {
	return s.stream(ctx, "/api/stream/event", func(line []byte) error {
		ev, err := ParseEvent(line)
		if err != nil {
			obslog.L().Warn("stream_line_skipped", zap.String("stream", "event"), zap.Error(err))
			return nil
		}
		return fn(ev)
	})
}

// StreamGame delivers the events of one game in order. It returns nil when
// the platform closes the stream.
func (s *Streamer) StreamGame(ctx context.Context, gameID string, fn func(GameEvent) error) error {
	path := "/api/bot/game/stream/" + url.PathEscape(gameID)
	return s.stream(ctx, path, func(line []byte) error {
		ev, err := ParseGameEvent(line)
		if err != nil {
			obslog.L().Warn("stream_line_skipped",
				zap.String("stream", "game"),
				zap.String("game_id", gameID),
				zap.Error(err),
			)
			return nil
		}
		return fn(ev)
	})
}

func (s *Streamer) stream(ctx context.Context, path string, fn func([]byte) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")
	req.Header.Set("User-Agent", defaultUserAgent)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	w := newIdleWatchdog(s.idleTimeout, cancel)
	defer w.stop()

	// the watchdog only measures time spent waiting on the connection; a
	// callback may search for longer than the idle timeout.
	err = ReadNDJSON(resp.Body, func(line []byte) error {
		w.pause()
		defer w.reset()
		return fn(line)
	}, w.reset)
	if w.fired() {
		return fmt.Errorf("%w: %s", ErrStreamIdle, path)
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ReadNDJSON calls fn for every non-blank line of r. Blank keepalive lines only
// trigger onKeepalive, which may be nil. io.EOF is reported as nil.
func ReadNDJSON(r io.Reader, fn func([]byte) error, onKeepalive func()) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			if onKeepalive != nil {
				onKeepalive()
			}
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

type idleWatchdog struct {
	mu      sync.Mutex
	d       time.Duration
	timer   *time.Timer
	expired bool
}

func newIdleWatchdog(d time.Duration, onIdle context.CancelFunc) *idleWatchdog {
	w := &idleWatchdog{d: d}
	if d <= 0 {
		return w
	}
	w.timer = time.AfterFunc(d, func() {
		w.mu.Lock()
		w.expired = true
		w.mu.Unlock()
		onIdle()
	})
	return w
}

func (w *idleWatchdog) reset() {
	if w.timer != nil {
		w.timer.Reset(w.d)
	}
}

func (w *idleWatchdog) pause() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *idleWatchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *idleWatchdog) fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}
