package game

import (
	"context"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/archive"
	"github.com/park285/Cheese-Lichess-bot/internal/chess"
	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
)

// Platform is the write side of the game API. *lichess.Client satisfies it.
type Platform interface {
	MakeMove(ctx context.Context, gameID, move string) error
	SendChat(ctx context.Context, gameID, room, text string) error
}

// GameStreamer opens a per-game event stream. *lichess.Streamer satisfies it.
type GameStreamer interface {
	StreamGame(ctx context.Context, gameID string, fn func(lichess.GameEvent) error) error
}

// IdentityProvider resolves the bot's own account. *lichess.Identity satisfies it.
type IdentityProvider interface {
	Get(ctx context.Context) (lichess.Account, error)
}

// Messages renders chat templates. *msgcat.Catalog satisfies it.
type Messages interface {
	Render(key string, data any) (string, error)
}

type NoticeKind string

const (
	NoticeSessionStarted  NoticeKind = "session_started"
	NoticeMovePlayed      NoticeKind = "move_played"
	NoticeMoveRejected    NoticeKind = "move_rejected"
	NoticeSessionFinished NoticeKind = "session_finished"
	NoticeSessionFailed   NoticeKind = "session_failed"
)

// Notice is a session lifecycle event for observers such as the status feed.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	GameID  string     `json:"game_id"`
	RunID   string     `json:"run_id"`
	Move    string     `json:"move,omitempty"`
	Status  string     `json:"status,omitempty"`
	Winner  string     `json:"winner,omitempty"`
	Error   string     `json:"error,omitempty"`
	ThinkMs int64      `json:"think_ms,omitempty"`
	At      time.Time  `json:"at"`
}

// Notifier must not block.
type Notifier interface {
	Notify(n Notice)
}

type Deps struct {
	Streamer  GameStreamer
	Platform  Platform
	Searcher  chess.Searcher
	Identity  IdentityProvider
	Allocator chess.Allocator
	Recorder  archive.Recorder
	Notifier  Notifier
	Messages  Messages

	MaxDepth    int
	SearchGrace time.Duration
	// RetryPause separates attempts after a failed search or submit.
	RetryPause time.Duration
	Greet      bool
}

func (d Deps) withDefaults() Deps {
	if d.Recorder == nil {
		d.Recorder = archive.Noop{}
	}
	if d.MaxDepth <= 0 {
		d.MaxDepth = chess.DefaultMaxDepth
	}
	if d.SearchGrace <= 0 {
		d.SearchGrace = defaultSearchGrace
	}
	if d.RetryPause <= 0 {
		d.RetryPause = defaultRetryPause
	}
	return d
}

func (d Deps) notify(n Notice) {
	if d.Notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	d.Notifier.Notify(n)
}
