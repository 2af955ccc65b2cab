package bot

import (
	"context"
	"errors"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/game"
	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const DefaultReconnectDelay = 5 * time.Second

// EventStreamer opens the global event stream. *lichess.Streamer satisfies it.
type EventStreamer interface {
	StreamEvents(ctx context.Context, fn func(lichess.Event) error) error
}

// ChallengeHandler is satisfied by *challenge.Arbiter.
type ChallengeHandler interface {
	Handle(ctx context.Context, c lichess.Challenge) (bool, error)
}

// SessionStarter is satisfied by *game.Manager.
type SessionStarter interface {
	Start(gameID string) (*game.Session, error)
}

// Consumer keeps the global event stream open and dispatches its events.
type Consumer struct {
	events     EventStreamer
	challenges ChallengeHandler
	sessions   SessionStarter
	delay      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewConsumer(events EventStreamer, challenges ChallengeHandler, sessions SessionStarter, reconnectDelay time.Duration) *Consumer {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Consumer{
		events:     events,
		challenges: challenges,
		sessions:   sessions,
		delay:      reconnectDelay,
		sleep:      sleepWithContext,
	}
}

// Run reopens the stream after a fixed delay whenever it ends or fails. It
// only returns when ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := c.events.StreamEvents(ctx, func(ev lichess.Event) error {
			c.dispatch(ctx, ev)
			return nil
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := []zap.Field{zap.Int("attempt", attempt), zap.Duration("delay", c.delay)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if errors.Is(err, lichess.ErrUnauthorized) {
			obslog.L().Error("event_stream_unauthorized", fields...)
		} else {
			obslog.L().Warn("event_stream_reconnect", fields...)
		}
		if err := c.sleep(ctx, c.delay); err != nil {
			return err
		}
	}
}

// dispatch never blocks on a game: sessions run on their own workers.
func (c *Consumer) dispatch(ctx context.Context, ev lichess.Event) {
	switch ev.Type {
	case lichess.EventChallenge:
		if ev.Challenge == nil {
			obslog.L().Warn("event_challenge_without_payload")
			return
		}
		if _, err := c.challenges.Handle(ctx, *ev.Challenge); err != nil {
			obslog.L().Warn("event_challenge_failed", zap.String("challenge_id", ev.Challenge.ID), zap.Error(err))
		}
	case lichess.EventGameStart:
		if ev.Game == nil || ev.Game.Key() == "" {
			obslog.L().Warn("event_game_start_without_id")
			return
		}
		id := ev.Game.Key()
		if _, err := c.sessions.Start(id); err != nil {
			if errors.Is(err, game.ErrSessionExists) {
				obslog.L().Debug("event_game_start_duplicate", zap.String("game_id", id))
				return
			}
			obslog.L().Warn("event_game_start_failed", zap.String("game_id", id), zap.Error(err))
		}
	case lichess.EventGameFinish:
		if ev.Game != nil {
			obslog.L().Info("event_game_finish", zap.String("game_id", ev.Game.Key()))
		}
	default:
		obslog.L().Debug("event_ignored", zap.String("type", ev.Type))
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
