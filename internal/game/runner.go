package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/chess"
	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
	"github.com/park285/Cheese-Lichess-bot/internal/msgcat"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

// ErrDesync means the platform's move list could not be replayed onto the
// tracked position. It ends the session.
var ErrDesync = errors.New("board desynchronized")

// errGameOver stops the stream once a terminal status has been handled.
var errGameOver = errors.New("game over")

const sideEffectTimeout = 5 * time.Second

type runner struct {
	deps  Deps
	s     *Session
	exec  *executor
	log   *zap.Logger
	snaps *snapshotWriter

	greeted   bool
	finalized bool
}

func newRunner(deps Deps, s *Session) *runner {
	return &runner{
		deps: deps,
		s:    s,
		exec: &executor{deps: deps},
		log:  obslog.L().With(zap.String("game_id", s.ID), zap.String("run_id", s.RunID)),
	}
}

// run consumes the game stream until it closes, a terminal status is seen or
// ctx is canceled. The per-game stream is not reopened.
func (r *runner) run(ctx context.Context) error {
	r.snaps = newSnapshotWriter(ctx, r.deps.Recorder, r.log)
	defer r.snaps.flush()

	err := r.deps.Streamer.StreamGame(ctx, r.s.ID, func(ev lichess.GameEvent) error {
		return r.dispatch(ctx, ev)
	})
	if errors.Is(err, errGameOver) {
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("session canceled: %w", ctx.Err())
		}
		return err
	}
	if !r.finalized {
		r.log.Warn("game_stream_closed_before_end", zap.String("status", r.s.Snapshot().Status))
	}
	return nil
}

// dispatch handles one event. Failures other than desync are logged and the
// stream continues with the next event.
func (r *runner) dispatch(ctx context.Context, ev lichess.GameEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("game_event_panic", zap.String("type", ev.Type), zap.Any("panic", p))
			err = nil
		}
	}()
	err = r.handle(ctx, ev)
	if err == nil || errors.Is(err, errGameOver) || errors.Is(err, ErrDesync) {
		return err
	}
	r.log.Warn("game_event_failed", zap.String("type", ev.Type), zap.Error(err))
	return nil
}

func (r *runner) handle(ctx context.Context, ev lichess.GameEvent) error {
	switch ev.Type {
	case lichess.GameEventFull:
		if ev.Full == nil {
			return fmt.Errorf("gameFull without payload")
		}
		botID := r.resolveBotID(ctx)
		r.s.applyFull(ev.Full, botID)
		r.log.Info("game_full",
			zap.String("color", r.s.Color().String()),
			zap.String("white", ev.Full.White.DisplayName()),
			zap.String("black", ev.Full.Black.DisplayName()),
			zap.String("initial_fen", ev.Full.InitialFen),
		)
		r.greet(ctx, len(chess.SplitMoves(ev.Full.State.Moves)))
		return r.onState(ctx, &ev.Full.State)
	case lichess.GameEventState:
		if ev.State == nil {
			return fmt.Errorf("gameState without payload")
		}
		if r.s.Color() == chess.NoColor {
			r.retryColor(ctx)
		}
		return r.onState(ctx, ev.State)
	case lichess.GameEventFinish:
		if ev.State != nil && strings.TrimSpace(ev.State.Moves) != "" {
			return r.onState(ctx, ev.State)
		}
		status, winner := "", ""
		if ev.State != nil {
			status, winner = ev.State.Status, ev.State.Winner
		}
		r.s.markTerminal(status, winner)
		r.finalize(ctx)
		return errGameOver
	case lichess.GameEventChat:
		if ev.Chat != nil {
			r.log.Info("game_chat",
				zap.String("room", ev.Chat.Room),
				zap.String("username", ev.Chat.Username),
				zap.String("text", ev.Chat.Text),
			)
		}
		return nil
	case lichess.GameEventGone:
		r.log.Info("game_opponent_gone")
		return nil
	default:
		r.log.Debug("game_event_ignored", zap.String("type", ev.Type))
		return nil
	}
}

// onState rebuilds the position from the full move list, records it and lets
// the executor decide whether to move.
func (r *runner) onState(ctx context.Context, st *lichess.GameState) error {
	initial := r.s.Snapshot().InitialFEN
	moves := chess.SplitMoves(st.Moves)
	pos, err := chess.Describe(initial, moves)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDesync, err)
	}
	r.s.applyState(st, pos)

	if st.Terminal() {
		r.finalize(ctx)
		return errGameOver
	}

	r.snaps.offer(r.s.record())
	r.exec.maybeMove(ctx, r.s)
	return nil
}

func (r *runner) resolveBotID(ctx context.Context) string {
	if r.deps.Identity == nil {
		return ""
	}
	acct, err := r.deps.Identity.Get(ctx)
	if err != nil {
		r.log.Error("game_identity_failed", zap.Error(err))
		return ""
	}
	return acct.ID
}

// retryColor re-resolves the bot's color when the identity lookup failed
// while handling gameFull.
func (r *runner) retryColor(ctx context.Context) {
	if !r.s.hasFull() {
		return
	}
	if botID := r.resolveBotID(ctx); botID != "" {
		r.s.assignColor(botID)
	}
}

// greet posts the opening chat lines unless the game is already under way,
// as after a reconnect.
func (r *runner) greet(ctx context.Context, played int) {
	if r.greeted || !r.deps.Greet || r.deps.Messages == nil || r.deps.Platform == nil {
		return
	}
	r.greeted = true
	snap := r.s.Snapshot()
	if snap.Color == chess.NoColor || played > 1 {
		return
	}
	data := msgcat.ChatData{Bot: r.botName(), Opponent: snap.Opponent}
	r.say(ctx, "player", msgcat.KeyGreeting, data)
	r.say(ctx, "spectator", msgcat.KeySpectatorGreeting, data)
}

// finalize runs once per session on the first terminal status.
func (r *runner) finalize(ctx context.Context) {
	if r.finalized {
		return
	}
	r.finalized = true
	r.snaps.flush()
	snap := r.s.Snapshot()
	rec := r.s.record()
	rec.ECO, rec.Opening = chess.OpeningName(snap.InitialFEN, snap.Moves)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := r.deps.Recorder.SaveResult(saveCtx, rec); err != nil {
		r.log.Warn("game_record_failed", zap.Error(err))
	}
	r.log.Info("game_over",
		zap.String("status", snap.Status),
		zap.String("winner", snap.Winner),
		zap.Int("moves", len(snap.Moves)),
		zap.String("eco", rec.ECO),
	)

	if r.deps.Greet && r.deps.Messages != nil && r.deps.Platform != nil && snap.Color != chess.NoColor {
		key := msgcat.GoodbyeKey(snap.Status, snap.Winner, snap.Color.String())
		r.say(saveCtx, "player", key, msgcat.ChatData{Bot: r.botName(), Opponent: snap.Opponent, Status: snap.Status})
	}
}

func (r *runner) say(ctx context.Context, room, key string, data msgcat.ChatData) {
	text, err := r.deps.Messages.Render(key, data)
	if err != nil {
		r.log.Warn("game_chat_render_failed", zap.String("key", key), zap.Error(err))
		return
	}
	chatCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := r.deps.Platform.SendChat(chatCtx, r.s.ID, room, text); err != nil {
		r.log.Warn("game_chat_send_failed", zap.String("room", room), zap.Error(err))
	}
}

func (r *runner) botName() string {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	switch r.s.color {
	case chess.White:
		return r.s.white.DisplayName()
	case chess.Black:
		return r.s.black.DisplayName()
	}
	return ""
}
