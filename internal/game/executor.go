package game

import (
	"context"
	"errors"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/chess"
	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const (
	defaultSearchGrace = 3 * time.Second
	defaultRetryPause  = 250 * time.Millisecond

	// unknownClockAttempts bounds retries when the game has no clock.
	unknownClockAttempts = 5
)

type executor struct {
	deps Deps
}

// maybeMove searches and submits a move when the session is live and it is
// the bot's turn. At most one move is submitted per move count.
//
// The platform sends no state while the bot is to move, so a failed search or
// submit is retried here until a move is accepted, the clock runs out or the
// session ends.
func (e *executor) maybeMove(ctx context.Context, s *Session) {
	snap := s.Snapshot()
	if isTerminal(snap.Status) {
		return
	}
	played := len(snap.Moves)
	if !chess.IsMyTurn(snap.Color, played+chess.MoveCountOffset(snap.InitialFEN)) {
		return
	}
	if e.deps.Searcher == nil {
		return
	}
	if !s.claimTurn(played) {
		return
	}

	log := obslog.L().With(zap.String("game_id", s.ID), zap.Int("ply", played))
	remaining, inc := snap.Clock.For(snap.Color)
	turnStart := time.Now()

	var res chess.SearchResult
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil || s.Terminal() {
			s.releaseTurn(played)
			return
		}
		left := remaining - time.Since(turnStart).Milliseconds()
		if remaining > 0 && left <= 0 {
			s.releaseTurn(played)
			log.Error("game_out_of_time", zap.Int("attempts", attempt-1), zap.Int64("remaining_ms", remaining))
			return
		}
		if remaining <= 0 && attempt > unknownClockAttempts {
			s.releaseTurn(played)
			log.Error("game_move_abandoned", zap.Int("attempts", attempt-1))
			return
		}

		if res.Move == "" {
			var err error
			res, err = e.search(ctx, s, snap, max(left, 0), inc, played)
			if err != nil {
				log.Error("game_search_failed",
					zap.Int("attempt", attempt),
					zap.Int64("left_ms", left),
					zap.Error(err),
				)
				e.pause(ctx)
				continue
			}
			if res.Move == "" {
				log.Info("game_no_legal_move")
				return
			}
		}

		err := e.deps.Platform.MakeMove(ctx, s.ID, res.Move)
		if err == nil {
			break
		}
		if errors.Is(err, lichess.ErrBadRequest) {
			s.releaseTurn(played)
			log.Error("game_move_rejected", zap.String("move", res.Move), zap.Error(err))
			e.deps.notify(Notice{Kind: NoticeMoveRejected, GameID: s.ID, RunID: s.RunID, Move: res.Move, Error: err.Error()})
			return
		}
		log.Error("game_move_submit_failed", zap.String("move", res.Move), zap.Int("attempt", attempt), zap.Error(err))
		e.pause(ctx)
	}

	think := time.Since(turnStart)
	log.Info("game_move_sent",
		zap.String("move", res.Move),
		zap.Bool("book", res.FromBook),
		zap.Int("score_cp", res.ScoreCP),
		zap.Int("mate", res.Mate),
		zap.Int("depth", res.Depth),
		zap.Int64("nodes", res.Nodes),
		zap.Int64("nps", res.NPS()),
		zap.Int64("remaining_ms", remaining),
		zap.Duration("think", think),
	)
	e.deps.notify(Notice{Kind: NoticeMovePlayed, GameID: s.ID, RunID: s.RunID, Move: res.Move, ThinkMs: think.Milliseconds()})
}

// search asks for a move with a budget computed from the clock left this turn.
func (e *executor) search(ctx context.Context, s *Session, snap Snapshot, left, inc int64, played int) (chess.SearchResult, error) {
	budget := e.deps.Allocator.Budget(left, inc, played)
	searchCtx, cancel := context.WithTimeout(ctx, budget+e.deps.SearchGrace)
	defer cancel()
	start := time.Now()
	res, err := e.deps.Searcher.Search(searchCtx, chess.SearchRequest{
		FEN:        snap.FEN,
		InitialFEN: snap.InitialFEN,
		Moves:      snap.Moves,
		Depth:      e.deps.MaxDepth,
		MoveTime:   budget,
	})
	s.recordThink(time.Since(start))
	return res, err
}

func (e *executor) pause(ctx context.Context) {
	t := time.NewTimer(e.deps.RetryPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
