package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/chess/openingbook"
	"github.com/park285/Cheese-Lichess-bot/internal/chess/uci"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrEngineUnavailable = errors.New("chess engine unavailable")
	ErrEngineTimeout     = errors.New("chess engine timeout")
)

const (
	defaultThreads = 4
	defaultHashMB  = 256
)

type EngineConfig struct {
	BinaryPath string
	Threads    int
	HashMB     int
	PoolSize   int
	Book       *openingbook.Book
}

// Engine is a Searcher backed by a pool of UCI engine processes with an
// optional opening book in front.
type Engine struct {
	pool *uci.Pool
	book *openingbook.Book
}

// NewEngine validates the binary and starts one engine process. Any failure
// is returned to the caller; nothing is started lazily at import time.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, fmt.Errorf("%w: engine path required", ErrEngineUnavailable)
	}
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Options:    optionsFromConfig(cfg),
		Capacity:   cfg.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	e := &Engine{pool: pool, book: cfg.Book}
	if err := pool.Warm(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("%w: warm engine: %v", ErrEngineUnavailable, err)
	}
	return e, nil
}

func optionsFromConfig(cfg EngineConfig) uci.Options {
	opt := uci.Options{Threads: cfg.Threads, HashMB: cfg.HashMB, MultiPV: 1}
	if opt.Threads <= 0 {
		opt.Threads = defaultThreads
	}
	if opt.HashMB <= 0 {
		opt.HashMB = defaultHashMB
	}
	return opt
}

func (e *Engine) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	start := time.Now()

	if res, ok := e.bookMove(req); ok {
		res.Elapsed = time.Since(start)
		return res, nil
	}

	session, err := e.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return SearchResult{}, fmt.Errorf("%w: waiting for engine: %v", ErrEngineTimeout, err)
		}
		return SearchResult{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	fen, moves := positionFor(req)
	resp, err := session.Search(ctx, uci.SearchRequest{
		FEN:    fen,
		Moves:  moves,
		Limits: limitsFor(req),
	})
	if err != nil {
		releaseErr = err
		if errors.Is(err, uci.ErrSearchTimeout) {
			return SearchResult{}, fmt.Errorf("%w: %v", ErrEngineTimeout, err)
		}
		return SearchResult{}, fmt.Errorf("engine search: %w", err)
	}

	return resultFromResponse(resp, time.Since(start)), nil
}

func (e *Engine) bookMove(req SearchRequest) (SearchResult, bool) {
	if e.book == nil {
		return SearchResult{}, false
	}
	hit, ok, err := e.book.Lookup(req.FEN, len(req.Moves))
	if err != nil {
		obslog.L().Warn("opening_book_lookup_failed", zap.String("fen", req.FEN), zap.Error(err))
		return SearchResult{}, false
	}
	if !ok {
		return SearchResult{}, false
	}
	return SearchResult{Move: hit.Move, FromBook: true}, true
}

// positionFor prefers initial position plus history so the engine sees
// repetitions; it falls back to the bare FEN.
func positionFor(req SearchRequest) (string, []string) {
	if len(req.Moves) > 0 && strings.TrimSpace(req.InitialFEN) != "" {
		initial := req.InitialFEN
		if isStartPos(initial) {
			initial = StartPos
		}
		return initial, req.Moves
	}
	return req.FEN, nil
}

func resultFromResponse(resp uci.SearchResponse, elapsed time.Duration) SearchResult {
	res := SearchResult{
		Move:    resp.BestMove,
		Nodes:   resp.Info.Nodes,
		Depth:   resp.Info.Depth,
		Elapsed: elapsed,
	}
	for i, cand := range resp.Candidates {
		if i == 0 || cand.Move == resp.BestMove {
			res.ScoreCP = cand.EvalCP
			res.Mate = cand.Mate
		}
		if cand.Move == resp.BestMove {
			break
		}
	}
	return res
}

func (e *Engine) Stats() (total, idle int) {
	if e == nil || e.pool == nil {
		return 0, 0
	}
	return e.pool.Stats()
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}
