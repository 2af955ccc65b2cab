package chess

import (
	"context"
	"time"
)

// Searcher is the move-search capability the orchestrator depends on.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
}

// SearchRequest asks for the best move in FEN within MoveTime. Depth is a
// ceiling the time limit is expected to cut short. When Moves is set the
// engine is given InitialFEN plus the move history so it can see repetitions.
type SearchRequest struct {
	FEN        string
	InitialFEN string
	Moves      []string
	Depth      int
	MoveTime   time.Duration
}

// SearchResult carries the chosen move in coordinate notation. An empty Move
// means the position has no legal moves.
type SearchResult struct {
	Move     string
	ScoreCP  int
	Mate     int
	Nodes    int64
	Depth    int
	Elapsed  time.Duration
	FromBook bool
}

// NPS is nodes per second over Elapsed.
func (r SearchResult) NPS() int64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return int64(float64(r.Nodes) / r.Elapsed.Seconds())
}

// SearchFunc adapts a function to Searcher.
type SearchFunc func(ctx context.Context, req SearchRequest) (SearchResult, error)

func (f SearchFunc) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	return f(ctx, req)
}
