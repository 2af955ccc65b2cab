package chess

import (
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/chess/uci"
)

// DefaultMaxDepth is the depth ceiling sent with every timed search.
const DefaultMaxDepth = 64

func limitsFor(req SearchRequest) uci.Limits {
	depth := req.Depth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	l := uci.Limits{Depth: depth}
	if req.MoveTime > 0 {
		ms := int(req.MoveTime / time.Millisecond)
		if ms < 1 {
			ms = 1
		}
		l.MoveTimeMillis = ms
	}
	return l
}
