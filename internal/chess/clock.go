package chess

import "time"

const (
	defaultMoveOverheadMs = 500
	defaultMinCushionMs   = 3000
	defaultMinBudgetMs    = 100
	defaultCushionRatio   = 0.10

	// MaxClockMs bounds any remaining-time value before arithmetic.
	MaxClockMs = int64(3 * time.Hour / time.Millisecond)
)

// ClockState is the clock as reported by one game-state event.
type ClockState struct {
	WhiteMs    int64
	BlackMs    int64
	WhiteIncMs int64
	BlackIncMs int64
}

// For returns remaining time and increment for color, both sanitized.
func (c ClockState) For(color Color) (int64, int64) {
	if color == Black {
		return SanitizeClock(c.BlackMs), SanitizeClock(c.BlackIncMs)
	}
	return SanitizeClock(c.WhiteMs), SanitizeClock(c.WhiteIncMs)
}

// SanitizeClock clamps negative values to zero and absurd ones to MaxClockMs.
func SanitizeClock(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	if ms > MaxClockMs {
		return MaxClockMs
	}
	return ms
}

type pressureTier struct {
	belowMs int64
	factor  float64
}

type band struct {
	minRemainingMs int64
	minMs          float64
	maxRatio       float64
	maxCapMs       float64
}

var (
	pressureTiers = []pressureTier{
		{belowMs: 60_000, factor: 0.85},
		{belowMs: 30_000, factor: 0.7},
		{belowMs: 10_000, factor: 0.5},
	}
	// ordered from the most remaining time down
	bands = []band{
		{minRemainingMs: 300_000, minMs: 1500, maxRatio: 0.25, maxCapMs: 90_000},
		{minRemainingMs: 60_000, minMs: 500, maxRatio: 0.15},
		{minRemainingMs: 0, minMs: 100, maxRatio: 0.10},
	}
)

// Allocator computes per-move think time from the clock.
type Allocator struct {
	MoveOverheadMs int64
	MinCushionMs   int64
	CushionRatio   float64
	MinBudgetMs    int64
}

func NewAllocator(moveOverheadMs, minCushionMs int64) Allocator {
	a := Allocator{
		MoveOverheadMs: moveOverheadMs,
		MinCushionMs:   minCushionMs,
		CushionRatio:   defaultCushionRatio,
		MinBudgetMs:    defaultMinBudgetMs,
	}
	return a.withDefaults()
}

func (a Allocator) withDefaults() Allocator {
	if a.MoveOverheadMs < 0 {
		a.MoveOverheadMs = defaultMoveOverheadMs
	}
	if a.MinCushionMs <= 0 {
		a.MinCushionMs = defaultMinCushionMs
	}
	if a.CushionRatio <= 0 || a.CushionRatio >= 1 {
		a.CushionRatio = defaultCushionRatio
	}
	if a.MinBudgetMs <= 0 {
		a.MinBudgetMs = defaultMinBudgetMs
	}
	return a
}

// Cushion is the part of remainingMs a move may never touch. At or below
// MinBudgetMs at most half the clock is spendable.
func (a Allocator) Cushion(remainingMs int64) int64 {
	a = a.withDefaults()
	t := SanitizeClock(remainingMs)
	if t <= 1 {
		return 0
	}
	if t <= a.MinBudgetMs {
		return t - max(1, t/2)
	}
	c := int64(float64(t) * a.CushionRatio)
	if c < a.MinCushionMs {
		c = a.MinCushionMs
	}
	if c > t-a.MinBudgetMs {
		c = t - a.MinBudgetMs
	}
	return c
}

// Allocate returns the think time in milliseconds for the side with
// remainingMs on its clock and incMs increment, moveCount plies into the game.
// The result never exceeds remainingMs minus Cushion(remainingMs) and is at
// least 1ms.
func (a Allocator) Allocate(remainingMs, incMs int64, moveCount int) int64 {
	a = a.withDefaults()
	t := SanitizeClock(remainingMs)
	inc := SanitizeClock(incMs)
	if moveCount < 0 {
		moveCount = 0
	}

	movesRemaining := 40 - moveCount/2
	if movesRemaining < 20 {
		movesRemaining = 20
	}
	budget := float64(t)/float64(movesRemaining) + float64(inc)*0.5

	budget *= phaseMultiplier(moveCount)
	for _, tier := range pressureTiers {
		if t < tier.belowMs {
			budget *= tier.factor
		}
	}

	lo, hi := bandFor(t)
	if budget < lo {
		budget = lo
	}
	if budget > hi {
		budget = hi
	}

	ms := int64(budget) - a.MoveOverheadMs
	if ms < a.MinBudgetMs {
		ms = a.MinBudgetMs
	}
	if limit := t - a.Cushion(t); ms > limit {
		ms = limit
	}
	if ms < 1 {
		ms = 1
	}
	return ms
}

// Budget is Allocate as a duration.
func (a Allocator) Budget(remainingMs, incMs int64, moveCount int) time.Duration {
	return time.Duration(a.Allocate(remainingMs, incMs, moveCount)) * time.Millisecond
}

func phaseMultiplier(moveCount int) float64 {
	switch {
	case moveCount < 10:
		return 1.2
	case moveCount < 30:
		return 2.0
	default:
		return 3.0
	}
}

func bandFor(t int64) (float64, float64) {
	for _, b := range bands {
		if t < b.minRemainingMs {
			continue
		}
		hi := float64(t) * b.maxRatio
		if b.maxCapMs > 0 && hi > b.maxCapMs {
			hi = b.maxCapMs
		}
		return b.minMs, hi
	}
	last := bands[len(bands)-1]
	return last.minMs, float64(t) * last.maxRatio
}
