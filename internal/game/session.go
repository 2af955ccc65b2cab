package game

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Lichess-bot/internal/archive"
	"github.com/park285/Cheese-Lichess-bot/internal/chess"
	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
)

// Session is the tracked state of one live game. It is mutated only by its
// own worker; other goroutines read it through Snapshot.
type Session struct {
	ID    string
	RunID string

	mu         sync.RWMutex
	color      chess.Color
	botID      string
	initialFEN string
	fen        string
	moves      []string
	san        []string
	status     string
	winner     string
	clock      chess.ClockState
	thinkTimes []time.Duration
	white      lichess.GamePlayer
	black      lichess.GamePlayer
	variant    string
	speed      string
	rated      bool
	started    bool
	startedAt  time.Time
	updatedAt  time.Time
	endedAt    time.Time

	// move count a move was last submitted for; -1 when none
	submittedFor int
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		RunID:        uuid.NewString(),
		initialFEN:   chess.StartFEN,
		fen:          chess.StartFEN,
		startedAt:    now,
		updatedAt:    now,
		submittedFor: -1,
	}
}

// Snapshot is a point-in-time copy of a Session.
type Snapshot struct {
	ID         string
	RunID      string
	Color      chess.Color
	InitialFEN string
	FEN        string
	Moves      []string
	Status     string
	Winner     string
	Clock      chess.ClockState
	ThinkTimes []time.Duration
	Opponent   string
	Variant    string
	Speed      string
	Rated      bool
	StartedAt  time.Time
	UpdatedAt  time.Time
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:         s.ID,
		RunID:      s.RunID,
		Color:      s.color,
		InitialFEN: s.initialFEN,
		FEN:        s.fen,
		Moves:      append([]string(nil), s.moves...),
		Status:     s.status,
		Winner:     s.winner,
		Clock:      s.clock,
		ThinkTimes: append([]time.Duration(nil), s.thinkTimes...),
		Opponent:   s.opponentLocked().DisplayName(),
		Variant:    s.variant,
		Speed:      s.speed,
		Rated:      s.rated,
		StartedAt:  s.startedAt,
		UpdatedAt:  s.updatedAt,
	}
}

func (s *Session) Color() chess.Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.color
}

func (s *Session) Terminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isTerminal(s.status)
}

func (s *Session) opponentLocked() lichess.GamePlayer {
	switch s.color {
	case chess.White:
		return s.black
	case chess.Black:
		return s.white
	}
	return lichess.GamePlayer{}
}

// applyFull records the game descriptor and resolves the bot's color.
func (s *Session) applyFull(full *lichess.GameFull, botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.white = full.White
	s.black = full.Black
	s.variant = full.Variant.Key
	s.speed = full.Speed
	s.rated = full.Rated
	s.initialFEN = normalizeInitial(full.InitialFen)
	s.assignColorLocked(botID)
}

func (s *Session) hasFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Session) assignColor(botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignColorLocked(botID)
}

func (s *Session) assignColorLocked(botID string) {
	s.botID = botID
	switch {
	case botID != "" && strings.EqualFold(s.white.ID, botID):
		s.color = chess.White
	case botID != "" && strings.EqualFold(s.black.ID, botID):
		s.color = chess.Black
	default:
		s.color = chess.NoColor
	}
}

// applyState replaces the tracked position with one rebuilt from the full
// move list. The caller has already validated it.
func (s *Session) applyState(st *lichess.GameState, pos chess.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fen = pos.FEN
	s.moves = pos.Moves
	s.san = pos.SAN
	s.status = st.Status
	s.winner = st.Winner
	s.clock = chess.ClockState{WhiteMs: st.WTime, BlackMs: st.BTime, WhiteIncMs: st.WInc, BlackIncMs: st.BInc}
	s.updatedAt = time.Now()
	if isTerminal(st.Status) && s.endedAt.IsZero() {
		s.endedAt = s.updatedAt
	}
}

// markTerminal is used when the platform reports an end without a full state.
func (s *Session) markTerminal(status, winner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(status) == "" {
		status = lichess.StatusAborted
	}
	s.status = status
	if winner != "" {
		s.winner = winner
	}
	s.updatedAt = time.Now()
	if s.endedAt.IsZero() {
		s.endedAt = s.updatedAt
	}
}

// claimTurn reserves move count n for submission. It fails when a move for n
// was already claimed, so duplicate states never produce a second move.
func (s *Session) claimTurn(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submittedFor == n {
		return false
	}
	s.submittedFor = n
	return true
}

func (s *Session) releaseTurn(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submittedFor == n {
		s.submittedFor = -1
	}
}

func (s *Session) recordThink(d time.Duration) {
	s.mu.Lock()
	s.thinkTimes = append(s.thinkTimes, d)
	s.mu.Unlock()
}

func (s *Session) record() *archive.GameRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	think := make([]int64, len(s.thinkTimes))
	for i, d := range s.thinkTimes {
		think[i] = d.Milliseconds()
	}
	return &archive.GameRecord{
		GameID:       s.ID,
		RunID:        s.RunID,
		BotID:        s.botID,
		BotColor:     colorName(s.color),
		WhiteName:    s.white.DisplayName(),
		BlackName:    s.black.DisplayName(),
		Opponent:     s.opponentLocked().DisplayName(),
		Variant:      s.variant,
		Speed:        s.speed,
		Rated:        s.rated,
		InitialFEN:   s.initialFEN,
		FEN:          s.fen,
		MovesUCI:     append([]string(nil), s.moves...),
		MovesSAN:     append([]string(nil), s.san...),
		Status:       s.status,
		Winner:       s.winner,
		ThinkTimesMs: think,
		StartedAt:    s.startedAt,
		UpdatedAt:    s.updatedAt,
		EndedAt:      s.endedAt,
	}
}

func colorName(c chess.Color) string {
	if c == chess.NoColor {
		return ""
	}
	return c.String()
}

func normalizeInitial(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == chess.StartPos {
		return chess.StartFEN
	}
	return fen
}

func isTerminal(status string) bool {
	return lichess.GameState{Status: status}.Terminal()
}
