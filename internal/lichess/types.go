package lichess

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Global event stream types.
const (
	EventChallenge         = "challenge"
	EventChallengeCanceled = "challengeCanceled"
	EventChallengeDeclined = "challengeDeclined"
	EventGameStart         = "gameStart"
	EventGameFinish        = "gameFinish"
)

// Per-game stream types.
const (
	GameEventFull   = "gameFull"
	GameEventState  = "gameState"
	GameEventChat   = "chatLine"
	GameEventFinish = "gameFinish"
	GameEventGone   = "opponentGone"
)

// Game statuses. Anything but StatusStarted ends move generation.
const (
	StatusStarted   = "started"
	StatusMate      = "mate"
	StatusStalemate = "stalemate"
	StatusDraw      = "draw"
	StatusOutOfTime = "outoftime"
	StatusResign    = "resign"
	StatusAborted   = "aborted"
)

// DeclineReason is the platform's reason key for a declined challenge.
type DeclineReason string

const (
	DeclineGeneric DeclineReason = "generic"
	DeclineLater   DeclineReason = "later"
	DeclineVariant DeclineReason = "variant"
)

type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title,omitempty"`
}

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Rating int    `json:"rating,omitempty"`
}

type Variant struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

type Challenge struct {
	ID         string  `json:"id"`
	Challenger Player  `json:"challenger"`
	DestUser   *Player `json:"destUser,omitempty"`
	Variant    Variant `json:"variant"`
	Rated      bool    `json:"rated"`
	Speed      string  `json:"speed,omitempty"`
	Color      string  `json:"color,omitempty"`
}

// VariantKey defaults to standard when the platform omits the variant.
func (c Challenge) VariantKey() string {
	if k := strings.TrimSpace(c.Variant.Key); k != "" {
		return k
	}
	return "standard"
}

type GameRef struct {
	ID     string `json:"id"`
	GameID string `json:"gameId,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Key returns the game id, whichever field carried it.
func (g GameRef) Key() string {
	if id := strings.TrimSpace(g.GameID); id != "" {
		return id
	}
	return strings.TrimSpace(g.ID)
}

// Event is one line of the global event stream.
type Event struct {
	Type      string     `json:"type"`
	Challenge *Challenge `json:"challenge,omitempty"`
	Game      *GameRef   `json:"game,omitempty"`
}

func ParseEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}

type GamePlayer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Rating  int    `json:"rating,omitempty"`
	AILevel int    `json:"aiLevel,omitempty"`
}

// DisplayName falls back to the engine level for computer opponents.
func (p GamePlayer) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.AILevel > 0 {
		return fmt.Sprintf("AI level %d", p.AILevel)
	}
	return "Unknown"
}

type GameState struct {
	Moves  string `json:"moves"`
	WTime  int64  `json:"wtime"`
	BTime  int64  `json:"btime"`
	WInc   int64  `json:"winc"`
	BInc   int64  `json:"binc"`
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
}

// Terminal reports whether status ends move generation. A missing status is
// treated as a live game.
func (s GameState) Terminal() bool {
	st := strings.TrimSpace(s.Status)
	return st != "" && st != StatusStarted
}

type GameFull struct {
	ID         string     `json:"id"`
	Variant    Variant    `json:"variant"`
	InitialFen string     `json:"initialFen"`
	White      GamePlayer `json:"white"`
	Black      GamePlayer `json:"black"`
	Speed      string     `json:"speed,omitempty"`
	Rated      bool       `json:"rated"`
	State      GameState  `json:"state"`
}

type ChatLine struct {
	Username string `json:"username"`
	Text     string `json:"text"`
	Room     string `json:"room"`
}

// GameEvent is one line of a per-game stream. Exactly one of Full, State or
// Chat is set for the matching Type.
type GameEvent struct {
	Type  string
	Full  *GameFull
	State *GameState
	Chat  *ChatLine
}

func ParseGameEvent(line []byte) (GameEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return GameEvent{}, fmt.Errorf("decode game event: %w", err)
	}
	ev := GameEvent{Type: head.Type}
	switch head.Type {
	case GameEventFull:
		var full GameFull
		if err := json.Unmarshal(line, &full); err != nil {
			return GameEvent{}, fmt.Errorf("decode gameFull: %w", err)
		}
		ev.Full = &full
	case GameEventState, GameEventFinish:
		var st GameState
		if err := json.Unmarshal(line, &st); err != nil {
			return GameEvent{}, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		ev.State = &st
	case GameEventChat:
		var chat ChatLine
		if err := json.Unmarshal(line, &chat); err != nil {
			return GameEvent{}, fmt.Errorf("decode chatLine: %w", err)
		}
		ev.Chat = &chat
	case "":
		return GameEvent{}, fmt.Errorf("decode game event: missing type")
	}
	return ev, nil
}
