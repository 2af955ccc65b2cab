package archive

import (
	"context"
	"errors"
	"time"
)

// GameRecord is the persisted view of one bot game.
type GameRecord struct {
	GameID       string    `json:"game_id"`
	RunID        string    `json:"run_id"`
	BotID        string    `json:"bot_id,omitempty"`
	BotColor     string    `json:"bot_color,omitempty"`
	WhiteName    string    `json:"white_name,omitempty"`
	BlackName    string    `json:"black_name,omitempty"`
	Opponent     string    `json:"opponent,omitempty"`
	Variant      string    `json:"variant,omitempty"`
	Speed        string    `json:"speed,omitempty"`
	Rated        bool      `json:"rated"`
	InitialFEN   string    `json:"initial_fen"`
	FEN          string    `json:"fen"`
	MovesUCI     []string  `json:"moves_uci"`
	MovesSAN     []string  `json:"moves_san"`
	Status       string    `json:"status"`
	Winner       string    `json:"winner,omitempty"`
	ThinkTimesMs []int64   `json:"think_times_ms,omitempty"`
	ECO          string    `json:"eco,omitempty"`
	Opening      string    `json:"opening,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
}

// Result maps status and winner onto white, black, draw or "" when unknown.
func (r *GameRecord) Result() string {
	if r == nil {
		return ""
	}
	switch r.Winner {
	case "white", "black":
		return r.Winner
	}
	switch r.Status {
	case "draw", "stalemate":
		return "draw"
	}
	return ""
}

// Recorder persists live snapshots and final results. Implementations must
// be safe for concurrent use by many sessions.
type Recorder interface {
	SaveSnapshot(ctx context.Context, rec *GameRecord) error
	SaveResult(ctx context.Context, rec *GameRecord) error
}

// Multi fans a record out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) SaveSnapshot(ctx context.Context, rec *GameRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.SaveSnapshot(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SaveResult(ctx context.Context, rec *GameRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.SaveResult(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Noop struct{}

func (Noop) SaveSnapshot(context.Context, *GameRecord) error { return nil }
func (Noop) SaveResult(context.Context, *GameRecord) error   { return nil }

func cloneRecord(rec *GameRecord) *GameRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	cp.MovesUCI = append([]string(nil), rec.MovesUCI...)
	cp.MovesSAN = append([]string(nil), rec.MovesSAN...)
	cp.ThinkTimesMs = append([]int64(nil), rec.ThinkTimesMs...)
	return &cp
}
