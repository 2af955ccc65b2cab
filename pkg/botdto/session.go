package botdto

import "time"

// ClockView is the last clock reported by the platform, in milliseconds.
type ClockView struct {
	WhiteMs    int64 `json:"white_ms"`
	BlackMs    int64 `json:"black_ms"`
	WhiteIncMs int64 `json:"white_inc_ms"`
	BlackIncMs int64 `json:"black_inc_ms"`
}

// SessionView describes one live game session.
type SessionView struct {
	GameID      string    `json:"game_id"`
	RunID       string    `json:"run_id"`
	Color       string    `json:"color,omitempty"`
	Opponent    string    `json:"opponent,omitempty"`
	Variant     string    `json:"variant,omitempty"`
	Speed       string    `json:"speed,omitempty"`
	Rated       bool      `json:"rated"`
	InitialFEN  string    `json:"initial_fen"`
	FEN         string    `json:"fen"`
	Moves       []string  `json:"moves"`
	Ply         int       `json:"ply"`
	Status      string    `json:"status"`
	Winner      string    `json:"winner,omitempty"`
	Clock       ClockView `json:"clock"`
	LastThinkMs int64     `json:"last_think_ms,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SessionList struct {
	Count    int           `json:"count"`
	Sessions []SessionView `json:"sessions"`
}
