package botdto

import "time"

// GameSummary is a finished game as listed by the status API.
type GameSummary struct {
	GameID     string    `json:"game_id"`
	RunID      string    `json:"run_id"`
	BotColor   string    `json:"bot_color,omitempty"`
	Opponent   string    `json:"opponent,omitempty"`
	Variant    string    `json:"variant,omitempty"`
	Speed      string    `json:"speed,omitempty"`
	Rated      bool      `json:"rated"`
	Status     string    `json:"status"`
	Winner     string    `json:"winner,omitempty"`
	Result     string    `json:"result,omitempty"`
	Plies      int       `json:"plies"`
	MovesSAN   []string  `json:"moves_san"`
	ECO        string    `json:"eco,omitempty"`
	Opening    string    `json:"opening,omitempty"`
	AvgThinkMs int64     `json:"avg_think_ms,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

type GameList struct {
	Count int           `json:"count"`
	Games []GameSummary `json:"games"`
}
