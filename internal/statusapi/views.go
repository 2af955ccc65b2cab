package statusapi

import (
	"github.com/park285/Cheese-Lichess-bot/internal/archive"
	"github.com/park285/Cheese-Lichess-bot/internal/chess"
	"github.com/park285/Cheese-Lichess-bot/internal/game"
	"github.com/park285/Cheese-Lichess-bot/pkg/botdto"
)

func SessionView(s game.Snapshot) botdto.SessionView {
	v := botdto.SessionView{
		GameID:     s.ID,
		RunID:      s.RunID,
		Opponent:   s.Opponent,
		Variant:    s.Variant,
		Speed:      s.Speed,
		Rated:      s.Rated,
		InitialFEN: s.InitialFEN,
		FEN:        s.FEN,
		Moves:      s.Moves,
		Ply:        len(s.Moves),
		Status:     s.Status,
		Winner:     s.Winner,
		Clock: botdto.ClockView{
			WhiteMs:    s.Clock.WhiteMs,
			BlackMs:    s.Clock.BlackMs,
			WhiteIncMs: s.Clock.WhiteIncMs,
			BlackIncMs: s.Clock.BlackIncMs,
		},
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if v.Moves == nil {
		v.Moves = []string{}
	}
	if s.Color != chess.NoColor {
		v.Color = s.Color.String()
	}
	if n := len(s.ThinkTimes); n > 0 {
		v.LastThinkMs = s.ThinkTimes[n-1].Milliseconds()
	}
	return v
}

func GameSummary(r *archive.GameRecord) botdto.GameSummary {
	g := botdto.GameSummary{
		GameID:    r.GameID,
		RunID:     r.RunID,
		BotColor:  r.BotColor,
		Opponent:  r.Opponent,
		Variant:   r.Variant,
		Speed:     r.Speed,
		Rated:     r.Rated,
		Status:    r.Status,
		Winner:    r.Winner,
		Result:    r.Result(),
		Plies:     len(r.MovesUCI),
		MovesSAN:  r.MovesSAN,
		ECO:       r.ECO,
		Opening:   r.Opening,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
	if g.MovesSAN == nil {
		g.MovesSAN = []string{}
	}
	if n := len(r.ThinkTimesMs); n > 0 {
		var sum int64
		for _, ms := range r.ThinkTimesMs {
			sum += ms
		}
		g.AvgThinkMs = sum / int64(n)
	}
	return g
}
