package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository stores finished games in Postgres. Snapshots are not persisted.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{db: db}, nil
}

func NewRepositoryFromDB(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS lichess_games (
    game_id        TEXT PRIMARY KEY,
    run_id         TEXT NOT NULL,
    bot_color      TEXT NOT NULL DEFAULT '',
    white_name     TEXT NOT NULL DEFAULT '',
    black_name     TEXT NOT NULL DEFAULT '',
    opponent       TEXT NOT NULL DEFAULT '',
    variant        TEXT NOT NULL DEFAULT '',
    speed          TEXT NOT NULL DEFAULT '',
    rated          BOOLEAN NOT NULL DEFAULT FALSE,
    initial_fen    TEXT NOT NULL DEFAULT '',
    final_fen      TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT '',
    result         TEXT NOT NULL DEFAULT '',
    moves_uci      JSONB NOT NULL DEFAULT '[]',
    moves_san      JSONB NOT NULL DEFAULT '[]',
    think_times_ms JSONB NOT NULL DEFAULT '[]',
    pgn            TEXT NOT NULL DEFAULT '',
    eco            TEXT NOT NULL DEFAULT '',
    opening        TEXT NOT NULL DEFAULT '',
    started_at     TIMESTAMPTZ,
    ended_at       TIMESTAMPTZ,
    duration_ms    BIGINT NOT NULL DEFAULT 0
)`

// EnsureSchema creates the results table when it is missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *Repository) SaveSnapshot(context.Context, *GameRecord) error { return nil }

// SaveResult upserts a finished game keyed by its platform game id.
func (r *Repository) SaveResult(ctx context.Context, rec *GameRecord) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}

	result := rec.Result()
	pgn := buildPGN(rec, mapResultToPGN(result))

	movesUCIRaw, _ := json.Marshal(rec.MovesUCI)
	movesSANRaw, _ := json.Marshal(rec.MovesSAN)
	thinkRaw, _ := json.Marshal(rec.ThinkTimesMs)
	ended := rec.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	duration := ended.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 || rec.StartedAt.IsZero() {
		duration = 0
	}

	q := `INSERT INTO lichess_games (
        game_id, run_id, bot_color, white_name, black_name, opponent,
        variant, speed, rated, initial_fen, final_fen,
        status, result, moves_uci, moves_san, think_times_ms, pgn,
        eco, opening, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15::jsonb,$16::jsonb,$17,$18,$19,$20,$21,$22
      ) ON CONFLICT (game_id) DO UPDATE SET
        run_id=EXCLUDED.run_id,
        final_fen=EXCLUDED.final_fen,
        status=EXCLUDED.status,
        result=EXCLUDED.result,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        think_times_ms=EXCLUDED.think_times_ms,
        pgn=EXCLUDED.pgn,
        eco=EXCLUDED.eco,
        opening=EXCLUDED.opening,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.GameID, rec.RunID, rec.BotColor,
		rec.WhiteName, rec.BlackName, rec.Opponent,
		rec.Variant, rec.Speed, rec.Rated,
		rec.InitialFEN, rec.FEN,
		rec.Status, result,
		string(movesUCIRaw), string(movesSANRaw), string(thinkRaw), pgn,
		rec.ECO, rec.Opening,
		rec.StartedAt, ended, duration,
	)
	if err != nil {
		return fmt.Errorf("save game result %s: %w", rec.GameID, err)
	}
	return nil
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(rec *GameRecord, pgnResult string) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Lichess bot game\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"https://lichess.org/%s\"]\n", sanitizePGN(rec.GameID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(rec.WhiteName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(rec.BlackName)))
	if !isStandardStart(rec.InitialFEN) {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(rec.InitialFEN)))
	}
	if strings.TrimSpace(rec.ECO) != "" {
		b.WriteString(fmt.Sprintf("[ECO \"%s\"]\n", sanitizePGN(rec.ECO)))
	}
	if strings.TrimSpace(rec.Status) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(rec.Status))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(rec.MovesSAN[i])))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(rec.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	if pgnResult != "" {
		b.WriteString(pgnResult)
	}
	return b.String()
}

func isStandardStart(fen string) bool {
	switch strings.TrimSpace(fen) {
	case "", "startpos", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1":
		return true
	}
	return false
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
