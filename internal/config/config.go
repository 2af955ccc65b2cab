package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrMissingToken = errors.New("lichess API token is required")

const Usage = `usage: lichess-bot [TOKEN]

The API token is read from LICHESS_TOKEN, or from the first argument.

Environment:
  LICHESS_TOKEN           bot account API token
  LICHESS_BASE_URL        platform base URL (default https://lichess.org)
  ENGINE_PATH             UCI engine binary
  ENGINE_THREADS          engine threads per process (default 4)
  ENGINE_HASH_MB          engine hash size in MB (default 256)
  ENGINE_POOL_SIZE        engine processes, 0 derives from CPU count
  ENGINE_MAX_DEPTH        search depth cap (default 64)
  MOVE_OVERHEAD_MS        per-move network allowance (default 500)
  MIN_CUSHION_MS          minimum clock reserve (default 3000)
  SEARCH_GRACE_MS         extra wait past the move budget (default 3000)
  SUPPORTED_VARIANTS      comma separated variant keys (default standard)
  MAX_CONCURRENT_GAMES    challenges beyond this are declined (default 200)
  STREAM_RECONNECT_DELAY  delay before reopening the event stream (default 5s)
  MOVE_SUBMIT_RETRIES     attempts per move submission (default 3)
  OPENING_BOOK_PATH       polyglot book file
  OPENING_BOOK_MAX_PLY    last ply the book is consulted (default 12)
  REDIS_URL               live game snapshots
  DATABASE_URL            finished game archive
  STATUS_ADDR             status API listen address
  CHAT_GREETING           post greetings and goodbyes (default true)
  MESSAGES_DIR            chat template overrides
`

type AppConfig struct {
	Token   string
	BaseURL string

	EnginePath     string
	EngineThreads  int
	EngineHashMB   int
	EnginePoolSize int
	EngineMaxDepth int

	MoveOverheadMs int64
	MinCushionMs   int64
	SearchGrace    time.Duration

	SupportedVariants  []string
	MaxConcurrentGames int
	ReconnectDelay     time.Duration
	MoveSubmitRetries  int

	OpeningBookPath   string
	OpeningBookMaxPly int

	RedisURL    string
	DatabaseURL string
	StatusAddr  string

	ChatGreeting bool
	MessagesDir  string
}

// Load reads the environment. args are the positional command line
// arguments; the first one is a token fallback.
func Load(args []string) (*AppConfig, error) {
	cfg := &AppConfig{
		BaseURL:            "https://lichess.org",
		EngineThreads:      4,
		EngineHashMB:       256,
		EngineMaxDepth:     64,
		MoveOverheadMs:     500,
		MinCushionMs:       3000,
		SearchGrace:        3 * time.Second,
		SupportedVariants:  []string{"standard"},
		MaxConcurrentGames: 200,
		ReconnectDelay:     5 * time.Second,
		MoveSubmitRetries:  3,
		OpeningBookMaxPly:  12,
		ChatGreeting:       true,
	}

	cfg.Token = env("LICHESS_TOKEN")
	if cfg.Token == "" && len(args) > 0 {
		cfg.Token = strings.TrimSpace(args[0])
	}
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	if v := env("LICHESS_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	cfg.EnginePath = env("ENGINE_PATH")
	cfg.EngineThreads = positiveInt("ENGINE_THREADS", cfg.EngineThreads)
	cfg.EngineHashMB = positiveInt("ENGINE_HASH_MB", cfg.EngineHashMB)
	cfg.EnginePoolSize = positiveInt("ENGINE_POOL_SIZE", cfg.EnginePoolSize)
	cfg.EngineMaxDepth = positiveInt("ENGINE_MAX_DEPTH", cfg.EngineMaxDepth)

	if v := env("MOVE_OVERHEAD_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.MoveOverheadMs = n
		}
	}
	if v := env("MIN_CUSHION_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.MinCushionMs = n
		}
	}
	if n := positiveInt("SEARCH_GRACE_MS", 0); n > 0 {
		cfg.SearchGrace = time.Duration(n) * time.Millisecond
	}

	if list := splitList(env("SUPPORTED_VARIANTS")); len(list) > 0 {
		cfg.SupportedVariants = list
	}
	cfg.MaxConcurrentGames = positiveInt("MAX_CONCURRENT_GAMES", cfg.MaxConcurrentGames)
	if v := env("STREAM_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ReconnectDelay = d
		}
	}
	cfg.MoveSubmitRetries = positiveInt("MOVE_SUBMIT_RETRIES", cfg.MoveSubmitRetries)

	cfg.OpeningBookPath = env("OPENING_BOOK_PATH")
	cfg.OpeningBookMaxPly = positiveInt("OPENING_BOOK_MAX_PLY", cfg.OpeningBookMaxPly)

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.StatusAddr = env("STATUS_ADDR")

	if v := env("CHAT_GREETING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ChatGreeting = b
		}
	}
	cfg.MessagesDir = env("MESSAGES_DIR")

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func positiveInt(key string, def int) int {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.ToLower(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
