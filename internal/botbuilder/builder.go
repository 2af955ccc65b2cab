package botbuilder

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/archive"
	"github.com/park285/Cheese-Lichess-bot/internal/bot"
	"github.com/park285/Cheese-Lichess-bot/internal/challenge"
	corechess "github.com/park285/Cheese-Lichess-bot/internal/chess"
	"github.com/park285/Cheese-Lichess-bot/internal/chess/openingbook"
	"github.com/park285/Cheese-Lichess-bot/internal/config"
	"github.com/park285/Cheese-Lichess-bot/internal/game"
	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
	"github.com/park285/Cheese-Lichess-bot/internal/msgcat"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"github.com/park285/Cheese-Lichess-bot/internal/statusapi"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const recentCapacity = 100

type Deps struct {
	Client   *lichess.Client
	Streamer *lichess.Streamer
	Identity *lichess.Identity
	Engine   *corechess.Engine
	Messages *msgcat.Catalog

	Memory *archive.MemoryStore
	Redis  *redis.Client
	Repo   *archive.Repository

	Manager  *game.Manager
	Arbiter  *challenge.Arbiter
	Hub      *statusapi.Hub
	Consumer *bot.Consumer
	Status   *statusapi.Server
}

// New wires every component from cfg. Sessions started by the returned
// manager live under ctx.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	d := &Deps{}
	if err := d.build(ctx, cfg); err != nil {
		if cerr := d.Close(); cerr != nil {
			obslog.L().Warn("builder_cleanup_failed", zap.Error(cerr))
		}
		return nil, err
	}
	return d, nil
}

func (d *Deps) build(ctx context.Context, cfg *config.AppConfig) error {
	d.Client = lichess.NewClient(cfg.BaseURL, cfg.Token, lichess.WithRetry(cfg.MoveSubmitRetries))
	d.Streamer = lichess.NewStreamer(cfg.BaseURL, cfg.Token)
	d.Identity = lichess.NewIdentity(d.Client)

	// Engine
	var book *openingbook.Book
	if strings.TrimSpace(cfg.OpeningBookPath) != "" {
		b, err := openingbook.Open(cfg.OpeningBookPath, cfg.OpeningBookMaxPly)
		if err != nil {
			return fmt.Errorf("open opening book: %w", err)
		}
		book = b
	}
	engine, err := corechess.NewEngine(ctx, corechess.EngineConfig{
		BinaryPath: cfg.EnginePath,
		Threads:    cfg.EngineThreads,
		HashMB:     cfg.EngineHashMB,
		PoolSize:   cfg.EnginePoolSize,
		Book:       book,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	d.Engine = engine

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	d.Messages = msgs

	recorders, err := d.buildRecorders(ctx, cfg)
	if err != nil {
		return err
	}

	d.Hub = statusapi.NewHub()
	d.Manager = game.NewManager(ctx, game.Deps{
		Streamer:    d.Streamer,
		Platform:    d.Client,
		Searcher:    d.Engine,
		Identity:    d.Identity,
		Allocator:   corechess.NewAllocator(cfg.MoveOverheadMs, cfg.MinCushionMs),
		Recorder:    recorders,
		Notifier:    d.Hub,
		Messages:    d.Messages,
		MaxDepth:    cfg.EngineMaxDepth,
		SearchGrace: cfg.SearchGrace,
		Greet:       cfg.ChatGreeting,
	})
	d.Arbiter = challenge.NewArbiter(d.Client, d.Manager, challenge.Config{
		Variants:  cfg.SupportedVariants,
		MaxActive: cfg.MaxConcurrentGames,
	})
	d.Consumer = bot.NewConsumer(d.Streamer, d.Arbiter, d.Manager, cfg.ReconnectDelay)

	if strings.TrimSpace(cfg.StatusAddr) != "" {
		d.Status = statusapi.NewServer(cfg.StatusAddr, statusapi.NewRouter(d.Manager, d.Memory, d.Hub))
	}
	return nil
}

func (d *Deps) buildRecorders(ctx context.Context, cfg *config.AppConfig) (archive.Recorder, error) {
	d.Memory = archive.NewMemoryStore(recentCapacity)
	recorders := archive.Multi{d.Memory}

	// Redis (optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := parseRedisURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		d.Redis = rdb
		recorders = append(recorders, archive.NewRedisStore(rdb))
		obslog.L().Info("archive_redis_enabled", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	}

	// Repository (optional)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init repository: %w", err)
		}
		d.Repo = repo
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = repo.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		recorders = append(recorders, repo)
		obslog.L().Info("archive_postgres_enabled")
	}
	return recorders, nil
}

// Close releases the engine pool and storage clients. It is safe on a
// partially built Deps.
func (d *Deps) Close() error {
	var errs []error
	if d.Engine != nil {
		if err := d.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if d.Repo != nil {
		if err := d.Repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	return errors.Join(errs...)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, fmt.Errorf("invalid port %q", portStr)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid db %q", p)
		}
		db = n
	}
	opts := &redis.Options{
		Addr:     net.JoinHostPort(host, portStr),
		Username: u.User.Username(),
		DB:       db,
	}
	opts.Password, _ = u.User.Password()
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return opts, nil
}
