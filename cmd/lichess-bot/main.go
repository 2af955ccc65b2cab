package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/Cheese-Lichess-bot/internal/botbuilder"
	appcfg "github.com/park285/Cheese-Lichess-bot/internal/config"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := appcfg.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, appcfg.ErrMissingToken) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprint(os.Stderr, appcfg.Usage)
			os.Exit(1)
		}
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := botbuilder.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			obslog.L().Warn("close_failed", zap.Error(err))
		}
	}()

	// Resolve the account up front so a bad token shows in the first log lines.
	// A failure here is retried lazily by the sessions.
	acctCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	acct, err := deps.Identity.Get(acctCtx)
	cancel()
	if err != nil {
		obslog.L().Warn("account_lookup_failed", zap.Error(err))
	} else {
		obslog.L().Info("bot_ready",
			zap.String("account", acct.ID),
			zap.String("title", acct.Title),
			zap.Strings("variants", cfg.SupportedVariants),
			zap.Int("max_games", cfg.MaxConcurrentGames),
		)
	}

	if deps.Status != nil {
		go func() {
			if err := deps.Status.Run(ctx); err != nil {
				obslog.L().Error("status_api_failed", zap.Error(err))
			}
		}()
	}

	// Run only returns once the signal context ends
	_ = deps.Consumer.Run(ctx)

	obslog.L().Info("bot_shutting_down", zap.Int("sessions", deps.Manager.Count()))
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := deps.Manager.Shutdown(shutdownCtx); err != nil {
		obslog.L().Warn("shutdown_incomplete", zap.Error(err))
	}
}
