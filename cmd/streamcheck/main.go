package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
)

func main() {
	window := flag.Duration("window", 10*time.Second, "how long to watch the event stream")
	flag.Parse()

	_ = godotenv.Load()

	token := strings.TrimSpace(os.Getenv("LICHESS_TOKEN"))
	if token == "" && flag.NArg() > 0 {
		token = strings.TrimSpace(flag.Arg(0))
	}
	if token == "" {
		log.Fatal("LICHESS_TOKEN is required")
	}
	baseURL := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL"))
	if baseURL == "" {
		baseURL = lichess.DefaultBaseURL
	}

	client := lichess.NewClient(baseURL, token, lichess.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	acct, err := client.Account(ctx)
	cancel()
	if err != nil {
		log.Fatalf("/api/account error: %v", err)
	}
	log.Printf("/api/account ok: id=%s username=%s title=%s", acct.ID, acct.Username, acct.Title)
	if !strings.EqualFold(acct.Title, "BOT") {
		log.Printf("warning: account is not a BOT account; bot endpoints will refuse it")
	}

	// Observe for a short window
	sctx, scancel := context.WithTimeout(context.Background(), *window)
	defer scancel()
	streamer := lichess.NewStreamer(baseURL, token)
	err = streamer.StreamEvents(sctx, func(ev lichess.Event) error {
		switch {
		case ev.Challenge != nil:
			fmt.Printf("event type=%s challenge=%s from=%s variant=%s\n", ev.Type, ev.Challenge.ID, ev.Challenge.Challenger.Name, ev.Challenge.VariantKey())
		case ev.Game != nil:
			fmt.Printf("event type=%s game=%s\n", ev.Type, ev.Game.Key())
		default:
			fmt.Printf("event type=%s\n", ev.Type)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("event stream error: %v", err)
		return
	}
	log.Printf("event stream ok for %s", *window)
}
