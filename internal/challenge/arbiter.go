package challenge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/lichess"
	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const defaultDedupeWindow = 10 * time.Minute

// Responder performs the accept/decline action. *lichess.Client satisfies it.
type Responder interface {
	AcceptChallenge(ctx context.Context, challengeID string) error
	DeclineChallenge(ctx context.Context, challengeID string, reason lichess.DeclineReason) error
}

// ActiveCounter reports the number of live game sessions.
type ActiveCounter interface {
	Count() int
}

type Verdict struct {
	Accept bool
	Reason lichess.DeclineReason
}

type Config struct {
	Variants     []string
	MaxActive    int
	DedupeWindow time.Duration
}

// Arbiter decides every incoming challenge with exactly one accept or decline.
type Arbiter struct {
	responder Responder
	active    ActiveCounter
	variants  map[string]struct{}
	maxActive int
	window    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	decided map[string]time.Time
}

func NewArbiter(r Responder, active ActiveCounter, cfg Config) *Arbiter {
	variants := make(map[string]struct{}, len(cfg.Variants))
	for _, v := range cfg.Variants {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			variants[v] = struct{}{}
		}
	}
	if len(variants) == 0 {
		variants["standard"] = struct{}{}
	}
	window := cfg.DedupeWindow
	if window <= 0 {
		window = defaultDedupeWindow
	}
	return &Arbiter{
		responder: r,
		active:    active,
		variants:  variants,
		maxActive: cfg.MaxActive,
		window:    window,
		now:       time.Now,
		decided:   make(map[string]time.Time),
	}
}

// Decide is the policy alone, without side effects.
func (a *Arbiter) Decide(c lichess.Challenge) Verdict {
	if _, ok := a.variants[strings.ToLower(c.VariantKey())]; !ok {
		return Verdict{Reason: lichess.DeclineVariant}
	}
	if a.maxActive > 0 && a.active != nil && a.active.Count() >= a.maxActive {
		return Verdict{Reason: lichess.DeclineLater}
	}
	return Verdict{Accept: true}
}

// Handle decides c and sends the matching action. A challenge id already
// decided within the dedupe window is skipped and reported as handled=false.
func (a *Arbiter) Handle(ctx context.Context, c lichess.Challenge) (handled bool, err error) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return false, fmt.Errorf("challenge without id")
	}
	if !a.claim(id) {
		obslog.L().Debug("challenge_duplicate_skipped", zap.String("challenge_id", id))
		return false, nil
	}

	v := a.Decide(c)
	log := obslog.L().With(
		zap.String("challenge_id", id),
		zap.String("challenger", c.Challenger.Name),
		zap.String("variant", c.VariantKey()),
	)
	if v.Accept {
		if err := a.responder.AcceptChallenge(ctx, id); err != nil {
			a.release(id)
			log.Warn("challenge_accept_failed", zap.Error(err))
			return true, fmt.Errorf("accept challenge %s: %w", id, err)
		}
		log.Info("challenge_accepted")
		return true, nil
	}

	if err := a.responder.DeclineChallenge(ctx, id, v.Reason); err != nil {
		a.release(id)
		log.Warn("challenge_decline_failed", zap.String("reason", string(v.Reason)), zap.Error(err))
		return true, fmt.Errorf("decline challenge %s: %w", id, err)
	}
	log.Info("challenge_declined", zap.String("reason", string(v.Reason)))
	return true, nil
}

func (a *Arbiter) claim(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for k, at := range a.decided {
		if now.Sub(at) > a.window {
			delete(a.decided, k)
		}
	}
	if _, seen := a.decided[id]; seen {
		return false
	}
	a.decided[id] = now
	return true
}

// release forgets a failed decision so a redelivered challenge is tried again.
func (a *Arbiter) release(id string) {
	a.mu.Lock()
	delete(a.decided, id)
	a.mu.Unlock()
}
