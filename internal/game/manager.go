package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrSessionExists = errors.New("game session already exists")
	ErrManagerClosed = errors.New("game manager is shut down")
)

type entry struct {
	session *Session
	cancel  context.CancelFunc
}

// Manager owns the registry of live sessions and supervises their workers.
// Start and the worker's own exit are the only registry mutations.
type Manager struct {
	deps Deps
	root context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
	wg       sync.WaitGroup
}

func NewManager(parent context.Context, deps Deps) *Manager {
	root, stop := context.WithCancel(parent)
	return &Manager{
		deps:     deps.withDefaults(),
		root:     root,
		stop:     stop,
		sessions: make(map[string]*entry),
	}
}

// Start creates a session for gameID and runs its worker. A second Start for
// a live id returns ErrSessionExists and creates nothing.
func (m *Manager) Start(gameID string) (*Session, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, fmt.Errorf("start session: empty game id")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if _, exists := m.sessions[gameID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, gameID)
	}
	ctx, cancel := context.WithCancel(m.root)
	s := newSession(gameID)
	m.sessions[gameID] = &entry{session: s, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	obslog.L().Info("game_session_started", zap.String("game_id", gameID), zap.String("run_id", s.RunID))
	m.deps.notify(Notice{Kind: NoticeSessionStarted, GameID: gameID, RunID: s.RunID})

	go m.run(ctx, cancel, s)
	return s, nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, s *Session) {
	defer m.wg.Done()

	r := newRunner(m.deps, s)
	err := r.run(ctx)
	cancel()
	m.remove(s)

	snap := s.Snapshot()
	log := obslog.L().With(zap.String("game_id", s.ID), zap.String("run_id", s.RunID))

	switch {
	case err != nil:
		log.Error("game_session_failed", zap.Error(err))
		m.deps.notify(Notice{Kind: NoticeSessionFailed, GameID: s.ID, RunID: s.RunID, Status: snap.Status, Error: err.Error()})
	default:
		log.Info("game_session_finished",
			zap.String("status", snap.Status),
			zap.String("winner", snap.Winner),
			zap.Int("moves", len(snap.Moves)),
		)
		m.deps.notify(Notice{Kind: NoticeSessionFinished, GameID: s.ID, RunID: s.RunID, Status: snap.Status, Winner: snap.Winner})
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[s.ID]; ok && e.session == s {
		delete(m.sessions, s.ID)
	}
}

// Count is the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns snapshots of all live sessions ordered by start time.
func (m *Manager) Sessions() []Snapshot {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		list = append(list, e.session)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Manager) Session(gameID string) (Snapshot, bool) {
	m.mu.Lock()
	e, ok := m.sessions[strings.TrimSpace(gameID)]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return e.session.Snapshot(), true
}

// Cancel stops one session's worker. The entry is removed when it exits.
func (m *Manager) Cancel(gameID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[strings.TrimSpace(gameID)]
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// Shutdown refuses new sessions, cancels all live ones and waits for their
// workers until ctx expires. In-flight sessions may be abandoned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %d sessions still running: %w", m.Count(), ctx.Err())
	}
}
