package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

type PoolConfig struct {
	BinaryPath string
	Options    Options
	// Capacity is the maximum number of live engine processes.
	Capacity int
}

// Pool shares engine processes, all started with the same options, between
// games. A caller waits for an idle process once Capacity are alive.
type Pool struct {
	binaryPath string
	opt        Options

	idle  chan *Session
	slots chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	if err := validateOptions(cfg.Options); err != nil {
		return nil, err
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		opt:        cfg.Options,
		idle:       make(chan *Session, capacity),
		slots:      make(chan struct{}, capacity),
	}, nil
}

// Warm starts one idle process so that a broken binary fails at startup
// instead of on the first move.
func (p *Pool) Warm(ctx context.Context) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	p.Release(s, nil)
	return nil
}

// Stats reports live and idle process counts.
func (p *Pool) Stats() (total, idle int) {
	return len(p.slots), len(p.idle)
}

// Acquire prefers an idle process, starts a new one while under capacity and
// otherwise waits for a release or ctx.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	for {
		select {
		case s := <-p.idle:
			if p.ready(ctx, s) {
				return s, nil
			}
			continue
		default:
		}

		select {
		case s := <-p.idle:
			if p.ready(ctx, s) {
				return s, nil
			}
		case p.slots <- struct{}{}:
			s, err := NewSession(ctx, p.binaryPath, p.opt)
			if err != nil {
				<-p.slots
				return nil, err
			}
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns s to the pool. A session that failed, or any session after
// Close, is shut down and its slot freed.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	if err != nil || p.isClosed() {
		p.drop(s)
		return
	}
	select {
	case p.idle <- s:
	default:
		p.drop(s)
	}
}

var ErrPoolClosed = errors.New("engine pool closed")

func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case s := <-p.idle:
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
			<-p.slots
		default:
			return errors.Join(errs...)
		}
	}
}

func (p *Pool) ready(ctx context.Context, s *Session) bool {
	if s == nil {
		return false
	}
	if err := s.EnsureReady(ctx); err != nil {
		p.drop(s)
		return false
	}
	return true
}

func (p *Pool) drop(s *Session) {
	_ = s.Close()
	select {
	case <-p.slots:
	default:
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
