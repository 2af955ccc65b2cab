package game

import (
	"context"
	"sync"

	"github.com/park285/Cheese-Lichess-bot/internal/archive"
	"go.uber.org/zap"
)

// snapshotWriter saves in-progress records off the move path. Only the latest
// pending record is kept; an older one still queued is replaced.
type snapshotWriter struct {
	rec  archive.Recorder
	log  *zap.Logger
	ch   chan *archive.GameRecord
	done chan struct{}
	once sync.Once

	closed bool
}

func newSnapshotWriter(ctx context.Context, rec archive.Recorder, log *zap.Logger) *snapshotWriter {
	w := &snapshotWriter{
		rec:  rec,
		log:  log,
		ch:   make(chan *archive.GameRecord, 1),
		done: make(chan struct{}),
	}
	go w.loop(ctx)
	return w
}

func (w *snapshotWriter) loop(ctx context.Context) {
	defer close(w.done)
	for rec := range w.ch {
		if ctx.Err() != nil {
			continue
		}
		saveCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		if err := w.rec.SaveSnapshot(saveCtx, rec); err != nil {
			w.log.Warn("game_snapshot_failed", zap.Error(err))
		}
		cancel()
	}
}

// offer never blocks. Only the runner goroutine calls it.
func (w *snapshotWriter) offer(rec *archive.GameRecord) {
	if w.closed {
		return
	}
	for {
		select {
		case w.ch <- rec:
			return
		default:
		}
		select {
		case <-w.ch:
		default:
		}
	}
}

// flush stops accepting records and waits for the one in flight, so a final
// result is never overwritten by an older snapshot.
func (w *snapshotWriter) flush() {
	w.once.Do(func() {
		w.closed = true
		close(w.ch)
	})
	<-w.done
}
