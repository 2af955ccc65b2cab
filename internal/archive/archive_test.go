package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func sampleRecord(id string, ended time.Time) *GameRecord {
	return &GameRecord{
		GameID:     id,
		RunID:      "run-" + id,
		BotColor:   "white",
		WhiteName:  "CheeseBot",
		BlackName:  "alice",
		InitialFEN: "startpos",
		MovesUCI:   []string{"e2e4", "e7e5", "g1f3"},
		MovesSAN:   []string{"e4", "e5", "Nf3"},
		Status:     "resign",
		Winner:     "white",
		StartedAt:  ended.Add(-time.Minute),
		EndedAt:    ended,
	}
}

func TestMemoryStoreRecentOrderAndCapacity(t *testing.T) {
	m := NewMemoryStore(2)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"g1", "g2", "g3"} {
		if err := m.SaveResult(ctx, sampleRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	recent := m.Recent(0)
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].GameID != "g3" || recent[1].GameID != "g2" {
		t.Fatalf("unexpected order: %s, %s", recent[0].GameID, recent[1].GameID)
	}
	if _, ok := m.Get("g1"); ok {
		t.Fatalf("g1 should have been evicted")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore(5)
	rec := sampleRecord("g1", time.Now())
	_ = m.SaveResult(context.Background(), rec)
	rec.MovesUCI[0] = "d2d4"

	got, ok := m.Get("g1")
	if !ok {
		t.Fatalf("missing g1")
	}
	if got.MovesUCI[0] != "e2e4" {
		t.Fatalf("store aliased caller slice: %v", got.MovesUCI)
	}
	got.MovesUCI[1] = "zzzz"
	again, _ := m.Get("g1")
	if again.MovesUCI[1] != "e7e5" {
		t.Fatalf("store aliased returned slice: %v", again.MovesUCI)
	}
}

func TestMemoryStoreResaveReplaces(t *testing.T) {
	m := NewMemoryStore(5)
	ctx := context.Background()
	now := time.Now()
	_ = m.SaveResult(ctx, sampleRecord("g1", now))
	upd := sampleRecord("g1", now)
	upd.Status = "mate"
	_ = m.SaveResult(ctx, upd)
	if n := len(m.Recent(0)); n != 1 {
		t.Fatalf("expected one record, got %d", n)
	}
	got, _ := m.Get("g1")
	if got.Status != "mate" {
		t.Fatalf("expected replaced status, got %s", got.Status)
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStoreSnapshotThenResult(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	rec := sampleRecord("g1", time.Now())
	rec.Status = "started"
	rec.Winner = ""

	if err := s.SaveSnapshot(ctx, rec); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	ids, err := s.ActiveIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "g1" {
		t.Fatalf("active ids: %v %v", ids, err)
	}
	if ttl := mr.TTL("lb:game:g1"); ttl != ttlGame {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	rec.Status = "mate"
	rec.Winner = "white"
	if err := s.SaveResult(ctx, rec); err != nil {
		t.Fatalf("result: %v", err)
	}
	ids, _ = s.ActiveIDs(ctx)
	if len(ids) != 0 {
		t.Fatalf("finished game still active: %v", ids)
	}
	recent, err := s.RecentIDs(ctx, 10)
	if err != nil || len(recent) != 1 || recent[0] != "g1" {
		t.Fatalf("recent ids: %v %v", recent, err)
	}

	got, err := s.Load(ctx, "g1")
	if err != nil || got == nil {
		t.Fatalf("load: %v %v", got, err)
	}
	if got.Status != "mate" || got.Winner != "white" || len(got.MovesSAN) != 3 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestRedisStoreRecentIsCappedAndDeduped(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	for i := 0; i < recentLength+5; i++ {
		_ = s.SaveResult(ctx, sampleRecord(fmt.Sprintf("g%03d", i), time.Now()))
	}
	_ = s.SaveResult(ctx, sampleRecord("dup", time.Now()))
	_ = s.SaveResult(ctx, sampleRecord("dup", time.Now()))

	ids, err := s.RecentIDs(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(ids) != recentLength {
		t.Fatalf("expected %d ids, got %d", recentLength, len(ids))
	}
	if ids[0] != "dup" || ids[1] == "dup" {
		t.Fatalf("expected single dup at head, got %v", ids[:2])
	}
}

func TestRedisStoreLoadMissing(t *testing.T) {
	s, _ := newRedisStore(t)
	got, err := s.Load(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}

type failingRecorder struct{ err error }

func (f failingRecorder) SaveSnapshot(context.Context, *GameRecord) error { return f.err }
func (f failingRecorder) SaveResult(context.Context, *GameRecord) error   { return f.err }

func TestMultiContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	mem := NewMemoryStore(5)
	m := Multi{failingRecorder{err: boom}, nil, mem}

	err := m.SaveResult(context.Background(), sampleRecord("g1", time.Now()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined boom, got %v", err)
	}
	if _, ok := mem.Get("g1"); !ok {
		t.Fatalf("memory store skipped after failure")
	}
	if err := (Multi{Noop{}}).SaveSnapshot(context.Background(), nil); err != nil {
		t.Fatalf("noop: %v", err)
	}
}

func TestRecordResult(t *testing.T) {
	cases := []struct {
		status, winner, want string
	}{
		{"mate", "white", "white"},
		{"outoftime", "black", "black"},
		{"stalemate", "", "draw"},
		{"draw", "", "draw"},
		{"aborted", "", ""},
	}
	for _, c := range cases {
		r := &GameRecord{Status: c.status, Winner: c.winner}
		if got := r.Result(); got != c.want {
			t.Fatalf("%s/%s: got %q want %q", c.status, c.winner, got, c.want)
		}
	}
}

func TestBuildPGN(t *testing.T) {
	rec := sampleRecord("abcd1234", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	rec.ECO = "C40"
	pgn := buildPGN(rec, mapResultToPGN(rec.Result()))

	for _, want := range []string{
		`[Site "https://lichess.org/abcd1234"]`,
		`[Date "2026.03.01"]`,
		`[White "CheeseBot"]`,
		`[ECO "C40"]`,
		`[Result "1-0"]`,
		"1. e4 e5 2. Nf3 1-0",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if strings.Contains(pgn, "[SetUp") {
		t.Fatalf("standard start should not carry SetUp")
	}

	rec.InitialFEN = "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"
	if pgn := buildPGN(rec, "*"); !strings.Contains(pgn, `[FEN "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"]`) {
		t.Fatalf("custom start missing FEN tag:\n%s", pgn)
	}
}

func TestSanitizePGN(t *testing.T) {
	if got := sanitizePGN(` a"b\c `); got != `a'b c` {
		t.Fatalf("got %q", got)
	}
}

func TestRepositoryNilIsNoop(t *testing.T) {
	var r *Repository
	if err := r.SaveResult(context.Background(), sampleRecord("g1", time.Now())); err != nil {
		t.Fatalf("nil repo: %v", err)
	}
	if _, err := NewRepository(" "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
