package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttlGame      = 24 * time.Hour
	recentLength = 100
)

// RedisStore keeps live game snapshots and a capped list of finished ids.
type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) keyGame(id string) string { return "lb:game:" + strings.TrimSpace(id) }
func (s *RedisStore) keyActive() string        { return "lb:games:active" }
func (s *RedisStore) keyRecent() string        { return "lb:games:recent" }

func (s *RedisStore) SaveSnapshot(ctx context.Context, rec *GameRecord) error {
	if rec == nil || strings.TrimSpace(rec.GameID) == "" {
		return nil
	}
	if err := s.save(ctx, rec); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, s.keyActive(), rec.GameID).Err(); err != nil {
		return fmt.Errorf("index active game: %w", err)
	}
	_ = s.rdb.Expire(ctx, s.keyActive(), ttlGame).Err()
	return nil
}

func (s *RedisStore) SaveResult(ctx context.Context, rec *GameRecord) error {
	if rec == nil || strings.TrimSpace(rec.GameID) == "" {
		return nil
	}
	if err := s.save(ctx, rec); err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, s.keyActive(), rec.GameID)
	pipe.LRem(ctx, s.keyRecent(), 0, rec.GameID)
	pipe.LPush(ctx, s.keyRecent(), rec.GameID)
	pipe.LTrim(ctx, s.keyRecent(), 0, recentLength-1)
	pipe.Expire(ctx, s.keyRecent(), ttlGame)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index finished game: %w", err)
	}
	return nil
}

// Load returns nil, nil when the game is unknown or expired.
func (s *RedisStore) Load(ctx context.Context, gameID string) (*GameRecord, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode game record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) ActiveIDs(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyActive()).Result()
}

// RecentIDs lists finished game ids, latest first.
func (s *RedisStore) RecentIDs(ctx context.Context, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	return s.rdb.LRange(ctx, s.keyRecent(), 0, stop).Result()
}

func (s *RedisStore) save(ctx context.Context, rec *GameRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode game record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.keyGame(rec.GameID), raw, ttlGame).Err(); err != nil {
		return fmt.Errorf("save game record: %w", err)
	}
	return nil
}
