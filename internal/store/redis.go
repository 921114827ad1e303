package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/xiangqi-board/pkg/xqdto"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// OpenRedis connects to redisURL and pings it once.
func OpenRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL required for snapshot store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, ttl), nil
}

func gameKey(id string) string { return "xq:game:" + strings.TrimSpace(id) }
func latestKey() string        { return "xq:latest" }

func (s *RedisStore) Save(ctx context.Context, st *xqdto.GameState) error {
	if st == nil || strings.TrimSpace(st.GameID) == "" {
		return errors.New("snapshot without game id")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, gameKey(st.GameID), raw, s.ttl)
	pipe.Set(ctx, latestKey(), st.GameID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %s: %w", st.GameID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, gameID string) (*xqdto.GameState, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st xqdto.GameState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", gameID, err)
	}
	return &st, nil
}

func (s *RedisStore) Latest(ctx context.Context) (*xqdto.GameState, error) {
	id, err := s.rdb.Get(ctx, latestKey()).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, id)
}

func (s *RedisStore) Delete(ctx context.Context, gameID string) error {
	return s.rdb.Del(ctx, gameKey(gameID)).Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
