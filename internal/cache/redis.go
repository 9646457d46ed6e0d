package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/review"
)

// RedisStore keeps sessions in Redis as JSON with a TTL, so several server
// instances can share review sessions.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg config.SessionStoreConfig, ttl time.Duration, log *logger.Logger) (*RedisStore, error) {
	if log == nil {
		log = logger.Nop()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	store := &RedisStore{
		client: redis.NewClient(opts),
		prefix: cfg.KeyPrefix,
		ttl:    ttl,
		logger: log.WithComponent("session_store"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.client.Ping(ctx).Err(); err != nil {
		_ = store.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store.logger.Info("Redis session store initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("pool_size", opts.PoolSize),
		zap.Duration("ttl", ttl))

	return store, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Save(ctx context.Context, id string, snap review.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(id), data, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to save session", zap.String("session_id", id), zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (review.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return review.Snapshot{}, ErrSessionNotFound
	}
	if err != nil {
		return review.Snapshot{}, fmt.Errorf("failed to load session: %w", err)
	}

	var snap review.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return review.Snapshot{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	r.hits.Add(1)
	return snap, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Stats reports hit counters, the number of parked sessions and Redis memory
func (r *RedisStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Backend: "redis",
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
	}
	stats.computeHitRate()

	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Sessions++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan session keys: %w", err)
	}

	return stats, nil
}

// Clear removes every session under the store's prefix
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan session keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := r.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete session keys: %w", err)
		}
	}

	r.logger.Info("Session store cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// maskRedisURL hides the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	// the first colon belongs to the scheme
	if colon <= strings.Index(userPart, "://") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
