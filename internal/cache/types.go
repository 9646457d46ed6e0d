package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/review"
)

// ErrSessionNotFound is returned for unknown or expired review sessions
var ErrSessionNotFound = errors.New("review session not found")

// SessionStore parks review workflows between requests
type SessionStore interface {
	Save(ctx context.Context, id string, snap review.Snapshot) error
	Load(ctx context.Context, id string) (review.Snapshot, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats represents store usage statistics
type Stats struct {
	Backend     string  `json:"backend"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Sessions    int64   `json:"sessions"`
	MemoryUsage int64   `json:"memory_usage_bytes,omitempty"`
}

func (s *Stats) computeHitRate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
}

// New creates the store selected by configuration
func New(cfg config.SessionStoreConfig, ttl time.Duration, log *logger.Logger) (SessionStore, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		return NewRedisStore(cfg, ttl, log)
	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}
}
