package summarize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/doc-sentinel/internal/logger"
)

const (
	defaultMaxFailures uint32 = 5
	defaultOpenTimeout        = 30 * time.Second
	breakerInterval           = 60 * time.Second
)

// ErrUnavailable is returned while the circuit to the provider is open
var ErrUnavailable = errors.New("summarization provider unavailable")

// GuardConfig tunes GuardedGenerator
type GuardConfig struct {
	RequestsPerMin int
	MaxFailures    uint32
	OpenTimeout    time.Duration
}

// GuardedGenerator paces calls to the provider and stops calling it after
// repeated failures until the open timeout has passed.
type GuardedGenerator struct {
	inner   Generator
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
}

// NewGuardedGenerator wraps inner
func NewGuardedGenerator(inner Generator, cfg GuardConfig, log *logger.Logger) *GuardedGenerator {
	if log == nil {
		log = logger.Nop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerMin > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMin) / 60.0)
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "summarizer:" + inner.Name(),
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// a cancelled request says nothing about the provider's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &GuardedGenerator{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}
}

func (g *GuardedGenerator) Name() string { return g.inner.Name() }

func (g *GuardedGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	text, err := g.breaker.Execute(func() (string, error) {
		return g.inner.Generate(ctx, prompt, maxTokens)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: provider %q circuit open: %v", ErrUnavailable, g.inner.Name(), err)
	}
	return text, err
}

// State returns the breaker state, for health reporting
func (g *GuardedGenerator) State() string {
	return g.breaker.State().String()
}
