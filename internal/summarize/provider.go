package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/raaihank/doc-sentinel/internal/config"
)

// Generator turns a prompt into text. Implementations talk to a hosted model.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// NewGenerator builds the HTTP generator for the configured provider
func NewGenerator(cfg config.SummarizerConfig) (Generator, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", cfg.Provider)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case "anthropic":
		return &Anthropic{apiKey: key, model: cfg.Model, baseURL: cfg.AnthropicURL, client: client}, nil
	case "openai":
		return &OpenAI{apiKey: key, model: cfg.Model, baseURL: cfg.OpenAIURL, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

type rateLimitError struct{}

func (e *rateLimitError) Error() string { return "rate limited" }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

// IsAuthError reports whether err came from a rejected API key
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

// retryBackoff is the base delay between rate-limited attempts
var retryBackoff = time.Second

// retryWithBackoff retries fn on rate-limit errors only
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var rl *rateLimitError
		if !errors.As(lastErr, &rl) {
			return lastErr
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff << uint(attempt)):
			}
		}
	}
	return lastErr
}
