package builtin

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// retryConfig bounds the retry behavior of nodes that call external
// services. The engine itself never retries; nodes opt in.
type retryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

func defaultRetryConfig() *retryConfig {
	return &retryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

type retryFunc func(ctx context.Context, attempt int) error

// retry executes fn with exponential backoff until it succeeds or attempts
// run out.
func retry(ctx context.Context, config *retryConfig, fn retryFunc) error {
	if config == nil {
		config = defaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < config.MaxAttempts {
			delay := backoffDelay(config, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func backoffDelay(config *retryConfig, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt-1))

	if config.JitterFactor > 0 {
		jitter := delay * config.JitterFactor
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}
