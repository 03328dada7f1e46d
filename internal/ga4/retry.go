package ga4

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

// RetryConfig defines retry behavior for GA4 API operations
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DefaultRetryConfig returns the standard backoff settings for maxRetries
// additional attempts after the first.
func DefaultRetryConfig(maxRetries int) RetryConfig {
	if maxRetries < 0 {
		maxRetries = 0
	}

	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry invokes op until it succeeds, returns a non-retryable error, or
// exhausts MaxRetries additional attempts. Between attempts it sleeps
// InitialDelay * BackoffFactor^attempt, capped at MaxDelay, honoring ctx.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(cfg.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func (cfg RetryConfig) backoff(attempt int) time.Duration {
	factor := cfg.BackoffFactor
	if factor <= 1 {
		factor = 2.0
	}

	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	return delay
}

// IsRetryable classifies an error. Authentication, permission and bad
// request failures are permanent; timeouts, quota exhaustion and server
// errors are transient. Unknown errors default to retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var gapiErr *googleapi.Error
	if errors.As(err, &gapiErr) {
		switch gapiErr.Code {
		case http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound:
			return false
		case http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return true
}
