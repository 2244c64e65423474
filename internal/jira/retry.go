package jira

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

// RetryPolicy is a named, reusable retry policy injected into every tracker
// call site: bounded attempt count, exponential backoff, and a per-attempt
// timeout independent of the overall attempt cap.
type RetryPolicy struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	AttemptTimeout time.Duration
}

// NewRetryPolicy builds the policy from config with sane floors.
func NewRetryPolicy(cfg config.JiraConfig) RetryPolicy {
	policy := RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		BackoffBase:    cfg.BackoffBase(),
		BackoffMax:     cfg.BackoffMax(),
		AttemptTimeout: cfg.AttemptTimeout(),
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = 250 * time.Millisecond
	}
	if policy.BackoffMax <= 0 {
		policy.BackoffMax = 8 * time.Second
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = 15 * time.Second
	}
	return policy
}

// Do runs op until it succeeds, fails non-retryably, or the attempt cap is
// reached. Only TRANSIENT_IO errors are retried; the last error is returned
// once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperrors.IsTransient(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.backoff(attempt)
		if logger != nil {
			logger.Warn("tracker call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if delay > p.BackoffMax {
		return p.BackoffMax
	}
	return delay
}
