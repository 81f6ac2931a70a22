package notify

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RetryConfig configures exponential backoff and the circuit breaker in
// front of a transport.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 500ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 1min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
	MaxRetries          uint64        // Extra attempts after the first (default 3)

	TripAfter   uint32        // Consecutive failures that open the circuit (default 5)
	OpenTimeout time.Duration // Time the circuit stays open before a probe (default 30s)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		MaxRetries:          3,
		TripAfter:           5,
		OpenTimeout:         30 * time.Second,
	}
}

// ResilientTransport retries transient send failures and stops calling the
// wrapped transport while its circuit is open.
type ResilientTransport struct {
	next    Transport
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	logger  *zap.Logger
}

// Resilient wraps t with retry and circuit breaker protection.
func Resilient(t Transport, cfg RetryConfig, logger *zap.Logger) *ResilientTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResilientTransport{
		next:    t,
		breaker: newBreaker("mail", cfg, logger),
		retry:   cfg,
		logger:  logger,
	}
}

// State reports the circuit breaker state.
func (r *ResilientTransport) State() gobreaker.State {
	return r.breaker.State()
}

func newBreaker(name string, cfg RetryConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	tripAfter := cfg.TripAfter
	if tripAfter == 0 {
		tripAfter = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // One probe in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and bad input say nothing about the relay
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, ErrInvalidMessage)
		},
	})
}

// Send delivers msg with exponential backoff retry and circuit breaker protection.
func (r *ResilientTransport) Send(ctx context.Context, msg Message) error {
	attempt := 0
	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempt++

		_, err := r.breaker.Execute(func() (interface{}, error) {
			return nil, r.next.Send(ctx, msg)
		})
		if err == nil {
			return nil
		}

		// Circuit is open - don't retry
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrInvalidMessage) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.MaxElapsedTime = r.retry.MaxElapsedTime
	policy.Multiplier = r.retry.Multiplier
	policy.RandomizationFactor = r.retry.RandomizationFactor

	b := backoff.WithContext(backoff.WithMaxRetries(policy, r.retry.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("email send failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(operation, b, notify)
}
