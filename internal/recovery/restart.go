package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrMaxRestarts is returned once the restart budget is spent.
var ErrMaxRestarts = errors.New("recovery: max restarts exceeded")

// Config contains exponential backoff settings.
type Config struct {
	MaxRetries    int           // attempts before giving up (default: 5)
	RetryDelay    time.Duration // initial delay (default: 1 second)
	MaxRetryDelay time.Duration // delay cap (default: 30 seconds)
}

// DefaultConfig returns 5 retries starting at 1s, capped at 30s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks consecutive failures and the lifetime restart count.
type State struct {
	CurrentRetries int
	Restarts       atomic.Uint32
}

// RunFunc starts or restarts the source. It returns nil once running.
type RunFunc func(ctx context.Context) error

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// RunWithRestart calls fn until it succeeds, waiting Backoff between
// attempts. It stops on a *Permanent error, when MaxRetries is exceeded or
// when ctx is cancelled.
//
// Default schedule: 1s, 2s, 4s, 8s, 16s, then ErrMaxRestarts.
func RunWithRestart(ctx context.Context, fn RunFunc, cfg Config, state *State, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("recovery: context cancelled, stopping restarts")
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			state.CurrentRetries = 0
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			logger.Error("recovery: permanent failure, not retrying", "error", err)
			return err
		}

		logger.Error("recovery: start failed", "error", err)

		state.CurrentRetries++
		state.Restarts.Add(1)

		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("%w (%d attempts): %w", ErrMaxRestarts, cfg.MaxRetries, err)
		}

		delay := Backoff(state.CurrentRetries, cfg)
		logger.Warn("recovery: retrying",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("recovery: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// Backoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Past 2^30 the cap always applies; stop shifting before overflow.
	if attempt > 31 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
