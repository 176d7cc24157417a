package executor

import (
	"context"
	"time"
)

// HealthcheckConfig configures how often and how patiently a worker is polled until it is ready.
type HealthcheckConfig struct {
	Retries int // How many times the healthcheck is tried until the worker is considered unreachable

	Backoff          time.Duration // How long to wait between two tries
	BackoffIncrement time.Duration // By how much the backoff grows on each failed try
	MaxBackoff       time.Duration // The maximum the backoff may reach
}

// DefaultHealthcheckConfig returns the config used by NewRemote.
func DefaultHealthcheckConfig() HealthcheckConfig {
	return HealthcheckConfig{
		Retries:          10,
		Backoff:          200 * time.Millisecond,
		BackoffIncrement: 100 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
	}
}

// WaitReady polls the status of the worker until it answers, backing off between tries.
// It returns the last error if the worker never answered.
func (r *Remote) WaitReady(ctx context.Context) (Status, error) {
	var status Status
	var lastErr error

	backoff := r.Healthcheck.Backoff
	for i := 0; i < max(r.Healthcheck.Retries, 1); i++ {
		status, lastErr = r.Status(ctx)
		if lastErr == nil {
			return status, nil
		}

		if i == r.Healthcheck.Retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(backoff):
		}
		backoff += r.Healthcheck.BackoffIncrement
		if backoff > r.Healthcheck.MaxBackoff {
			backoff = r.Healthcheck.MaxBackoff
		}
	}
	return status, lastErr
}
