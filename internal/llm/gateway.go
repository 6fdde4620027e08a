// ABOUTME: Gateway wraps a Provider with per-attempt timeouts and retry.
// ABOUTME: Enforces the single-generation rule: one request in flight, ever.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// Gateway is the sole path to the language model backend. Transient failures
// are retried with exponential backoff and jitter; permanent failures return
// immediately. A second Generate while one is running returns ErrGenerateBusy.
type Gateway struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger

	busy atomic.Bool

	// Overridable in tests to keep retries instant and deterministic.
	jitter Jitter
	sleep  func(context.Context, time.Duration) error
}

// NewGateway wraps provider. timeout bounds each individual attempt and
// maxRetries counts attempts beyond the first.
func NewGateway(provider Provider, timeout time.Duration, maxRetries int, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return &Gateway{
		provider:   provider,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger.With("component", "llm"),
		jitter:     defaultJitter,
		sleep:      sleepCtx,
	}
}

// Generate produces a completion for the conversation, retrying transient
// backend failures up to maxRetries times. After the final attempt fails it
// returns an error wrapping ErrBackendUnavailable and the last cause.
func (g *Gateway) Generate(ctx context.Context, messages []Message) (string, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return "", ErrGenerateBusy
	}
	defer g.busy.Store(false)

	attempts := g.maxRetries + 1
	state := NewRetryState()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		reply, err := g.provider.Generate(attemptCtx, messages)
		cancel()
		if err == nil {
			if attempt > 1 {
				g.logger.Info("backend recovered", "provider", g.provider.Name(), "attempt", attempt)
			}
			return reply, nil
		}
		lastErr = err

		if !Transient(err) {
			g.logger.Error("backend request failed",
				"provider", g.provider.Name(), "attempt", attempt, "error", err)
			return "", fmt.Errorf("generate: %w", err)
		}
		if attempt == attempts {
			break
		}

		wait := g.jitter(state.Delay)
		g.logger.Warn("backend attempt failed, retrying",
			"provider", g.provider.Name(), "attempt", attempt, "wait", wait, "error", err)
		if serr := g.sleep(ctx, wait); serr != nil {
			return "", fmt.Errorf("generate canceled during backoff: %w", serr)
		}
		state = state.Advance()
	}

	g.logger.Error("backend unavailable",
		"provider", g.provider.Name(), "attempts", attempts, "error", lastErr)
	return "", fmt.Errorf("%w after %d attempts: %w", ErrBackendUnavailable, attempts, lastErr)
}
