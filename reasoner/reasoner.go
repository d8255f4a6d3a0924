// Package reasoner adapts LLM providers to the bounded reasoning service
// the workflow depends on. The Adapter wraps a Provider with a per-call
// timeout and at most one retry for transient failures; malformed output
// is never retried here, that is the caller's contract to enforce.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/logging"
)

// Sentinel errors for failure classification. Callers match with errors.Is.
var (
	// ErrTimeout means the provider did not answer within the adapter's
	// budget.
	ErrTimeout = errors.New("reasoner: timed out")
	// ErrService means the provider failed after retries were exhausted.
	ErrService = errors.New("reasoner: service unavailable")
)

// Provider is one concrete LLM backend.
type Provider interface {
	// Complete performs a single completion. The adapter handles timeouts
	// and retries; providers just translate the request.
	Complete(ctx context.Context, req core.ReasonRequest) (string, error)
	// Info returns a short provider/model identifier for logging.
	Info() string
}

// Options configures an Adapter.
type Options struct {
	// Timeout bounds each provider call (including the retry's call).
	Timeout time.Duration
	// MaxRetries is how many additional attempts follow a transient
	// failure. The total attempt count is MaxRetries+1.
	MaxRetries int
	// Logger receives per-call diagnostics.
	Logger core.Logger
}

// Adapter implements core.Reasoner on top of a Provider.
type Adapter struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	logger     core.Logger
}

// New wraps a provider with bounded, retrying invocation.
func New(provider Provider, optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Timeout:    15 * time.Second,
		MaxRetries: 1,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{
		provider:   provider,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}
}

// Invoke implements core.Reasoner. Transient failures (timeouts, provider
// errors) get at most maxRetries additional attempts; a canceled parent
// context stops immediately.
func (a *Adapter) Invoke(ctx context.Context, req core.ReasonRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %s", ErrService, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		start := time.Now()
		out, err := a.provider.Complete(callCtx, req)
		cancel()
		a.logCall(attempt, time.Since(start), err)

		if err == nil {
			return out, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = fmt.Errorf("%w after %s", ErrTimeout, a.timeout)
		} else {
			lastErr = fmt.Errorf("%w: %s", ErrService, err)
		}

		// Parent cancellation is not transient.
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (a *Adapter) logCall(attempt int, dur time.Duration, err error) {
	if a.logger == nil {
		return
	}
	if fl, ok := a.logger.(*logging.FlowLogger); ok {
		fl.LogReasonerCall(a.provider.Info(), dur, err == nil, err)
		return
	}
	if err != nil {
		a.logger.Warn("reasoner call failed",
			"provider", a.provider.Info(), "attempt", attempt, "error", err)
		return
	}
	a.logger.Debug("reasoner call succeeded",
		"provider", a.provider.Info(), "attempt", attempt, "duration", dur)
}
