package llm

import (
	"context"
	"errors"
	"iter"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerProvider is a decorator that stops calling a failing provider for
// a while. Generate and Stream share one breaker.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.TwoStepCircuitBreaker
	name  string
}

// WithCircuitBreaker wraps a Provider with a circuit breaker. onState, when
// non-nil, is called on every state transition.
func WithCircuitBreaker(p Provider, name string, cfg BreakerConfig, logger *zap.Logger, onState func(to string)) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip once there are enough requests to judge.
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if onState != nil {
				onState(to.String())
			}
		},
	})
	return &BreakerProvider{inner: p, cb: cb, name: name}
}

func (b *BreakerProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, &ErrCircuitOpen{Name: b.name, Err: err}
	}
	resp, err := b.inner.Generate(ctx, req)
	done(!countsAsFailure(err))
	return resp, err
}

func (b *BreakerProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		done, err := b.cb.Allow()
		if err != nil {
			yield("", &ErrCircuitOpen{Name: b.name, Err: err})
			return
		}

		var failed error
		defer func() { done(!countsAsFailure(failed)) }()

		for chunk, err := range b.inner.Stream(ctx, req) {
			if err != nil {
				failed = err
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (b *BreakerProvider) ModelID() string {
	return b.inner.ModelID()
}

// State reports the breaker state ("closed", "half-open", "open").
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

// countsAsFailure reports whether err says the provider itself is unhealthy.
// Caller cancellations and malformed replies leave the breaker alone.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var inv *ErrInvalidResponse
	if errors.As(err, &inv) {
		return false
	}
	var maxTok *ErrMaxTokensExceeded
	return !errors.As(err, &maxTok)
}
