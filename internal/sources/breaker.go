package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/metrics"
	"github.com/desertthunder/dird/internal/models"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker of remote sources.
type BreakerSettings struct {
	// MinRequests is the number of calls in a window before the failure ratio is considered.
	MinRequests uint32
	// FailureRatio opens the circuit once reached.
	FailureRatio float64
	// Interval resets the counts while closed.
	Interval time.Duration
	// OpenTimeout is how long the circuit stays open before letting a trial request through.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings opens after 60% failures over at least 5 calls and retries after 30s.
var DefaultBreakerSettings = BreakerSettings{
	MinRequests:  5,
	FailureRatio: 0.6,
	Interval:     time.Minute,
	OpenTimeout:  30 * time.Second,
}

// breakerSource guards a remote source with a circuit breaker. While the circuit is open, calls
// fail immediately instead of waiting for the per-source timeout.
type breakerSource struct {
	Source
	cb *gobreaker.CircuitBreaker[any]
}

func withBreaker(src Source, backend string, settings BreakerSettings, m *metrics.Metrics, logger *log.Logger) Source {
	name := src.Name()
	if m != nil {
		m.BreakerState.WithLabelValues(name).Set(0)
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		// A caller giving up is not a failure of the source.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "source", name, "backend", backend,
				"from", stateToString(from), "to", stateToString(to))
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
				m.BreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
			}
		},
	})

	return &breakerSource{Source: src, cb: cb}
}

func (b *breakerSource) Search(ctx context.Context, term string, args Args) ([]models.Contact, error) {
	return execute(b.cb, func() ([]models.Contact, error) {
		return b.Source.Search(ctx, term, args)
	})
}

func (b *breakerSource) FirstMatch(ctx context.Context, term string, args Args) (*models.Contact, error) {
	return execute(b.cb, func() (*models.Contact, error) {
		return b.Source.FirstMatch(ctx, term, args)
	})
}

func (b *breakerSource) List(ctx context.Context, ids []string, args Args) ([]models.Contact, error) {
	return execute(b.cb, func() ([]models.Contact, error) {
		return b.Source.List(ctx, ids, args)
	})
}

// execute runs fn through cb and casts the result back to its type.
func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// IsRejected reports whether err comes from an open or saturated circuit breaker.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
