package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures the circuit breaker around a remote embedding backend.
type BreakerConfig struct {
	MaxRequests uint32        // probes allowed while half-open
	Interval    time.Duration // closed-state counter reset period
	Timeout     time.Duration // open-state duration before probing
	MinRequests uint32
	FailureRate float64
}

type breakerEmbeddingService struct {
	next EmbeddingService
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerEmbeddingService wraps next in a circuit breaker named name.
// Caller mistakes such as empty text do not count as failures.
func NewBreakerEmbeddingService(name string, next EmbeddingService, cfg BreakerConfig) EmbeddingService {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("embedding circuit breaker changed state",
				slog.String("backend", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEmptyText) || errors.Is(err, context.Canceled)
		},
	}
	return &breakerEmbeddingService{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (s *breakerEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (s *breakerEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.EmbedQuery(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (s *breakerEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float32), nil
}

func (s *breakerEmbeddingService) Dimensions() int {
	return s.next.Dimensions()
}

func (s *breakerEmbeddingService) Model() string {
	return s.next.Model()
}
