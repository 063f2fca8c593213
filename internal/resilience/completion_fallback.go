package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/tacetio/tacet/pkg/completion"
)

// CompletionFallback implements [completion.Service] with automatic
// failover across completion backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next
// healthy fallback is tried.
//
// When no backend can serve a request because every circuit is open, the
// returned error wraps [completion.ErrModelNotLoaded] so the pipeline
// treats the wave as "backend unavailable" rather than a generation
// fault.
type CompletionFallback struct {
	group *FallbackGroup[completion.Service]
}

// Compile-time interface assertion.
var _ completion.Service = (*CompletionFallback)(nil)

// NewCompletionFallback creates a [CompletionFallback] with primary as
// the preferred backend.
func NewCompletionFallback(primary completion.Service, primaryName string, cfg FallbackConfig) *CompletionFallback {
	return &CompletionFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional completion backend as a fallback.
func (f *CompletionFallback) AddFallback(name string, svc completion.Service) {
	f.group.AddFallback(name, svc)
}

// Breakers exposes the per-backend circuit breakers for health reporting.
func (f *CompletionFallback) Breakers() map[string]*CircuitBreaker {
	return f.group.Breakers()
}

// Complete sends the request to the first healthy backend and returns
// its response. If the primary fails, subsequent fallbacks are tried.
func (f *CompletionFallback) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	resp, err := ExecuteWithResult(f.group, func(s completion.Service) (*completion.Response, error) {
		return s.Complete(ctx, req)
	})
	if err != nil && errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %w", completion.ErrModelNotLoaded, err)
	}
	return resp, err
}

// CountTokens delegates to the first healthy backend's token counter.
func (f *CompletionFallback) CountTokens(s string) (int, error) {
	return ExecuteWithResult(f.group, func(svc completion.Service) (int, error) {
		return svc.CountTokens(s)
	})
}

// Capabilities returns the capabilities of the primary. Capabilities are
// static metadata and do not participate in failover.
func (f *CompletionFallback) Capabilities() completion.Capabilities {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Capabilities()
	}
	return completion.Capabilities{}
}
