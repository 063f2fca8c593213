// Package mock provides a test double for the completion.Service interface.
//
// Use Service in unit tests to verify the prompts the pipeline builds and to
// feed controlled replies without a live model. All fields are safe to set
// before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	svc := &mock.Service{
//	    Response: &completion.Response{Text: `{"replacement": "the cat"}`},
//	}
//	resp, err := svc.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/tacetio/tacet/pkg/completion"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the Request passed to Complete.
	Req completion.Request
}

// Service is a mock implementation of completion.Service.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject failures.
type Service struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CompleteFunc, when set, handles every Complete call. It takes
	// precedence over Response and Err, which lets a single mock answer
	// differently per stage of a wave.
	CompleteFunc func(ctx context.Context, req completion.Request) (*completion.Response, error)

	// Response is returned by Complete when CompleteFunc is nil. May be nil
	// (returns nil, nil).
	Response *completion.Response

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// TokenCount is returned by CountTokens when TokensPerChar is zero.
	TokenCount int

	// TokensPerChar, when positive, makes CountTokens return
	// len(text)/TokensPerChar so budget math can be exercised.
	TokensPerChar int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// Caps is returned by Capabilities.
	Caps completion.Capabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call, then delegates to CompleteFunc or returns
// Response, Err.
func (s *Service) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	s.mu.Lock()
	s.CompleteCalls = append(s.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := s.CompleteFunc
	resp, err := s.Response, s.Err
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// CountTokens returns the configured count or a per-char approximation.
func (s *Service) CountTokens(text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CountTokensErr != nil {
		return 0, s.CountTokensErr
	}
	if s.TokensPerChar > 0 {
		return len(text) / s.TokensPerChar, nil
	}
	return s.TokenCount, nil
}

// Capabilities returns Caps.
func (s *Service) Capabilities() completion.Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Caps
}

// Calls returns a copy of the recorded Complete calls. Thread-safe.
func (s *Service) Calls() []CompleteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CompleteCall, len(s.CompleteCalls))
	copy(out, s.CompleteCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompleteCalls = nil
}

// Ensure Service implements completion.Service at compile time.
var _ completion.Service = (*Service)(nil)
