package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tacetio/tacet/pkg/completion"
	"github.com/tacetio/tacet/pkg/completion/mock"
)

func TestCompletionFallback_PrimarySuccess(t *testing.T) {
	primary := &mock.Service{
		Response: &completion.Response{Text: "hello from primary"},
	}
	secondary := &mock.Service{
		Response: &completion.Response{Text: "hello from secondary"},
	}

	fb := NewCompletionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), completion.Request{UserPrompt: "teh cat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello from primary" {
		t.Fatalf("text = %q, want 'hello from primary'", resp.Text)
	}
	if len(primary.Calls()) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls()))
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestCompletionFallback_Failover(t *testing.T) {
	primary := &mock.Service{
		Err: errors.New("primary down"),
	}
	secondary := &mock.Service{
		Response: &completion.Response{Text: "hello from secondary"},
	}

	fb := NewCompletionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), completion.Request{UserPrompt: "teh cat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello from secondary" {
		t.Fatalf("text = %q, want 'hello from secondary'", resp.Text)
	}
}

func TestCompletionFallback_AllFail(t *testing.T) {
	primary := &mock.Service{Err: errors.New("primary down")}
	secondary := &mock.Service{Err: errors.New("secondary down")}

	fb := NewCompletionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), completion.Request{UserPrompt: "teh cat"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestCompletionFallback_OpenCircuitsClassedAsNotLoaded(t *testing.T) {
	primary := &mock.Service{Err: errors.New("primary down")}

	fb := NewCompletionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})

	// First call opens the only breaker.
	_, err := fb.Complete(context.Background(), completion.Request{UserPrompt: "teh cat"})
	if errors.Is(err, completion.ErrModelNotLoaded) {
		t.Fatalf("a genuine failure should not be classed as not-loaded: %v", err)
	}

	// Second call is rejected by the open circuit.
	_, err = fb.Complete(context.Background(), completion.Request{UserPrompt: "teh cat"})
	if !errors.Is(err, completion.ErrModelNotLoaded) {
		t.Fatalf("err = %v, want ErrModelNotLoaded class", err)
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, should keep ErrCircuitOpen in the chain", err)
	}
	if calls := primary.Calls(); len(calls) != 1 {
		t.Fatalf("primary called %d times, want 1 (second call rejected)", len(calls))
	}
}

func TestCompletionFallback_CountTokens(t *testing.T) {
	primary := &mock.Service{CountTokensErr: errors.New("count failed")}
	secondary := &mock.Service{TokenCount: 42}

	fb := NewCompletionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	count, err := fb.CountTokens("teh cat sat here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Fatalf("count = %d, want 42", count)
	}
}

func TestCompletionFallback_Capabilities(t *testing.T) {
	primary := &mock.Service{
		Caps: completion.Capabilities{
			Model:         "qwen2.5:3b",
			ContextWindow: 32768,
			Local:         true,
		},
	}

	fb := NewCompletionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	caps := fb.Capabilities()
	if caps.ContextWindow != 32768 {
		t.Fatalf("ContextWindow = %d, want 32768", caps.ContextWindow)
	}
	if !caps.Local {
		t.Fatal("Local should be true")
	}
}

func TestCompletionFallback_Breakers(t *testing.T) {
	primary := &mock.Service{Err: errors.New("down")}

	fb := NewCompletionFallback(primary, "ollama", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fb.AddFallback("openai", &mock.Service{Response: &completion.Response{Text: "ok"}})

	_, _ = fb.Complete(context.Background(), completion.Request{UserPrompt: "x"})

	breakers := fb.Breakers()
	if breakers["ollama"].State() != StateOpen {
		t.Errorf("ollama breaker = %v, want open", breakers["ollama"].State())
	}
	if breakers["openai"].State() != StateClosed {
		t.Errorf("openai breaker = %v, want closed", breakers["openai"].State())
	}
}
