// Package completion defines the Service interface for text-generation
// backends.
//
// A completion service wraps a local or remote language model (an Ollama or
// llama.cpp instance on the device, or a hosted API as fallback) and exposes
// the narrow surface the correction pipeline needs: one prompt in, one short
// reply out. Streaming, tool calling and conversation state are deliberately
// absent; correction waves are single-shot and latency-bound.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation promptly, since a stale wave is cancelled the moment newer
// keystrokes supersede it.
package completion

import "context"

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same
// textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the system and user
	// prompts.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the reply.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// Request carries one correction prompt. A zero-value request is invalid;
// UserPrompt must be non-empty.
type Request struct {
	// SystemPrompt is the stage instruction injected before the user prompt.
	// Implementations that lack a dedicated system role prepend it as a
	// system-role message.
	SystemPrompt string

	// UserPrompt is the span to correct together with its surrounding
	// context, already formatted by the pipeline.
	UserPrompt string

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// Temperature controls output randomness in [0.0, 1.0]. Correction wants
	// values near zero.
	Temperature float64
}

// Response is the backend's reply to a single [Request].
type Response struct {
	// Text is the raw model output. The pipeline parses and validates it;
	// services return it verbatim.
	Text string

	// Usage contains token accounting for this request, when the backend
	// reports it.
	Usage Usage
}

// Capabilities describes static properties of the model behind a service.
// The result is assumed constant for the lifetime of the Service.
type Capabilities struct {
	// Model is the backend's model identifier.
	Model string

	// ContextWindow is the total token budget shared by prompt and reply.
	ContextWindow int

	// MaxOutputTokens is the largest reply the model can produce.
	MaxOutputTokens int

	// Local reports whether inference runs on this device. Local backends
	// get tighter latency expectations and no network failure handling.
	Local bool
}

// Service is the abstraction over any completion backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must return promptly once ctx is cancelled.
type Service interface {
	// Complete sends req to the model and waits for the full reply. It
	// returns an error when the request fails, the backend is unavailable,
	// or ctx is cancelled first.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CountTokens estimates how many tokens s would consume in the model's
	// context window. The pipeline uses it to budget replies; the estimate
	// need not be exact but should not undercount.
	CountTokens(s string) (int, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() Capabilities
}
