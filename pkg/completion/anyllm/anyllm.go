// Package anyllm provides a completion service backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface.
//
// Tacet runs local-first: "ollama", "llamacpp" and "llamafile" talk to an
// inference server on the device, while "openai" and "anthropic" remain
// available as hosted fallbacks for machines without local models.
//
// Usage:
//
//	svc, err := anyllm.New("ollama", "qwen2.5:1.5b")
//	svc, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/tacetio/tacet/pkg/completion"
)

// localProviders lists the backend names whose inference runs on this device.
var localProviders = map[string]bool{
	"ollama":    true,
	"llamacpp":  true,
	"llamafile": true,
}

// Service implements completion.Service by wrapping any-llm-go.
type Service struct {
	backend anyllmlib.Provider
	model   string
	local   bool
}

// New creates a Service backed by the given provider name.
//
// providerName is one of: "ollama", "llamacpp", "llamafile", "openai",
// "anthropic". model is the specific model to use (e.g. "qwen2.5:1.5b",
// "gpt-4o-mini").
//
// opts are any-llm-go options such as anyllmlib.WithAPIKey and
// anyllmlib.WithBaseURL. Without an API key option the hosted providers fall
// back to their usual environment variables; the local providers connect to
// their default loopback address.
func New(providerName, model string, opts ...anyllmlib.Option) (*Service, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	name := strings.ToLower(providerName)
	backend, err := createBackend(name, opts...)
	if err != nil {
		return nil, &completion.LoadError{Provider: name, Model: model, Err: err}
	}

	return &Service{backend: backend, model: model, local: localProviders[name]}, nil
}

// NewOllama creates a Service talking to a local Ollama instance.
// Without options it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Service, error) {
	return New("ollama", model, opts...)
}

// NewLlamaCpp creates a Service talking to a running llama.cpp server.
// Without options it connects to http://127.0.0.1:8080/v1.
func NewLlamaCpp(model string, opts ...anyllmlib.Option) (*Service, error) {
	return New("llamacpp", model, opts...)
}

func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch name {
	case "ollama":
		return ollama.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: ollama, llamacpp, llamafile, openai, anthropic", name)
	}
}

// Complete implements completion.Service.
func (s *Service) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	params := s.buildParams(req)

	resp, err := s.backend.Completion(ctx, params)
	if err != nil {
		return nil, &completion.GenerationError{Reason: "backend request failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &completion.GenerationError{Reason: "empty choices in response"}
	}

	result := &completion.Response{
		Text: resp.Choices[0].Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = completion.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// CountTokens implements completion.Service.
// TODO: replace with a real tokenizer (e.g. tiktoken-go) for per-model counts.
func (s *Service) CountTokens(text string) (int, error) {
	// ~4 chars per token is a rough approximation for most models.
	return (len(text) + 3) / 4, nil
}

// Capabilities implements completion.Service.
func (s *Service) Capabilities() completion.Capabilities {
	caps := modelCapabilities(s.model)
	caps.Local = s.local
	return caps
}

// buildParams converts a correction Request into anyllm CompletionParams.
func (s *Service) buildParams(req completion.Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.UserPrompt,
	})

	params := anyllmlib.CompletionParams{
		Model:    s.model,
		Messages: messages,
	}

	// Temperature 0 is meaningful for correction (greedy decoding), so it is
	// always sent rather than treated as "unset".
	t := req.Temperature
	params.Temperature = &t

	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

// modelCapabilities returns Capabilities based on known model name prefixes.
// The table is tuned for the small instruct models correction typically runs
// on; unknown models receive conservative defaults.
func modelCapabilities(model string) completion.Capabilities {
	caps := completion.Capabilities{
		Model:           model,
		ContextWindow:   8_192,
		MaxOutputTokens: 1_024,
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "qwen"),
		strings.HasPrefix(lower, "llama3"),
		strings.HasPrefix(lower, "phi"),
		strings.HasPrefix(lower, "gemma"):
		caps.ContextWindow = 32_768
		caps.MaxOutputTokens = 4_096

	case strings.HasPrefix(lower, "mistral"),
		strings.HasPrefix(lower, "ministral"):
		caps.ContextWindow = 32_768
		caps.MaxOutputTokens = 8_192

	case strings.HasPrefix(lower, "gpt-4o-mini"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 16_384

	case strings.HasPrefix(lower, "gpt-4o"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 16_384

	case strings.HasPrefix(lower, "gpt-4.1"):
		caps.ContextWindow = 1_047_576
		caps.MaxOutputTokens = 32_768

	case strings.HasPrefix(lower, "claude"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 8_192
	}

	return caps
}

// Ensure Service implements completion.Service at compile time.
var _ completion.Service = (*Service)(nil)
