// Package openai provides a completion service backed by the OpenAI
// chat-completions API.
//
// With WithBaseURL this also covers every OpenAI-compatible local server
// (llama.cpp in server mode, vLLM, LM Studio), which is the common way to run
// correction models on developer machines.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/tacetio/tacet/pkg/completion"
)

// Service implements completion.Service using the OpenAI API.
type Service struct {
	client oai.Client
	model  string
	local  bool
}

// config holds optional configuration for the service.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Service.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Pointing it at a
// loopback address marks the service as local.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI completion Service. apiKey may be empty when a
// base URL points at a local server that does not check credentials.
func New(apiKey, model string, opts ...Option) (*Service, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Service{
		client: client,
		model:  model,
		local:  isLoopback(cfg.baseURL),
	}, nil
}

// Complete implements completion.Service.
func (s *Service) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, oai.UserMessage(req.UserPrompt))

	params := oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(s.model),
		Messages:    messages,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &completion.GenerationError{Reason: "chat completion failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &completion.GenerationError{Reason: "empty choices in response"}
	}

	return &completion.Response{
		Text: resp.Choices[0].Message.Content,
		Usage: completion.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// CountTokens implements completion.Service.
// TODO: replace with tiktoken-go for accurate per-model token counting.
func (s *Service) CountTokens(text string) (int, error) {
	// ~4 chars per token is a rough GPT-series approximation.
	return (len(text) + 3) / 4, nil
}

// Capabilities implements completion.Service.
func (s *Service) Capabilities() completion.Capabilities {
	caps := completion.Capabilities{
		Model:           s.model,
		ContextWindow:   128_000,
		MaxOutputTokens: 4_096,
		Local:           s.local,
	}

	lower := strings.ToLower(s.model)
	switch {
	case strings.HasPrefix(lower, "gpt-4o-mini"), strings.HasPrefix(lower, "gpt-4o"):
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(lower, "gpt-4.1"):
		caps.ContextWindow = 1_047_576
		caps.MaxOutputTokens = 32_768
	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	}
	return caps
}

// isLoopback reports whether the base URL targets an inference server on this
// machine.
func isLoopback(baseURL string) bool {
	return strings.Contains(baseURL, "localhost") ||
		strings.Contains(baseURL, "127.0.0.1") ||
		strings.Contains(baseURL, "[::1]")
}

// Ensure Service implements completion.Service at compile time.
var _ completion.Service = (*Service)(nil)
