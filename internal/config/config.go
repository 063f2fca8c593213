// Package config provides the configuration schema, loader, and provider
// registry for the tacet correction daemon.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the tacet daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a time.Duration that decodes from YAML strings such as
// "500ms" or "30s". A unit is always required so config files read
// unambiguously.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for tacet.
type Config struct {
	// Server holds bridge listener settings.
	Server ServerConfig `yaml:"server"`

	// Completion selects the language model backend used for
	// correction waves.
	Completion CompletionConfig `yaml:"completion"`

	// Pipeline tunes the correction pipeline.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Monitor tunes typing rhythm detection and the reveal sweep.
	Monitor MonitorConfig `yaml:"monitor"`

	// Journal configures the on-disk correction history.
	Journal JournalConfig `yaml:"journal"`
}

// ServerConfig holds settings for the HTTP/WebSocket bridge listener.
type ServerConfig struct {
	// ListenAddr is the address the bridge binds, e.g. "127.0.0.1:8748".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsEnabled exposes Prometheus metrics on /metrics when true.
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// ProviderEntry configures one completion backend.
type ProviderEntry struct {
	// Name identifies the provider, e.g. "ollama" or "openai".
	Name string `yaml:"name"`

	// APIKey authenticates against hosted providers. Local runtimes
	// ignore it.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. Required for
	// local runtimes such as llama.cpp.
	BaseURL string `yaml:"base_url"`

	// Model names the model to use, e.g. "qwen2.5:3b".
	Model string `yaml:"model"`

	// Options carries provider-specific settings.
	Options map[string]any `yaml:"options"`
}

// BreakerConfig tunes the circuit breaker guarding a completion
// backend. Zero values fall back to the breaker's own defaults.
type BreakerConfig struct {
	// MaxFailures is how many consecutive failures open the circuit.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout Duration `yaml:"reset_timeout"`

	// HalfOpenMax is how many probe requests may pass while half-open.
	HalfOpenMax int `yaml:"half_open_max"`
}

// CompletionConfig selects the completion backend and its guard rails.
type CompletionConfig struct {
	// Provider is the primary completion backend. Leaving it unset
	// disables corrections until one is configured.
	Provider ProviderEntry `yaml:"provider"`

	// Fallback, when set, serves requests the primary fails.
	Fallback *ProviderEntry `yaml:"fallback"`

	// Timeout bounds a single completion request.
	Timeout Duration `yaml:"timeout"`

	// Breaker tunes the circuit breaker around the primary backend.
	Breaker BreakerConfig `yaml:"breaker"`
}

// PipelineConfig tunes the correction pipeline. Zero values keep the
// preset's defaults.
type PipelineConfig struct {
	// Preset picks a validation preset: "strict", "balanced" or
	// "lenient". Empty means balanced.
	Preset string `yaml:"preset"`

	// ActiveRegionWords is how many trailing words the active region
	// covers. Valid range is 5 to 50.
	ActiveRegionWords int `yaml:"active_region_words"`

	// MaxRegionBytes caps the active region size in bytes.
	MaxRegionBytes int `yaml:"max_region_bytes"`

	// ConfidenceThreshold is the minimum confidence for applying a
	// stage's edit. Valid range is 0.5 to 1.0.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// ToneTarget enables the tone stage: "casual" or "professional".
	// Empty or "none" leaves it off.
	ToneTarget string `yaml:"tone_target"`

	// Temperature is the sampling temperature for completion requests,
	// 0 to 1. Unset keeps the pipeline default.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps generated tokens per stage.
	MaxTokens int `yaml:"max_tokens"`

	// MinLengthRatio and MaxLengthRatio bound how much a correction may
	// shrink or grow the span. Zero keeps the preset's gate.
	MinLengthRatio float64 `yaml:"min_length_ratio"`
	MaxLengthRatio float64 `yaml:"max_length_ratio"`

	// MinSimilarity is the minimum Jaro-Winkler similarity between the
	// span and its correction. Zero keeps the preset's gate.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// MonitorConfig tunes typing rhythm detection and the reveal sweep.
// Zero values keep the monitor's defaults.
type MonitorConfig struct {
	// PauseThreshold is how long input must stay quiet before a
	// correction wave starts.
	PauseThreshold Duration `yaml:"pause_threshold"`

	// SettleDelay separates the pause decision from the model call.
	SettleDelay Duration `yaml:"settle_delay"`

	// MinChars and MinWords gate correction attempts.
	MinChars int `yaml:"min_chars"`
	MinWords int `yaml:"min_words"`

	// WaveTimeout bounds one correction wave end to end.
	WaveTimeout Duration `yaml:"wave_timeout"`

	// DeviceTier scales the sweep animation: "low", "mid" or "high".
	DeviceTier string `yaml:"device_tier"`

	// SweepDuration is the base reveal time before tier scaling.
	SweepDuration Duration `yaml:"sweep_duration"`

	// CompleteHold is how long the complete marker lingers.
	CompleteHold Duration `yaml:"complete_hold"`

	// EventBuffer is the monitor event channel capacity.
	EventBuffer int `yaml:"event_buffer"`
}

// JournalConfig configures the SQLite correction history.
type JournalConfig struct {
	// Enabled turns journaling on.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file. Required when enabled.
	Path string `yaml:"path"`
}
