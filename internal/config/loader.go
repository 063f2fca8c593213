package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tacetio/tacet/internal/correct"
	"github.com/tacetio/tacet/internal/monitor"
	"github.com/tacetio/tacet/pkg/text"
)

// ValidProviderNames lists known completion provider names. Used by
// [Validate] to warn about unrecognised ones.
var ValidProviderNames = []string{"ollama", "llamacpp", "llamafile", "openai", "anthropic"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Completion providers. Unknown names only warn so third-party
	// backends stay usable.
	validateProviderName("completion.provider", cfg.Completion.Provider.Name)
	if cfg.Completion.Fallback != nil {
		validateProviderName("completion.fallback", cfg.Completion.Fallback.Name)
		if cfg.Completion.Fallback.Name == "" {
			errs = append(errs, errors.New("completion.fallback.name is required when a fallback block is present"))
		}
	}
	if cfg.Completion.Provider.Name == "" {
		slog.Warn("no completion provider configured; corrections will be disabled until one is set")
	}
	if cfg.Completion.Timeout < 0 {
		errs = append(errs, fmt.Errorf("completion.timeout %s must not be negative", cfg.Completion.Timeout.Std()))
	}
	if cfg.Completion.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("completion.breaker.max_failures %d must not be negative", cfg.Completion.Breaker.MaxFailures))
	}
	if cfg.Completion.Breaker.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("completion.breaker.half_open_max %d must not be negative", cfg.Completion.Breaker.HalfOpenMax))
	}
	if cfg.Completion.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("completion.breaker.reset_timeout %s must not be negative", cfg.Completion.Breaker.ResetTimeout.Std()))
	}

	// Pipeline
	p := &cfg.Pipeline
	if p.Preset != "" {
		if _, ok := correct.PresetByName(p.Preset); !ok {
			errs = append(errs, fmt.Errorf("pipeline.preset %q is invalid; valid values: %s", p.Preset, strings.Join(correct.ValidPresetNames, ", ")))
		}
	}
	if p.ActiveRegionWords != 0 {
		if p.ActiveRegionWords < 5 || p.ActiveRegionWords > 50 {
			errs = append(errs, fmt.Errorf("pipeline.active_region_words %d is out of range [5, 50]", p.ActiveRegionWords))
		}
	}
	if p.MaxRegionBytes < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_region_bytes %d must not be negative", p.MaxRegionBytes))
	}
	if p.ConfidenceThreshold != 0 {
		if p.ConfidenceThreshold < 0.5 || p.ConfidenceThreshold > 1.0 {
			errs = append(errs, fmt.Errorf("pipeline.confidence_threshold %.2f is out of range [0.5, 1.0]", p.ConfidenceThreshold))
		}
	}
	if _, err := text.ParseTone(p.ToneTarget); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.tone_target %q is invalid; valid values: none, casual, professional", p.ToneTarget))
	}
	if p.Temperature != nil {
		if *p.Temperature < 0 || *p.Temperature > 1 {
			errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 1]", *p.Temperature))
		}
	}
	if p.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_tokens %d must not be negative", p.MaxTokens))
	}
	if p.MinLengthRatio < 0 || p.MaxLengthRatio < 0 {
		errs = append(errs, errors.New("pipeline length ratios must not be negative"))
	}
	if p.MinLengthRatio != 0 && p.MaxLengthRatio != 0 && p.MinLengthRatio >= p.MaxLengthRatio {
		errs = append(errs, fmt.Errorf("pipeline.min_length_ratio %.2f must be below max_length_ratio %.2f", p.MinLengthRatio, p.MaxLengthRatio))
	}
	if p.MinSimilarity < 0 || p.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("pipeline.min_similarity %.2f is out of range [0, 1]", p.MinSimilarity))
	}

	// Monitor
	m := &cfg.Monitor
	if _, ok := monitor.ParseDeviceTier(m.DeviceTier); !ok {
		errs = append(errs, fmt.Errorf("monitor.device_tier %q is invalid; valid values: low, mid, high", m.DeviceTier))
	}
	for _, f := range []struct {
		name string
		val  Duration
	}{
		{"monitor.pause_threshold", m.PauseThreshold},
		{"monitor.settle_delay", m.SettleDelay},
		{"monitor.wave_timeout", m.WaveTimeout},
		{"monitor.sweep_duration", m.SweepDuration},
		{"monitor.complete_hold", m.CompleteHold},
	} {
		if f.val < 0 {
			errs = append(errs, fmt.Errorf("%s %s must not be negative", f.name, f.val.Std()))
		}
	}
	if m.MinChars < 0 || m.MinWords < 0 {
		errs = append(errs, errors.New("monitor.min_chars and monitor.min_words must not be negative"))
	}
	if m.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("monitor.event_buffer %d must not be negative", m.EventBuffer))
	}
	if m.PauseThreshold != 0 && m.PauseThreshold.Std() < 100*time.Millisecond {
		slog.Warn("monitor.pause_threshold is very low; corrections may fire mid-word",
			"pause_threshold", m.PauseThreshold.Std(),
		)
	}

	// Journal
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path is required when journal.enabled is true"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found
// in [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party backend",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
