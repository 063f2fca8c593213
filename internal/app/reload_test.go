package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/tacetio/tacet/internal/config"
	"github.com/tacetio/tacet/pkg/completion"
	"github.com/tacetio/tacet/pkg/completion/mock"
)

func reloadConfig(tone string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Pipeline: config.PipelineConfig{
			Preset:     "balanced",
			ToneTarget: tone,
		},
	}
}

func TestOnConfigChange_RebuildsPipeline(t *testing.T) {
	t.Parallel()

	old := reloadConfig("")
	a, err := New(context.Background(), old, WithCompletionService(&mock.Service{
		Response: &completion.Response{Text: `{"replacement": "unused"}`},
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	before := a.pipeline

	a.onConfigChange(old, reloadConfig("professional"))

	a.mu.RLock()
	after := a.pipeline
	a.mu.RUnlock()
	if before == after {
		t.Error("pipeline not rebuilt after tone target change")
	}
}

func TestOnConfigChange_NoChangeKeepsPipeline(t *testing.T) {
	t.Parallel()

	cfg := reloadConfig("casual")
	a, err := New(context.Background(), cfg, WithCompletionService(&mock.Service{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	before := a.pipeline
	a.onConfigChange(cfg, reloadConfig("casual"))
	if a.pipeline != before {
		t.Error("pipeline rebuilt without a pipeline change")
	}
}

func TestOnConfigChange_AppliesLogLevel(t *testing.T) {
	t.Parallel()

	old := reloadConfig("")
	next := reloadConfig("")
	next.Server.LogLevel = config.LogDebug

	var level slog.LevelVar
	level.Set(slog.LevelInfo)
	a, err := New(context.Background(), old,
		WithCompletionService(&mock.Service{}),
		WithLevelVar(&level),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	a.onConfigChange(old, next)
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{config.LogLevel("bogus"), slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
