package app

import (
	"log/slog"

	"github.com/tacetio/tacet/internal/config"
)

// onConfigChange applies hot-reloadable changes when the config watcher
// detects a new valid file. Log-level changes apply instantly; pipeline
// tuning changes rebuild the pipeline behind the wave runner; monitor
// changes reach new sessions only.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.HasChanges() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}

	a.mu.Lock()
	a.cfg = new
	if d.PipelineChanged {
		a.pipeline = buildPipeline(new, a.service, a.metrics, a.log)
	}
	a.mu.Unlock()

	if d.PipelineChanged {
		a.log.Info("pipeline rebuilt from config change",
			"preset", new.Pipeline.Preset,
			"tone_target", new.Pipeline.ToneTarget,
		)
	}
	if d.PauseThresholdChanged {
		a.log.Info("pause threshold changed; applies to new sessions",
			"pause_threshold", new.Monitor.PauseThreshold.Std(),
		)
	}
}

// SlogLevel maps a config log level onto its slog value.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
