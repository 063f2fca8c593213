package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true if any pipeline tuning field changed.
	// The app rebuilds the correction pipeline when set.
	PipelineChanged bool

	// PauseThresholdChanged is true if monitor.pause_threshold changed.
	// New monitor sessions pick it up; existing sessions keep theirs.
	PauseThresholdChanged bool
}

// HasChanges reports whether any hot-reloadable field changed.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.PipelineChanged || d.PauseThresholdChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !pipelineEqual(&old.Pipeline, &new.Pipeline) {
		d.PipelineChanged = true
	}

	if old.Monitor.PauseThreshold != new.Monitor.PauseThreshold {
		d.PauseThresholdChanged = true
	}

	return d
}

// pipelineEqual compares pipeline configs by value. Temperature is a
// pointer and needs a deref comparison.
func pipelineEqual(a, b *PipelineConfig) bool {
	if a.Preset != b.Preset ||
		a.ActiveRegionWords != b.ActiveRegionWords ||
		a.MaxRegionBytes != b.MaxRegionBytes ||
		a.ConfidenceThreshold != b.ConfidenceThreshold ||
		a.ToneTarget != b.ToneTarget ||
		a.MaxTokens != b.MaxTokens ||
		a.MinLengthRatio != b.MinLengthRatio ||
		a.MaxLengthRatio != b.MaxLengthRatio ||
		a.MinSimilarity != b.MinSimilarity {
		return false
	}
	if (a.Temperature == nil) != (b.Temperature == nil) {
		return false
	}
	if a.Temperature != nil && *a.Temperature != *b.Temperature {
		return false
	}
	return true
}
