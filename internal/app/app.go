// Package app wires the tacet subsystems into a running daemon.
//
// The App owns the full lifecycle: New builds the completion backend
// from the provider registry, wraps it in failover and circuit breaking,
// constructs the correction pipeline, opens the journal, and assembles
// the host bridge. Run serves the bridge and watches the config file for
// hot-reloadable changes; Shutdown unwinds everything in reverse order.
//
// For testing, inject doubles via functional options
// (WithCompletionService, WithRegistry). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tacetio/tacet/internal/bridge"
	"github.com/tacetio/tacet/internal/config"
	"github.com/tacetio/tacet/internal/correct"
	"github.com/tacetio/tacet/internal/health"
	"github.com/tacetio/tacet/internal/journal"
	"github.com/tacetio/tacet/internal/monitor"
	"github.com/tacetio/tacet/internal/observe"
	"github.com/tacetio/tacet/internal/region"
	"github.com/tacetio/tacet/internal/resilience"
	"github.com/tacetio/tacet/pkg/completion"
	"github.com/tacetio/tacet/pkg/completion/anyllm"
	"github.com/tacetio/tacet/pkg/completion/openai"
	"github.com/tacetio/tacet/pkg/text"
)

// App owns all subsystem lifetimes for the tacet daemon.
type App struct {
	log      *slog.Logger
	level    *slog.LevelVar
	registry *config.Registry
	metrics  *observe.Metrics

	service  completion.Service
	fallback *resilience.CompletionFallback
	jnl      *journal.Journal
	bridge   *bridge.Server

	watchPath string
	watcher   *config.Watcher

	// mu guards cfg and pipeline, which hot reload swaps at runtime.
	mu       sync.RWMutex
	cfg      *config.Config
	pipeline *correct.Pipeline

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCompletionService injects a completion service instead of building
// one from the config's provider entries.
func WithCompletionService(svc completion.Service) Option {
	return func(a *App) { a.service = svc }
}

// WithRegistry injects a provider registry instead of the built-in one.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics attaches a metrics instance to the pipeline, monitors and
// bridge.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the application logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithLevelVar hands the App the logger's level so hot reload can apply
// log-level changes live.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithConfigWatch enables hot reload by polling the config file at path.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// New creates an App by wiring all subsystems together. Initialisation
// is synchronous: backend construction, journal open, bridge assembly.
// Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = builtinRegistry()
	}

	if err := a.initService(); err != nil {
		return nil, fmt.Errorf("app: init completion: %w", err)
	}
	a.pipeline = buildPipeline(cfg, a.service, a.metrics, a.log)
	if err := a.initJournal(); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}
	a.initBridge()

	return a, nil
}

// initService builds the completion backend chain: primary provider,
// optional fallback, each behind its own circuit breaker. With no
// provider configured the service stays nil and every wave completes
// empty.
func (a *App) initService() error {
	if a.service != nil {
		return nil
	}
	primary := a.cfg.Completion.Provider
	if primary.Name == "" {
		a.log.Warn("no completion provider configured; corrections disabled until one is set")
		return nil
	}

	svc, err := a.registry.CreateCompletion(primary)
	if err != nil {
		return fmt.Errorf("create provider %q: %w", primary.Name, err)
	}
	a.log.Info("completion provider created", "name", primary.Name, "model", primary.Model)

	fb := resilience.NewCompletionFallback(svc, primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  a.cfg.Completion.Breaker.MaxFailures,
			ResetTimeout: a.cfg.Completion.Breaker.ResetTimeout.Std(),
			HalfOpenMax:  a.cfg.Completion.Breaker.HalfOpenMax,
		},
	})
	if entry := a.cfg.Completion.Fallback; entry != nil && entry.Name != "" {
		fsvc, err := a.registry.CreateCompletion(*entry)
		if err != nil {
			return fmt.Errorf("create fallback provider %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, fsvc)
		a.log.Info("fallback provider created", "name", entry.Name, "model", entry.Model)
	}

	a.fallback = fb
	a.service = fb
	return nil
}

// initJournal opens the correction journal when enabled.
func (a *App) initJournal() error {
	if !a.cfg.Journal.Enabled {
		return nil
	}
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		return err
	}
	a.jnl = j
	a.closers = append(a.closers, j.Close)
	a.log.Info("journal opened", "path", a.cfg.Journal.Path)
	return nil
}

// initBridge assembles the host bridge around the app's wave runner and
// monitor factory.
func (a *App) initBridge() {
	opts := []bridge.Option{
		bridge.WithHealth(health.New(a.healthCheckers()...)),
		bridge.WithLogger(a.log),
	}
	if a.jnl != nil {
		opts = append(opts, bridge.WithRecorder(a.jnl))
	}
	if a.metrics != nil {
		opts = append(opts, bridge.WithMetrics(a.metrics))
	}
	if a.cfg.Server.MetricsEnabled {
		opts = append(opts, bridge.WithMetricsHandler(promhttp.Handler()))
	}
	a.bridge = bridge.New(a.cfg.Server.ListenAddr, a, a.newMonitor, opts...)
}

// healthCheckers builds the readiness checks the bridge exposes.
func (a *App) healthCheckers() []health.Checker {
	checkers := []health.Checker{{
		Name:  "completion",
		Check: a.checkCompletion,
	}}
	if a.jnl != nil {
		checkers = append(checkers, health.Checker{Name: "journal", Check: a.jnl.Ping})
	}
	return checkers
}

// checkCompletion reports the completion backend's availability: not
// configured, or every circuit open, means not ready.
func (a *App) checkCompletion(_ context.Context) error {
	if a.service == nil {
		return errors.New("no completion backend configured")
	}
	if a.fallback == nil {
		return nil
	}
	for _, cb := range a.fallback.Breakers() {
		if cb.State() != resilience.StateOpen {
			return nil
		}
	}
	return errors.New("all completion circuits open")
}

// RunWave implements [bridge.Corrector] and [monitor.Corrector] against
// the current pipeline, so monitors built before a hot reload still run
// waves through the rebuilt pipeline.
func (a *App) RunWave(ctx context.Context, doc string, caret int, opts ...correct.WaveOption) (*correct.WaveResult, error) {
	a.mu.RLock()
	p := a.pipeline
	a.mu.RUnlock()
	return p.RunWave(ctx, doc, caret, opts...)
}

// newMonitor builds one monitor per bridge stream session from the
// current config.
func (a *App) newMonitor() *monitor.Monitor {
	a.mu.RLock()
	mc := a.cfg.Monitor
	a.mu.RUnlock()

	opts := []monitor.Option{monitor.WithLogger(a.log)}
	if d := mc.PauseThreshold.Std(); d > 0 {
		opts = append(opts, monitor.WithPauseThreshold(d))
	}
	if d := mc.SettleDelay.Std(); d > 0 {
		opts = append(opts, monitor.WithSettleDelay(d))
	}
	if mc.MinChars > 0 || mc.MinWords > 0 {
		opts = append(opts, monitor.WithMinContent(mc.MinChars, mc.MinWords))
	}
	if d := mc.WaveTimeout.Std(); d > 0 {
		opts = append(opts, monitor.WithWaveTimeout(d))
	}
	if t, ok := monitor.ParseDeviceTier(mc.DeviceTier); ok {
		opts = append(opts, monitor.WithDeviceTier(t))
	}
	if d := mc.SweepDuration.Std(); d > 0 {
		opts = append(opts, monitor.WithSweepDuration(d))
	}
	if d := mc.CompleteHold.Std(); d > 0 {
		opts = append(opts, monitor.WithCompleteHold(d))
	}
	if mc.EventBuffer > 0 {
		opts = append(opts, monitor.WithEventBuffer(mc.EventBuffer))
	}
	if a.metrics != nil {
		opts = append(opts, monitor.WithMetrics(a.metrics))
	}
	return monitor.New(a, opts...)
}

// Handler exposes the bridge handler, mainly for tests that serve the
// app from an httptest server.
func (a *App) Handler() http.Handler { return a.bridge.Handler() }

// Run serves the bridge and, when configured, the config watcher. It
// blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.onConfigChange)
		if err != nil {
			a.log.Warn("config watcher disabled", "path", a.watchPath, "error", err)
		} else {
			a.watcher = w
			defer w.Stop()
			a.log.Info("config watcher started", "path", a.watchPath)
		}
	}
	return a.bridge.Run(ctx)
}

// Shutdown tears down all subsystems in reverse-init order. It respects
// the context deadline: if ctx expires before all closers finish, the
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		a.log.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// ── Construction helpers ──

// builtinRegistry wires the completion backends that ship with tacet.
// The local runtimes and anthropic go through any-llm-go; openai uses
// the direct client so base_url can target any OpenAI-compatible local
// server (llama.cpp, LM Studio, vLLM).
func builtinRegistry() *config.Registry {
	reg := config.NewRegistry()

	for _, name := range []string{"ollama", "llamacpp", "llamafile", "anthropic"} {
		reg.RegisterCompletion(name, func(entry config.ProviderEntry) (completion.Service, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	reg.RegisterCompletion("openai", func(entry config.ProviderEntry) (completion.Service, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	return reg
}

// buildPipeline constructs a correction pipeline from the config. Preset
// fields apply first; explicit tuning fields override them.
func buildPipeline(cfg *config.Config, svc completion.Service, metrics *observe.Metrics, log *slog.Logger) *correct.Pipeline {
	pc := cfg.Pipeline

	preset, ok := correct.PresetByName(pc.Preset)
	if !ok {
		preset = correct.DefaultPreset()
	}
	gates := preset.Gates
	if pc.MinLengthRatio > 0 {
		gates.MinLengthRatio = pc.MinLengthRatio
	}
	if pc.MaxLengthRatio > 0 {
		gates.MaxLengthRatio = pc.MaxLengthRatio
	}
	if pc.MinSimilarity > 0 {
		gates.MinSimilarity = pc.MinSimilarity
	}

	var ropts []region.Option
	if pc.ActiveRegionWords > 0 {
		ropts = append(ropts, region.WithTargetWords(pc.ActiveRegionWords))
	}
	if pc.MaxRegionBytes > 0 {
		ropts = append(ropts, region.WithMaxBytes(pc.MaxRegionBytes))
	}

	opts := []correct.Option{
		correct.WithPreset(preset),
		correct.WithGates(gates),
		correct.WithPolicy(region.New(ropts...)),
		correct.WithLogger(log),
	}
	if pc.ConfidenceThreshold > 0 {
		opts = append(opts, correct.WithThreshold(pc.ConfidenceThreshold))
	}
	if pc.ToneTarget != "" {
		if t, err := text.ParseTone(pc.ToneTarget); err == nil {
			opts = append(opts, correct.WithTone(t))
		}
	}
	if pc.Temperature != nil {
		opts = append(opts, correct.WithTemperature(*pc.Temperature))
	}
	if pc.MaxTokens > 0 {
		opts = append(opts, correct.WithMaxTokens(pc.MaxTokens))
	}
	if metrics != nil {
		opts = append(opts, correct.WithMetrics(metrics))
	}
	return correct.New(svc, opts...)
}
