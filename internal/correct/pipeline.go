// Package correct implements the staged correction pipeline that turns a
// document snapshot and caret position into at most one cumulative diff.
//
// A wave runs up to three passes over the active region: noise (typos),
// context (grammar) and tone (register, only when a tone target is set).
// Each pass sends the current span to the completion service, parses and
// validates the reply, and applies the surviving correction immediately so
// the next pass sees already-corrected text. Per-stage failures are
// absorbed; a wave returns either a result or the caller's context error,
// never a model error. The staged edits collapse into a single diff
// expressed against the snapshot the wave started from, so a host can apply
// the whole wave atomically.
package correct

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tacetio/tacet/internal/observe"
	"github.com/tacetio/tacet/internal/region"
	"github.com/tacetio/tacet/pkg/completion"
	"github.com/tacetio/tacet/pkg/text"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 256
)

// Wave completion statuses reported to metrics.
const (
	statusCorrected   = "corrected"
	statusNoChange    = "no_change"
	statusEmptyRegion = "empty_region"
	statusNoModel     = "model_not_loaded"
	statusCancelled   = "cancelled"
)

// WaveResult reports the outcome of one correction wave.
type WaveResult struct {
	// Diffs holds at most one cumulative diff, expressed against the
	// document snapshot the wave started from. Empty when nothing survived
	// validation.
	Diffs []text.Diff

	// ActiveRegion is the region the wave operated on, in the same original
	// snapshot coordinates as Diffs.
	ActiveRegion text.Region

	// Duration is the wall time the wave took.
	Duration time.Duration

	// StagesApplied lists the stages whose corrections survived, in run
	// order.
	StagesApplied []text.Stage

	// CorrectedText is the full document after applying Diffs, empty when no
	// correction was made.
	CorrectedText string
}

// Applied reports whether the wave produced a correction.
func (r *WaveResult) Applied() bool { return len(r.Diffs) > 0 }

// Pipeline runs correction waves. It is immutable after construction and
// safe for concurrent use; configuration changes mean building a new
// Pipeline.
type Pipeline struct {
	svc         completion.Service
	policy      *region.Policy
	gates       Gates
	threshold   float64
	tone        text.Tone
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
	log         *slog.Logger
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithPolicy sets the active region policy. Default: region.New().
func WithPolicy(p *region.Policy) Option {
	return func(pl *Pipeline) {
		if p != nil {
			pl.policy = p
		}
	}
}

// WithPreset applies a validation preset's gates and confidence threshold.
func WithPreset(p Preset) Option {
	return func(pl *Pipeline) {
		pl.gates = p.Gates
		pl.threshold = p.Threshold
	}
}

// WithGates overrides the validation gates independently of any preset.
func WithGates(g Gates) Option {
	return func(pl *Pipeline) {
		pl.gates = g
	}
}

// WithThreshold sets the confidence a correction must reach. Values are
// clamped to [0.5, 1.0].
func WithThreshold(v float64) Option {
	return func(pl *Pipeline) {
		pl.threshold = clampf(v, 0.5, 1.0)
	}
}

// WithTone sets the default tone target for waves.
func WithTone(t text.Tone) Option {
	return func(pl *Pipeline) {
		pl.tone = t
	}
}

// WithTemperature sets the sampling temperature, clamped to [0.0, 1.0].
// Default: 0.1.
func WithTemperature(v float64) Option {
	return func(pl *Pipeline) {
		pl.temperature = clampf(v, 0, 1)
	}
}

// WithMaxTokens caps the completion token budget per stage. Default: 256.
func WithMaxTokens(n int) Option {
	return func(pl *Pipeline) {
		if n > 0 {
			pl.maxTokens = n
		}
	}
}

// WithMetrics attaches a metrics instance. When unset no metrics are
// recorded, which keeps unit tests free of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) {
		pl.metrics = m
	}
}

// WithLogger sets the pipeline logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.log = l
		}
	}
}

// New constructs a [Pipeline] around the given completion service. svc may be
// nil; waves then complete empty instead of failing, so a host without a
// loaded model degrades to doing nothing.
func New(svc completion.Service, opts ...Option) *Pipeline {
	preset := DefaultPreset()
	p := &Pipeline{
		svc:         svc,
		policy:      region.New(),
		gates:       preset.Gates,
		threshold:   preset.Threshold,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// waveConfig carries the per-wave overrides.
type waveConfig struct {
	tone      text.Tone
	threshold float64
	words     int
}

// WaveOption overrides pipeline defaults for a single wave.
type WaveOption func(*waveConfig)

// WaveTone overrides the tone target for one wave.
func WaveTone(t text.Tone) WaveOption {
	return func(c *waveConfig) {
		c.tone = t
	}
}

// WaveThreshold overrides the confidence threshold for one wave, clamped to
// [0.5, 1.0].
func WaveThreshold(v float64) WaveOption {
	return func(c *waveConfig) {
		c.threshold = clampf(v, 0.5, 1.0)
	}
}

// WaveWords overrides the active region word target for one wave. Values
// outside the policy's range are clamped; zero or negative keeps the
// pipeline default.
func WaveWords(n int) WaveOption {
	return func(c *waveConfig) {
		if n > 0 {
			c.words = n
		}
	}
}

// waveState tracks the mutating view of the document while stages run.
type waveState struct {
	working string
	reg     text.Region
	caret   int
}

// RunWave computes the active region for doc and caret and runs the
// correction stages over it.
//
// The only error RunWave returns is ctx's error when the wave is cancelled
// or times out; every stage-level failure (model error, unparseable reply,
// rejected validation, unsafe edit) is absorbed and merely skips that stage.
// The returned result always carries the region the wave operated on, in the
// coordinates of the doc snapshot passed in.
func (p *Pipeline) RunWave(ctx context.Context, doc string, caret int, opts ...WaveOption) (*WaveResult, error) {
	start := time.Now()
	wc := waveConfig{tone: p.tone, threshold: p.threshold}
	for _, o := range opts {
		o(&wc)
	}

	ctx, span := observe.StartSpan(ctx, "correct.wave")
	defer span.End()

	if p.metrics != nil {
		p.metrics.RecordWaveStarted(ctx)
	}

	pol := p.policy
	if wc.words > 0 {
		pol = pol.WithWords(wc.words)
	}
	origRegion := pol.Compute(doc, caret)
	if caret > len(doc) {
		caret = len(doc)
	}
	if caret < 0 {
		caret = 0
	}
	// The policy guarantees a caret-safe region; anything else collapses to
	// the empty region at the caret rather than being trusted.
	if !origRegion.IsEmpty() && !text.IsCaretSafe(origRegion.Start, origRegion.End, caret) {
		origRegion = text.Region{Start: caret, End: caret}
	}

	result := &WaveResult{ActiveRegion: origRegion}

	if p.svc == nil {
		return p.finish(ctx, result, start, statusNoModel), nil
	}
	if origRegion.IsEmpty() {
		return p.finish(ctx, result, start, statusEmptyRegion), nil
	}
	if p.metrics != nil {
		p.metrics.RecordRegionBytes(ctx, origRegion.Len())
	}

	ws := &waveState{working: doc, reg: origRegion, caret: caret}
	minConf := 1.0
	lastStage := text.StageNoise

	for _, st := range stagesFor(wc.tone) {
		if err := ctx.Err(); err != nil {
			p.finish(ctx, result, start, statusCancelled)
			return nil, err
		}
		conf, applied := p.runStage(ctx, st, ws, wc)
		if applied {
			result.StagesApplied = append(result.StagesApplied, st.kind)
			lastStage = st.kind
			if conf < minConf {
				minConf = conf
			}
		}
	}

	if ws.working == doc {
		return p.finish(ctx, result, start, statusNoChange), nil
	}

	// Collapse the staged edits into one diff in original coordinates. The
	// region end has tracked every applied delta, so the corrected span is
	// exactly working[origRegion.Start:ws.reg.End].
	result.Diffs = []text.Diff{{
		Start:       origRegion.Start,
		End:         origRegion.End,
		Replacement: ws.working[origRegion.Start:ws.reg.End],
		Stage:       lastStage,
		Confidence:  minConf,
	}}
	result.CorrectedText = ws.working
	return p.finish(ctx, result, start, statusCorrected), nil
}

// finish stamps the duration and records completion metrics.
func (p *Pipeline) finish(ctx context.Context, r *WaveResult, start time.Time, status string) *WaveResult {
	r.Duration = time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordWaveCompleted(ctx, status, r.Duration)
	}
	p.log.Debug("wave finished",
		"status", status,
		"region_bytes", r.ActiveRegion.Len(),
		"stages_applied", len(r.StagesApplied),
		"duration", r.Duration,
	)
	return r
}

// runStage runs one correction pass over the current span. It returns the
// confidence and whether the stage's correction was applied. All failures
// are absorbed into a skip.
func (p *Pipeline) runStage(ctx context.Context, st stage, ws *waveState, wc waveConfig) (float64, bool) {
	stageStart := time.Now()

	span := ws.reg.Slice(ws.working)
	if strings.TrimSpace(span) == "" {
		p.skip(ctx, st.kind, "empty_region")
		return 0, false
	}

	resp, err := p.svc.Complete(ctx, p.buildRequest(st, span, ws))
	if err != nil {
		// Supersession surfaces through the caller's context check; any
		// other failure only costs this stage.
		p.log.Warn("stage completion failed",
			"stage", st.kind.String(),
			"error", err,
		)
		p.skip(ctx, st.kind, "error")
		return 0, false
	}
	if resp == nil {
		p.skip(ctx, st.kind, "unparseable")
		return 0, false
	}
	if p.metrics != nil {
		p.metrics.RecordTokens(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	replacement, ok := parseReply(resp.Text)
	if !ok {
		p.skip(ctx, st.kind, "unparseable")
		return 0, false
	}
	replacement = preserveEdgeWhitespace(span, replacement)
	if replacement == span {
		p.skip(ctx, st.kind, "no_change")
		return 0, false
	}

	v := validate(span, replacement, p.gates)
	if !v.ok {
		p.skip(ctx, st.kind, v.reason)
		return 0, false
	}
	if v.confidence < wc.threshold {
		p.skip(ctx, st.kind, "low_confidence")
		return 0, false
	}

	diff := text.Diff{
		Start:       ws.reg.Start,
		End:         ws.reg.End,
		Replacement: replacement,
		Stage:       st.kind,
		Confidence:  v.confidence,
	}
	next, nextCaret, err := text.ApplyDiff(ws.working, diff, ws.caret)
	if err != nil {
		p.skip(ctx, st.kind, "caret_unsafe")
		return 0, false
	}
	ws.working = next
	ws.caret = nextCaret
	ws.reg.End += diff.LengthDelta()

	if p.metrics != nil {
		p.metrics.RecordStageDuration(ctx, st.kind.String(), time.Since(stageStart))
	}
	p.log.Debug("stage applied",
		"stage", st.kind.String(),
		"confidence", v.confidence,
		"delta", diff.LengthDelta(),
	)
	return v.confidence, true
}

// buildRequest assembles the completion request for one stage. The token
// budget is twice the span estimate plus padding, capped by the configured
// maximum, so replies can grow a little but never ramble.
func (p *Pipeline) buildRequest(st stage, span string, ws *waveState) completion.Request {
	spanTokens, err := p.svc.CountTokens(span)
	if err != nil || spanTokens <= 0 {
		spanTokens = (len(span) + 3) / 4
	}
	budget := spanTokens*2 + tokenBudgetPadding
	if p.maxTokens > 0 && budget > p.maxTokens {
		budget = p.maxTokens
	}

	return completion.Request{
		SystemPrompt: st.system,
		UserPrompt:   buildUserPrompt(leadingContext(ws.working, ws.reg.Start), span),
		MaxTokens:    budget,
		Temperature:  p.temperature,
	}
}

// skip records one skipped stage.
func (p *Pipeline) skip(ctx context.Context, kind text.Stage, reason string) {
	if p.metrics != nil {
		p.metrics.RecordStageSkipped(ctx, kind.String(), reason)
	}
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
