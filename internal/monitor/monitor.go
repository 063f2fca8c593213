// Package monitor watches a single focused text field and decides when to
// correct it.
//
// A [Monitor] owns a shadow copy of the field's text and caret and a rhythm
// state machine (Idle, Bursting, Paused, Correcting). Keystrokes debounce a
// pause timer; once the typist pauses long enough and the buffer has enough
// content, the monitor snapshots the buffer and runs one correction wave
// through its [Corrector]. Results come back as a timed sweep: progress
// events at a fixed tick rate, then exactly one atomic buffer swap, but only
// if the buffer has not changed since the snapshot. A superseded or
// conflicting wave mutates nothing.
//
// Hosts consume state through the typed event channel, never through
// callbacks. Event delivery is non-blocking: a slow consumer loses events,
// not keystrokes.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tacetio/tacet/internal/correct"
	"github.com/tacetio/tacet/internal/observe"
	"github.com/tacetio/tacet/pkg/text"
)

// Scheduling and animation defaults. Configuration may override each one.
const (
	// DefaultPauseThreshold is how long input must stay quiet before a
	// correction attempt.
	DefaultPauseThreshold = 500 * time.Millisecond

	// DefaultSettleDelay separates the pause decision from the model call,
	// absorbing the straggler keystroke that often trails a burst.
	DefaultSettleDelay = 100 * time.Millisecond

	// DefaultMinChars and DefaultMinWords gate correction attempts; below
	// either, the wave is skipped without a model call.
	DefaultMinChars = 10
	DefaultMinWords = 3

	// DefaultWaveTimeout bounds one wave end to end.
	DefaultWaveTimeout = 30 * time.Second

	// DefaultSweepDuration is the base reveal time at TierMid.
	DefaultSweepDuration = 400 * time.Millisecond

	// DefaultCompleteHold is how long the complete marker lingers before
	// settling back to idle.
	DefaultCompleteHold = 300 * time.Millisecond

	// DefaultEventBuffer is the event channel capacity.
	DefaultEventBuffer = 64
)

// sweepTicks is the fixed number of progress events per sweep.
const sweepTicks = 20

// ErrBelowMinimum is returned by [Monitor.ForceCorrection] when the buffer
// does not meet the minimum content gates.
var ErrBelowMinimum = errors.New("not enough content to correct")

// InvalidStateError is returned when an operation is not legal in the
// monitor's current state.
type InvalidStateError struct {
	// State names the state that rejected the operation.
	State string

	// Op names the rejected operation.
	Op string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("monitor: cannot %s while %s", e.Op, e.State)
}

// Corrector runs one correction wave over a document snapshot.
// [correct.Pipeline] is the production implementation.
type Corrector interface {
	RunWave(ctx context.Context, doc string, caret int, opts ...correct.WaveOption) (*correct.WaveResult, error)
}

// UndoRegistrar receives one undoable action per applied sweep. Hosts that
// integrate with a platform undo stack implement this; calling apply with
// the original text reverts the whole wave atomically.
type UndoRegistrar interface {
	RegisterSweep(original, corrected string, region text.Region, diffs []text.Diff, apply func(string))
}

// Monitor watches one focused text field. All methods are safe for
// concurrent use; one Monitor serializes all buffer mutation internally.
type Monitor struct {
	corrector Corrector

	pauseThreshold time.Duration
	settleDelay    time.Duration
	minChars       int
	minWords       int
	waveTimeout    time.Duration
	tier           DeviceTier
	sweepBase      time.Duration
	completeHold   time.Duration

	undo    UndoRegistrar
	metrics *observe.Metrics
	log     *slog.Logger

	mu      sync.Mutex
	buf     buffer
	trk     tracker
	marker  Marker
	enabled bool
	focused bool
	closed  bool

	pauseTimer  *time.Timer
	settleTimer *time.Timer
	holdTimer   *time.Timer

	waveSeq    uint64
	waveCancel context.CancelFunc

	events  chan Event
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// Option is a functional option for configuring a [Monitor].
type Option func(*Monitor)

// WithPauseThreshold sets how long input must stay quiet before a correction
// attempt. Default: 500ms.
func WithPauseThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.pauseThreshold = d
		}
	}
}

// WithSettleDelay sets the gap between the pause decision and the model
// call. Default: 100ms.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.settleDelay = d
		}
	}
}

// WithMinContent sets the content gates a buffer must pass before a wave
// runs. Defaults: 10 characters and 3 words.
func WithMinContent(chars, words int) Option {
	return func(m *Monitor) {
		if chars > 0 {
			m.minChars = chars
		}
		if words > 0 {
			m.minWords = words
		}
	}
}

// WithWaveTimeout bounds one wave end to end. Default: 30s.
func WithWaveTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.waveTimeout = d
		}
	}
}

// WithDeviceTier sets the animation timing profile. Default: TierMid.
func WithDeviceTier(t DeviceTier) Option {
	return func(m *Monitor) {
		m.tier = t
	}
}

// WithSweepDuration sets the base sweep duration before tier scaling.
// Default: 400ms.
func WithSweepDuration(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.sweepBase = d
		}
	}
}

// WithCompleteHold sets how long the complete marker lingers. Default:
// 300ms.
func WithCompleteHold(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.completeHold = d
		}
	}
}

// WithEventBuffer sets the event channel capacity. Default: 64.
func WithEventBuffer(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.events = make(chan Event, n)
		}
	}
}

// WithUndoRegistrar attaches a host undo stack.
func WithUndoRegistrar(u UndoRegistrar) Option {
	return func(m *Monitor) {
		m.undo = u
	}
}

// WithMetrics attaches a metrics instance.
func WithMetrics(mx *observe.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mx
	}
}

// WithLogger sets the monitor logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// New constructs a Monitor around the given corrector. The monitor starts
// dormant and enabled; call [Monitor.OnFocus] to begin a session.
func New(c Corrector, opts ...Option) *Monitor {
	m := &Monitor{
		corrector:      c,
		pauseThreshold: DefaultPauseThreshold,
		settleDelay:    DefaultSettleDelay,
		minChars:       DefaultMinChars,
		minWords:       DefaultMinWords,
		waveTimeout:    DefaultWaveTimeout,
		tier:           TierMid,
		sweepBase:      DefaultSweepDuration,
		completeHold:   DefaultCompleteHold,
		marker:         MarkerDormant,
		enabled:        true,
		log:            slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.events == nil {
		m.events = make(chan Event, DefaultEventBuffer)
	}
	return m
}

// Events returns the typed event channel. It is closed by [Monitor.Close].
func (m *Monitor) Events() <-chan Event { return m.events }

// Rhythm returns the current rhythm state.
func (m *Monitor) Rhythm() RhythmState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trk.rhythm
}

// Marker returns the current marker state.
func (m *Monitor) Marker() Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marker
}

// Snapshot returns the current buffer text and caret.
func (m *Monitor) Snapshot() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.text, m.buf.caret
}

// Dropped returns how many events have been discarded because the consumer
// fell behind.
func (m *Monitor) Dropped() uint64 { return m.dropped.Load() }

// OnFocus begins a session on a text field with the given content and caret.
// Any previous session state, including an in-flight wave, is discarded.
func (m *Monitor) OnFocus(s string, caret int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.supersedeLocked()
	m.focused = true
	m.buf.set(s, caret)
	m.setRhythmLocked(RhythmIdle)
	if m.enabled {
		m.setMarkerLocked(MarkerIdle)
	} else {
		m.setMarkerLocked(MarkerDisabled)
	}
}

// OnBlur ends the session: the in-flight wave is cancelled, timers stop, and
// a session-scoped disable is cleared for the next field.
func (m *Monitor) OnBlur() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.supersedeLocked()
	m.focused = false
	m.enabled = true
	m.setRhythmLocked(RhythmIdle)
	m.setMarkerLocked(MarkerDormant)
}

// HandleKeystroke inserts the rune at the caret. '\b' deletes the grapheme
// cluster before the caret. Input is ignored while unfocused or disabled.
func (m *Monitor) HandleKeystroke(r rune) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.focused || !m.enabled {
		return
	}
	if r == '\b' {
		m.buf.backspace()
	} else {
		m.buf.insert(r)
	}
	m.touchLocked()
}

// HandleTextChange replaces the buffer wholesale, for hosts that report
// field changes instead of individual keys (paste, IME commit, autofill).
func (m *Monitor) HandleTextChange(s string, caret int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.focused || !m.enabled {
		return
	}
	m.buf.set(s, caret)
	m.touchLocked()
}

// Toggle flips the session-scoped enable state and returns the new value.
// Disabling cancels all scheduled and in-flight work.
func (m *Monitor) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.enabled = !m.enabled
	if !m.enabled {
		m.supersedeLocked()
		m.setRhythmLocked(RhythmIdle)
		m.setMarkerLocked(MarkerDisabled)
	} else if m.focused {
		m.setMarkerLocked(MarkerIdle)
	} else {
		m.setMarkerLocked(MarkerDormant)
	}
	m.emitLocked(Toggled{Enabled: m.enabled})
	return m.enabled
}

// ForceCorrection starts a wave immediately, bypassing the pause timer. It
// fails with an [InvalidStateError] when no field is focused, correction is
// disabled, or a wave is already running, and with [ErrBelowMinimum] when
// the content gates are not met.
func (m *Monitor) ForceCorrection() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return &InvalidStateError{State: "closed", Op: "force correction"}
	case !m.focused:
		return &InvalidStateError{State: "dormant", Op: "force correction"}
	case !m.enabled:
		return &InvalidStateError{State: "disabled", Op: "force correction"}
	case m.trk.rhythm == RhythmCorrecting:
		return &InvalidStateError{State: "correcting", Op: "force correction"}
	case m.corrector == nil:
		return &InvalidStateError{State: "unconfigured", Op: "force correction"}
	}
	if !m.meetsMinimumLocked() {
		return fmt.Errorf("%w: need at least %d characters and %d words",
			ErrBelowMinimum, m.minChars, m.minWords)
	}
	m.startWaveLocked(true)
	return nil
}

// Close shuts the monitor down: the in-flight wave is cancelled, timers
// stop, and the event channel is closed once all wave goroutines have
// drained.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.supersedeLocked()
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)
	return nil
}

// ── Internal transitions (all called with mu held) ──

// touchLocked registers typing activity: the rhythm moves to Bursting and
// the pause timer is pushed out. Input during a correction only updates the
// buffer; the generation check resolves the conflict when the wave lands.
func (m *Monitor) touchLocked() {
	from := m.trk.rhythm
	m.trk.keystroke(time.Now())
	if m.trk.rhythm == RhythmCorrecting {
		return
	}
	if from != m.trk.rhythm {
		m.emitLocked(RhythmChanged{From: from, To: m.trk.rhythm})
	}
	m.setMarkerLocked(MarkerListening)
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
	m.reschedulePauseLocked(m.pauseThreshold)
}

// reschedulePauseLocked pushes the pause timer out to fire after d.
func (m *Monitor) reschedulePauseLocked(d time.Duration) {
	if m.pauseTimer == nil {
		m.pauseTimer = time.AfterFunc(d, m.onPauseTimer)
		return
	}
	m.pauseTimer.Reset(d)
}

// onPauseTimer fires when the debounced pause timer elapses. The elapsed
// time is re-checked against the last keystroke; a timer that raced a
// keystroke reschedules itself for the remainder.
func (m *Monitor) onPauseTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.focused || !m.enabled || m.trk.rhythm != RhythmBursting {
		return
	}
	now := time.Now()
	if !m.trk.pauseDue(now, m.pauseThreshold) {
		m.reschedulePauseLocked(m.trk.remaining(now, m.pauseThreshold))
		return
	}
	m.setRhythmLocked(RhythmPaused)
	m.settleTimer = time.AfterFunc(m.settleDelay, m.onSettle)
}

// onSettle fires after the settle delay and starts the wave if the pause
// held and the content gates pass.
func (m *Monitor) onSettle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.focused || !m.enabled || m.trk.rhythm != RhythmPaused {
		return
	}
	if m.corrector == nil || !m.meetsMinimumLocked() {
		m.setRhythmLocked(RhythmIdle)
		m.setMarkerLocked(MarkerIdle)
		return
	}
	m.startWaveLocked(false)
}

// meetsMinimumLocked applies the content gates.
func (m *Monitor) meetsMinimumLocked() bool {
	return text.GraphemeCount(m.buf.text) >= m.minChars &&
		text.WordCount(m.buf.text) >= m.minWords
}

// startWaveLocked snapshots the buffer and launches the wave goroutine.
func (m *Monitor) startWaveLocked(forced bool) {
	m.supersedeLocked()
	seq := m.waveSeq
	snap := m.buf

	ctx, cancel := context.WithTimeout(context.Background(), m.waveTimeout)
	m.waveCancel = cancel
	m.setRhythmLocked(RhythmCorrecting)
	m.setMarkerLocked(MarkerThinking)
	m.emitLocked(WaveStarted{Seq: seq})

	m.wg.Add(1)
	go m.runWave(ctx, cancel, seq, snap, forced)
}

// supersedeLocked cancels the in-flight wave, stops all timers, and bumps
// the wave sequence so stale results are discarded at their next check.
func (m *Monitor) supersedeLocked() {
	if m.waveCancel != nil {
		m.waveCancel()
		m.waveCancel = nil
	}
	m.waveSeq++
	m.stopTimersLocked()
}

func (m *Monitor) stopTimersLocked() {
	for _, t := range []*time.Timer{m.pauseTimer, m.settleTimer, m.holdTimer} {
		if t != nil {
			t.Stop()
		}
	}
	m.pauseTimer, m.settleTimer, m.holdTimer = nil, nil, nil
}

// runWave executes one wave off the lock, then resolves it under the lock.
func (m *Monitor) runWave(ctx context.Context, cancel context.CancelFunc, seq uint64, snap buffer, forced bool) {
	defer m.wg.Done()
	defer cancel()
	start := time.Now()

	res, err := m.corrector.RunWave(ctx, snap.text, snap.caret)

	m.mu.Lock()
	if m.closed || seq != m.waveSeq {
		// Superseded; whoever superseded owns the state now.
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.log.Warn("wave failed", "seq", seq, "error", err)
		m.waveCancel = nil
		if m.buf.generation != snap.generation {
			m.rearmLocked()
		} else {
			m.setRhythmLocked(RhythmIdle)
		}
		m.setMarkerLocked(MarkerError)
		m.emitLocked(WaveFinished{Seq: seq, Err: err})
		m.mu.Unlock()
		return
	}
	if !res.Applied() {
		m.waveCancel = nil
		if m.buf.generation != snap.generation {
			// The user typed while the wave ran; the clean result only
			// covers the old buffer. Cycle again for the new content.
			m.rearmLocked()
			m.setMarkerLocked(MarkerListening)
		} else {
			m.setRhythmLocked(RhythmIdle)
			m.setMarkerLocked(MarkerComplete)
			m.scheduleMarkerIdleLocked()
		}
		m.emitLocked(WaveFinished{Seq: seq})
		m.mu.Unlock()
		return
	}
	m.setMarkerLocked(MarkerSweeping)
	dur := sweepDuration(m.sweepBase, m.tier)
	m.mu.Unlock()

	if !m.sweep(ctx, seq, res, dur) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || seq != m.waveSeq {
		return
	}
	m.waveCancel = nil
	if m.buf.generation != snap.generation {
		// The user typed during the wave. Nothing is swapped; go back to
		// Bursting so the new content gets its own wave.
		m.log.Debug("wave abandoned, buffer changed", "seq", seq)
		m.rearmLocked()
		m.setMarkerLocked(MarkerListening)
		m.emitLocked(WaveFinished{Seq: seq})
		return
	}
	m.swapLocked(seq, res, forced, time.Since(start), dur)
}

// rearmLocked restarts the pause cycle for content typed while a wave ran.
// Keystrokes during Correcting never touch the pause timer, so every
// resolution path that observes a generation bump must come back here or
// the new content would sit uncorrected until the next keystroke. The
// marker is the caller's to set.
func (m *Monitor) rearmLocked() {
	m.setRhythmLocked(RhythmBursting)
	m.trk.lastKey = time.Now()
	m.reschedulePauseLocked(m.pauseThreshold)
}

// sweep emits fixed-rate progress events over the corrected region. It
// mutates nothing. Returns false when the wave was superseded or cancelled
// mid-sweep.
func (m *Monitor) sweep(ctx context.Context, seq uint64, res *correct.WaveResult, dur time.Duration) bool {
	interval := dur / sweepTicks
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; tick <= sweepTicks; tick++ {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		m.mu.Lock()
		if m.closed || seq != m.waveSeq {
			m.mu.Unlock()
			return false
		}
		m.emitLocked(SweepProgressed{State: SweepState{
			Start:       res.ActiveRegion.Start,
			End:         res.ActiveRegion.End,
			Progress:    float64(tick) / sweepTicks,
			Corrections: len(res.Diffs),
			Duration:    dur,
		}})
		m.mu.Unlock()
	}
	return true
}

// swapLocked performs the single atomic buffer swap at the end of a sweep.
func (m *Monitor) swapLocked(seq uint64, res *correct.WaveResult, forced bool, elapsed, sweepDur time.Duration) {
	original := m.buf.text
	preCaret := m.buf.caret
	delta := 0
	for _, d := range res.Diffs {
		delta += d.LengthDelta()
	}
	m.buf.text = res.CorrectedText
	m.buf.caret = preCaret + delta
	m.buf.generation++

	if m.undo != nil {
		m.undo.RegisterSweep(original, res.CorrectedText, res.ActiveRegion, res.Diffs, func(s string) {
			m.restore(s, preCaret)
		})
	}
	if m.metrics != nil {
		source := "sweep"
		if forced {
			source = "forced"
		}
		m.metrics.RecordCorrectionApplied(context.Background(), source)
		m.metrics.RecordSweepDuration(context.Background(), sweepDur)
	}

	m.emitLocked(CorrectionApplied{
		Seq:       seq,
		Original:  original,
		Corrected: res.CorrectedText,
		Region:    res.ActiveRegion,
		Diffs:     res.Diffs,
		Caret:     m.buf.caret,
		Duration:  elapsed,
		Forced:    forced,
	})
	m.setRhythmLocked(RhythmIdle)
	m.setMarkerLocked(MarkerComplete)
	m.scheduleMarkerIdleLocked()
	m.emitLocked(WaveFinished{Seq: seq, Applied: true})
}

// restore is the undo path: put the original text back and reset the cycle.
func (m *Monitor) restore(s string, caret int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.supersedeLocked()
	m.buf.set(s, caret)
	m.setRhythmLocked(RhythmIdle)
	if m.focused && m.enabled {
		m.setMarkerLocked(MarkerIdle)
	}
}

// scheduleMarkerIdleLocked lets the complete marker linger briefly before
// settling back to idle.
func (m *Monitor) scheduleMarkerIdleLocked() {
	if m.holdTimer != nil {
		m.holdTimer.Stop()
	}
	m.holdTimer = time.AfterFunc(m.completeHold, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed || m.marker != MarkerComplete {
			return
		}
		m.setMarkerLocked(MarkerIdle)
	})
}

func (m *Monitor) setRhythmLocked(s RhythmState) {
	if m.trk.rhythm == s {
		return
	}
	from := m.trk.rhythm
	m.trk.rhythm = s
	m.emitLocked(RhythmChanged{From: from, To: s})
}

func (m *Monitor) setMarkerLocked(mk Marker) {
	if m.marker == mk {
		return
	}
	from := m.marker
	m.marker = mk
	m.emitLocked(MarkerChanged{From: from, To: mk})
}

// emitLocked delivers an event without ever blocking the monitor. A full
// channel drops the event and counts it.
func (m *Monitor) emitLocked(ev Event) {
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	default:
		n := m.dropped.Add(1)
		if m.metrics != nil {
			m.metrics.RecordEventsDropped(context.Background(), 1)
		}
		m.log.Debug("event dropped", "kind", ev.Kind(), "total_dropped", n)
	}
}
