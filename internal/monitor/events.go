package monitor

import (
	"time"

	"github.com/tacetio/tacet/pkg/text"
)

// Event is a monitor notification delivered on [Monitor.Events]. Concrete
// types: [RhythmChanged], [MarkerChanged], [SweepProgressed], [WaveStarted],
// [WaveFinished], [CorrectionApplied] and [Toggled].
//
// Delivery never blocks the monitor: when the channel buffer is full the
// event is dropped and counted instead.
type Event interface {
	// Kind returns the stable event name used on the wire.
	Kind() string
}

// RhythmChanged reports a rhythm transition.
type RhythmChanged struct {
	From RhythmState
	To   RhythmState
}

// Kind implements [Event].
func (RhythmChanged) Kind() string { return "rhythm_changed" }

// MarkerChanged reports a marker transition.
type MarkerChanged struct {
	From Marker
	To   Marker
}

// Kind implements [Event].
func (MarkerChanged) Kind() string { return "marker_changed" }

// SweepProgressed reports one tick of the reveal pass.
type SweepProgressed struct {
	State SweepState
}

// Kind implements [Event].
func (SweepProgressed) Kind() string { return "sweep_progressed" }

// WaveStarted reports that a correction wave began. Seq identifies the wave
// in later events.
type WaveStarted struct {
	Seq uint64
}

// Kind implements [Event].
func (WaveStarted) Kind() string { return "wave_started" }

// WaveFinished reports that a wave resolved, successfully or not. Applied is
// true only when a correction was swapped into the buffer.
type WaveFinished struct {
	Seq     uint64
	Applied bool
	Err     error
}

// Kind implements [Event].
func (WaveFinished) Kind() string { return "wave_finished" }

// CorrectionApplied reports the atomic swap at the end of a sweep. Original
// and Corrected are the full buffer contents before and after; Region and
// Diffs are in Original's coordinates; Caret is the post-swap position.
// Forced distinguishes a wave started by [Monitor.ForceCorrection] from one
// the pause timer scheduled.
type CorrectionApplied struct {
	Seq       uint64
	Original  string
	Corrected string
	Region    text.Region
	Diffs     []text.Diff
	Caret     int
	Duration  time.Duration
	Forced    bool
}

// Kind implements [Event].
func (CorrectionApplied) Kind() string { return "correction_applied" }

// Toggled reports a session-scoped enable or disable.
type Toggled struct {
	Enabled bool
}

// Kind implements [Event].
func (Toggled) Kind() string { return "toggled" }
