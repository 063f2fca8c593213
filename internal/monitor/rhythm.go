package monitor

import "time"

// RhythmState identifies where the typist is in the type-pause-correct
// cycle.
type RhythmState int

const (
	// RhythmIdle means no recent input; nothing is scheduled.
	RhythmIdle RhythmState = iota

	// RhythmBursting means keystrokes are arriving; every keystroke pushes
	// the pause timer further out.
	RhythmBursting

	// RhythmPaused means the typist stopped long enough for the pause
	// threshold to elapse; a correction attempt is imminent.
	RhythmPaused

	// RhythmCorrecting means a wave is in flight. Input keeps updating the
	// buffer but the rhythm holds until the wave resolves.
	RhythmCorrecting
)

// String returns the human-readable name of the state.
func (s RhythmState) String() string {
	switch s {
	case RhythmIdle:
		return "idle"
	case RhythmBursting:
		return "bursting"
	case RhythmPaused:
		return "paused"
	case RhythmCorrecting:
		return "correcting"
	default:
		return "unknown"
	}
}

// Marker is the observational state a host renders next to the text field.
// It changes more often than the rhythm: the rhythm drives scheduling, the
// marker narrates it.
type Marker int

const (
	// MarkerDormant means no text field is focused.
	MarkerDormant Marker = iota

	// MarkerIdle means a field is focused and quiet.
	MarkerIdle

	// MarkerListening means input is being collected.
	MarkerListening

	// MarkerThinking means a correction wave is running.
	MarkerThinking

	// MarkerSweeping means corrections are being revealed.
	MarkerSweeping

	// MarkerComplete briefly acknowledges an applied or clean wave.
	MarkerComplete

	// MarkerDisabled means correction is switched off for this session.
	MarkerDisabled

	// MarkerError means the last wave failed.
	MarkerError
)

// String returns the human-readable name of the marker.
func (m Marker) String() string {
	switch m {
	case MarkerDormant:
		return "dormant"
	case MarkerIdle:
		return "idle"
	case MarkerListening:
		return "listening"
	case MarkerThinking:
		return "thinking"
	case MarkerSweeping:
		return "sweeping"
	case MarkerComplete:
		return "complete"
	case MarkerDisabled:
		return "disabled"
	case MarkerError:
		return "error"
	default:
		return "unknown"
	}
}

// tracker is the pure half of the rhythm machine. It holds the current state
// and the last keystroke timestamp and answers scheduling questions from
// explicit clock values, so transition logic stays testable without real
// timers. The Monitor owns the timers and feeds it time.Now().
type tracker struct {
	rhythm  RhythmState
	lastKey time.Time
}

// keystroke records input at now. The rhythm moves to Bursting unless a wave
// is in flight; conflicts with an in-flight wave are caught later by the
// buffer generation check.
func (t *tracker) keystroke(now time.Time) {
	t.lastKey = now
	if t.rhythm != RhythmCorrecting {
		t.rhythm = RhythmBursting
	}
}

// pauseDue reports whether the pause threshold has genuinely elapsed since
// the last keystroke. Timer callbacks race with keystrokes, so a firing
// timer re-checks here before committing the transition.
func (t *tracker) pauseDue(now time.Time, threshold time.Duration) bool {
	if t.rhythm != RhythmBursting || t.lastKey.IsZero() {
		return false
	}
	return now.Sub(t.lastKey) >= threshold
}

// remaining returns how much of the pause threshold is left at now, floored
// at 1ms so a rescheduled timer always fires.
func (t *tracker) remaining(now time.Time, threshold time.Duration) time.Duration {
	left := threshold - now.Sub(t.lastKey)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	return left
}
