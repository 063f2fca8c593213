package monitor

import (
	"strings"
	"time"
)

// SweepState reports the progress of the reveal pass over a corrected
// region. Start and End are byte offsets into the pre-swap buffer; Progress
// runs from 0 to 1 in fixed ticks. No text changes until Progress reaches 1.
type SweepState struct {
	Start       int
	End         int
	Progress    float64
	Corrections int
	Duration    time.Duration
}

// DeviceTier scales animation timing to the host hardware. Slower devices
// get a longer sweep so the reveal stays legible; faster ones get a snappier
// one.
type DeviceTier int

const (
	// TierLow is for constrained hosts (older mobile, low-power laptops).
	TierLow DeviceTier = iota

	// TierMid is the default desktop profile.
	TierMid

	// TierHigh is for fast hosts where a long animation would feel sluggish.
	TierHigh
)

// String returns the tier name used in configuration.
func (t DeviceTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMid:
		return "mid"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseDeviceTier parses a configuration tier name. The empty string means
// TierMid.
func ParseDeviceTier(s string) (DeviceTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mid":
		return TierMid, true
	case "low":
		return TierLow, true
	case "high":
		return TierHigh, true
	default:
		return TierMid, false
	}
}

// factor returns the duration multiplier for the tier.
func (t DeviceTier) factor() float64 {
	switch t {
	case TierLow:
		return 1.5
	case TierHigh:
		return 0.65
	default:
		return 1.0
	}
}

// sweepDuration scales the base sweep duration by the device tier.
func sweepDuration(base time.Duration, tier DeviceTier) time.Duration {
	return time.Duration(float64(base) * tier.factor())
}
