package text

import (
	"fmt"
	"strings"
)

// Stage identifies which correction pass produced a [Diff].
type Stage int

const (
	// StageNoise fixes typos, transpositions and misspellings.
	StageNoise Stage = iota

	// StageContext repairs grammar and word choice against the surrounding
	// text.
	StageContext

	// StageTone adjusts the register of already-correct text toward a target
	// style.
	StageTone
)

// String returns the lower-case stage name.
func (s Stage) String() string {
	switch s {
	case StageNoise:
		return "noise"
	case StageContext:
		return "context"
	case StageTone:
		return "tone"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Tone selects the target writing style for the tone stage.
type Tone int

const (
	// ToneNone disables the tone stage entirely.
	ToneNone Tone = iota

	// ToneCasual relaxes the register: contractions, lighter phrasing.
	ToneCasual

	// ToneProfessional tightens the register: no slang, complete sentences.
	ToneProfessional
)

// String returns the lower-case tone name.
func (t Tone) String() string {
	switch t {
	case ToneNone:
		return "none"
	case ToneCasual:
		return "casual"
	case ToneProfessional:
		return "professional"
	default:
		return fmt.Sprintf("tone(%d)", int(t))
	}
}

// ParseTone converts a configuration or wire string into a [Tone].
// The empty string parses as [ToneNone].
func ParseTone(s string) (Tone, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ToneNone, nil
	case "casual":
		return ToneCasual, nil
	case "professional":
		return ToneProfessional, nil
	default:
		return ToneNone, fmt.Errorf("unknown tone %q", s)
	}
}

// Diff is a proposed replacement of the byte range [Start, End) in some text
// snapshot. A diff is only meaningful against the exact snapshot it was
// computed from; the offsets say nothing about any mutated version of the
// text.
type Diff struct {
	// Start is the inclusive start offset of the replaced range.
	Start int

	// End is the exclusive end offset of the replaced range.
	End int

	// Replacement is the text inserted in place of [Start, End).
	Replacement string

	// Stage records which correction pass produced this diff.
	Stage Stage

	// Confidence is the pipeline's confidence in the edit, 0.0-1.0.
	Confidence float64
}

// Region returns the replaced range as a [Region].
func (d Diff) Region() Region { return Region{Start: d.Start, End: d.End} }

// LengthDelta returns by how many bytes applying the diff changes the text
// length. Negative for shrinking edits.
func (d Diff) LengthDelta() int { return len(d.Replacement) - (d.End - d.Start) }
