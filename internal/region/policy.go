// Package region computes the active correction region: the span of trailing
// text behind the caret that a correction wave is allowed to touch.
//
// The region is re-derived from scratch on every wave rather than tracked
// incrementally, so the policy here is pure: text and caret in, [text.Region]
// out. Everything the policy returns respects the caret-safety contract,
// region.End always equals the caret.
package region

import (
	"github.com/tacetio/tacet/pkg/text"
)

const (
	// DefaultTargetWords is how many trailing words the region covers when
	// the caller does not override it.
	DefaultTargetWords = 20

	// MinTargetWords and MaxTargetWords bound the configurable word count.
	// Values outside the range are clamped, not rejected.
	MinTargetWords = 5
	MaxTargetWords = 50

	// DefaultMaxBytes caps the region size regardless of word count, so one
	// pathological unbroken token cannot blow up the prompt budget.
	DefaultMaxBytes = 500

	// DefaultSnapTolerance is how far (in bytes) the region start may move to
	// land on a sentence boundary.
	DefaultSnapTolerance = 20

	// snapSearchBack and snapSearchForward bound the window scanned for
	// sentence terminators around the word-derived start.
	snapSearchBack    = 50
	snapSearchForward = 20
)

// Policy derives the active region from a document snapshot and caret.
// The zero value is not usable; construct with [New].
type Policy struct {
	targetWords   int
	maxBytes      int
	snapTolerance int
}

// Option configures a Policy.
type Option func(*Policy)

// WithTargetWords sets how many trailing words the region covers. Values
// outside [MinTargetWords, MaxTargetWords] are clamped.
func WithTargetWords(n int) Option {
	return func(p *Policy) {
		p.targetWords = clamp(n, MinTargetWords, MaxTargetWords)
	}
}

// WithMaxBytes caps the region size in bytes. Non-positive values restore the
// default.
func WithMaxBytes(n int) Option {
	return func(p *Policy) {
		if n <= 0 {
			n = DefaultMaxBytes
		}
		p.maxBytes = n
	}
}

// WithSnapTolerance sets how far the start may move to reach a sentence
// boundary. Negative values disable snapping.
func WithSnapTolerance(n int) Option {
	return func(p *Policy) {
		p.snapTolerance = n
	}
}

// New constructs a Policy with the given options applied over defaults.
func New(opts ...Option) *Policy {
	p := &Policy{
		targetWords:   DefaultTargetWords,
		maxBytes:      DefaultMaxBytes,
		snapTolerance: DefaultSnapTolerance,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// TargetWords returns the configured trailing word count.
func (p *Policy) TargetWords() int { return p.targetWords }

// WithWords returns a copy of the policy with the word target replaced and
// every other knob kept. Values outside [MinTargetWords, MaxTargetWords] are
// clamped.
func (p *Policy) WithWords(n int) *Policy {
	cp := *p
	cp.targetWords = clamp(n, MinTargetWords, MaxTargetWords)
	return &cp
}

// Compute returns the active region for the given document snapshot and caret
// position.
//
// The region ends exactly at the caret and never reaches past it. Its start
// is the beginning of the last targetWords words, capped at maxBytes, then
// snapped to a nearby sentence boundary when one sits within the snap
// tolerance. Both ends land on extended grapheme cluster boundaries. An empty
// document or a caret at offset 0 yields the empty region [0, 0).
func (p *Policy) Compute(doc string, caret int) text.Region {
	caret = clamp(caret, 0, len(doc))
	caret = text.AlignToGraphemeBoundary(doc, caret)
	if caret == 0 {
		return text.Region{}
	}

	prefix := doc[:caret]
	start := text.LastWordStart(prefix, p.targetWords)

	// Size cap wins over word count. Forward alignment keeps the region
	// within the cap instead of growing past it.
	if caret-start > p.maxBytes {
		start = text.NextGraphemeBoundary(doc, caret-p.maxBytes)
	}

	if p.snapTolerance >= 0 {
		if snapped, ok := p.snapToSentence(prefix, start); ok {
			start = snapped
		}
	}

	start = skipLeadingSpace(prefix, start)
	start = text.AlignToGraphemeBoundary(doc, start)
	if start > caret {
		start = caret
	}
	return text.Region{Start: start, End: caret}
}

// snapToSentence looks for a sentence start near pos and reports the closest
// one within the snap tolerance. A sentence start is the position right after
// a terminator (. ! ?) followed by whitespace.
func (p *Policy) snapToSentence(prefix string, pos int) (int, bool) {
	lo := max(0, pos-snapSearchBack)
	hi := min(len(prefix)-1, pos+snapSearchForward)

	best, bestDist := -1, p.snapTolerance+1
	for i := lo; i < hi; i++ {
		if !isTerminator(prefix[i]) || !isSpace(prefix[i+1]) {
			continue
		}
		cand := i + 2
		if cand >= len(prefix) {
			// Snapping to the very caret would leave nothing to correct.
			continue
		}
		dist := abs(cand - pos)
		if dist < bestDist {
			best, bestDist = cand, dist
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// skipLeadingSpace advances start past whitespace so the region begins on
// visible text. Runs of spaces after a sentence terminator land here.
func skipLeadingSpace(prefix string, start int) int {
	for start < len(prefix) && isSpace(prefix[start]) {
		start++
	}
	return start
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
