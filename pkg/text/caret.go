package text

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrCaretUnsafe is returned when an edit would touch text at or after the
// caret, lies outside the text bounds, or overlaps another edit in the same
// batch. The input text is never mutated when this error is returned.
var ErrCaretUnsafe = errors.New("caret-unsafe edit")

// IsCaretSafe reports whether the half-open range [start, end) may be edited
// while the caret sits at caret. A range is safe exactly when it is non-empty
// and ends at or before the caret, so edits stay strictly behind the cursor.
func IsCaretSafe(start, end, caret int) bool {
	return end <= caret && start < end
}

// ApplyDiff replaces the range [d.Start, d.End) of s and returns the new text
// together with the shifted caret position.
//
// The edit is validated before anything happens: it must be caret-safe, fully
// inside s, and the caret itself must lie within s. On any violation the
// original text and caret are returned unchanged alongside [ErrCaretUnsafe].
func ApplyDiff(s string, d Diff, caret int) (string, int, error) {
	if err := validateDiff(s, d, caret); err != nil {
		return s, caret, err
	}
	return s[:d.Start] + d.Replacement + s[d.End:], caret + d.LengthDelta(), nil
}

// ApplyDiffs applies a batch of diffs that are all expressed against the same
// snapshot s. Replacements are performed right to left, ordered by descending
// Start, so that applying one diff does not invalidate the byte offsets of
// those before it.
//
// The batch is all-or-nothing: every diff is validated against the original
// snapshot before the first replacement, and a single caret-unsafe,
// out-of-bounds or overlapping diff returns the original text and caret
// unchanged alongside [ErrCaretUnsafe]. The returned caret is the input caret
// shifted by the sum of all length deltas.
func ApplyDiffs(s string, diffs []Diff, caret int) (string, int, error) {
	if len(diffs) == 0 {
		return s, caret, nil
	}

	sorted := make([]Diff, len(diffs))
	copy(sorted, diffs)
	slices.SortFunc(sorted, func(a, b Diff) int { return cmp.Compare(a.Start, b.Start) })

	delta := 0
	for i, d := range sorted {
		if err := validateDiff(s, d, caret); err != nil {
			return s, caret, err
		}
		if i > 0 && sorted[i-1].End > d.Start {
			p := sorted[i-1]
			return s, caret, fmt.Errorf("%w: [%d,%d) overlaps [%d,%d)",
				ErrCaretUnsafe, p.Start, p.End, d.Start, d.End)
		}
		delta += d.LengthDelta()
	}

	out := s
	for i := len(sorted) - 1; i >= 0; i-- {
		d := sorted[i]
		out = out[:d.Start] + d.Replacement + out[d.End:]
	}
	return out, caret + delta, nil
}

func validateDiff(s string, d Diff, caret int) error {
	if caret < 0 || caret > len(s) {
		return fmt.Errorf("%w: caret %d outside text of %d bytes", ErrCaretUnsafe, caret, len(s))
	}
	if d.Start < 0 || d.End > len(s) {
		return fmt.Errorf("%w: range [%d,%d) outside text of %d bytes", ErrCaretUnsafe, d.Start, d.End, len(s))
	}
	if !IsCaretSafe(d.Start, d.End, caret) {
		return fmt.Errorf("%w: range [%d,%d) with caret at %d", ErrCaretUnsafe, d.Start, d.End, caret)
	}
	return nil
}
