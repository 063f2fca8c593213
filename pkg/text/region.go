// Package text defines the shared text-editing value types and pure functions
// used across all Tacet packages.
//
// These types are the lingua franca between the region policy, the correction
// pipeline, the typing monitor, and the host bridge. All offsets are byte
// offsets into UTF-8 encoded text; the grapheme helpers in this package keep
// them on extended-grapheme-cluster boundaries so that no edit ever splits a
// user-perceived character.
//
// The package's central contract is caret safety: no read or write may touch
// text at or after the caret. [IsCaretSafe], [ApplyDiff] and [ApplyDiffs]
// enforce it fail-closed: an unsafe edit returns [ErrCaretUnsafe] and leaves
// the input untouched. Unsafe edits are never clamped or partially applied.
package text

// Region is a half-open byte range [Start, End) over some text snapshot.
// The zero value is the empty region at offset 0.
//
// Invariant: 0 ≤ Start ≤ End.
type Region struct {
	// Start is the inclusive start offset.
	Start int

	// End is the exclusive end offset.
	End int
}

// Len returns the number of bytes covered by the region.
func (r Region) Len() int { return r.End - r.Start }

// IsEmpty reports whether the region covers no text.
func (r Region) IsEmpty() bool { return r.End <= r.Start }

// Contains reports whether the byte offset i lies inside the region.
func (r Region) Contains(i int) bool { return i >= r.Start && i < r.End }

// Slice returns the portion of s covered by the region. Out-of-range regions
// yield the empty string rather than panicking, so a region computed against
// one snapshot can be probed against a shorter one safely.
func (r Region) Slice(s string) string {
	if r.Start < 0 || r.End > len(s) || r.IsEmpty() {
		return ""
	}
	return s[r.Start:r.End]
}
