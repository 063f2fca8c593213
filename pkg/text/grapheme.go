package text

import "github.com/rivo/uniseg"

// AlignToGraphemeBoundary snaps index to the start of the extended grapheme
// cluster that encloses it, per Unicode UAX #29. Indexes already on a cluster
// boundary come back unchanged; indexes outside [0, len(s)] are clamped.
//
// Snapping always moves backward, never forward, so an aligned edit boundary
// can only shrink toward text that has been fully typed.
func AlignToGraphemeBoundary(s string, index int) int {
	if index <= 0 {
		return 0
	}
	if index >= len(s) {
		return len(s)
	}

	pos := 0
	state := -1
	rest := s
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		next := pos + len(cluster)
		if index < next {
			return pos
		}
		pos = next
	}
	return pos
}

// AlignRegion snaps both ends of r to grapheme cluster boundaries of s.
func AlignRegion(s string, r Region) Region {
	return Region{
		Start: AlignToGraphemeBoundary(s, r.Start),
		End:   AlignToGraphemeBoundary(s, r.End),
	}
}

// IsGraphemeBoundary reports whether index falls on an extended grapheme
// cluster boundary of s. 0 and len(s) are always boundaries.
func IsGraphemeBoundary(s string, index int) bool {
	if index <= 0 || index >= len(s) {
		return index == 0 || index == len(s)
	}
	return AlignToGraphemeBoundary(s, index) == index
}

// PrevGraphemeBoundary returns the largest cluster boundary strictly before
// index, clamping at 0. This is the offset a grapheme-aware backspace deletes
// back to.
func PrevGraphemeBoundary(s string, index int) int {
	if index <= 0 {
		return 0
	}
	if index > len(s) {
		index = len(s)
	}

	pos, prev := 0, 0
	state := -1
	rest := s
	for len(rest) > 0 && pos < index {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		prev = pos
		pos += len(cluster)
	}
	return prev
}

// NextGraphemeBoundary returns the smallest cluster boundary at or after
// index, clamping at len(s). Unlike [AlignToGraphemeBoundary] it moves
// forward, which callers use when a range must not grow past a size cap.
func NextGraphemeBoundary(s string, index int) int {
	if index <= 0 {
		return 0
	}
	if index >= len(s) {
		return len(s)
	}

	pos := 0
	state := -1
	rest := s
	for len(rest) > 0 {
		if pos >= index {
			return pos
		}
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		pos += len(cluster)
	}
	return pos
}

// GraphemeCount returns the number of extended grapheme clusters in s, which
// is the user-perceived character count.
func GraphemeCount(s string) int {
	return uniseg.GraphemeClusterCount(s)
}
