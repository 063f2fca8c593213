package text

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// WordCount returns the number of UAX #29 word segments in s that carry word
// content, meaning at least one letter or digit. Whitespace and
// punctuation-only segments do not count.
func WordCount(s string) int {
	n := 0
	state := -1
	rest := s
	for len(rest) > 0 {
		var seg string
		seg, rest, state = uniseg.FirstWordInString(rest, state)
		if isWordSegment(seg) {
			n++
		}
	}
	return n
}

// LastWordStart returns the byte offset where the n-th word counted from the
// end of s begins; n = 1 selects the final word. When s holds fewer than n
// words the offset of its first word is returned, and a wordless s yields 0.
func LastWordStart(s string, n int) int {
	if n < 1 {
		n = 1
	}
	starts := wordStarts(s)
	if len(starts) == 0 {
		return 0
	}
	i := len(starts) - n
	if i < 0 {
		i = 0
	}
	return starts[i]
}

// SentenceCount returns the number of UAX #29 sentence segments in s that
// contain any non-space content.
func SentenceCount(s string) int {
	n := 0
	state := -1
	rest := s
	for len(rest) > 0 {
		var seg string
		seg, rest, state = uniseg.FirstSentenceInString(rest, state)
		if strings.TrimSpace(seg) != "" {
			n++
		}
	}
	return n
}

// wordStarts returns the byte offsets of every word-content segment in s.
func wordStarts(s string) []int {
	var starts []int
	pos := 0
	state := -1
	rest := s
	for len(rest) > 0 {
		var seg string
		seg, rest, state = uniseg.FirstWordInString(rest, state)
		if isWordSegment(seg) {
			starts = append(starts, pos)
		}
		pos += len(seg)
	}
	return starts
}

func isWordSegment(seg string) bool {
	for _, r := range seg {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
