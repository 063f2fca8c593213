package correct

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/tacetio/tacet/pkg/text"
)

// Gates holds the validation thresholds for one strictness preset. A
// candidate replacement must pass every gate before its confidence is even
// compared against the wave threshold.
type Gates struct {
	// MinLengthRatio and MaxLengthRatio bound candidate length relative to
	// the span, measured in grapheme clusters. A correction should not
	// halve or double the text.
	MinLengthRatio float64
	MaxLengthRatio float64

	// MinSimilarity is the lowest acceptable Jaro-Winkler similarity between
	// the normalised span and candidate. Low similarity means the model
	// rewrote instead of corrected.
	MinSimilarity float64
}

// Preset bundles a confidence threshold with validation gates.
type Preset struct {
	// Name is the preset identifier used in configuration.
	Name string

	// Threshold is the default confidence a correction must reach.
	Threshold float64

	// Gates are the validation thresholds.
	Gates Gates
}

// ValidPresetNames lists the accepted preset names for configuration
// validation.
var ValidPresetNames = []string{"strict", "balanced", "lenient"}

var presets = map[string]Preset{
	"strict": {
		Name:      "strict",
		Threshold: 0.80,
		Gates:     Gates{MinLengthRatio: 0.60, MaxLengthRatio: 1.50, MinSimilarity: 0.70},
	},
	"balanced": {
		Name:      "balanced",
		Threshold: 0.65,
		Gates:     Gates{MinLengthRatio: 0.50, MaxLengthRatio: 1.80, MinSimilarity: 0.55},
	},
	"lenient": {
		Name:      "lenient",
		Threshold: 0.50,
		Gates:     Gates{MinLengthRatio: 0.40, MaxLengthRatio: 2.20, MinSimilarity: 0.40},
	},
}

// PresetByName returns the named preset. Valid names are listed in
// [ValidPresetNames].
func PresetByName(name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(name)]
	return p, ok
}

// DefaultPreset is the preset used when configuration names none.
func DefaultPreset() Preset {
	return presets["balanced"]
}

// verdict is the outcome of validating one candidate replacement.
type verdict struct {
	// confidence is the combined score in [0, 1], meaningful only when ok.
	confidence float64

	// reason names the failed gate when not ok.
	reason string

	ok bool
}

// conversationalPrefixes catch a model chatting instead of correcting. The
// comparison runs on the lower-cased candidate.
var conversationalPrefixes = []string{
	"i'm not sure",
	"i am not sure",
	"i cannot",
	"i can't",
	"i apologize",
	"i apologise",
	"sorry",
	"sure,",
	"certainly",
	"here is",
	"here's",
	"the corrected",
}

// Confidence weighting. Similarity dominates: a correction that drifts from
// the input is worse than one that is slightly long or splits a sentence.
const (
	weightLength     = 0.35
	weightSentence   = 0.25
	weightSimilarity = 0.40
)

// validate runs the candidate through all gates and scores it. span is the
// text being replaced, candidate the model's proposal; both carry their edge
// whitespace.
func validate(span, candidate string, g Gates) verdict {
	lower := strings.ToLower(strings.TrimSpace(candidate))
	for _, p := range conversationalPrefixes {
		if strings.HasPrefix(lower, p) {
			return verdict{reason: "conversational"}
		}
	}
	if strings.Contains(lower, "as an ai") {
		return verdict{reason: "conversational"}
	}

	spanLen := text.GraphemeCount(span)
	candLen := text.GraphemeCount(candidate)
	if spanLen == 0 {
		return verdict{reason: "empty_span"}
	}
	ratio := float64(candLen) / float64(spanLen)
	if ratio < g.MinLengthRatio || ratio > g.MaxLengthRatio {
		return verdict{reason: "length_ratio"}
	}

	spanSentences := text.SentenceCount(span)
	candSentences := text.SentenceCount(candidate)
	sentenceDiff := abs(candSentences - spanSentences)
	if sentenceDiff > 1 {
		return verdict{reason: "sentence_count"}
	}

	// A correction may lengthen a consonant run by one (fixing a dropped
	// vowel's neighbour), but a longer jump to 4+ means the model emitted
	// keyboard mash.
	candRun := longestConsonantRun(candidate)
	if candRun >= 4 && candRun > longestConsonantRun(span)+1 {
		return verdict{reason: "garbled"}
	}

	similarity := matchr.JaroWinkler(
		normalizeForCompare(span),
		normalizeForCompare(candidate),
		false,
	)
	if similarity < g.MinSimilarity {
		return verdict{reason: "dissimilar"}
	}

	return verdict{
		confidence: weightLength*lengthScore(ratio, g) +
			weightSentence*sentenceScore(sentenceDiff) +
			weightSimilarity*similarity,
		ok: true,
	}
}

// lengthScore maps the length ratio to [0, 1]: 1.0 at ratio 1, falling
// linearly toward the gate edges.
func lengthScore(ratio float64, g Gates) float64 {
	allowed := g.MaxLengthRatio - 1
	if d := 1 - g.MinLengthRatio; d > allowed {
		allowed = d
	}
	if allowed <= 0 {
		return 1
	}
	dev := ratio - 1
	if dev < 0 {
		dev = -dev
	}
	score := 1 - dev/allowed
	if score < 0 {
		return 0
	}
	return score
}

// sentenceScore rewards preserving the sentence structure.
func sentenceScore(diff int) float64 {
	if diff == 0 {
		return 1
	}
	return 0.7
}

// longestConsonantRun returns the longest run of ASCII consonants in s.
// 'y' counts as a vowel and non-ASCII letters break runs, both to keep the
// check from penalising ordinary non-English text.
func longestConsonantRun(s string) int {
	longest, run := 0, 0
	for _, r := range s {
		if isASCIIConsonant(r) {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return longest
}

func isASCIIConsonant(r rune) bool {
	if r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
	}
	if r < 'a' || r > 'z' {
		return false
	}
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return false
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
