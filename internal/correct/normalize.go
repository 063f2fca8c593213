package correct

import (
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// comparePool recycles transformer chains; building one allocates and the
// validator runs on every stage of every wave.
var comparePool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Mn)),
			runes.Remove(runes.In(unicode.Cf)),
			width.Fold,
		)
	},
}

// normalizeForCompare reduces s to a canonical comparison form: NFKC, case
// folded, combining marks and format characters stripped, width folded.
// Similarity scoring runs on this form so that pure case or accent changes do
// not read as large edits.
func normalizeForCompare(s string) string {
	t := comparePool.Get().(transform.Transformer)
	defer comparePool.Put(t)

	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
