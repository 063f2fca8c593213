package correct

import (
	"encoding/json"
	"strings"
)

// reply is the JSON structure the stage prompts instruct the model to return.
type reply struct {
	Replacement string `json:"replacement"`
}

// endDelimiters are generation-end markers that small local models leak into
// their output. Everything from the first marker onward is discarded.
var endDelimiters = []string{
	"<|im_end|>",
	"<|endoftext|>",
	"<|eot_id|>",
	"</s>",
}

// parseReply extracts the replacement text from a raw model reply.
//
// The preferred shape is the instructed JSON object {"replacement": "..."}.
// Models that ignore the instruction and answer with the corrected text
// directly are accepted as a fallback, after markdown fences and generation
// delimiters are stripped. Returns ok=false when nothing usable remains:
// empty output, an empty replacement, or malformed JSON.
func parseReply(raw string) (string, bool) {
	cleaned := strings.TrimSpace(stripDelimiters(stripFences(raw)))
	if cleaned == "" {
		return "", false
	}

	if strings.HasPrefix(cleaned, "{") {
		var r reply
		if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
			return "", false
		}
		if r.Replacement == "" {
			return "", false
		}
		return r.Replacement, true
	}

	// Free-text fallback. Keep only the first paragraph: chatty models
	// append commentary after a blank line, and carrying it into the
	// candidate would sink an otherwise good correction at the gates.
	if i := strings.Index(cleaned, "\n\n"); i >= 0 {
		cleaned = strings.TrimSpace(cleaned[:i])
	}
	// Some models wrap the answer in quotes; strip one matching pair.
	if len(cleaned) >= 2 && cleaned[0] == '"' && cleaned[len(cleaned)-1] == '"' {
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	return cleaned, cleaned != ""
}

// stripFences removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(strings.TrimSpace(s), "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// stripDelimiters cuts the reply at the first generation-end marker.
func stripDelimiters(s string) string {
	for _, d := range endDelimiters {
		if i := strings.Index(s, d); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

// preserveEdgeWhitespace reapplies the span's leading and trailing whitespace
// runs to the replacement. Models routinely trim both ends, but the span's
// edges carry the user's own just-typed spacing and must survive the edit.
func preserveEdgeWhitespace(span, replacement string) string {
	core := strings.TrimSpace(replacement)
	if core == "" {
		return replacement
	}

	trimmed := strings.TrimLeft(span, " \t\r\n")
	lead := span[:len(span)-len(trimmed)]
	trimmed = strings.TrimRight(span, " \t\r\n")
	trail := span[len(trimmed):]

	return lead + core + trail
}
