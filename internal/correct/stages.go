package correct

import (
	"fmt"
	"strings"

	"github.com/tacetio/tacet/pkg/text"
)

const (
	// maxLeadingContext caps how many bytes before the region are shown to
	// the model. Text at or after the caret is never read.
	maxLeadingContext = 50

	// tokenBudgetPadding is added on top of the doubled span estimate so a
	// slightly longer correction is never truncated mid-word.
	tokenBudgetPadding = 32
)

// jsonInstruction is shared by every stage prompt. It mirrors the strictness
// small instruct models need to stay out of chat mode.
const jsonInstruction = `Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"replacement": "<the corrected text>"}

If the text needs no changes, return it unchanged in the replacement field. Never add explanations, greetings, or commentary.`

// noiseSystemPrompt drives the first pass: mechanical typo repair.
const noiseSystemPrompt = `You are a silent typing corrector running inside a text editor.

Your task: fix typos in the text the user is currently writing.

Rules:
- ONLY fix typos, transposed letters, misspellings, doubled characters, and stray punctuation.
- Do NOT rephrase, reorder, shorten, or expand the text.
- Do NOT change word choice, grammar, or sentence structure.
- Preserve the author's capitalisation style and spacing.

` + jsonInstruction

// contextSystemPrompt drives the second pass: grammar against surrounding
// text.
const contextSystemPrompt = `You are a silent typing corrector running inside a text editor.

Your task: fix grammar in the text the user is currently writing, using the preceding context to resolve agreement and word choice.

Rules:
- ONLY fix grammatical agreement, verb tense, articles, and clearly wrong homophones (their/there, its/it's).
- Do NOT rephrase or restyle the text.
- Do NOT change the author's meaning or add new content.
- Preserve the author's capitalisation style and spacing.

` + jsonInstruction

// toneSystemPromptTemplate drives the optional third pass. The %s slot names
// the target style.
const toneSystemPromptTemplate = `You are a silent writing assistant running inside a text editor.

Your task: adjust the register of the text the user is currently writing toward a %s.

Rules:
- Keep every fact and every intent exactly as written.
- Change as few words as possible to reach the target register.
- Do NOT add new sentences or drop existing ones.
- Preserve the author's spacing.

` + jsonInstruction

// toneStyles maps each tone target to the style description interpolated into
// the tone prompt.
var toneStyles = map[text.Tone]string{
	text.ToneCasual:       "relaxed, friendly register: contractions are fine, everyday vocabulary, light phrasing",
	text.ToneProfessional: "clear, businesslike register: no slang, complete sentences, precise vocabulary",
}

// stage bundles one correction pass with its system prompt.
type stage struct {
	kind   text.Stage
	system string
}

// stagesFor returns the passes a wave runs, in order. The tone pass only
// exists when a tone target is set.
func stagesFor(tone text.Tone) []stage {
	out := []stage{
		{kind: text.StageNoise, system: noiseSystemPrompt},
		{kind: text.StageContext, system: contextSystemPrompt},
	}
	if style, ok := toneStyles[tone]; ok {
		out = append(out, stage{
			kind:   text.StageTone,
			system: fmt.Sprintf(toneSystemPromptTemplate, style),
		})
	}
	return out
}

// buildUserPrompt formats the span and its leading context for the model.
// The context is labelled read-only so the model corrects only the span.
func buildUserPrompt(leading, span string) string {
	var sb strings.Builder
	if leading != "" {
		sb.WriteString("Preceding context (read-only, do not include in your reply):\n")
		sb.WriteString(leading)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Text to correct:\n")
	sb.WriteString(span)
	return sb.String()
}

// leadingContext returns up to maxLeadingContext bytes of text before start,
// aligned so the window never opens mid grapheme cluster.
func leadingContext(doc string, start int) string {
	if start <= 0 {
		return ""
	}
	lo := start - maxLeadingContext
	if lo <= 0 {
		lo = 0
	} else {
		lo = text.NextGraphemeBoundary(doc, lo)
	}
	return doc[lo:start]
}
