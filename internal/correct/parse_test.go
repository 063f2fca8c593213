package correct

import (
	"strings"
	"testing"

	"github.com/tacetio/tacet/pkg/text"
)

func TestParseReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{
			name:   "json object",
			raw:    `{"replacement": "the cat sat"}`,
			want:   "the cat sat",
			wantOK: true,
		},
		{
			name:   "json in markdown fences",
			raw:    "```json\n{\"replacement\": \"fixed\"}\n```",
			want:   "fixed",
			wantOK: true,
		},
		{
			name:   "json in bare fences",
			raw:    "```\n{\"replacement\": \"fixed\"}\n```",
			want:   "fixed",
			wantOK: true,
		},
		{
			name:   "json empty replacement",
			raw:    `{"replacement": ""}`,
			wantOK: false,
		},
		{
			name:   "malformed json",
			raw:    `{"replacement": "unterminated`,
			wantOK: false,
		},
		{
			name:   "free text fallback",
			raw:    "the cat sat",
			want:   "the cat sat",
			wantOK: true,
		},
		{
			name:   "free text with wrapping quotes",
			raw:    `"the cat sat"`,
			want:   "the cat sat",
			wantOK: true,
		},
		{
			name:   "free text with lone leading quote",
			raw:    `"the cat`,
			want:   `"the cat`,
			wantOK: true,
		},
		{
			name:   "free text padded with whitespace",
			raw:    "  the cat  \n",
			want:   "the cat",
			wantOK: true,
		},
		{
			name:   "free text keeps first paragraph only",
			raw:    "the cat sat on the mat\n\nNote that I fixed two transposed-letter typos for you.",
			want:   "the cat sat on the mat",
			wantOK: true,
		},
		{
			name:   "free text single newline is not a paragraph break",
			raw:    "the cat sat\non the mat",
			want:   "the cat sat\non the mat",
			wantOK: true,
		},
		{
			name:   "json replacement keeps paragraph breaks",
			raw:    "{\"replacement\": \"one\\n\\ntwo\"}",
			want:   "one\n\ntwo",
			wantOK: true,
		},
		{
			name:   "empty",
			raw:    "",
			wantOK: false,
		},
		{
			name:   "whitespace only",
			raw:    " \n\t ",
			wantOK: false,
		},
		{
			name:   "generation delimiter cuts trailing junk",
			raw:    "the cat<|im_end|>\nassistant: anything else?",
			want:   "the cat",
			wantOK: true,
		},
		{
			name:   "delimiter after json",
			raw:    `{"replacement": "ok then"}<|eot_id|>`,
			want:   "ok then",
			wantOK: true,
		},
		{
			name:   "delimiter only",
			raw:    "<|endoftext|>",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseReply(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("parseReply(%q) ok=%v, want %v", tt.raw, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseReply(%q)=%q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPreserveEdgeWhitespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		span        string
		replacement string
		want        string
	}{
		{
			name:        "model trimmed both edges",
			span:        " teh cat ",
			replacement: "the cat",
			want:        " the cat ",
		},
		{
			name:        "model added its own padding",
			span:        "teh cat",
			replacement: "  the cat\n",
			want:        "the cat",
		},
		{
			name:        "no edge whitespace anywhere",
			span:        "teh cat",
			replacement: "the cat",
			want:        "the cat",
		},
		{
			name:        "trailing newline survives",
			span:        "teh cat\n",
			replacement: "the cat",
			want:        "the cat\n",
		},
		{
			name:        "tab indent survives",
			span:        "\tteh cat",
			replacement: "the cat",
			want:        "\tthe cat",
		},
		{
			name:        "blank replacement passes through",
			span:        " x ",
			replacement: "   ",
			want:        "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := preserveEdgeWhitespace(tt.span, tt.replacement)
			if got != tt.want {
				t.Errorf("preserveEdgeWhitespace(%q, %q)=%q, want %q",
					tt.span, tt.replacement, got, tt.want)
			}
		})
	}
}

func TestStagesFor(t *testing.T) {
	t.Parallel()

	// No tone target: only the two correction passes.
	got := stagesFor(text.ToneNone)
	if len(got) != 2 {
		t.Fatalf("stagesFor(ToneNone) returned %d stages, want 2", len(got))
	}
	if got[0].kind != text.StageNoise || got[1].kind != text.StageContext {
		t.Errorf("stage order = [%v %v], want [noise context]", got[0].kind, got[1].kind)
	}

	got = stagesFor(text.ToneCasual)
	if len(got) != 3 {
		t.Fatalf("stagesFor(ToneCasual) returned %d stages, want 3", len(got))
	}
	if got[2].kind != text.StageTone {
		t.Errorf("last stage = %v, want tone", got[2].kind)
	}
	if !strings.Contains(got[2].system, "relaxed, friendly") {
		t.Errorf("casual tone prompt missing style description:\n%s", got[2].system)
	}

	got = stagesFor(text.ToneProfessional)
	if !strings.Contains(got[2].system, "businesslike") {
		t.Errorf("professional tone prompt missing style description:\n%s", got[2].system)
	}
}

func TestLeadingContext(t *testing.T) {
	t.Parallel()

	if got := leadingContext("anything", 0); got != "" {
		t.Errorf("leadingContext at document start = %q, want empty", got)
	}

	if got := leadingContext("Hello world", 5); got != "Hello" {
		t.Errorf("leadingContext=%q, want %q", got, "Hello")
	}

	// Long prefixes are capped at the window size.
	doc := strings.Repeat("a", 80) + "tail"
	got := leadingContext(doc, 80)
	if len(got) != maxLeadingContext {
		t.Errorf("len(leadingContext)=%d, want %d", len(got), maxLeadingContext)
	}

	// A window edge inside a grapheme cluster moves forward past it rather
	// than serving the model half an emoji.
	family := "\U0001F469‍\U0001F469‍\U0001F467‍\U0001F466"
	doc = strings.Repeat("a", 50) + family + strings.Repeat("b", 50)
	start := 110 // window edge at byte 60, inside the cluster
	got = leadingContext(doc, start)
	if want := strings.Repeat("b", 35); got != want {
		t.Errorf("leadingContext=%q, want %q", got, want)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	t.Parallel()

	got := buildUserPrompt("Hello world. ", "teh cat")
	if !strings.Contains(got, "Preceding context (read-only") {
		t.Errorf("prompt missing context label:\n%s", got)
	}
	if !strings.HasSuffix(got, "Text to correct:\nteh cat") {
		t.Errorf("prompt must end with the span:\n%s", got)
	}

	// No leading context, no context section.
	got = buildUserPrompt("", "teh cat")
	if strings.Contains(got, "Preceding context") {
		t.Errorf("empty context must omit the section:\n%s", got)
	}
	if got != "Text to correct:\nteh cat" {
		t.Errorf("prompt=%q", got)
	}
}
