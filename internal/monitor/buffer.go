package monitor

import "github.com/tacetio/tacet/pkg/text"

// buffer is the monitor's shadow copy of the focused text field. generation
// increments on every content change and is the advisory check that stops a
// finished wave from swapping over text the user kept typing into.
type buffer struct {
	text       string
	caret      int
	generation uint64
}

// set replaces the whole buffer, clamping and grapheme-aligning the caret.
func (b *buffer) set(s string, caret int) {
	if caret < 0 {
		caret = 0
	}
	if caret > len(s) {
		caret = len(s)
	}
	b.text = s
	b.caret = text.AlignToGraphemeBoundary(s, caret)
	b.generation++
}

// insert places the rune at the caret and advances the caret past it.
func (b *buffer) insert(r rune) {
	ins := string(r)
	b.text = b.text[:b.caret] + ins + b.text[b.caret:]
	b.caret += len(ins)
	b.generation++
}

// backspace deletes the grapheme cluster before the caret. A caret at the
// start of the buffer deletes nothing.
func (b *buffer) backspace() {
	if b.caret == 0 {
		return
	}
	prev := text.PrevGraphemeBoundary(b.text, b.caret)
	b.text = b.text[:prev] + b.text[b.caret:]
	b.caret = prev
	b.generation++
}
