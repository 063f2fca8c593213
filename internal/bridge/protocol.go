// Package bridge exposes the correction engine to host editors over a local
// HTTP and WebSocket surface.
//
// Two surfaces share one listener. POST /v1/correct runs a single stateless
// wave over the text in the request. GET /v1/stream upgrades to a WebSocket
// and binds one [monitor.Monitor] to the connection; the host feeds focus,
// keystrokes and text changes in, and receives every monitor event back as a
// JSON frame. Field names are camelCase because the host side of the
// contract is typically JavaScript or Swift.
package bridge

import (
	"fmt"

	"github.com/tacetio/tacet/internal/correct"
	"github.com/tacetio/tacet/internal/monitor"
	"github.com/tacetio/tacet/pkg/text"
)

// Span is a half-open byte range [start, end) in the document the request
// supplied.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Correction is one edit in the coordinates of the original text.
type Correction struct {
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Replacement string  `json:"replacement"`
	Stage       string  `json:"stage"`
	Confidence  float64 `json:"confidence"`
}

// CorrectRequest is the body of POST /v1/correct. Caret is a byte offset
// into Text. The three optional fields override the daemon's configured
// pipeline for this request only.
type CorrectRequest struct {
	Text                string  `json:"text"`
	Caret               int     `json:"caret"`
	ActiveRegionWords   int     `json:"activeRegionWords,omitempty"`
	ToneTarget          string  `json:"toneTarget,omitempty"`
	ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty"`
}

// CorrectResponse is the reply to a one-shot correction, over HTTP or as the
// result field of a stream frame.
type CorrectResponse struct {
	Corrections   []Correction `json:"corrections"`
	ActiveRegion  Span         `json:"activeRegion"`
	CorrectedText string       `json:"correctedText,omitempty"`
	LatencyMs     int64        `json:"latencyMs"`
	Error         string       `json:"error,omitempty"`
}

// Client frame types accepted on /v1/stream.
const (
	MsgFocus   = "focus"
	MsgKey     = "key"
	MsgText    = "text"
	MsgToggle  = "toggle"
	MsgForce   = "force"
	MsgBlur    = "blur"
	MsgCorrect = "correct"
)

// ClientMessage is one frame sent by the host on a stream session. Type
// selects the operation; the other fields are populated per type.
type ClientMessage struct {
	Type string `json:"type"`

	// ID correlates a correct request with its result frame.
	ID string `json:"id,omitempty"`

	// key: a single keystroke. "\b" deletes the grapheme before the caret.
	Key string `json:"key,omitempty"`

	// focus, text, correct: field contents and caret byte offset.
	Text  string `json:"text,omitempty"`
	Caret int    `json:"caret,omitempty"`

	// correct: per-request pipeline overrides, as in [CorrectRequest].
	ActiveRegionWords   int     `json:"activeRegionWords,omitempty"`
	ToneTarget          string  `json:"toneTarget,omitempty"`
	ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty"`
}

// Server frame types pushed on /v1/stream.
const (
	FrameEvent  = "event"
	FrameResult = "result"
	FrameError  = "error"
)

// ServerMessage is one frame pushed to the host.
type ServerMessage struct {
	Type string `json:"type"`

	// event
	Event *EventFrame `json:"event,omitempty"`

	// result: the reply to a correct message, echoing its ID.
	ID     string           `json:"id,omitempty"`
	Result *CorrectResponse `json:"result,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// EventFrame mirrors one monitor event on the wire. Fields are populated per
// kind.
type EventFrame struct {
	Kind string `json:"kind"`

	// rhythm_changed, marker_changed
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// wave_started, wave_finished, correction_applied
	Seq uint64 `json:"seq,omitempty"`

	// wave_finished
	Applied bool   `json:"applied,omitempty"`
	Error   string `json:"error,omitempty"`

	// sweep_progressed
	Progress    float64 `json:"progress,omitempty"`
	Corrections int     `json:"corrections,omitempty"`

	// sweep_progressed, correction_applied
	Region     *Span `json:"region,omitempty"`
	DurationMs int64 `json:"durationMs,omitempty"`

	// correction_applied
	Corrected string       `json:"corrected,omitempty"`
	Diffs     []Correction `json:"diffs,omitempty"`
	Caret     int          `json:"caret,omitempty"`
	Forced    bool         `json:"forced,omitempty"`

	// toggled
	Enabled *bool `json:"enabled,omitempty"`
}

// toSpan converts a region to its wire form.
func toSpan(r text.Region) Span {
	return Span{Start: r.Start, End: r.End}
}

// toCorrections converts pipeline diffs to their wire form.
func toCorrections(diffs []text.Diff) []Correction {
	out := make([]Correction, len(diffs))
	for i, d := range diffs {
		out[i] = Correction{
			Start:       d.Start,
			End:         d.End,
			Replacement: d.Replacement,
			Stage:       d.Stage.String(),
			Confidence:  d.Confidence,
		}
	}
	return out
}

// toResponse converts a wave result to the one-shot wire form.
func toResponse(res *correct.WaveResult) *CorrectResponse {
	resp := &CorrectResponse{
		Corrections:  toCorrections(res.Diffs),
		ActiveRegion: toSpan(res.ActiveRegion),
		LatencyMs:    res.Duration.Milliseconds(),
	}
	if res.Applied() {
		resp.CorrectedText = res.CorrectedText
	}
	if resp.Corrections == nil {
		resp.Corrections = []Correction{}
	}
	return resp
}

// encodeEvent serializes one monitor event. Unknown event types yield a
// frame with only the kind set, so protocol additions degrade gracefully.
func encodeEvent(ev monitor.Event) *EventFrame {
	f := &EventFrame{Kind: ev.Kind()}
	switch e := ev.(type) {
	case monitor.RhythmChanged:
		f.From = e.From.String()
		f.To = e.To.String()
	case monitor.MarkerChanged:
		f.From = e.From.String()
		f.To = e.To.String()
	case monitor.WaveStarted:
		f.Seq = e.Seq
	case monitor.WaveFinished:
		f.Seq = e.Seq
		f.Applied = e.Applied
		if e.Err != nil {
			f.Error = e.Err.Error()
		}
	case monitor.SweepProgressed:
		f.Progress = e.State.Progress
		f.Corrections = e.State.Corrections
		f.Region = &Span{Start: e.State.Start, End: e.State.End}
		f.DurationMs = e.State.Duration.Milliseconds()
	case monitor.CorrectionApplied:
		f.Seq = e.Seq
		f.Corrected = e.Corrected
		f.Diffs = toCorrections(e.Diffs)
		region := toSpan(e.Region)
		f.Region = &region
		f.Caret = e.Caret
		f.DurationMs = e.Duration.Milliseconds()
		f.Forced = e.Forced
	case monitor.Toggled:
		enabled := e.Enabled
		f.Enabled = &enabled
	}
	return f
}

// waveOptions translates request overrides into per-wave pipeline options.
// An unparseable tone target is the only rejection.
func waveOptions(words int, tone string, threshold float64) ([]correct.WaveOption, error) {
	var opts []correct.WaveOption
	if words > 0 {
		opts = append(opts, correct.WaveWords(words))
	}
	if tone != "" {
		t, err := text.ParseTone(tone)
		if err != nil {
			return nil, fmt.Errorf("toneTarget: %w", err)
		}
		opts = append(opts, correct.WaveTone(t))
	}
	if threshold > 0 {
		opts = append(opts, correct.WaveThreshold(threshold))
	}
	return opts, nil
}
