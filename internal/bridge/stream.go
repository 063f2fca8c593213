package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/coder/websocket"

	"github.com/tacetio/tacet/internal/monitor"
	"github.com/tacetio/tacet/pkg/text"
)

// handleStream serves GET /v1/stream: one WebSocket monitor session. The
// connection owns one monitor; every monitor event is pushed to the host
// as an event frame, and the host drives the monitor with client frames.
// Closing the connection ends the session as if the field blurred.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("stream accept failed", "error", err)
		return
	}

	sess := &streamSession{
		srv:  s,
		conn: conn,
		mon:  s.newMonitor(),
	}
	if s.metrics != nil {
		s.metrics.AddActiveSessions(r.Context(), 1)
		defer s.metrics.AddActiveSessions(context.Background(), -1)
	}
	s.log.Debug("stream session opened", "remote", r.RemoteAddr)

	// The forwarder exits when the monitor closes its event channel.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.forwardEvents(r.Context())
	}()

	sess.readLoop(r.Context())

	sess.mon.OnBlur()
	sess.mon.Close()
	<-done
	conn.Close(websocket.StatusNormalClosure, "session closed")
	s.log.Debug("stream session closed", "remote", r.RemoteAddr)
}

// streamSession binds one WebSocket connection to one monitor.
type streamSession struct {
	srv  *Server
	conn *websocket.Conn
	mon  *monitor.Monitor
}

// readLoop reads client frames until the connection drops.
func (ss *streamSession) readLoop(ctx context.Context) {
	for {
		_, data, err := ss.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ss.writeError(ctx, "", "malformed frame: "+err.Error())
			continue
		}
		ss.dispatch(ctx, msg)
	}
}

// dispatch applies one client frame to the monitor.
func (ss *streamSession) dispatch(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case MsgFocus:
		ss.mon.OnFocus(msg.Text, clampCaret(msg.Text, msg.Caret))

	case MsgKey:
		r, size := utf8.DecodeRuneInString(msg.Key)
		if size == 0 || r == utf8.RuneError && size == 1 {
			ss.writeError(ctx, msg.ID, "key must be a single rune")
			return
		}
		ss.mon.HandleKeystroke(r)

	case MsgText:
		ss.mon.HandleTextChange(msg.Text, clampCaret(msg.Text, msg.Caret))

	case MsgToggle:
		// The resulting Toggled event reaches the host via the forwarder.
		ss.mon.Toggle()

	case MsgForce:
		if err := ss.mon.ForceCorrection(); err != nil {
			ss.writeError(ctx, msg.ID, err.Error())
		}

	case MsgBlur:
		ss.mon.OnBlur()

	case MsgCorrect:
		// One-shot within the session; runs off the read loop so a slow
		// model does not stall keystroke frames.
		go ss.oneShot(ctx, msg)

	default:
		ss.writeError(ctx, msg.ID, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// oneShot runs a stateless wave over the frame's text and replies with a
// result frame correlated by the frame ID.
func (ss *streamSession) oneShot(ctx context.Context, msg ClientMessage) {
	if msg.Caret < 0 || msg.Caret > len(msg.Text) {
		ss.writeError(ctx, msg.ID, "caret out of range")
		return
	}
	opts, err := waveOptions(msg.ActiveRegionWords, msg.ToneTarget, msg.ConfidenceThreshold)
	if err != nil {
		ss.writeError(ctx, msg.ID, err.Error())
		return
	}

	res, err := ss.srv.corrector.RunWave(ctx, msg.Text, msg.Caret, opts...)
	if err != nil {
		ss.writeError(ctx, msg.ID, err.Error())
		return
	}

	ss.srv.recordApplied(ctx, "oneshot", msg.Text, res.ActiveRegion, res.Diffs, stageNames(res.StagesApplied), res.Duration)
	ss.write(ctx, ServerMessage{Type: FrameResult, ID: msg.ID, Result: toResponse(res)})
}

// forwardEvents mirrors every monitor event onto the wire and journals
// applied corrections. It returns when the monitor's event channel
// closes or a write fails.
func (ss *streamSession) forwardEvents(ctx context.Context) {
	for ev := range ss.mon.Events() {
		if err := ss.write(ctx, ServerMessage{Type: FrameEvent, Event: encodeEvent(ev)}); err != nil {
			// The connection is gone; drain remaining events so the
			// monitor can close cleanly.
			for range ss.mon.Events() {
			}
			return
		}
		if ca, ok := ev.(monitor.CorrectionApplied); ok {
			source := "sweep"
			if ca.Forced {
				source = "forced"
			}
			ss.srv.recordApplied(ctx, source, ca.Original, ca.Region, ca.Diffs, diffStageNames(ca.Diffs), ca.Duration)
		}
	}
}

// write marshals one server frame onto the connection. coder/websocket
// supports concurrent writers, so the forwarder and one-shot goroutines
// need no extra locking.
func (ss *streamSession) write(ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bridge: marshal frame: %w", err)
	}
	return ss.conn.Write(ctx, websocket.MessageText, data)
}

// writeError pushes an error frame. Write failures are ignored; the read
// loop notices the dead connection on its own.
func (ss *streamSession) writeError(ctx context.Context, id, reason string) {
	_ = ss.write(ctx, ServerMessage{Type: FrameError, ID: id, Error: reason})
}

// diffStageNames converts applied diffs to their wire stage names.
func diffStageNames(diffs []text.Diff) []string {
	out := make([]string, len(diffs))
	for i, d := range diffs {
		out[i] = d.Stage.String()
	}
	return out
}

// clampCaret bounds a host-supplied caret to the text it arrived with.
func clampCaret(s string, caret int) int {
	if caret < 0 {
		return 0
	}
	if caret > len(s) {
		return len(s)
	}
	return caret
}
