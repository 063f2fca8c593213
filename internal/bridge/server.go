package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tacetio/tacet/internal/correct"
	"github.com/tacetio/tacet/internal/health"
	"github.com/tacetio/tacet/internal/journal"
	"github.com/tacetio/tacet/internal/monitor"
	"github.com/tacetio/tacet/internal/observe"
	"github.com/tacetio/tacet/pkg/text"
)

// defaultShutdownTimeout bounds graceful shutdown before open connections
// are closed forcibly.
const defaultShutdownTimeout = 5 * time.Second

// Corrector runs one correction wave over a document snapshot.
// [correct.Pipeline] is the production implementation.
type Corrector interface {
	RunWave(ctx context.Context, doc string, caret int, opts ...correct.WaveOption) (*correct.WaveResult, error)
}

// Recorder persists applied corrections. [journal.Journal] is the
// production implementation; a nil recorder disables journaling.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Server is the local host bridge. One-shot corrections go over plain
// HTTP; interactive monitor sessions go over a WebSocket where the host
// streams keystrokes in and receives monitor events back.
type Server struct {
	addr       string
	corrector  Corrector
	newMonitor func() *monitor.Monitor

	health          *health.Handler
	recorder        Recorder
	metrics         *observe.Metrics
	metricsHandler  http.Handler
	shutdownTimeout time.Duration
	log             *slog.Logger
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithHealth mounts the liveness and readiness endpoints.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithRecorder journals applied corrections, both one-shot and
// session-applied.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithMetrics attaches a metrics instance; HTTP requests and session
// counts are then recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h on GET /metrics, typically the Prometheus
// scrape handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithShutdownTimeout bounds graceful shutdown. Default: 5s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a bridge Server. newMonitor is called once per stream
// connection; each connection owns its monitor for the connection's
// lifetime.
func New(addr string, c Corrector, newMonitor func() *monitor.Monitor, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		corrector:       c,
		newMonitor:      newMonitor,
		shutdownTimeout: defaultShutdownTimeout,
		log:             slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the bridge's HTTP handler:
//
//	POST /v1/correct — one-shot correction
//	GET  /v1/stream  — WebSocket monitor session
//	GET  /healthz, /readyz — when a health handler is configured
//	GET  /metrics    — when a metrics handler is configured
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/correct", s.handleCorrect)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	var h http.Handler = mux
	if s.metrics != nil {
		h = observe.Middleware(s.metrics)(h)
	}
	return h
}

// Run serves the bridge until ctx is cancelled, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("bridge listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			// Stream connections are hijacked and outlive Shutdown; close
			// them hard so the daemon actually exits.
			srv.Close()
			return fmt.Errorf("bridge: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// handleCorrect serves POST /v1/correct: one stateless wave over the
// request's text.
func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req CorrectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caret < 0 || req.Caret > len(req.Text) {
		http.Error(w, "caret out of range", http.StatusBadRequest)
		return
	}
	opts, err := waveOptions(req.ActiveRegionWords, req.ToneTarget, req.ConfidenceThreshold)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.corrector.RunWave(r.Context(), req.Text, req.Caret, opts...)
	if err != nil {
		observe.WithTrace(r.Context(), s.log).Warn("one-shot wave failed", "error", err)
		writeJSONBody(w, http.StatusInternalServerError, &CorrectResponse{
			Corrections: []Correction{},
			Error:       err.Error(),
		})
		return
	}

	s.recordApplied(r.Context(), "oneshot", req.Text, res.ActiveRegion, res.Diffs, stageNames(res.StagesApplied), res.Duration)
	writeJSONBody(w, http.StatusOK, toResponse(res))
}

// recordApplied journals one applied correction. Journal failures are
// logged, never surfaced: the correction already happened.
func (s *Server) recordApplied(ctx context.Context, source, doc string, region text.Region, diffs []text.Diff, stages []string, dur time.Duration) {
	if s.recorder == nil || len(diffs) == 0 {
		return
	}
	d := diffs[0]
	e := journal.Entry{
		AppliedAt:     time.Now(),
		Source:        source,
		RegionStart:   region.Start,
		RegionEnd:     region.End,
		OriginalSpan:  region.Slice(doc),
		CorrectedSpan: d.Replacement,
		Confidence:    d.Confidence,
		Stages:        stages,
		Duration:      dur,
		DocChars:      text.GraphemeCount(doc),
	}
	if _, err := s.recorder.Record(ctx, e); err != nil {
		observe.WithTrace(ctx, s.log).Warn("journal record failed", "source", source, "error", err)
	}
}

// stageNames converts stages to their wire names.
func stageNames(stages []text.Stage) []string {
	out := make([]string, len(stages))
	for i, st := range stages {
		out[i] = st.String()
	}
	return out
}

// writeJSONBody writes v as a JSON response.
func writeJSONBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
