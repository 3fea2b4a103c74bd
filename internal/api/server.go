// Package api exposes the daemon's HTTP surface: the live segment stream,
// archive reads, stream control, research queries, chunk ingestion, and
// metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"earmark/internal/archive"
	"earmark/internal/config"
	"earmark/internal/logging"
	"earmark/internal/metrics"
	"earmark/internal/pipeline"
	"earmark/internal/pubsub"
	"earmark/internal/research"
	"earmark/internal/transcribe"
)

// maxChunkBytes bounds one ingested audio chunk.
const maxChunkBytes = 32 << 20

// Server is the daemon's HTTP API.
type Server struct {
	bind      string
	logger    *slog.Logger
	pipeline  *pipeline.Pipeline
	store     *archive.Store
	hub       *pubsub.Hub[archive.StreamView]
	research  *research.Service
	metrics   *metrics.Metrics
	heartbeat time.Duration

	listener net.Listener
	server   *http.Server
}

// NewServer assembles the API around the daemon's shared services.
func NewServer(
	cfg *config.Config,
	p *pipeline.Pipeline,
	store *archive.Store,
	hub *pubsub.Hub[archive.StreamView],
	researchSvc *research.Service,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	srv := &Server{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		logger:    logging.NewComponentLogger(logger, "api"),
		pipeline:  p,
		store:     store,
		hub:       hub,
		research:  researchSvc,
		metrics:   m,
		heartbeat: time.Duration(cfg.Pipeline.HeartbeatSeconds) * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/segments", srv.handleSegments)
	mux.HandleFunc("/api/segments/", srv.handleSegment)
	mux.HandleFunc("/api/stream", srv.handleStream)
	mux.HandleFunc("/api/stream/status", srv.handleStreamStatus)
	mux.HandleFunc("/api/stream/start", srv.handleStart)
	mux.HandleFunc("/api/stream/pause", srv.handlePause)
	mux.HandleFunc("/api/search", srv.handleUserSearch)
	mux.HandleFunc("/api/deepsearch", srv.handleDeepSearch)
	mux.HandleFunc("/api/ingest", srv.handleIngest)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Handler returns the underlying mux, for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start begins serving. The server shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, giving in-flight requests a short grace.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// StatusResponse reports daemon-wide counters and the ingestion state.
type StatusResponse struct {
	State           pipeline.State `json:"state"`
	Queues          map[string]int `json:"queues"`
	ArchiveSegments int            `json:"archive_segments"`
	Subscribers     int            `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		State:           s.pipeline.CurrentState(),
		Queues:          s.pipeline.QueueDepths(),
		ArchiveSegments: s.store.Len(),
		Subscribers:     s.hub.Len(),
	})
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"segments": s.store.All()})
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/segments/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "segment not found")
		return
	}
	seg, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "segment not found")
		return
	}
	s.writeJSON(w, http.StatusOK, seg)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.pipeline.Resume()
	s.writeJSON(w, http.StatusOK, map[string]any{"state": s.pipeline.CurrentState()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.pipeline.Pause()
	s.writeJSON(w, http.StatusOK, map[string]any{"state": s.pipeline.CurrentState()})
}

// handleStream pushes segment updates as server-sent events. Keep-alive
// comments flow on the heartbeat interval so intermediaries do not cut the
// connection during silence.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)
	if s.metrics != nil {
		s.metrics.StreamSubscribed.Inc()
		defer s.metrics.StreamSubscribed.Dec()
	}

	s.sseHeaders(w)
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case view, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(view)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleStreamStatus pushes the pipeline state as server-sent events: once
// on connect, then on every heartbeat.
func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	s.sseHeaders(w)
	writeState := func() {
		fmt.Fprintf(w, "data: {\"pipeline_state\": %q}\n\n", s.pipeline.CurrentState())
		flusher.Flush()
	}
	writeState()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-heartbeat.C:
			writeState()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleUserSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req research.UserSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.research.UserSearch(r.Context(), req)
	if err != nil {
		s.writeResearchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeepSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req research.DeepSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.research.DeepSearch(r.Context(), req)
	if err != nil {
		s.writeResearchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleIngest accepts one raw audio chunk as the request body. The chunk's
// absolute time offset within the session rides in the offset query
// parameter; started_at (unix seconds) marks capture time for latency
// accounting and defaults to now.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	offset, _ := strconv.ParseFloat(r.URL.Query().Get("offset"), 64)
	capturedAt, _ := strconv.ParseFloat(r.URL.Query().Get("started_at"), 64)

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "chunk too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "read chunk")
		return
	}
	if len(audio) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty chunk")
		return
	}

	err = s.pipeline.Ingest(r.Context(), transcribe.Chunk{
		Audio:      audio,
		Offset:     offset,
		CapturedAt: capturedAt,
	})
	switch {
	case errors.Is(err, pipeline.ErrPaused):
		s.writeError(w, http.StatusConflict, "pipeline paused")
	case errors.Is(err, pipeline.ErrNotRunning):
		s.writeError(w, http.StatusServiceUnavailable, "pipeline not running")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
	}
}

func (s *Server) writeResearchError(w http.ResponseWriter, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) sseHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api response encode failed", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
