// Package transport exposes the bridge over HTTP: a message endpoint for
// automation clients, a server-sent event stream, and health plus metrics
// probes.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/forgebridge/forgebridge/internal/events"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/observability"
	"github.com/forgebridge/forgebridge/internal/router"
)

// Server bundles the HTTP surface around the request router.
type Server struct {
	router  *router.Router
	stream  *events.Stream
	jobs    *jobs.Tracker
	metrics *observability.Metrics
	version string
}

func NewServer(r *router.Router, stream *events.Stream, tracker *jobs.Tracker, metrics *observability.Metrics, version string) *Server {
	return &Server{router: r, stream: stream, jobs: tracker, metrics: metrics, version: version}
}

// Handler creates the HTTP router with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/mcp", s.handleMessage)
	r.Get("/events", s.handleEvents)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	return r
}

// message is the framing envelope around protocol requests. Ping frames keep
// idle client connections warm without entering the pipeline.
type message struct {
	Type        string `json:"type"`
	RequestJSON string `json:"request_json,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid message frame"})
		return
	}

	switch msg.Type {
	case "ping":
		writeJSON(w, http.StatusOK, map[string]any{
			"type":         "pong",
			"timestamp_ms": time.Now().UnixMilli(),
		})
	case "mcp.request":
		resp, ok := s.router.Execute(r.Context(), msg.RequestJSON)
		writeJSON(w, http.StatusOK, map[string]any{
			"type":          "mcp.response",
			"ok":            ok,
			"response_json": resp,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown message type", "type": msg.Type})
	}
}

// handleEvents streams bridge events as server-sent events until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.stream.Subscribe()
	defer s.stream.Unsubscribe(ch)

	log.Debug().Str("remote", r.RemoteAddr).Msg("event stream subscriber connected")

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "forgebridge",
		"version": s.version,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot(s.jobs.StatusCounts()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
