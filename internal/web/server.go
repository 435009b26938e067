// Package web exposes the lorecore HTTP API: project and element CRUD,
// relationship mutations and queries, element media attachments, and
// the Prometheus metrics endpoint.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lorecore/internal/core"
	"lorecore/internal/logging"
	"lorecore/internal/media"
	"lorecore/pkg/domain"
)

// Server routes API requests to the core service and media store.
type Server struct {
	router  *mux.Router
	service *core.Service
	media   media.Store
	logger  *slog.Logger
}

// NewServer constructs the API server. Media may be nil, which disables
// the attachment endpoints. A nil gatherer falls back to the default
// Prometheus registry.
func NewServer(service *core.Service, mediaStore media.Store, logger *slog.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:  mux.NewRouter(),
		service: service,
		media:   mediaStore,
		logger:  logger,
	}
	s.router.Use(s.requestMiddleware)
	s.setupRoutes(gatherer)
	return s
}

// Router returns the configured handler, for embedding in an http.Server.
func (s *Server) Router() http.Handler { return s.router }

// Start runs the server on the given port until it fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("server listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	r := s.router

	r.HandleFunc("/api/projects", s.handleCreateProject).Methods("POST")
	r.HandleFunc("/api/projects", s.handleListProjects).Methods("GET")
	r.HandleFunc("/api/projects/{id}", s.handleGetProject).Methods("GET")
	r.HandleFunc("/api/projects/{id}", s.handleUpdateProject).Methods("PUT")
	r.HandleFunc("/api/projects/{id}", s.handleDeleteProject).Methods("DELETE")
	r.HandleFunc("/api/projects/{id}/activate", s.handleActivateProject).Methods("PUT")

	r.HandleFunc("/api/projects/{id}/elements", s.handleCreateElement).Methods("POST")
	r.HandleFunc("/api/projects/{id}/elements", s.handleListElements).Methods("GET")
	r.HandleFunc("/api/elements/{id}", s.handleGetElement).Methods("GET")
	r.HandleFunc("/api/elements/{id}", s.handleUpdateElement).Methods("PUT")
	r.HandleFunc("/api/elements/{id}", s.handleDeleteElement).Methods("DELETE")

	r.HandleFunc("/api/projects/{id}/relationships", s.handleAddRelationship).Methods("POST")
	r.HandleFunc("/api/projects/{id}/relationships", s.handleRelationshipsByType).Methods("GET")
	r.HandleFunc("/api/projects/{id}/relationships/{relID}", s.handleRemoveRelationship).Methods("DELETE")
	r.HandleFunc("/api/projects/{id}/elements/{elementID}/relationships", s.handleElementRelationships).Methods("GET")
	r.HandleFunc("/api/projects/{id}/elements/{elementID}/related", s.handleRelatedElements).Methods("GET")
	r.HandleFunc("/api/projects/{id}/related", s.handleAreRelated).Methods("GET")

	if s.media != nil {
		r.HandleFunc("/api/projects/{id}/elements/{elementID}/media", s.handleListMedia).Methods("GET")
		r.HandleFunc("/api/projects/{id}/elements/{elementID}/media/{name}", s.handleUploadMedia).Methods("POST")
		r.HandleFunc("/api/projects/{id}/elements/{elementID}/media/{name}", s.handleDownloadMedia).Methods("GET")
		r.HandleFunc("/api/projects/{id}/elements/{elementID}/media/{name}/presign", s.handlePresignMedia).Methods("GET")
		r.HandleFunc("/api/projects/{id}/elements/{elementID}/media/{name}", s.handleDeleteMedia).Methods("DELETE")
	}

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
}

func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"duration_ms", float64(time.Since(start))/float64(time.Millisecond),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var rve domain.RuleViolationError
	if errors.As(err, &rve) {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      err.Error(),
			Violations: rve.Result.Violations,
		})
		return
	}
	status := http.StatusBadRequest
	if strings.Contains(err.Error(), "not found") {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
