// Package http exposes the daemon's JSON enqueue API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fetchq/internal/domain"
)

// Server is the HTTP adapter over the queue service.
type Server struct {
	queue  *domain.Queue
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger
}

// NewServer creates an HTTP server bound to addr.
func NewServer(queue *domain.Queue, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		queue:  queue,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /enqueue", s.handleEnqueue)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

type enqueueRequest struct {
	URL string `json:"url"`
}

type enqueueResponse struct {
	Accepted bool        `json:"accepted"`
	Job      jobResponse `json:"job"`
}

type jobResponse struct {
	ID            int64  `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	Retries       int    `json:"retries"`
	RequestedAt   string `json:"requested_at"`
	DownloadedAt  string `json:"downloaded_at,omitempty"`
	FinalFilename string `json:"final_filename,omitempty"`
	Extractor     string `json:"extractor,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, accepted, err := s.queue.Enqueue(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidURL) {
			s.writeError(w, http.StatusBadRequest, "invalid URL")
			return
		}
		s.logger.Error("enqueue failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusOK
	if accepted {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, enqueueResponse{Accepted: accepted, Job: jobToResponse(job)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	job, err := s.queue.Get(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, domain.ErrInvalidID):
			s.writeError(w, http.StatusBadRequest, "invalid job ID")
		default:
			s.logger.Error("get job failed", "id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.StatusCounts(r.Context())
	if err != nil {
		s.logger.Error("status failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	total := 0
	byStatus := make(map[string]int, len(counts))
	for status, count := range counts {
		byStatus[string(status)] = count
		total += count
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"statuses": byStatus,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func jobToResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		ID:            job.ID,
		URL:           job.URL,
		Status:        string(job.Status),
		Retries:       job.Retries,
		RequestedAt:   job.RequestedAt.UTC().Format(time.RFC3339),
		FinalFilename: job.FinalFilename,
		Extractor:     job.Extractor,
	}
	if job.DownloadedAt != nil {
		resp.DownloadedAt = job.DownloadedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
