// Package server exposes retrieval and answer generation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/perbu/trustmed/pkg/answer"
	"github.com/perbu/trustmed/pkg/trustmed"
)

// Retriever is the read side of a loaded index.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]trustmed.RankedChunk, error)
	Size() int
	Dimension() int
	ModelInfo() string
}

// Answerer generates grounded answers. It may be nil when no generation
// backend is configured.
type Answerer interface {
	Answer(ctx context.Context, question, disease string, k int) (*answer.Answer, error)
}

// Config holds server configuration.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	DefaultK       int
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	retriever  Retriever
	answerer   Answerer
	cfg        Config
	logger     *slog.Logger
}

// New creates a server. answerer may be nil.
func New(cfg Config, retriever Retriever, answerer Answerer) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultK < 1 {
		cfg.DefaultK = answer.DefaultK
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router:    http.NewServeMux(),
		retriever: retriever,
		answerer:  answerer,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("POST /retrieve", s.handleRetrieve)
	s.router.HandleFunc("POST /chat", s.handleChat)
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.withTimeout(h)
	h = s.logging(h)
	h = s.recovery(h)
	h = cors(s.cfg.AllowedOrigins, h)
	return h
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Chunks:    s.retriever.Size(),
		Dimension: s.retriever.Dimension(),
		Model:     s.retriever.ModelInfo(),
	})
}

type retrieveRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

type retrieveResponse struct {
	Results []trustmed.RankedChunk `json:"results"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.retriever.Retrieve(r.Context(), req.Query, s.resolveK(req.K))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if results == nil {
		results = []trustmed.RankedChunk{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Results: results})
}

type chatRequest struct {
	Message string `json:"message"`
	Disease string `json:"disease,omitempty"`
	K       *int   `json:"k,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "answer generation is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	if req.K != nil && *req.K < 1 {
		writeError(w, http.StatusBadRequest, trustmed.ErrInvalidK.Error())
		return
	}

	resp, err := s.answerer.Answer(r.Context(), req.Message, req.Disease, s.resolveK(req.K))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resolveK(k *int) int {
	if k == nil {
		return s.cfg.DefaultK
	}
	return *k
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trustmed.ErrInvalidK):
		return http.StatusBadRequest
	case errors.Is(err, trustmed.ErrQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, answer.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
