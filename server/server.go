// Package server implements the taskvoice HTTP API: voice command
// handling, speech transcription, cache sync, and runtime settings.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cr8z/taskvoice/assistant"
	"github.com/cr8z/taskvoice/config"
	"github.com/cr8z/taskvoice/provider"
)

// Server is the taskvoice HTTP server.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	assistant   *assistant.Assistant
	transcriber provider.Transcriber
	synthesizer provider.Synthesizer

	routesOnce sync.Once
}

// New creates a new Server with the given config and logger.
func New(cfg *config.Config, a *assistant.Assistant, tr provider.Transcriber, sy provider.Synthesizer, logger *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		mux:         http.NewServeMux(),
		logger:      logger,
		assistant:   a,
		transcriber: tr,
		synthesizer: sy,
	}
}

// Handler returns the route mux, mainly for tests driving the server
// through httptest.
func (s *Server) Handler() http.Handler {
	s.registerRoutes()
	return s.mux
}

// Start registers routes and begins listening. TLS is used when the
// config names a certificate pair.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":1005"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	if s.cfg.Server.CertFile != "" && s.cfg.Server.KeyFile != "" {
		s.logger.Info("server listening", slog.String("addr", addr), slog.Bool("tls", true))
		return s.httpSrv.ListenAndServeTLS(s.cfg.Server.CertFile, s.cfg.Server.KeyFile)
	}
	s.logger.Info("server listening", slog.String("addr", addr), slog.Bool("tls", false))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes. Safe to call more than once.
func (s *Server) registerRoutes() {
	s.routesOnce.Do(s.routes)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("POST /api/speech-to-text", s.handleSpeechToText)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/settings", s.getSettings)
	s.mux.HandleFunc("POST /api/settings", s.updateSettings)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
