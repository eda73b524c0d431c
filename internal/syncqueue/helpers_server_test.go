// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import (
	"log/slog"
	"net/http"

	"github.com/amnesia0287/jellyfin-plugin-kodisyncqueue/syncqueue"
)

// Server represents the HTTP server for the delta sync API
type Server struct {
	service *syncqueue.SyncService
	auth    *syncqueue.JWTAuth
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer creates a new server instance
func NewServer(service *syncqueue.SyncService, jwtAuth *syncqueue.JWTAuth, logger *slog.Logger) *Server {
	server := &Server{
		service: service,
		auth:    jwtAuth,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	handlers := syncqueue.NewHTTPSyncHandlers(s.service, s.auth, s.logger)

	deltaPath := s.auth.Middleware(http.HandlerFunc(handlers.HandleDeltaPath))
	deltaQuery := s.auth.Middleware(http.HandlerFunc(handlers.HandleDeltaQuery))
	s.mux.Handle("GET /sync/{user}/{cursor}/items", deltaPath)
	s.mux.Handle("GET /sync/{user}/items", deltaQuery)

	recordChange := s.auth.Middleware(http.HandlerFunc(handlers.HandleRecordItemChange))
	recordUserData := s.auth.Middleware(http.HandlerFunc(handlers.HandleRecordUserData))
	prune := s.auth.Middleware(http.HandlerFunc(handlers.HandlePrune))
	s.mux.Handle("POST /admin/changes", recordChange)
	s.mux.Handle("POST /admin/userdata", recordUserData)
	s.mux.Handle("POST /admin/prune", prune)

	s.mux.HandleFunc("GET /status", handlers.HandleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
