// Package api exposes the refresh service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/refresh"
)

const maxBodyBytes = 64 << 10

// Server routes HTTP requests to a refresh.Service and refresh.Scheduler.
type Server struct {
	svc    *refresh.Service
	sched  *refresh.Scheduler
	logger *slog.Logger
	router *chi.Mux
}

// New builds the router.
func New(svc *refresh.Service, sched *refresh.Scheduler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, sched: sched, logger: logger, router: chi.NewRouter()}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(logRequests(logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/platforms", s.handlePlatforms)
		r.Route("/{platform}", func(r chi.Router) {
			r.Post("/connect", s.handleConnect)
			r.Get("/profile/{handle}", s.handleGet)
			r.Put("/update/{handle}", s.handleUpdate)
			r.Delete("/disconnect/{handle}", s.handleDisconnect)
			r.Post("/refresh", s.handleRefresh)
		})
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ConnectRequest is the body of POST /api/{platform}/connect.
type ConnectRequest struct {
	Handle     string `json:"handle"`
	ProfileURL string `json:"profile_url"` // profile URL or bare platform username
}

// MessageResponse acknowledges a request that returns no record.
type MessageResponse struct {
	Message string `json:"message"`
}

func platformParam(r *http.Request) (profile.Platform, error) {
	return profile.ParsePlatform(chi.URLParam(r, "platform"))
}

func (*Server) handlePlatforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]profile.Platform{"platforms": profile.Platforms()})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	p, err := platformParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req ConnectRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: codeBadRequest, Message: fmt.Sprintf("invalid JSON body: %v", err)})
		return
	}
	if strings.TrimSpace(req.ProfileURL) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: codeBadRequest, Message: "profile_url is required"})
		return
	}

	prof, err := s.svc.Connect(r.Context(), req.Handle, p, req.ProfileURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := platformParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prof, err := s.svc.Get(r.Context(), chi.URLParam(r, "handle"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, err := platformParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prof, err := s.svc.Update(r.Context(), chi.URLParam(r, "handle"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	p, err := platformParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Disconnect(r.Context(), chi.URLParam(r, "handle"), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s account disconnected", p)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := platformParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.sched == nil {
		s.writeError(w, r, errors.New("scheduler not configured"))
		return
	}
	// A cycle runs to completion even if the client goes away.
	report, err := s.sched.RunCycle(context.WithoutCancel(r.Context()), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
