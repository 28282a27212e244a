// Package control exposes the daemon's health, status, audit, and command
// surfaces over plain net/http, so an operator (or cmd/daymindctl) can drive
// the agent without a chat transport attached.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/soraya-vance/daymind/common/version"
	"github.com/soraya-vance/daymind/internal/daymind/commands"
	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// CommandRunner is the subset of commands.Service the control surface needs.
type CommandRunner interface {
	Handle(ctx context.Context, commandText string, now time.Time) (commands.Result, error)
}

// AuditReader is the subset of store.Store the control surface needs for
// GET /audit.
type AuditReader interface {
	RecentAudit(ctx context.Context, category string, limit int) ([]model.AuditEntry, error)
}

// Server exposes /health, /status, /audit, and /command.
type Server struct {
	addr      string
	commands  CommandRunner
	audit     AuditReader
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// New creates and configures the HTTP server (does not start it).
func New(addr string, commands CommandRunner, audit AuditReader) *Server {
	mux := http.NewServeMux()
	s := &Server{
		addr:      addr,
		commands:  commands,
		audit:     audit,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/audit", s.handleAudit)
	mux.HandleFunc("/command", s.handleCommand)
	return s
}

// ServeHTTP implements http.Handler so the server can be exercised without a
// live network listener (e.g. with httptest.NewRecorder).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control server: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("control server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("control server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("control server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("control server shutdown error", "err", err)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

type statusResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	BuildTime  string    `json:"build_time"`
	StartedAt  time.Time `json:"started_at"`
	UptimeSecs float64   `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    version.Version,
		BuildTime:  version.BuildTime,
		StartedAt:  s.startedAt,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit reader not configured"})
		return
	}

	category := r.URL.Query().Get("category")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.audit.RecentAudit(r.Context(), category, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Text                 string `json:"text"`
	PlanRevision         int64  `json:"plan_revision"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
}

// handleCommand drives a today/add/move/undo command through the same
// CommandService the chat transport uses. Exit-code conventions (0 success,
// 2 requires_confirmation, 1 failure) live in cmd/daymindctl, which
// translates this JSON body into a process exit code.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}
	if s.commands == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "command service not configured"})
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := s.commands.Handle(r.Context(), req.Command, time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Text:                 result.Text,
		PlanRevision:         result.PlanRevision,
		RequiresConfirmation: result.RequiresConfirmation,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("control: failed to encode JSON response", "err", err)
	}
}
