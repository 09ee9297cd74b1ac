package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"studyplanner/internal/config"
	appLog "studyplanner/internal/log"
	"studyplanner/internal/pipeline"
)

const planCacheTTL = 30 * time.Second

// Planner runs a planning pass.
type Planner interface {
	Run(ctx context.Context, apply bool) (*pipeline.Report, error)
}

// Server exposes the planner over HTTP:
//
//	GET  /health     liveness, never authenticated
//	GET  /api/plan   dry-run report (cached briefly)
//	POST /api/sync   run a pass and apply its plan
type Server struct {
	cfg     *config.Config
	planner Planner
	mux     *http.ServeMux
	now     func() time.Time

	// In-memory cache for /api/plan so that a polling UI does not refetch
	// busy calendars on every request.
	planMu    sync.RWMutex
	planCache *planCache
}

type planCache struct {
	report    *pipeline.Report
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, planner Planner) *Server {
	s := &Server{
		cfg:     cfg,
		planner: planner,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="StudyPlanner", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("stopping HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/plan", s.handlePlan)
	s.mux.HandleFunc("/api/sync", s.handleSync)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePlan returns the report of a dry-run pass.
//
// GET /api/plan?fresh=1 bypasses the cache.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.URL.Query().Get("fresh") == "" {
		s.planMu.RLock()
		pc := s.planCache
		s.planMu.RUnlock()
		if pc != nil && s.now().Sub(pc.updatedAt) < planCacheTTL {
			writeJSON(w, http.StatusOK, pc.report)
			return
		}
	}

	rep, err := s.planner.Run(r.Context(), false)
	if err != nil {
		appLog.Error("api plan: planning pass failed", err)
		writeError(w, http.StatusInternalServerError, "planning failed")
		return
	}

	s.planMu.Lock()
	s.planCache = &planCache{report: rep, updatedAt: s.now()}
	s.planMu.Unlock()

	writeJSON(w, http.StatusOK, rep)
}

// handleSync runs a pass and applies its plan to the calendar.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rep, err := s.planner.Run(r.Context(), true)
	s.InvalidatePlan()
	if err != nil {
		appLog.Error("api sync: planning pass failed", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// InvalidatePlan drops the cached /api/plan report. Call it after anything
// else writes the calendar.
func (s *Server) InvalidatePlan() {
	s.planMu.Lock()
	s.planCache = nil
	s.planMu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
