// Package server exposes the operational HTTP surface: health, metrics,
// cycle status, manual triggers and analytics reads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/analytics"
	"github.com/socialpulse/followwatch/internal/models"
)

// Monitor is the part of the monitoring service the HTTP surface uses
type Monitor interface {
	RunCycle(ctx context.Context) *models.CycleReport
	CheckProfile(ctx context.Context, profileID string) (*models.ProfileOutcome, error)
	ProfileStatus(ctx context.Context, profileID string) (*models.ProfileStatus, error)
	LastReport() *models.CycleReport
}

// Server routes HTTP requests to the monitoring and analytics services
type Server struct {
	monitor   Monitor
	analytics *analytics.Engine
	metrics   http.Handler
	router    *mux.Router
	checks    map[string]HealthCheck

	cycleRunning atomic.Bool
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// New creates the server; metrics may be nil to disable /metrics
func New(monitor Monitor, engine *analytics.Engine, metrics http.Handler) *Server {
	s := &Server{
		monitor:   monitor,
		analytics: engine,
		metrics:   metrics,
		router:    mux.NewRouter(),
		checks:    make(map[string]HealthCheck),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/trigger", s.handleTrigger).Methods("POST")

	s.router.HandleFunc("/profiles/{id}/check", s.handleCheckProfile).Methods("POST")
	s.router.HandleFunc("/profiles/{id}/status", s.handleProfileStatus).Methods("GET")

	s.router.HandleFunc("/users/{userID}/dashboard", s.handleDashboard).Methods("GET")
	s.router.HandleFunc("/users/{userID}/top-changes", s.handleTopChanges).Methods("GET")
	s.router.HandleFunc("/users/{userID}/profiles/{handle}/growth", s.handleGrowth).Methods("GET")
	s.router.HandleFunc("/users/{userID}/profiles/{handle}/insights", s.handleInsights).Methods("GET")
}

// AddHealthCheck makes /health report 503 while check fails
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router with the service timeouts
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			logrus.WithError(err).WithField("check", name).Warn("Health check failed")
			failed[name] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(failed) > 0 {
		body["failed"] = failed
	}
	writeJSON(w, code, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.LastReport()
	if report == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":       "No monitoring cycle has run yet",
			"cycle_running": s.cycleRunning.Load(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"last_cycle":    report,
		"cycle_running": s.cycleRunning.Load(),
	})
}

// handleTrigger starts a cycle in the background; a second trigger while one runs is refused
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.cycleRunning.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a monitoring cycle is already running"})
		return
	}

	go func() {
		defer s.cycleRunning.Store(false)
		report := s.monitor.RunCycle(context.Background())
		if report.Error != "" {
			logrus.Errorf("Manual monitoring cycle failed: %s", report.Error)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Monitoring cycle triggered"})
}

func (s *Server) handleCheckProfile(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.monitor.CheckProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil && outcome == nil {
		writeError(w, err)
		return
	}
	// Source failures are reported inside the outcome
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleProfileStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.monitor.ProfileStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.analytics.Dashboard(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleTopChanges(w http.ResponseWriter, r *http.Request) {
	hours, err := intQuery(r, "hours", 24)
	if err != nil {
		writeError(w, err)
		return
	}
	changes, err := s.analytics.TopChanges(r.Context(), mux.Vars(r)["userID"], hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	growth, err := s.analytics.GrowthAnalysis(r.Context(), vars["userID"], vars["handle"], days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, growth)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	insights, err := s.analytics.Insights(r.Context(), vars["userID"], vars["handle"], days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func intQuery(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, models.NewValidationError(key, "must be an integer")
	}
	return parsed, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case models.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrProfileNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrAlertNotFound):
		status = http.StatusNotFound
	default:
		logrus.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Warn("Failed to write response")
	}
}
