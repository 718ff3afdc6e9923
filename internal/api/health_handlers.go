package api

import (
	"context"
	"net/http"
	"time"

	"github.com/odvcencio/codehub/internal/service"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type adminHealthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Database  adminHealthDatabase `json:"database"`
	Errors    []string            `json:"errors,omitempty"`
}

type adminHealthDatabase struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	WaitDurationMS  int64 `json:"wait_duration_ms"`
	MaxIdleClosed   int64 `json:"max_idle_closed"`
	MaxLifetime     int64 `json:"max_lifetime_closed"`
	MaxIdleTime     int64 `json:"max_idle_time_closed"`
}

func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	resp := adminHealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}
	if err := s.db.Ping(r.Context()); err != nil {
		resp.Errors = append(resp.Errors, "database_ping")
	}
	stats := s.db.DBStats()
	resp.Database = adminHealthDatabase{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDurationMS:  stats.WaitDuration.Milliseconds(),
		MaxIdleClosed:   stats.MaxIdleClosed,
		MaxLifetime:     stats.MaxLifetimeClosed,
		MaxIdleTime:     stats.MaxIdleTimeClosed,
	}
	if len(resp.Errors) > 0 {
		resp.Status = "degraded"
		jsonResponse(w, http.StatusServiceUnavailable, resp)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Reconcile.ReconcileAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.svc.Import == nil {
		jsonError(w, "github import is not configured", http.StatusNotImplemented)
		return
	}
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.ImportInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.svc.Import.Import(r.Context(), actor, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}
