// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/appraisal/internal/adapters/provider"
	service "github.com/okian/appraisal/internal/app"
	"github.com/okian/appraisal/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateReport(ctx context.Context, owner string, assetIDs []string) (types.ReportSummary, error)
	GetReport(ctx context.Context, id string) (types.ReportSummary, error)
	Advance(ctx context.Context, id string) (types.Progress, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	reportsHandler *ReportsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		reportsHandler: NewReportsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /reports", MetricsMiddleware(s.reportsHandler.HandleCreate, "reports_create"))
	mux.HandleFunc("GET /reports/{id}", MetricsMiddleware(s.reportsHandler.HandleGet, "reports_get"))
	mux.HandleFunc("POST /reports/{id}/advance", MetricsMiddleware(s.reportsHandler.HandleAdvance, "reports_advance"))
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

// writeServiceError translates a service error into a status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrReportNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrReportExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, service.ErrConcurrentAdvance):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrMetadataUnavailable),
		errors.Is(err, service.ErrInventoryUnavailable),
		errors.Is(err, provider.ErrTransient),
		errors.Is(err, provider.ErrPermanent):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
