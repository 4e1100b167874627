// Package api provides the HTTP surface of the provisioning daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/metrics"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/provision"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the provisioning API. The provision
// call is synchronous: the response body is the finished result, success or
// not. Only request construction errors and duplicate in-flight operations
// are reported through the status code.
type Handler struct {
	provisioner *provision.Provisioner
	store       store.Store
	adapter     infra.Adapter
	metrics     http.Handler
	logger      *slog.Logger
}

// NewHandler creates a new API handler. A nil metrics handler serves the
// process default prometheus registry.
func NewHandler(p *provision.Provisioner, s store.Store, adapter infra.Adapter, metricsHandler http.Handler, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	if metricsHandler == nil {
		metricsHandler = metrics.Handler(nil)
	}
	return &Handler{
		provisioner: p,
		store:       s,
		adapter:     adapter,
		metrics:     metricsHandler,
		logger:      l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health and scrape endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Method(http.MethodGet, "/metrics", h.metrics)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/operations", h.handleOperations)
		r.Get("/results", h.handleListResults)

		r.Route("/tenants/{isp_id}", func(r chi.Router) {
			r.Post("/provision", h.handleProvision)
			r.Get("/provision/status", h.handleStatus)
			r.Get("/provision/result", h.handleLatestResult)
			r.Get("/provision/results", h.handleTenantResults)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json. The metrics
// handler overrides it with the prometheus exposition type.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Check store (implicit - if we got here, store was created)
	checks["store"] = "ok"

	// Check the container platform
	if err := h.adapter.Ready(r.Context()); err != nil {
		checks["infrastructure"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["infrastructure"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Provision Handlers
// =============================================================================

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	ispID := chi.URLParam(r, "isp_id")

	var body ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	opts := domain.DefaultRequestOptions()
	// A request that names no platform gets the one this daemon serves.
	opts.InfrastructureType = h.adapter.Platform()
	if body.InfrastructureType != "" {
		opts.InfrastructureType = domain.InfrastructureType(body.InfrastructureType)
	}
	if body.Region != "" {
		opts.Region = body.Region
	}
	if body.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(body.TimeoutSeconds) * time.Second
	}
	opts.CustomResources = body.CustomResources
	opts.EnableRollback = !body.DisableRollback

	req, err := domain.NewProvisioningRequest(ispID, body.CustomerCount, body.Config, opts)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	result, err := h.provisioner.ProvisionISPContainer(r.Context(), req)
	if err != nil {
		if errors.Is(err, provision.ErrOperationInFlight) {
			h.writeError(w, http.StatusConflict, err.Error(), "operation_in_flight")
			return
		}
		h.logger.Error("provisioning call rejected", "isp_id", ispID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "provisioning call rejected", "internal_error")
		return
	}

	// Persist even when the client has gone away; the row is the post-mortem.
	if err := h.store.CreateResult(context.Background(), result); err != nil {
		h.logger.Error("failed to persist provisioning result",
			"request_id", result.RequestID, "isp_id", ispID, "error", err)
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ispID := chi.URLParam(r, "isp_id")

	snapshot, ok := h.provisioner.Status(ispID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no provisioning operation in flight", "operation_not_found")
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleOperations(w http.ResponseWriter, r *http.Request) {
	ops := h.provisioner.ActiveOperations()

	h.writeJSON(w, http.StatusOK, OperationsResponse{
		Operations: ops,
		Total:      len(ops),
	})
}

// =============================================================================
// Result Handlers
// =============================================================================

func (h *Handler) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	ispID := chi.URLParam(r, "isp_id")

	result, err := h.store.GetLatestResultByISP(r.Context(), ispID)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "no provisioning result recorded", "result_not_found")
			return
		}
		h.logger.Error("failed to get result", "isp_id", ispID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get result", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTenantResults(w http.ResponseWriter, r *http.Request) {
	ispID := chi.URLParam(r, "isp_id")
	opts := h.listOptionsFromQuery(r)

	results, err := h.store.ListResultsByISP(r.Context(), ispID, opts)
	if err != nil {
		h.logger.Error("failed to list results", "isp_id", ispID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list results", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, ListResultsResponse{
		Results: results,
		Total:   len(results),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	opts := h.listOptionsFromQuery(r)

	results, err := h.store.ListResults(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list results", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list results", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, ListResultsResponse{
		Results: results,
		Total:   len(results),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) listOptionsFromQuery(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}

	return opts
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
