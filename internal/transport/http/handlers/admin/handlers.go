package adminhandler

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"hrpay/internal/domain/audit"
	"hrpay/internal/domain/auth"
	"hrpay/internal/domain/loans"
	"hrpay/internal/platform/jobs"
	"hrpay/internal/platform/metrics"
	"hrpay/internal/transport/http/api"
	"hrpay/internal/transport/http/middleware"
	"hrpay/internal/transport/http/shared"
)

type Handler struct {
	Audit   *audit.Service
	Jobs    *jobs.Service
	Metrics *metrics.Collector
	Perms   middleware.PermissionStore
}

func NewHandler(auditSvc *audit.Service, jobSvc *jobs.Service, collector *metrics.Collector, perms middleware.PermissionStore) *Handler {
	return &Handler{Audit: auditSvc, Jobs: jobSvc, Metrics: collector, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events/export", h.handleExportEvents)
	})
	r.Route("/admin", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Get("/metrics", h.handleMetrics)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Post("/jobs/overdue-sweep", h.handleOverdueSweep)
	})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	action := r.URL.Query().Get("action")
	entity := r.URL.Query().Get("entityType")
	actor := r.URL.Query().Get("actorUserId")
	includeDetails := r.URL.Query().Get("includeDetails") == "true"
	filter := audit.Filter{Action: action, EntityType: entity, ActorUser: actor}
	total, err := h.Audit.Count(r.Context(), user.CompanyID, filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	}

	events, err := h.Audit.List(r.Context(), user.CompanyID, filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	events, err := h.Audit.ListExport(r.Context(), user.CompanyID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_user_id", "action", "entity_type", "entity_id", "request_id", "ip", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		if err := writer.Write([]string{evt.ID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.RequestID, evt.IP, fmt.Sprint(evt.CreatedAt)}); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleOverdueSweep(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	details, err := h.Jobs.RunNow(r.Context(), jobs.JobOverdueSweep, user.CompanyID, func(ctx context.Context) (any, error) {
		marked, err := loans.SweepOverdue(ctx, h.Jobs.DB, user.CompanyID, time.Now())
		return map[string]any{"markedOverdue": marked}, err
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "overdue_sweep_failed", "overdue sweep failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}
