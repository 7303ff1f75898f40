package workershandler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrpay/internal/domain/audit"
	"hrpay/internal/domain/auth"
	"hrpay/internal/domain/workers"
	"hrpay/internal/transport/http/api"
	"hrpay/internal/transport/http/middleware"
	"hrpay/internal/transport/http/shared"
)

type Handler struct {
	Store *workers.Store
	Audit *audit.Service
	Perms middleware.PermissionStore
}

func NewHandler(store *workers.Store, auditSvc *audit.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Store: store, Audit: auditSvc, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/workers", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermWorkersRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermWorkersWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermWorkersRead, h.Perms)).Get("/{workerID}", h.handleGet)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	items, total, err := h.Store.ListWorkers(r.Context(), user.CompanyID, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "worker_list_failed", "failed to list workers", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

type createWorkerPayload struct {
	UserID       string `json:"userId"`
	WorkerNumber string `json:"workerNumber"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	BankAccount  string `json:"bankAccount"`
	Currency     string `json:"currency"`
	StartDate    string `json:"startDate"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload createWorkerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	validator := shared.NewValidator()
	validator.Required("firstName", payload.FirstName, "firstName is required")
	validator.Required("lastName", payload.LastName, "lastName is required")
	validator.Required("email", payload.Email, "email is required")
	startDate, dateOK := validator.Date("startDate", payload.StartDate)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	worker := workers.Worker{
		UserID:       strings.TrimSpace(payload.UserID),
		WorkerNumber: strings.TrimSpace(payload.WorkerNumber),
		FirstName:    strings.TrimSpace(payload.FirstName),
		LastName:     strings.TrimSpace(payload.LastName),
		Email:        strings.TrimSpace(payload.Email),
		Phone:        strings.TrimSpace(payload.Phone),
		BankAccount:  strings.TrimSpace(payload.BankAccount),
		Currency:     strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Status:       workers.StatusActive,
	}
	if worker.Currency == "" {
		worker.Currency = "MYR"
	}
	if dateOK {
		worker.StartDate = &startDate
	}

	id, err := h.Store.CreateWorker(r.Context(), user.CompanyID, worker)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "worker_create_failed", "failed to create worker", middleware.GetRequestID(r.Context()))
		return
	}
	worker.ID = id

	if err := h.Audit.Record(r.Context(), user.CompanyID, user.UserID, "worker.create", "worker", id, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		log.Printf("audit worker.create failed: %v", err)
	}

	api.Created(w, worker, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	worker, err := h.Store.GetWorker(r.Context(), user.CompanyID, chi.URLParam(r, "workerID"))
	if errors.Is(err, workers.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "worker not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "worker_get_failed", "failed to load worker", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, worker, middleware.GetRequestID(r.Context()))
}
