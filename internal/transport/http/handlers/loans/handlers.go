package loanshandler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"hrpay/internal/domain/audit"
	"hrpay/internal/domain/auth"
	"hrpay/internal/domain/loans"
	"hrpay/internal/domain/notifications"
	"hrpay/internal/domain/workers"
	"hrpay/internal/transport/http/api"
	"hrpay/internal/transport/http/middleware"
	"hrpay/internal/transport/http/shared"
)

type Handler struct {
	Service      *loans.Service
	Workers      *workers.Store
	Audit        *audit.Service
	Notify       *notifications.Service
	Idem         *middleware.IdempotencyStore
	Perms        middleware.PermissionStore
	StatementDir string
}

func NewHandler(service *loans.Service, workerStore *workers.Store, auditSvc *audit.Service, notify *notifications.Service, idem *middleware.IdempotencyStore, perms middleware.PermissionStore, statementDir string) *Handler {
	return &Handler{Service: service, Workers: workerStore, Audit: auditSvc, Notify: notify, Idem: idem, Perms: perms, StatementDir: statementDir}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/loans", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermLoansRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermLoansWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermLoansRead, h.Perms)).Get("/{loanID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermLoansWrite, h.Perms)).Patch("/{loanID}", h.handlePatch)
		r.With(middleware.RequirePermission(auth.PermLoansApprove, h.Perms)).Post("/{loanID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermLoansPay, h.Perms)).Post("/{loanID}/payments", h.handleRecordPayment)
		r.With(middleware.RequirePermission(auth.PermLoansRead, h.Perms)).Get("/{loanID}/payments", h.handleListPayments)
		r.With(middleware.RequirePermission(auth.PermLoansRead, h.Perms)).Get("/{loanID}/statement", h.handleStatement)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	filter := loans.Filter{
		CompanyID: user.CompanyID,
		WorkerID:  r.URL.Query().Get("workerId"),
		Status:    strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		Category:  strings.ToLower(strings.TrimSpace(r.URL.Query().Get("category"))),
		Limit:     page.Limit,
		Offset:    page.Offset,
	}

	items, total, err := h.Service.Find(r.Context(), filter)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "loan_list_failed", "failed to list loans", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

type createLoanPayload struct {
	WorkerID          string          `json:"workerId"`
	LoanID            string          `json:"loanId"`
	Category          string          `json:"category"`
	PrincipalAmount   decimal.Decimal `json:"principalAmount"`
	InterestRate      decimal.Decimal `json:"interestRate"`
	Currency          string          `json:"currency"`
	LoanDate          string          `json:"loanDate"`
	StartDate         string          `json:"startDate"`
	HasInstallments   bool            `json:"hasInstallments"`
	InstallmentType   string          `json:"installmentType"`
	InstallmentAmount decimal.Decimal `json:"installmentAmount"`
	InstallmentCount  int             `json:"installmentCount"`
	Description       string          `json:"description"`
	Notes             string          `json:"notes"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "failed to read request body", middleware.GetRequestID(r.Context()))
		return
	}
	var payload createLoanPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	validator := shared.NewValidator()
	validator.Required("workerId", payload.WorkerID, "workerId is required")
	validator.Enum("category", payload.Category, []string{loans.CategoryLoan, loans.CategoryAdvance}, "category must be loan or advance")
	if payload.PrincipalAmount.Sign() < 0 {
		validator.Add("principalAmount", "must not be negative")
	}
	if payload.InterestRate.Sign() < 0 {
		validator.Add("interestRate", "must not be negative")
	}
	var loanDate, startDate time.Time
	if payload.LoanDate != "" {
		loanDate, _ = validator.Date("loanDate", payload.LoanDate)
	}
	if payload.HasInstallments {
		validator.Required("startDate", payload.StartDate, "startDate is required when installments are enabled")
		validator.Enum("installmentType", payload.InstallmentType, []string{loans.InstallmentTypeFixedAmount, loans.InstallmentTypeFixedCount}, "installmentType must be fixed_amount or fixed_count")
	}
	if payload.StartDate != "" {
		startDate, _ = validator.Date("startDate", payload.StartDate)
	}
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash(body)
	if idempotencyKey != "" {
		stored, found, err := h.Idem.Check(r.Context(), user.CompanyID, user.UserID, "loans.create", idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different payload", middleware.GetRequestID(r.Context()))
			return
		}
		if err != nil {
			log.Printf("idempotency check failed: %v", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
			return
		}
	}

	draft := loans.Draft{
		CompanyID:         user.CompanyID,
		WorkerID:          payload.WorkerID,
		LoanID:            strings.TrimSpace(payload.LoanID),
		Category:          strings.ToLower(strings.TrimSpace(payload.Category)),
		PrincipalAmount:   payload.PrincipalAmount,
		InterestRate:      payload.InterestRate,
		Currency:          strings.ToUpper(strings.TrimSpace(payload.Currency)),
		LoanDate:          loanDate,
		HasInstallments:   payload.HasInstallments,
		InstallmentType:   strings.ToLower(strings.TrimSpace(payload.InstallmentType)),
		InstallmentAmount: payload.InstallmentAmount,
		InstallmentCount:  payload.InstallmentCount,
		Description:       payload.Description,
		Notes:             payload.Notes,
	}
	if !startDate.IsZero() {
		draft.StartDate = &startDate
	}

	loan, err := h.Service.Create(r.Context(), draft, user.UserID)
	if err != nil {
		h.failLoanError(w, r, err, "loan_create_failed", "failed to create loan")
		return
	}

	if err := h.Audit.Record(r.Context(), user.CompanyID, user.UserID, "loan.create", "loan", loan.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, loan); err != nil {
		log.Printf("audit loan.create failed: %v", err)
	}
	h.notifyWorker(r, user.CompanyID, loan.WorkerID, notifications.TypeLoanIssued, "Loan issued",
		"A "+loan.Category+" of "+loan.TotalAmount.StringFixed(2)+" "+loan.Currency+" has been issued to you ("+loan.LoanID+").")

	if idempotencyKey != "" {
		encoded, err := json.Marshal(loan)
		if err != nil {
			log.Printf("loan response marshal failed: %v", err)
		} else if err := h.Idem.Save(r.Context(), user.CompanyID, user.UserID, "loans.create", idempotencyKey, requestHash, encoded); err != nil {
			log.Printf("idempotency save failed: %v", err)
		}
	}

	api.Created(w, loan, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	loan, err := h.Service.Get(r.Context(), user.CompanyID, chi.URLParam(r, "loanID"))
	if err != nil {
		h.failLoanError(w, r, err, "loan_get_failed", "failed to load loan")
		return
	}
	api.Success(w, loan, middleware.GetRequestID(r.Context()))
}

type patchLoanPayload struct {
	PrincipalAmount   *decimal.Decimal `json:"principalAmount"`
	InterestRate      *decimal.Decimal `json:"interestRate"`
	StartDate         *string          `json:"startDate"`
	HasInstallments   *bool            `json:"hasInstallments"`
	InstallmentType   *string          `json:"installmentType"`
	InstallmentAmount *decimal.Decimal `json:"installmentAmount"`
	InstallmentCount  *int             `json:"installmentCount"`
	Status            *string          `json:"status"`
	Description       *string          `json:"description"`
	Notes             *string          `json:"notes"`
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload patchLoanPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	changes := loans.Patch{
		PrincipalAmount:   payload.PrincipalAmount,
		InterestRate:      payload.InterestRate,
		HasInstallments:   payload.HasInstallments,
		InstallmentAmount: payload.InstallmentAmount,
		InstallmentCount:  payload.InstallmentCount,
		Description:       payload.Description,
		Notes:             payload.Notes,
	}
	if payload.StartDate != nil {
		validator := shared.NewValidator()
		startDate, ok := validator.Date("startDate", *payload.StartDate)
		if validator.Reject(w, middleware.GetRequestID(r.Context())) {
			return
		}
		if ok {
			changes.StartDate = &startDate
		}
	}
	if payload.InstallmentType != nil {
		normalized := strings.ToLower(strings.TrimSpace(*payload.InstallmentType))
		changes.InstallmentType = &normalized
	}
	if payload.Status != nil {
		normalized := strings.ToLower(strings.TrimSpace(*payload.Status))
		changes.Status = &normalized
	}

	loanID := chi.URLParam(r, "loanID")
	before, err := h.Service.Get(r.Context(), user.CompanyID, loanID)
	if err != nil {
		h.failLoanError(w, r, err, "loan_patch_failed", "failed to update loan")
		return
	}

	loan, err := h.Service.Patch(r.Context(), user.CompanyID, loanID, changes, user.UserID)
	if err != nil {
		h.failLoanError(w, r, err, "loan_patch_failed", "failed to update loan")
		return
	}

	if err := h.Audit.Record(r.Context(), user.CompanyID, user.UserID, "loan.patch", "loan", loan.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, loan); err != nil {
		log.Printf("audit loan.patch failed: %v", err)
	}
	if loan.Status == loans.StatusCancelled && before.Status != loans.StatusCancelled {
		h.notifyWorker(r, user.CompanyID, loan.WorkerID, notifications.TypeLoanCancelled, "Loan cancelled",
			"Your "+loan.Category+" "+loan.LoanID+" has been cancelled.")
	}

	api.Success(w, loan, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	loanID := chi.URLParam(r, "loanID")
	approvedBy := user.UserID
	loan, err := h.Service.Patch(r.Context(), user.CompanyID, loanID, loans.Patch{ApprovedBy: &approvedBy}, user.UserID)
	if err != nil {
		h.failLoanError(w, r, err, "loan_approve_failed", "failed to approve loan")
		return
	}

	if err := h.Audit.Record(r.Context(), user.CompanyID, user.UserID, "loan.approve", "loan", loan.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		log.Printf("audit loan.approve failed: %v", err)
	}
	h.notifyWorker(r, user.CompanyID, loan.WorkerID, notifications.TypeLoanApproved, "Loan approved",
		"Your "+loan.Category+" "+loan.LoanID+" has been approved.")

	api.Success(w, loan, middleware.GetRequestID(r.Context()))
}

type paymentPayload struct {
	Amount            decimal.Decimal `json:"amount"`
	InstallmentNumber *int            `json:"installmentNumber"`
	PayrollRecordID   string          `json:"payrollRecordId"`
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "failed to read request body", middleware.GetRequestID(r.Context()))
		return
	}
	var payload paymentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	loanID := chi.URLParam(r, "loanID")
	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash(append([]byte(loanID+":"), body...))
	if idempotencyKey != "" {
		stored, found, err := h.Idem.Check(r.Context(), user.CompanyID, user.UserID, "loans.payment", idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different payload", middleware.GetRequestID(r.Context()))
			return
		}
		if err != nil {
			log.Printf("idempotency check failed: %v", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
			return
		}
	}

	loan, err := h.Service.RecordPayment(r.Context(), user.CompanyID, loanID, payload.Amount, payload.InstallmentNumber, strings.TrimSpace(payload.PayrollRecordID))
	if err != nil {
		h.failLoanError(w, r, err, "loan_payment_failed", "failed to record payment")
		return
	}

	if err := h.Audit.Record(r.Context(), user.CompanyID, user.UserID, "loan.payment", "loan", loan.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
		log.Printf("audit loan.payment failed: %v", err)
	}
	h.notifyWorker(r, user.CompanyID, loan.WorkerID, notifications.TypePaymentRecorded, "Payment recorded",
		"A payment of "+payload.Amount.StringFixed(2)+" "+loan.Currency+" was recorded against "+loan.LoanID+".")
	if loan.Status == loans.StatusCompleted {
		h.notifyWorker(r, user.CompanyID, loan.WorkerID, notifications.TypeLoanCompleted, "Loan settled",
			"Your "+loan.Category+" "+loan.LoanID+" is fully repaid.")
	}

	if idempotencyKey != "" {
		encoded, err := json.Marshal(loan)
		if err != nil {
			log.Printf("payment response marshal failed: %v", err)
		} else if err := h.Idem.Save(r.Context(), user.CompanyID, user.UserID, "loans.payment", idempotencyKey, requestHash, encoded); err != nil {
			log.Printf("idempotency save failed: %v", err)
		}
	}

	api.Success(w, loan, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	payments, err := h.Service.Payments(r.Context(), user.CompanyID, chi.URLParam(r, "loanID"))
	if err != nil {
		h.failLoanError(w, r, err, "loan_payments_failed", "failed to list payments")
		return
	}
	api.Success(w, payments, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	loan, err := h.Service.Get(r.Context(), user.CompanyID, chi.URLParam(r, "loanID"))
	if err != nil {
		h.failLoanError(w, r, err, "loan_statement_failed", "failed to load loan")
		return
	}

	workerName := loan.WorkerID
	if worker, err := h.Workers.GetWorker(r.Context(), user.CompanyID, loan.WorkerID); err == nil {
		workerName = worker.FirstName + " " + worker.LastName
	}

	filePath, err := loans.WriteStatementPDF(loan, workerName, h.StatementDir)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "loan_statement_failed", "failed to render statement", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+loan.LoanID+".pdf")
	http.ServeFile(w, r, filePath)
}

func (h *Handler) notifyWorker(r *http.Request, companyID, workerID, ntype, title, body string) {
	userID, err := h.Workers.WorkerUserID(r.Context(), companyID, workerID)
	if err != nil {
		log.Printf("loan notification user lookup failed: %v", err)
		return
	}
	if userID == "" {
		return
	}
	if err := h.Notify.Create(r.Context(), companyID, userID, ntype, title, body); err != nil {
		log.Printf("loan notification failed: %v", err)
	}
}

func (h *Handler) failLoanError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, loans.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "loan not found", requestID)
	case errors.Is(err, workers.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "worker not found", requestID)
	case errors.Is(err, loans.ErrInvalidTerms):
		api.Fail(w, http.StatusBadRequest, "invalid_terms", "loan terms are invalid", requestID)
	case errors.Is(err, loans.ErrInvalidPayment):
		api.Fail(w, http.StatusBadRequest, "invalid_payment", "payment is invalid", requestID)
	case errors.Is(err, loans.ErrWorkerNotInCompany):
		api.Fail(w, http.StatusBadRequest, "worker_mismatch", "worker does not belong to this company", requestID)
	case errors.Is(err, loans.ErrLoanNotActive):
		api.Fail(w, http.StatusConflict, "loan_not_active", "loan is not active", requestID)
	case errors.Is(err, loans.ErrDuplicateLoanID):
		api.Fail(w, http.StatusConflict, "duplicate_loan_id", "loan id already exists", requestID)
	case errors.Is(err, loans.ErrDuplicatePayment):
		api.Fail(w, http.StatusConflict, "duplicate_payment", "payment was already recorded for this payroll record", requestID)
	case errors.Is(err, loans.ErrVersionConflict):
		api.Fail(w, http.StatusConflict, "version_conflict", "loan was modified concurrently", requestID)
	default:
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}
