package loanshandler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hrpay/internal/domain/loans"
	"hrpay/internal/domain/workers"
)

func TestFailLoanErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", loans.ErrNotFound, http.StatusNotFound},
		{"worker not found", workers.ErrNotFound, http.StatusNotFound},
		{"invalid terms", loans.ErrInvalidTerms, http.StatusBadRequest},
		{"invalid payment", loans.ErrInvalidPayment, http.StatusBadRequest},
		{"worker mismatch", loans.ErrWorkerNotInCompany, http.StatusBadRequest},
		{"not active", loans.ErrLoanNotActive, http.StatusConflict},
		{"duplicate loan id", loans.ErrDuplicateLoanID, http.StatusConflict},
		{"duplicate payment", loans.ErrDuplicatePayment, http.StatusConflict},
		{"version conflict", loans.ErrVersionConflict, http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	h := &Handler{}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/loans/LOAN0001", nil)
			h.failLoanError(rec, req, tc.err, "loan_failed", "failed")
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
