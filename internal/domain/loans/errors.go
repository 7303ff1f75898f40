package loans

import "errors"

var (
	ErrInvalidTerms       = errors.New("invalid loan terms")
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrNotFound           = errors.New("loan not found")
	ErrDuplicateLoanID    = errors.New("loan id already exists for company")
	ErrDuplicatePayment   = errors.New("payment already recorded for payroll record")
	ErrLoanNotActive      = errors.New("loan is not active")
	ErrWorkerNotInCompany = errors.New("worker does not belong to company")
	ErrVersionConflict    = errors.New("loan was modified concurrently")
)
