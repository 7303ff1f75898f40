package loans

import "context"

// StoreAPI persists Loan aggregates. UpdateLoan compares the expected
// version and rewrites the installment rows with the aggregate in one
// transaction; a stale version surfaces ErrVersionConflict. A non-nil
// payment is inserted in the same transaction and deduplicated on
// (loan, payrollRecordId).
type StoreAPI interface {
	NextSequence(ctx context.Context, companyID, category string) (int, error)
	CreateLoan(ctx context.Context, loan *Loan) error
	GetLoan(ctx context.Context, companyID, loanID string) (*Loan, error)
	FindLoans(ctx context.Context, filter Filter) ([]Loan, int, error)
	UpdateLoan(ctx context.Context, loan *Loan, expectedVersion int, payment *Payment) error
	ListPayments(ctx context.Context, companyID, loanID string) ([]Payment, error)
}

// WorkerDirectory resolves workers for company membership checks.
type WorkerDirectory interface {
	WorkerCompany(ctx context.Context, workerID string) (string, error)
}
