package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

type Loan struct {
	ID                string          `json:"id"`
	CompanyID         string          `json:"companyId"`
	WorkerID          string          `json:"workerId"`
	LoanID            string          `json:"loanId"`
	Category          string          `json:"category"`
	PrincipalAmount   decimal.Decimal `json:"principalAmount"`
	InterestRate      decimal.Decimal `json:"interestRate"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	TotalPaidAmount   decimal.Decimal `json:"totalPaidAmount"`
	RemainingAmount   decimal.Decimal `json:"remainingAmount"`
	Currency          string          `json:"currency"`
	LoanDate          time.Time       `json:"loanDate"`
	StartDate         *time.Time      `json:"startDate,omitempty"`
	HasInstallments   bool            `json:"hasInstallments"`
	InstallmentType   string          `json:"installmentType,omitempty"`
	InstallmentAmount decimal.Decimal `json:"installmentAmount"`
	InstallmentCount  int             `json:"installmentCount"`
	Installments      []Installment   `json:"installments"`
	Status            string          `json:"status"`
	Description       string          `json:"description,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	ApprovedBy        string          `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time      `json:"approvedAt,omitempty"`
	CreatedBy         string          `json:"createdBy,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	Version           int             `json:"-"`
}

type Installment struct {
	Number          int             `json:"number"`
	Amount          decimal.Decimal `json:"amount"`
	DueDate         time.Time       `json:"dueDate"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	Status          string          `json:"status"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	PayrollRecordID string          `json:"payrollRecordId,omitempty"`
}

type Draft struct {
	CompanyID         string
	WorkerID          string
	LoanID            string
	Category          string
	PrincipalAmount   decimal.Decimal
	InterestRate      decimal.Decimal
	Currency          string
	LoanDate          time.Time
	StartDate         *time.Time
	HasInstallments   bool
	InstallmentType   string
	InstallmentAmount decimal.Decimal
	InstallmentCount  int
	Description       string
	Notes             string
}

type Patch struct {
	PrincipalAmount   *decimal.Decimal
	InterestRate      *decimal.Decimal
	StartDate         *time.Time
	HasInstallments   *bool
	InstallmentType   *string
	InstallmentAmount *decimal.Decimal
	InstallmentCount  *int
	Status            *string
	Description       *string
	Notes             *string
	ApprovedBy        *string
}

type Payment struct {
	ID                string          `json:"id"`
	LoanID            string          `json:"loanId"`
	Amount            decimal.Decimal `json:"amount"`
	InstallmentNumber *int            `json:"installmentNumber,omitempty"`
	PayrollRecordID   string          `json:"payrollRecordId,omitempty"`
	RecordedAt        time.Time       `json:"recordedAt"`
}

type Filter struct {
	CompanyID string
	WorkerID  string
	Status    string
	Category  string
	Limit     int
	Offset    int
}
