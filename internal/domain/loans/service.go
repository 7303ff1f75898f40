package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Mutations are optimistic: reload and reapply on version conflict.
const maxMutationRetries = 3

type Service struct {
	store   StoreAPI
	workers WorkerDirectory
	now     func() time.Time
}

func NewService(store StoreAPI, workers WorkerDirectory) *Service {
	return &Service{store: store, workers: workers, now: time.Now}
}

func FormatLoanID(category string, sequence int) string {
	prefix := PrefixAdvance
	if category == CategoryLoan {
		prefix = PrefixLoan
	}
	return fmt.Sprintf("%s%04d", prefix, sequence)
}

func (s *Service) Create(ctx context.Context, draft Draft, actorID string) (*Loan, error) {
	if draft.CompanyID == "" || draft.WorkerID == "" {
		return nil, ErrInvalidTerms
	}
	category := draft.Category
	if category == "" {
		category = CategoryAdvance
	}
	if category != CategoryLoan && category != CategoryAdvance {
		return nil, ErrInvalidTerms
	}
	if s.workers != nil {
		companyID, err := s.workers.WorkerCompany(ctx, draft.WorkerID)
		if err != nil {
			return nil, err
		}
		if companyID != draft.CompanyID {
			return nil, ErrWorkerNotInCompany
		}
	}

	totalAmount, err := ComputeTotalAmount(draft.PrincipalAmount, draft.InterestRate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	loanDate := draft.LoanDate
	if loanDate.IsZero() {
		loanDate = now
	}
	currency := draft.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	loan := &Loan{
		CompanyID:         draft.CompanyID,
		WorkerID:          draft.WorkerID,
		LoanID:            draft.LoanID,
		Category:          category,
		PrincipalAmount:   draft.PrincipalAmount.Round(2),
		InterestRate:      draft.InterestRate,
		TotalAmount:       totalAmount,
		TotalPaidAmount:   decimal.Zero,
		RemainingAmount:   totalAmount,
		Currency:          currency,
		LoanDate:          loanDate,
		StartDate:         draft.StartDate,
		HasInstallments:   draft.HasInstallments,
		InstallmentType:   draft.InstallmentType,
		InstallmentAmount: draft.InstallmentAmount,
		InstallmentCount:  draft.InstallmentCount,
		Status:            StatusActive,
		Description:       draft.Description,
		Notes:             draft.Notes,
		CreatedBy:         actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	if draft.HasInstallments {
		if draft.StartDate == nil {
			return nil, ErrInvalidTerms
		}
		installments, err := GenerateSchedule(totalAmount, ScheduleConfig{
			Type:      draft.InstallmentType,
			Amount:    draft.InstallmentAmount,
			Count:     draft.InstallmentCount,
			StartDate: *draft.StartDate,
		})
		if err != nil {
			return nil, err
		}
		loan.Installments = installments
		loan.InstallmentCount = len(installments)
	}

	if loan.LoanID == "" {
		sequence, err := s.store.NextSequence(ctx, loan.CompanyID, category)
		if err != nil {
			return nil, err
		}
		loan.LoanID = FormatLoanID(category, sequence)
	}

	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *Service) Get(ctx context.Context, companyID, loanID string) (*Loan, error) {
	return s.store.GetLoan(ctx, companyID, loanID)
}

func (s *Service) Find(ctx context.Context, filter Filter) ([]Loan, int, error) {
	return s.store.FindLoans(ctx, filter)
}

func (s *Service) Payments(ctx context.Context, companyID, loanID string) ([]Payment, error) {
	return s.store.ListPayments(ctx, companyID, loanID)
}

func (s *Service) Patch(ctx context.Context, companyID, loanID string, changes Patch, actorID string) (*Loan, error) {
	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		loan, err := s.store.GetLoan(ctx, companyID, loanID)
		if err != nil {
			return nil, err
		}
		if err := s.applyPatch(loan, changes); err != nil {
			return nil, err
		}
		loan.UpdatedAt = s.now().UTC()
		if err := s.store.UpdateLoan(ctx, loan, loan.Version, nil); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		loan.Version++
		return loan, nil
	}
	return nil, ErrVersionConflict
}

func (s *Service) applyPatch(loan *Loan, changes Patch) error {
	termsChanged := changes.PrincipalAmount != nil || changes.InterestRate != nil
	if changes.PrincipalAmount != nil {
		loan.PrincipalAmount = changes.PrincipalAmount.Round(2)
	}
	if changes.InterestRate != nil {
		loan.InterestRate = *changes.InterestRate
	}
	if termsChanged {
		totalAmount, err := ComputeTotalAmount(loan.PrincipalAmount, loan.InterestRate)
		if err != nil {
			return err
		}
		loan.TotalAmount = totalAmount
		// Not clamped: a reduced principal below what was already paid
		// legally yields a negative remaining amount.
		loan.RemainingAmount = totalAmount.Sub(loan.TotalPaidAmount)
	}

	if changes.HasInstallments != nil {
		loan.HasInstallments = *changes.HasInstallments
	}
	if changes.StartDate != nil {
		loan.StartDate = changes.StartDate
	}
	if changes.InstallmentType != nil {
		loan.InstallmentType = *changes.InstallmentType
	}
	if changes.InstallmentAmount != nil {
		loan.InstallmentAmount = changes.InstallmentAmount.Round(2)
	}
	if changes.InstallmentCount != nil {
		loan.InstallmentCount = *changes.InstallmentCount
	}

	scheduleTouched := termsChanged ||
		changes.HasInstallments != nil ||
		changes.StartDate != nil ||
		changes.InstallmentType != nil ||
		changes.InstallmentAmount != nil ||
		changes.InstallmentCount != nil
	if loan.HasInstallments && scheduleTouched {
		if loan.StartDate == nil {
			return ErrInvalidTerms
		}
		installments, err := GenerateSchedule(loan.TotalAmount, ScheduleConfig{
			Type:      loan.InstallmentType,
			Amount:    loan.InstallmentAmount,
			Count:     loan.InstallmentCount,
			StartDate: *loan.StartDate,
		})
		if err != nil {
			return err
		}
		loan.Installments = installments
		loan.InstallmentCount = len(installments)
	}
	if !loan.HasInstallments {
		loan.Installments = nil
	}

	if changes.Status != nil && *changes.Status != loan.Status {
		if loan.Status != StatusActive {
			return ErrLoanNotActive
		}
		switch *changes.Status {
		case StatusCancelled, StatusDefaulted:
			loan.Status = *changes.Status
		default:
			return ErrInvalidTerms
		}
	}
	if changes.Description != nil {
		loan.Description = *changes.Description
	}
	if changes.Notes != nil {
		loan.Notes = *changes.Notes
	}
	if changes.ApprovedBy != nil {
		approvedAt := s.now().UTC()
		loan.ApprovedBy = *changes.ApprovedBy
		loan.ApprovedAt = &approvedAt
	}
	return nil
}

func (s *Service) RecordPayment(ctx context.Context, companyID, loanID string, amount decimal.Decimal, installmentNumber *int, payrollRecordID string) (*Loan, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidPayment
	}
	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		loan, err := s.store.GetLoan(ctx, companyID, loanID)
		if err != nil {
			return nil, err
		}
		if loan.Status != StatusActive {
			return nil, ErrLoanNotActive
		}

		now := s.now().UTC()
		loan.TotalPaidAmount = loan.TotalPaidAmount.Add(amount)
		loan.RemainingAmount = loan.TotalAmount.Sub(loan.TotalPaidAmount)

		if installmentNumber != nil && loan.HasInstallments {
			idx := -1
			for i := range loan.Installments {
				if loan.Installments[i].Number == *installmentNumber {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, ErrInvalidPayment
			}
			installment := &loan.Installments[idx]
			installment.PaidAmount = installment.PaidAmount.Add(amount)
			installment.PaidAt = &now
			if payrollRecordID != "" {
				installment.PayrollRecordID = payrollRecordID
			}
			if installment.PaidAmount.GreaterThanOrEqual(installment.Amount) {
				installment.Status = InstallmentStatusPaid
			}
		}

		if loan.RemainingAmount.Sign() <= 0 {
			loan.Status = StatusCompleted
			if loan.CompletedAt == nil {
				loan.CompletedAt = &now
			}
		}
		loan.UpdatedAt = now

		payment := &Payment{
			LoanID:            loan.ID,
			Amount:            amount,
			InstallmentNumber: installmentNumber,
			PayrollRecordID:   payrollRecordID,
			RecordedAt:        now,
		}
		if err := s.store.UpdateLoan(ctx, loan, loan.Version, payment); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		loan.Version++
		return loan, nil
	}
	return nil, ErrVersionConflict
}
