package loans

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *Store) NextSequence(ctx context.Context, companyID, category string) (int, error) {
	var value int
	err := s.DB.QueryRow(ctx, `
    INSERT INTO loan_sequences (company_id, category, value)
    VALUES ($1,$2,1)
    ON CONFLICT (company_id, category)
    DO UPDATE SET value = loan_sequences.value + 1
    RETURNING value
  `, companyID, category).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Store) CreateLoan(ctx context.Context, loan *Loan) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
    INSERT INTO loans (company_id, worker_id, loan_id, category,
                       principal_amount, interest_rate, total_amount, total_paid_amount, remaining_amount,
                       currency, loan_date, start_date, has_installments,
                       installment_type, installment_amount, installment_count,
                       status, description, notes, created_by, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
    RETURNING id
  `, loan.CompanyID, loan.WorkerID, loan.LoanID, loan.Category,
		loan.PrincipalAmount, loan.InterestRate, loan.TotalAmount, loan.TotalPaidAmount, loan.RemainingAmount,
		loan.Currency, loan.LoanDate, loan.StartDate, loan.HasInstallments,
		nullIfEmpty(loan.InstallmentType), loan.InstallmentAmount, loan.InstallmentCount,
		loan.Status, loan.Description, loan.Notes, nullIfEmpty(loan.CreatedBy), loan.Version,
		loan.CreatedAt, loan.UpdatedAt).Scan(&loan.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateLoanID
		}
		return err
	}

	if err := insertInstallments(ctx, tx, loan.ID, loan.Installments); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetLoan(ctx context.Context, companyID, loanID string) (*Loan, error) {
	loan, err := scanLoan(s.DB.QueryRow(ctx, `
    SELECT `+loanColumns+`
    FROM loans
    WHERE company_id = $1 AND (loan_id = $2 OR id::text = $2)
  `, companyID, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	installments, err := s.loadInstallments(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	loan.Installments = installments
	return loan, nil
}

func (s *Store) FindLoans(ctx context.Context, filter Filter) ([]Loan, int, error) {
	where := " WHERE company_id = $1"
	args := []any{filter.CompanyID}
	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		where += " AND worker_id = $" + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += " AND status = $" + itoa(len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += " AND category = $" + itoa(len(args))
	}

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM loans"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + loanColumns + " FROM loans" + where + " ORDER BY created_at DESC"
	query += " LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var loans []Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, 0, err
		}
		loans = append(loans, *loan)
	}
	return loans, total, nil
}

func (s *Store) UpdateLoan(ctx context.Context, loan *Loan, expectedVersion int, payment *Payment) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
    UPDATE loans
    SET worker_id = $1, loan_id = $2, category = $3,
        principal_amount = $4, interest_rate = $5, total_amount = $6,
        total_paid_amount = $7, remaining_amount = $8,
        currency = $9, loan_date = $10, start_date = $11, has_installments = $12,
        installment_type = $13, installment_amount = $14, installment_count = $15,
        status = $16, description = $17, notes = $18, approved_by = $19, approved_at = $20,
        completed_at = $21, updated_at = $22, version = version + 1
    WHERE id = $23 AND company_id = $24 AND version = $25
  `, loan.WorkerID, loan.LoanID, loan.Category,
		loan.PrincipalAmount, loan.InterestRate, loan.TotalAmount,
		loan.TotalPaidAmount, loan.RemainingAmount,
		loan.Currency, loan.LoanDate, loan.StartDate, loan.HasInstallments,
		nullIfEmpty(loan.InstallmentType), loan.InstallmentAmount, loan.InstallmentCount,
		loan.Status, loan.Description, loan.Notes, nullIfEmpty(loan.ApprovedBy), loan.ApprovedAt,
		loan.CompletedAt, loan.UpdatedAt,
		loan.ID, loan.CompanyID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1 AND company_id = $2)", loan.ID, loan.CompanyID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, "DELETE FROM loan_installments WHERE loan_id = $1", loan.ID); err != nil {
		return err
	}
	if err := insertInstallments(ctx, tx, loan.ID, loan.Installments); err != nil {
		return err
	}

	if payment != nil {
		_, err := tx.Exec(ctx, `
      INSERT INTO loan_payments (company_id, loan_id, amount, installment_number, payroll_record_id, recorded_at)
      VALUES ($1,$2,$3,$4,$5,$6)
    `, loan.CompanyID, loan.ID, payment.Amount, payment.InstallmentNumber, nullIfEmpty(payment.PayrollRecordID), payment.RecordedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicatePayment
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListPayments(ctx context.Context, companyID, loanID string) ([]Payment, error) {
	var loanRowID string
	err := s.DB.QueryRow(ctx, `
    SELECT id FROM loans WHERE company_id = $1 AND (loan_id = $2 OR id::text = $2)
  `, companyID, loanID).Scan(&loanRowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.DB.Query(ctx, `
    SELECT id, loan_id, amount, installment_number, COALESCE(payroll_record_id, ''), recorded_at
    FROM loan_payments
    WHERE loan_id = $1
    ORDER BY recorded_at
  `, loanRowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var payment Payment
		if err := rows.Scan(&payment.ID, &payment.LoanID, &payment.Amount, &payment.InstallmentNumber, &payment.PayrollRecordID, &payment.RecordedAt); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

const loanColumns = `id, company_id, worker_id, loan_id, category,
    principal_amount, interest_rate, total_amount, total_paid_amount, remaining_amount,
    currency, loan_date, start_date, has_installments,
    COALESCE(installment_type, ''), installment_amount, installment_count,
    status, description, notes, COALESCE(approved_by, ''), approved_at, COALESCE(created_by, ''),
    completed_at, version, created_at, updated_at`

func scanLoan(row pgx.Row) (*Loan, error) {
	var loan Loan
	err := row.Scan(&loan.ID, &loan.CompanyID, &loan.WorkerID, &loan.LoanID, &loan.Category,
		&loan.PrincipalAmount, &loan.InterestRate, &loan.TotalAmount, &loan.TotalPaidAmount, &loan.RemainingAmount,
		&loan.Currency, &loan.LoanDate, &loan.StartDate, &loan.HasInstallments,
		&loan.InstallmentType, &loan.InstallmentAmount, &loan.InstallmentCount,
		&loan.Status, &loan.Description, &loan.Notes, &loan.ApprovedBy, &loan.ApprovedAt, &loan.CreatedBy,
		&loan.CompletedAt, &loan.Version, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (s *Store) loadInstallments(ctx context.Context, loanRowID string) ([]Installment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT number, amount, due_date, paid_amount, status, paid_at, COALESCE(payroll_record_id, '')
    FROM loan_installments
    WHERE loan_id = $1
    ORDER BY number
  `, loanRowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var installments []Installment
	for rows.Next() {
		var installment Installment
		if err := rows.Scan(&installment.Number, &installment.Amount, &installment.DueDate, &installment.PaidAmount,
			&installment.Status, &installment.PaidAt, &installment.PayrollRecordID); err != nil {
			return nil, err
		}
		installments = append(installments, installment)
	}
	return installments, nil
}

func insertInstallments(ctx context.Context, tx pgx.Tx, loanRowID string, installments []Installment) error {
	for _, installment := range installments {
		_, err := tx.Exec(ctx, `
      INSERT INTO loan_installments (loan_id, number, amount, due_date, paid_amount, status, paid_at, payroll_record_id)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, loanRowID, installment.Number, installment.Amount, installment.DueDate, installment.PaidAmount,
			installment.Status, installment.PaidAt, nullIfEmpty(installment.PayrollRecordID))
		if err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func itoa(value int) string {
	return strconv.Itoa(value)
}
