package loans

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SweepOverdue marks pending installments on active loans whose due date
// has passed. Returns the number of installments updated.
func SweepOverdue(ctx context.Context, db *pgxpool.Pool, companyID string, asOf time.Time) (int, error) {
	tag, err := db.Exec(ctx, `
    UPDATE loan_installments li
    SET status = $1
    FROM loans l
    WHERE li.loan_id = l.id
      AND l.company_id = $2
      AND l.status = $3
      AND li.status = $4
      AND li.due_date < $5
  `, InstallmentStatusOverdue, companyID, StatusActive, InstallmentStatusPending, asOf)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
