package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ComputeTotalAmount applies simple interest to the principal and rounds
// the result to 2 decimal places. Rate is a percentage between 0 and 100.
func ComputeTotalAmount(principal, ratePercent decimal.Decimal) (decimal.Decimal, error) {
	if principal.IsNegative() {
		return decimal.Zero, ErrInvalidTerms
	}
	if ratePercent.IsNegative() || ratePercent.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidTerms
	}
	if ratePercent.IsZero() {
		return principal.Round(2), nil
	}
	return principal.Mul(one.Add(ratePercent.Div(hundred))).Round(2), nil
}

type ScheduleConfig struct {
	Type      string
	Amount    decimal.Decimal
	Count     int
	StartDate time.Time
}

// GenerateSchedule splits totalAmount into monthly installments. The last
// installment absorbs the rounding remainder so the schedule sums to
// totalAmount exactly. Installment i falls due i whole months after the
// start date, with standard calendar day carry.
func GenerateSchedule(totalAmount decimal.Decimal, cfg ScheduleConfig) ([]Installment, error) {
	if totalAmount.IsNegative() || cfg.StartDate.IsZero() {
		return nil, ErrInvalidTerms
	}

	var per decimal.Decimal
	var count int
	switch cfg.Type {
	case InstallmentTypeFixedCount:
		if cfg.Count < 1 {
			return nil, ErrInvalidTerms
		}
		count = cfg.Count
		per = totalAmount.Div(decimal.NewFromInt(int64(count))).Round(2)
	case InstallmentTypeFixedAmount:
		if cfg.Amount.Sign() <= 0 {
			return nil, ErrInvalidTerms
		}
		count = int(totalAmount.Div(cfg.Amount).Ceil().IntPart())
		per = cfg.Amount.Round(2)
	default:
		return nil, ErrInvalidTerms
	}

	installments := make([]Installment, 0, count)
	for i := 1; i <= count; i++ {
		amount := per
		if i == count {
			amount = totalAmount.Sub(per.Mul(decimal.NewFromInt(int64(count - 1))))
		}
		installments = append(installments, Installment{
			Number:     i,
			Amount:     amount,
			DueDate:    cfg.StartDate.AddDate(0, i, 0),
			PaidAmount: decimal.Zero,
			Status:     InstallmentStatusPending,
		})
	}
	return installments, nil
}
