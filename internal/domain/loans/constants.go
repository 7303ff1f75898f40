package loans

const (
	CategoryLoan    = "loan"
	CategoryAdvance = "advance"

	PrefixLoan    = "LOAN"
	PrefixAdvance = "ADV"

	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusDefaulted = "defaulted"

	InstallmentTypeFixedAmount = "fixed_amount"
	InstallmentTypeFixedCount  = "fixed_count"

	InstallmentStatusPending = "pending"
	InstallmentStatusPaid    = "paid"
	InstallmentStatusOverdue = "overdue"

	DefaultCurrency = "MYR"
)
