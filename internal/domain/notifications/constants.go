package notifications

const (
	TypeLoanIssued      = "loan_issued"
	TypeLoanApproved    = "loan_approved"
	TypeLoanCompleted   = "loan_completed"
	TypeLoanCancelled   = "loan_cancelled"
	TypePaymentRecorded = "payment_recorded"
)
