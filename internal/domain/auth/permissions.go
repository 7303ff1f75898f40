package auth

const (
	PermWorkersRead  = "core.workers.read"
	PermWorkersWrite = "core.workers.write"
	PermLoansRead    = "loans.read"
	PermLoansWrite   = "loans.write"
	PermLoansApprove = "loans.approve"
	PermLoansPay     = "loans.pay"
	PermReportsRead  = "reports.read"
	PermAuditRead    = "audit.read"
	PermSystemAdmin  = "admin.system"
)

var DefaultPermissions = []string{
	PermWorkersRead,
	PermWorkersWrite,
	PermLoansRead,
	PermLoansWrite,
	PermLoansApprove,
	PermLoansPay,
	PermReportsRead,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleWorker: {
		PermWorkersRead,
		PermLoansRead,
	},
	RoleManager: {
		PermWorkersRead,
		PermLoansRead,
		PermLoansWrite,
		PermReportsRead,
	},
	RoleHR: {
		PermWorkersRead,
		PermWorkersWrite,
		PermLoansRead,
		PermLoansWrite,
		PermLoansApprove,
		PermLoansPay,
		PermReportsRead,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermSystemAdmin,
	},
}
