package loans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// mockStore is a simple in-memory StoreAPI implementation for testing.
type mockStore struct {
	loans     map[string]*Loan
	payments  []Payment
	sequences map[string]int
	conflicts int
}

func newMockStore() *mockStore {
	return &mockStore{
		loans:     make(map[string]*Loan),
		sequences: make(map[string]int),
	}
}

func cloneLoan(loan *Loan) *Loan {
	out := *loan
	out.Installments = append([]Installment(nil), loan.Installments...)
	return &out
}

func (m *mockStore) NextSequence(_ context.Context, companyID, category string) (int, error) {
	key := companyID + "/" + category
	m.sequences[key]++
	return m.sequences[key], nil
}

func (m *mockStore) CreateLoan(_ context.Context, loan *Loan) error {
	for _, existing := range m.loans {
		if existing.CompanyID == loan.CompanyID && existing.Category == loan.Category && existing.LoanID == loan.LoanID {
			return ErrDuplicateLoanID
		}
	}
	loan.ID = uuid.NewString()
	m.loans[loan.ID] = cloneLoan(loan)
	return nil
}

func (m *mockStore) GetLoan(_ context.Context, companyID, loanID string) (*Loan, error) {
	for _, loan := range m.loans {
		if loan.CompanyID == companyID && (loan.ID == loanID || loan.LoanID == loanID) {
			return cloneLoan(loan), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) FindLoans(_ context.Context, filter Filter) ([]Loan, int, error) {
	var out []Loan
	for _, loan := range m.loans {
		if loan.CompanyID != filter.CompanyID {
			continue
		}
		if filter.WorkerID != "" && loan.WorkerID != filter.WorkerID {
			continue
		}
		if filter.Status != "" && loan.Status != filter.Status {
			continue
		}
		if filter.Category != "" && loan.Category != filter.Category {
			continue
		}
		out = append(out, *cloneLoan(loan))
	}
	return out, len(out), nil
}

func (m *mockStore) UpdateLoan(_ context.Context, loan *Loan, expectedVersion int, payment *Payment) error {
	if m.conflicts > 0 {
		m.conflicts--
		return ErrVersionConflict
	}
	current, ok := m.loans[loan.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	if payment != nil && payment.PayrollRecordID != "" {
		for _, existing := range m.payments {
			if existing.LoanID == loan.ID && existing.PayrollRecordID == payment.PayrollRecordID {
				return ErrDuplicatePayment
			}
		}
	}
	updated := cloneLoan(loan)
	updated.Version = expectedVersion + 1
	m.loans[loan.ID] = updated
	if payment != nil {
		record := *payment
		record.ID = uuid.NewString()
		m.payments = append(m.payments, record)
	}
	return nil
}

func (m *mockStore) ListPayments(_ context.Context, companyID, loanID string) ([]Payment, error) {
	loan, err := m.GetLoan(context.Background(), companyID, loanID)
	if err != nil {
		return nil, err
	}
	var out []Payment
	for _, payment := range m.payments {
		if payment.LoanID == loan.ID {
			out = append(out, payment)
		}
	}
	return out, nil
}

type mockDirectory struct {
	companies map[string]string
}

func (m *mockDirectory) WorkerCompany(_ context.Context, workerID string) (string, error) {
	companyID, ok := m.companies[workerID]
	if !ok {
		return "", errors.New("worker not found")
	}
	return companyID, nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *mockStore) *Service {
	service := NewService(store, &mockDirectory{companies: map[string]string{
		"worker-1": "company-1",
		"worker-2": "company-1",
		"worker-3": "company-2",
	}})
	service.now = func() time.Time { return testNow }
	return service
}

func testDraft() Draft {
	start := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	return Draft{
		CompanyID:         "company-1",
		WorkerID:          "worker-1",
		Category:          CategoryLoan,
		PrincipalAmount:   d("1000"),
		InterestRate:      decimal.Zero,
		HasInstallments:   true,
		InstallmentType:   InstallmentTypeFixedAmount,
		InstallmentAmount: d("250"),
		StartDate:         &start,
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	draft := testDraft()
	draft.HasInstallments = false
	draft.StartDate = nil

	for i, expected := range []string{"LOAN0001", "LOAN0002", "LOAN0003"} {
		loan, err := service.Create(ctx, draft, "admin")
		if err != nil {
			t.Fatalf("create %d: %v", i+1, err)
		}
		if loan.LoanID != expected {
			t.Fatalf("create %d: expected id %s, got %s", i+1, expected, loan.LoanID)
		}
	}

	draft.Category = CategoryAdvance
	loan, err := service.Create(ctx, draft, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.LoanID != "ADV0001" {
		t.Fatalf("expected ADV0001 for first advance, got %s", loan.LoanID)
	}
}

func TestCreateComputesDerivedFields(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)

	draft := testDraft()
	draft.InterestRate = d("10")
	loan, err := service.Create(context.Background(), draft, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Status != StatusActive {
		t.Fatalf("expected active, got %s", loan.Status)
	}
	if !loan.TotalAmount.Equal(d("1100")) {
		t.Fatalf("expected total 1100, got %s", loan.TotalAmount)
	}
	if !loan.RemainingAmount.Equal(loan.TotalAmount) {
		t.Fatalf("expected remaining to equal total, got %s", loan.RemainingAmount)
	}
	if !loan.TotalPaidAmount.IsZero() {
		t.Fatalf("expected zero paid, got %s", loan.TotalPaidAmount)
	}
	if len(loan.Installments) != 5 {
		t.Fatalf("expected 5 installments, got %d", len(loan.Installments))
	}
	if loan.InstallmentCount != 5 {
		t.Fatalf("expected installment count 5, got %d", loan.InstallmentCount)
	}
	if loan.CreatedBy != "admin" {
		t.Fatalf("expected createdBy admin, got %s", loan.CreatedBy)
	}
}

func TestCreateDefaultsCategoryToAdvance(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)

	draft := testDraft()
	draft.Category = ""
	draft.HasInstallments = false
	loan, err := service.Create(context.Background(), draft, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Category != CategoryAdvance {
		t.Fatalf("expected advance, got %s", loan.Category)
	}
	if loan.LoanID != "ADV0001" {
		t.Fatalf("expected ADV0001, got %s", loan.LoanID)
	}
}

func TestCreateRejectsWorkerFromOtherCompany(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)

	draft := testDraft()
	draft.WorkerID = "worker-3"
	if _, err := service.Create(context.Background(), draft, "admin"); !errors.Is(err, ErrWorkerNotInCompany) {
		t.Fatalf("expected ErrWorkerNotInCompany, got %v", err)
	}
}

func TestCreateRejectsDuplicateSuppliedID(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	draft := testDraft()
	draft.LoanID = "LOAN9999"
	if _, err := service.Create(ctx, draft, "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Create(ctx, draft, "admin"); !errors.Is(err, ErrDuplicateLoanID) {
		t.Fatalf("expected ErrDuplicateLoanID, got %v", err)
	}
}

func TestCreateRejectsInvalidTerms(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)

	draft := testDraft()
	draft.PrincipalAmount = d("-100")
	if _, err := service.Create(context.Background(), draft, "admin"); !errors.Is(err, ErrInvalidTerms) {
		t.Fatalf("expected ErrInvalidTerms, got %v", err)
	}

	draft = testDraft()
	draft.StartDate = nil
	if _, err := service.Create(context.Background(), draft, "admin"); !errors.Is(err, ErrInvalidTerms) {
		t.Fatalf("expected ErrInvalidTerms for missing start date, got %v", err)
	}
}

func TestRecordPaymentAppliesToInstallment(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := 1
	loan, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("250"), &first, "run-2024-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loan.TotalPaidAmount.Equal(d("250")) {
		t.Fatalf("expected paid 250, got %s", loan.TotalPaidAmount)
	}
	if !loan.RemainingAmount.Equal(d("750")) {
		t.Fatalf("expected remaining 750, got %s", loan.RemainingAmount)
	}
	installment := loan.Installments[0]
	if installment.Status != InstallmentStatusPaid {
		t.Fatalf("expected installment paid, got %s", installment.Status)
	}
	if installment.PaidAt == nil || !installment.PaidAt.Equal(testNow) {
		t.Fatalf("expected paidAt %v, got %v", testNow, installment.PaidAt)
	}
	if installment.PayrollRecordID != "run-2024-06" {
		t.Fatalf("expected payroll record id recorded, got %q", installment.PayrollRecordID)
	}

	payments, err := service.Payments(ctx, "company-1", created.LoanID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payments))
	}
}

func TestRecordPaymentPartialKeepsInstallmentPending(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := 1
	loan, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("100"), &first, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Installments[0].Status != InstallmentStatusPending {
		t.Fatalf("expected pending, got %s", loan.Installments[0].Status)
	}
	if !loan.Installments[0].PaidAmount.Equal(d("100")) {
		t.Fatalf("expected paid amount 100, got %s", loan.Installments[0].PaidAmount)
	}
}

func TestRecordPaymentOverpaymentAccepted(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := 1
	loan, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("400"), &first, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loan.Installments[0].PaidAmount.Equal(d("400")) {
		t.Fatalf("expected paid amount 400, got %s", loan.Installments[0].PaidAmount)
	}
	if loan.Installments[0].Status != InstallmentStatusPaid {
		t.Fatalf("expected paid, got %s", loan.Installments[0].Status)
	}
	if !loan.TotalPaidAmount.Equal(d("400")) {
		t.Fatalf("expected total paid 400, got %s", loan.TotalPaidAmount)
	}
}

func TestRecordPaymentCompletesLoan(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loan, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("1000"), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", loan.Status)
	}
	if loan.CompletedAt == nil || !loan.CompletedAt.Equal(testNow) {
		t.Fatalf("expected completedAt %v, got %v", testNow, loan.CompletedAt)
	}
	if !loan.RemainingAmount.IsZero() {
		t.Fatalf("expected remaining 0, got %s", loan.RemainingAmount)
	}

	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("10"), nil, ""); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected ErrLoanNotActive, got %v", err)
	}
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, decimal.Zero, nil, ""); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment for zero, got %v", err)
	}
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("-5"), nil, ""); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment for negative, got %v", err)
	}
}

func TestRecordPaymentRejectsUnknownInstallment(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := 99
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("100"), &missing, ""); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
}

func TestRecordPaymentDeduplicatesPayrollRecord(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := 1
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("250"), &first, "run-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := 2
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("250"), &second, "run-7"); !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}

	loan, err := service.Get(ctx, "company-1", created.LoanID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loan.TotalPaidAmount.Equal(d("250")) {
		t.Fatalf("duplicate payment must not apply, got paid %s", loan.TotalPaidAmount)
	}
}

func TestRecordPaymentRetriesOnVersionConflict(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.conflicts = 2
	loan, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("100"), nil, "")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !loan.TotalPaidAmount.Equal(d("100")) {
		t.Fatalf("expected paid 100, got %s", loan.TotalPaidAmount)
	}

	store.conflicts = maxMutationRetries
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("100"), nil, ""); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict after retries, got %v", err)
	}
}

func TestPatchRecomputesTotalsAndSchedule(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("250"), nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	principal := d("2000")
	rate := d("10")
	loan, err := service.Patch(ctx, "company-1", created.LoanID, Patch{
		PrincipalAmount: &principal,
		InterestRate:    &rate,
	}, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loan.TotalAmount.Equal(d("2200")) {
		t.Fatalf("expected total 2200, got %s", loan.TotalAmount)
	}
	if !loan.RemainingAmount.Equal(d("1950")) {
		t.Fatalf("expected remaining 1950, got %s", loan.RemainingAmount)
	}
	sum := decimal.Zero
	for _, installment := range loan.Installments {
		sum = sum.Add(installment.Amount)
	}
	if !sum.Equal(loan.TotalAmount) {
		t.Fatalf("regenerated schedule sums to %s, want %s", sum, loan.TotalAmount)
	}
}

func TestPatchNegativeRemainingNotClamped(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	draft := testDraft()
	draft.HasInstallments = false
	draft.StartDate = nil
	created, err := service.Create(ctx, draft, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("500"), nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	principal := d("300")
	loan, err := service.Patch(ctx, "company-1", created.LoanID, Patch{PrincipalAmount: &principal}, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loan.RemainingAmount.Equal(d("-200")) {
		t.Fatalf("expected remaining -200, got %s", loan.RemainingAmount)
	}
}

func TestPatchStatusOverrides(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := "finished"
	if _, err := service.Patch(ctx, "company-1", created.LoanID, Patch{Status: &bad}, "admin"); !errors.Is(err, ErrInvalidTerms) {
		t.Fatalf("expected ErrInvalidTerms, got %v", err)
	}

	cancelled := StatusCancelled
	loan, err := service.Patch(ctx, "company-1", created.LoanID, Patch{Status: &cancelled}, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", loan.Status)
	}

	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("100"), nil, ""); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected ErrLoanNotActive, got %v", err)
	}
	defaulted := StatusDefaulted
	if _, err := service.Patch(ctx, "company-1", created.LoanID, Patch{Status: &defaulted}, "admin"); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected ErrLoanNotActive for terminal transition, got %v", err)
	}
}

func TestCreateAcceptsZeroPrincipal(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)

	draft := testDraft()
	draft.PrincipalAmount = decimal.Zero
	draft.HasInstallments = false
	draft.StartDate = nil
	loan, err := service.Create(context.Background(), draft, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loan.TotalAmount.IsZero() || !loan.RemainingAmount.IsZero() {
		t.Fatalf("expected zero totals, got total %s remaining %s", loan.TotalAmount, loan.RemainingAmount)
	}
	if loan.Status != StatusActive {
		t.Fatalf("expected active, got %s", loan.Status)
	}
}

func TestPatchApprovalStampsActorAndTime(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	created, err := service.Create(ctx, testDraft(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ApprovedBy != "" || created.ApprovedAt != nil {
		t.Fatalf("new loan must be unapproved, got %q / %v", created.ApprovedBy, created.ApprovedAt)
	}

	approver := "hr-1"
	loan, err := service.Patch(ctx, "company-1", created.LoanID, Patch{ApprovedBy: &approver}, approver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.ApprovedBy != "hr-1" {
		t.Fatalf("expected approvedBy hr-1, got %q", loan.ApprovedBy)
	}
	if loan.ApprovedAt == nil || !loan.ApprovedAt.Equal(testNow) {
		t.Fatalf("expected approvedAt %v, got %v", testNow, loan.ApprovedAt)
	}
}

func TestPaymentsUnknownLoan(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)

	if _, err := service.Payments(context.Background(), "company-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchUnknownLoan(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)

	notes := "x"
	if _, err := service.Patch(context.Background(), "company-1", "missing", Patch{Notes: &notes}, "admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindFiltersByWorkerAndStatus(t *testing.T) {
	store := newMockStore()
	service := newTestService(store)
	ctx := context.Background()

	draft := testDraft()
	draft.HasInstallments = false
	draft.StartDate = nil
	if _, err := service.Create(ctx, draft, "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	draft.WorkerID = "worker-2"
	created, err := service.Create(ctx, draft, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.RecordPayment(ctx, "company-1", created.LoanID, d("1000"), nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loans, total, err := service.Find(ctx, Filter{CompanyID: "company-1", Status: StatusCompleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(loans) != 1 {
		t.Fatalf("expected 1 completed loan, got %d", len(loans))
	}
	if loans[0].WorkerID != "worker-2" {
		t.Fatalf("expected worker-2, got %s", loans[0].WorkerID)
	}

	if _, total, err = service.Find(ctx, Filter{CompanyID: "company-2"}); err != nil || total != 0 {
		t.Fatalf("expected no loans for company-2, got %d (err %v)", total, err)
	}
}
