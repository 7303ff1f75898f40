package workers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cryptoutil "hrpay/internal/platform/crypto"
)

var ErrNotFound = errors.New("worker not found")

type Store struct {
	DB     *pgxpool.Pool
	Crypto *cryptoutil.Service
}

func NewStore(db *pgxpool.Pool, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, Crypto: crypto}
}

func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions rp
    JOIN permissions p ON rp.permission_id = p.id
    WHERE rp.role_id = $1 AND p.key = $2
  `, roleID, permission).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// WorkerCompany satisfies the loan ledger's worker directory dependency.
func (s *Store) WorkerCompany(ctx context.Context, workerID string) (string, error) {
	var companyID string
	err := s.DB.QueryRow(ctx, "SELECT company_id FROM workers WHERE id = $1", workerID).Scan(&companyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return companyID, nil
}

const workerColumns = `id,
       COALESCE(user_id::text, ''),
       COALESCE(worker_number, ''),
       first_name, last_name, email,
       COALESCE(phone, ''),
       COALESCE(bank_account, ''),
       bank_account_enc,
       currency,
       start_date, end_date, status, created_at, updated_at`

func (s *Store) GetWorker(ctx context.Context, companyID, workerID string) (*Worker, error) {
	return s.scanWorker(s.DB.QueryRow(ctx, `
    SELECT `+workerColumns+`
    FROM workers
    WHERE company_id = $1 AND id = $2
  `, companyID, workerID))
}

func (s *Store) GetWorkerByUserID(ctx context.Context, companyID, userID string) (*Worker, error) {
	return s.scanWorker(s.DB.QueryRow(ctx, `
    SELECT `+workerColumns+`
    FROM workers
    WHERE company_id = $1 AND user_id = $2
  `, companyID, userID))
}

func (s *Store) scanWorker(row pgx.Row) (*Worker, error) {
	var worker Worker
	var bankEnc []byte
	var bankPlain string
	err := row.Scan(
		&worker.ID, &worker.UserID, &worker.WorkerNumber, &worker.FirstName, &worker.LastName, &worker.Email,
		&worker.Phone, &bankPlain, &bankEnc, &worker.Currency,
		&worker.StartDate, &worker.EndDate, &worker.Status, &worker.CreatedAt, &worker.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	worker.BankAccount = decryptFallback(s.Crypto, bankEnc, bankPlain)
	return &worker, nil
}

func (s *Store) ListWorkers(ctx context.Context, companyID string, limit, offset int) ([]Worker, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM workers WHERE company_id = $1", companyID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.DB.Query(ctx, `
    SELECT `+workerColumns+`
    FROM workers
    WHERE company_id = $1
    ORDER BY last_name, first_name
    LIMIT $2 OFFSET $3
  `, companyID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Worker
	for rows.Next() {
		var worker Worker
		var bankEnc []byte
		var bankPlain string
		if err := rows.Scan(
			&worker.ID, &worker.UserID, &worker.WorkerNumber, &worker.FirstName, &worker.LastName, &worker.Email,
			&worker.Phone, &bankPlain, &bankEnc, &worker.Currency,
			&worker.StartDate, &worker.EndDate, &worker.Status, &worker.CreatedAt, &worker.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		worker.BankAccount = decryptFallback(s.Crypto, bankEnc, bankPlain)
		out = append(out, worker)
	}
	return out, total, nil
}

func (s *Store) CreateWorker(ctx context.Context, companyID string, worker Worker) (string, error) {
	var bankEnc []byte
	bankPlain := worker.BankAccount
	if s.Crypto != nil && s.Crypto.Configured() {
		encrypted, err := s.Crypto.EncryptString(worker.BankAccount)
		if err != nil {
			return "", err
		}
		bankEnc = encrypted
		bankPlain = ""
	}

	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO workers (company_id, user_id, worker_number, first_name, last_name, email, phone,
                         bank_account, bank_account_enc, currency, start_date, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    RETURNING id
  `, companyID, nullIfEmpty(worker.UserID), nullIfEmpty(worker.WorkerNumber),
		worker.FirstName, worker.LastName, worker.Email, nullIfEmpty(worker.Phone),
		nullIfEmpty(bankPlain), bankEnc, worker.Currency, worker.StartDate, worker.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) WorkerUserID(ctx context.Context, companyID, workerID string) (string, error) {
	var userID string
	if err := s.DB.QueryRow(ctx, "SELECT COALESCE(user_id::text, '') FROM workers WHERE company_id = $1 AND id = $2", companyID, workerID).Scan(&userID); err != nil {
		return "", err
	}
	return userID, nil
}

func decryptFallback(crypto *cryptoutil.Service, encrypted []byte, plain string) string {
	if len(encrypted) == 0 || crypto == nil || !crypto.Configured() {
		return plain
	}
	decrypted, err := crypto.DecryptString(encrypted)
	if err != nil {
		return plain
	}
	return decrypted
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
