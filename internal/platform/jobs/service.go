package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hrpay/internal/domain/loans"
	"hrpay/internal/platform/config"
)

const (
	JobOverdueSweep = "loan_overdue_sweep"
)

type Service struct {
	DB    *pgxpool.Pool
	Cfg   config.Config
	queue chan job
}

type job struct {
	Type      string
	CompanyID string
	Run       func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config) *Service {
	return &Service{
		DB:    db,
		Cfg:   cfg,
		queue: make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.OverdueSweepInterval > 0 {
		go s.scheduleOverdueSweep(ctx, s.Cfg.OverdueSweepInterval)
	}
}

func (s *Service) Enqueue(jobType, companyID string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, CompanyID: companyID, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType, "companyId", companyID)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, companyID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, CompanyID: companyID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "companyId", j.CompanyID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (company_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, j.CompanyID, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleOverdueSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			companies, err := s.listCompanies(ctx)
			if err != nil {
				slog.Warn("overdue sweep company lookup failed", "err", err)
				continue
			}
			for _, companyID := range companies {
				company := companyID
				s.Enqueue(JobOverdueSweep, company, func(ctx context.Context) (any, error) {
					marked, err := loans.SweepOverdue(ctx, s.DB, company, time.Now())
					return map[string]any{"markedOverdue": marked}, err
				})
			}
		}
	}
}

func (s *Service) listCompanies(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM companies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
