package notifications

import (
	"context"
	"log/slog"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
}

func New(store StoreAPI, mailer Mailer) *Service {
	return &Service{store: store, Mailer: mailer, DefaultFrom: "no-reply@example.com"}
}

// Create stores a notification row and, when company email settings allow
// it, sends a copy by mail. Mail failures are logged, never surfaced.
func (s *Service) Create(ctx context.Context, companyID, userID, ntype, title, body string) error {
	if userID == "" {
		return nil
	}
	if err := s.store.CreateNotification(ctx, companyID, userID, ntype, title, body); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}

	enabled, from := s.getEmailSettings(ctx, companyID)
	if !enabled {
		return nil
	}
	if from == "" {
		from = s.DefaultFrom
	}

	email, err := s.store.UserEmail(ctx, companyID, userID)
	if err != nil {
		slog.Warn("notification email lookup failed", "err", err)
		return nil
	}
	if email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, from, email, title, body); err != nil {
		slog.Warn("notification email send failed", "err", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, companyID, userID string, limit, offset int) ([]map[string]any, error) {
	return s.store.ListNotifications(ctx, companyID, userID, limit, offset)
}

func (s *Service) Count(ctx context.Context, companyID, userID string) (int, error) {
	return s.store.CountNotifications(ctx, companyID, userID)
}

func (s *Service) MarkRead(ctx context.Context, companyID, userID, notificationID string) error {
	return s.store.MarkRead(ctx, companyID, userID, notificationID)
}

func (s *Service) getEmailSettings(ctx context.Context, companyID string) (bool, string) {
	enabled, from, err := s.store.EmailSettings(ctx, companyID)
	if err != nil {
		return false, ""
	}
	return enabled, from
}

func (s *Service) GetSettings(ctx context.Context, companyID string) (bool, string, error) {
	return s.store.EmailSettings(ctx, companyID)
}

func (s *Service) UpdateSettings(ctx context.Context, companyID string, enabled bool, from string) error {
	return s.store.UpdateSettings(ctx, companyID, enabled, from)
}
