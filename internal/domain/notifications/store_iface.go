package notifications

import "context"

type StoreAPI interface {
	CreateNotification(ctx context.Context, companyID, userID, ntype, title, body string) error
	UserEmail(ctx context.Context, companyID, userID string) (string, error)
	ListNotifications(ctx context.Context, companyID, userID string, limit, offset int) ([]map[string]any, error)
	CountNotifications(ctx context.Context, companyID, userID string) (int, error)
	MarkRead(ctx context.Context, companyID, userID, notificationID string) error
	EmailSettings(ctx context.Context, companyID string) (bool, string, error)
	UpdateSettings(ctx context.Context, companyID string, enabled bool, from string) error
}
