package notifications

import "context"

func (s *Store) CreateNotification(ctx context.Context, companyID, userID, ntype, title, body string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (company_id, user_id, type, title, body)
    VALUES ($1,$2,$3,$4,$5)
  `, companyID, userID, ntype, title, body)
	return err
}

func (s *Store) UserEmail(ctx context.Context, companyID, userID string) (string, error) {
	var email string
	if err := s.DB.QueryRow(ctx, "SELECT email FROM users WHERE company_id = $1 AND id = $2", companyID, userID).Scan(&email); err != nil {
		return "", err
	}
	return email, nil
}

func (s *Store) ListNotifications(ctx context.Context, companyID, userID string, limit, offset int) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, type, title, body, read_at, created_at
    FROM notifications
    WHERE company_id = $1 AND user_id = $2
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, companyID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, ntype, title, body string
		var readAt, createdAt any
		if err := rows.Scan(&id, &ntype, &title, &body, &readAt, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":        id,
			"type":      ntype,
			"title":     title,
			"body":      body,
			"readAt":    readAt,
			"createdAt": createdAt,
		})
	}
	return out, nil
}

func (s *Store) CountNotifications(ctx context.Context, companyID, userID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM notifications WHERE company_id = $1 AND user_id = $2", companyID, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, companyID, userID, notificationID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE company_id = $1 AND user_id = $2 AND id = $3
  `, companyID, userID, notificationID)
	return err
}

func (s *Store) EmailSettings(ctx context.Context, companyID string) (bool, string, error) {
	var enabled bool
	var from string
	if err := s.DB.QueryRow(ctx, `
    SELECT email_notifications_enabled, COALESCE(email_from, '')
    FROM company_settings
    WHERE company_id = $1
  `, companyID).Scan(&enabled, &from); err != nil {
		return false, "", err
	}
	return enabled, from, nil
}

func (s *Store) UpdateSettings(ctx context.Context, companyID string, enabled bool, from string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO company_settings (company_id, email_notifications_enabled, email_from)
    VALUES ($1,$2,$3)
    ON CONFLICT (company_id) DO UPDATE
      SET email_notifications_enabled = EXCLUDED.email_notifications_enabled,
          email_from = EXCLUDED.email_from,
          updated_at = now()
  `, companyID, enabled, nullIfEmpty(from))
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
