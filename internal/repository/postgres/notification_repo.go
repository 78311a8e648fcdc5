package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
)

// NotificationRepo implements NotificationRepository using PostgreSQL.
type NotificationRepo struct{ db *DB }

// NewNotificationRepo constructs a notification repository.
func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

// ExistsReminder reports whether a reminder for (user, event, minutes) was recorded.
func (r *NotificationRepo) ExistsReminder(ctx context.Context, userID uuid.UUID, eventID int64, minutes int) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM notifications
  WHERE user_id=$1 AND type='event_reminder' AND event_id=$2 AND reminder_minutes=$3
)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, eventID, minutes).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// CreateReminder inserts a reminder record unless one exists for the same
// (user, event, minutes). The partial unique index makes concurrent sweeps safe.
func (r *NotificationRepo) CreateReminder(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		n.ID = id
	}
	n.Type = model.NotificationTypeEventReminder
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO notifications (id, user_id, type, title, message, metadata, event_id, reminder_minutes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (user_id, event_id, reminder_minutes) WHERE type = 'event_reminder' DO NOTHING
RETURNING created_at`
	err = r.db.Pool.QueryRow(ctx, q, n.ID, n.UserID, n.Type, n.Title, n.Message, meta,
		n.Metadata.EventID, n.Metadata.ReminderMinutes).Scan(&n.CreatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		return errs.ErrAlreadyExists
	default:
		return err
	}
}

// ListForUser returns the newest notifications of a user.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, type, title, message, metadata, read, created_at
FROM notifications
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n    model.Notification
			meta []byte
		)
		if err = rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			// non-reminder types may carry other shapes; unknown fields are ignored
			_ = json.Unmarshal(meta, &n.Metadata)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
