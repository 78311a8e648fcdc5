package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
)

func TestNotificationRepo_ExistsReminder(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)

	user := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM notifications WHERE user_id=\$1 AND type='event_reminder' AND event_id=\$2 AND reminder_minutes=\$3 \)`).
		WithArgs(user, int64(4), 60).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := r.ExistsReminder(context.Background(), user, 4, 60)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(user, int64(4), 30).
		WillReturnError(errors.New("down"))
	_, err = r.ExistsReminder(context.Background(), user, 4, 30)
	require.Error(t, err)
}

func TestNotificationRepo_CreateReminder_Inserted(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)

	user := uuid.Must(uuid.NewV4())
	created := time.Now().UTC()
	n := &model.Notification{
		UserID: user,
		Title:  "Reminder: Service",
		Metadata: model.ReminderMetadata{
			EventID: 4, ReminderMinutes: 60, Method: model.MethodPopup,
		},
	}

	mock.ExpectQuery(`INSERT INTO notifications .* ON CONFLICT \(user_id, event_id, reminder_minutes\) WHERE type = 'event_reminder' DO NOTHING RETURNING created_at`).
		WithArgs(pgxmock.AnyArg(), user, model.NotificationTypeEventReminder, "Reminder: Service", "", pgxmock.AnyArg(), int64(4), 60).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	require.NoError(t, r.CreateReminder(context.Background(), n))
	require.NotEqual(t, uuid.Nil, n.ID)
	require.Equal(t, created, n.CreatedAt)
	require.Equal(t, model.NotificationTypeEventReminder, n.Type)
}

func TestNotificationRepo_CreateReminder_ConflictIsAlreadyExists(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)

	n := &model.Notification{UserID: uuid.Must(uuid.NewV4()), Metadata: model.ReminderMetadata{EventID: 1, ReminderMinutes: 10}}

	// ON CONFLICT DO NOTHING returns no row
	mock.ExpectQuery(`INSERT INTO notifications`).WillReturnError(pgx.ErrNoRows)
	require.ErrorIs(t, r.CreateReminder(context.Background(), n), errs.ErrAlreadyExists)

	mock.ExpectQuery(`INSERT INTO notifications`).WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.CreateReminder(context.Background(), n), errs.ErrAlreadyExists)

	mock.ExpectQuery(`INSERT INTO notifications`).WillReturnError(errors.New("timeout"))
	err := r.CreateReminder(context.Background(), n)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestNotificationRepo_ListForUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)

	user := uuid.Must(uuid.NewV4())
	id := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, user_id, type, title, message, metadata, read, created_at FROM notifications WHERE user_id=\$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(user, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "type", "title", "message", "metadata", "read", "created_at"}).
			AddRow(id, user, "event_reminder", "Reminder: Service", "in 1 hour", []byte(`{"eventId":4,"reminderMinutes":60}`), false, ts))

	out, err := r.ListForUser(context.Background(), user, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(4), out[0].Metadata.EventID)
	require.Equal(t, 60, out[0].Metadata.ReminderMinutes)
}
