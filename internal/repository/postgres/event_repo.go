package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
)

const eventCols = `id, user_id, asset_id, name, description, location, color, start_at, end_at, reminders, origin, created_at, updated_at`

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs an event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

func scanEvent(row scanner) (model.CalendarEvent, error) {
	var (
		ev     model.CalendarEvent
		raw    []byte
		origin string
	)
	if err := row.Scan(&ev.ID, &ev.UserID, &ev.AssetID, &ev.Name, &ev.Description, &ev.Location,
		&ev.Color, &ev.Start, &ev.End, &raw, &origin, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return model.CalendarEvent{}, err
	}
	ev.Origin = model.Origin(origin)
	if len(raw) > 0 {
		var rc model.ReminderConfig
		if err := json.Unmarshal(raw, &rc); err != nil {
			// keep the row; callers decide whether a broken blob matters
			ev.ReminderErr = fmt.Errorf("decode reminders: %w", err)
		} else {
			ev.Reminders = &rc
		}
	}
	return ev, nil
}

func encodeReminders(rc *model.ReminderConfig) ([]byte, error) {
	if rc == nil {
		return nil, nil
	}
	return json.Marshal(rc)
}

func (r *EventRepo) list(ctx context.Context, q string, args ...any) ([]model.CalendarEvent, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListWithReminders returns reminder-bearing events starting at or after startAfter.
func (r *EventRepo) ListWithReminders(ctx context.Context, startAfter time.Time) ([]model.CalendarEvent, error) {
	const q = `
SELECT ` + eventCols + `
FROM calendar_events
WHERE reminders IS NOT NULL AND start_at >= $1
ORDER BY start_at ASC, id ASC`
	return r.list(ctx, q, startAfter)
}

// ListForAsset returns all events of an asset ordered by id.
func (r *EventRepo) ListForAsset(ctx context.Context, userID uuid.UUID, assetID int64) ([]model.CalendarEvent, error) {
	const q = `
SELECT ` + eventCols + `
FROM calendar_events
WHERE user_id=$1 AND asset_id=$2
ORDER BY id ASC`
	return r.list(ctx, q, userID, assetID)
}

// ListRange returns events overlapping [from, to).
func (r *EventRepo) ListRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]model.CalendarEvent, error) {
	const q = `
SELECT ` + eventCols + `
FROM calendar_events
WHERE user_id=$1 AND end_at >= $2 AND start_at < $3
ORDER BY start_at ASC, id ASC`
	return r.list(ctx, q, userID, from, to)
}

// Get returns a single event by id.
func (r *EventRepo) Get(ctx context.Context, userID uuid.UUID, id int64) (*model.CalendarEvent, error) {
	const q = `
SELECT ` + eventCols + `
FROM calendar_events WHERE user_id=$1 AND id=$2`
	ev, err := scanEvent(r.db.Pool.QueryRow(ctx, q, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// Create inserts a new event.
func (r *EventRepo) Create(ctx context.Context, in model.NewEvent) (*model.CalendarEvent, error) {
	rem, err := encodeReminders(in.Reminders)
	if err != nil {
		return nil, err
	}
	origin := in.Origin
	if origin == "" {
		origin = model.OriginUser
	}
	const q = `
INSERT INTO calendar_events (user_id, asset_id, name, description, location, color, start_at, end_at, reminders, origin)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING ` + eventCols
	ev, err := scanEvent(r.db.Pool.QueryRow(ctx, q, in.UserID, in.AssetID, in.Name, in.Description,
		in.Location, in.Color, in.Start, in.End, rem, string(origin)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}
	return &ev, nil
}

// Update overwrites the mutable fields of an event.
func (r *EventRepo) Update(ctx context.Context, in *model.CalendarEvent) (*model.CalendarEvent, error) {
	rem, err := encodeReminders(in.Reminders)
	if err != nil {
		return nil, err
	}
	const q = `
UPDATE calendar_events
SET name=$3, description=$4, location=$5, color=$6, start_at=$7, end_at=$8, reminders=$9, updated_at=now()
WHERE user_id=$1 AND id=$2
RETURNING ` + eventCols
	ev, err := scanEvent(r.db.Pool.QueryRow(ctx, q, in.UserID, in.ID, in.Name, in.Description,
		in.Location, in.Color, in.Start, in.End, rem))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// UpdateWindow moves an event to a new [start, end].
func (r *EventRepo) UpdateWindow(ctx context.Context, userID uuid.UUID, id int64, start, end time.Time) error {
	const q = `UPDATE calendar_events SET start_at=$3, end_at=$4, updated_at=now() WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes an event.
func (r *EventRepo) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	const q = `DELETE FROM calendar_events WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
