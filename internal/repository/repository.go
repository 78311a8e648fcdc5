// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/garage-keeper/internal/model"
)

// EventRepository provides owner-scoped access to calendar events.
type EventRepository interface {
	// ListWithReminders returns events of all users that carry a reminder
	// config and start at or after startAfter.
	ListWithReminders(ctx context.Context, startAfter time.Time) ([]model.CalendarEvent, error)
	// ListForAsset returns every event attached to the given asset, ordered by ID.
	ListForAsset(ctx context.Context, userID uuid.UUID, assetID int64) ([]model.CalendarEvent, error)
	// ListRange returns the user's events overlapping [from, to).
	ListRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]model.CalendarEvent, error)
	// Get loads a single event.
	Get(ctx context.Context, userID uuid.UUID, id int64) (*model.CalendarEvent, error)
	// Create inserts an event. A second derived event of the same kind for the
	// same asset is rejected with errs.ErrAlreadyExists.
	Create(ctx context.Context, ev model.NewEvent) (*model.CalendarEvent, error)
	// Update stores the full mutable state of ev.
	Update(ctx context.Context, ev *model.CalendarEvent) (*model.CalendarEvent, error)
	// UpdateWindow moves an event to [start, end].
	UpdateWindow(ctx context.Context, userID uuid.UUID, id int64, start, end time.Time) error
	// Delete removes an event.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

// NotificationRepository stores notification records.
type NotificationRepository interface {
	// ExistsReminder reports whether an event reminder for (user, event, minutes) exists.
	ExistsReminder(ctx context.Context, userID uuid.UUID, eventID int64, minutes int) (bool, error)
	// CreateReminder inserts an event reminder record. Returns errs.ErrAlreadyExists
	// when the (user, event, minutes) record is already there.
	CreateReminder(ctx context.Context, n *model.Notification) error
	// ListForUser returns the newest notifications of a user.
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
}

// VehicleRepository provides owner-scoped access to vehicles.
type VehicleRepository interface {
	// Create inserts a vehicle and returns it with its ID.
	Create(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error)
	// Get loads a vehicle owned by userID.
	Get(ctx context.Context, userID uuid.UUID, id int64) (*model.Vehicle, error)
	// List returns the user's vehicles.
	List(ctx context.Context, userID uuid.UUID) ([]model.Vehicle, error)
	// UpdateExpiries stores freshly looked-up expiry dates.
	UpdateExpiries(ctx context.Context, userID uuid.UUID, id int64, mot, tax *time.Time) error
	// EnableFeature appends feature if absent. Reports whether it was added.
	EnableFeature(ctx context.Context, userID uuid.UUID, id int64, feature string) (bool, error)
	// Delete removes a vehicle; its events keep existing without an asset.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}
