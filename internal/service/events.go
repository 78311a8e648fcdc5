package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/repository"
)

// EventService defines owner-scoped calendar event operations.
type EventService interface {
	// Create stores a user event.
	Create(ctx context.Context, userID uuid.UUID, ev model.NewEvent) (*model.CalendarEvent, error)
	// Get returns a single event.
	Get(ctx context.Context, userID uuid.UUID, id int64) (*model.CalendarEvent, error)
	// List returns events overlapping [from, to).
	List(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]model.CalendarEvent, error)
	// Update applies a patch to an event.
	Update(ctx context.Context, userID uuid.UUID, id int64, p model.EventPatch) (*model.CalendarEvent, error)
	// Delete removes an event.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

type EventServiceImpl struct {
	events   repository.EventRepository
	vehicles repository.VehicleRepository
	maxRange time.Duration
}

// NewEventService constructs EventService. List ranges are capped at maxRange (default 366 days).
func NewEventService(events repository.EventRepository, vehicles repository.VehicleRepository, maxRange time.Duration) *EventServiceImpl {
	if maxRange <= 0 {
		maxRange = 366 * 24 * time.Hour
	}
	return &EventServiceImpl{events: events, vehicles: vehicles, maxRange: maxRange}
}

func validateEvent(name string, start, end time.Time, rc *model.ReminderConfig) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", errs.ErrValidation)
	}
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: missing start/end", errs.ErrValidation)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", errs.ErrValidation)
	}
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("%w: reminders: %v", errs.ErrValidation, err)
	}
	return nil
}

// Create validates input and stores a user-origin event. An attached asset
// must belong to the same user.
func (s *EventServiceImpl) Create(ctx context.Context, userID uuid.UUID, in model.NewEvent) (*model.CalendarEvent, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	if err := validateEvent(in.Name, in.Start, in.End, in.Reminders); err != nil {
		return nil, err
	}
	if in.AssetID != nil {
		if _, err := s.vehicles.Get(ctx, userID, *in.AssetID); err != nil {
			return nil, err
		}
	}
	in.UserID = userID
	in.Origin = model.OriginUser
	return s.events.Create(ctx, in)
}

// Get fetches a single event.
func (s *EventServiceImpl) Get(ctx context.Context, userID uuid.UUID, id int64) (*model.CalendarEvent, error) {
	if userID == uuid.Nil || id <= 0 {
		return nil, fmt.Errorf("%w: empty userID/id", errs.ErrValidation)
	}
	return s.events.Get(ctx, userID, id)
}

// List returns events overlapping [from, to).
func (s *EventServiceImpl) List(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]model.CalendarEvent, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty range", errs.ErrValidation)
	}
	if to.Sub(from) > s.maxRange {
		return nil, fmt.Errorf("%w: range too large", errs.ErrValidation)
	}
	return s.events.ListRange(ctx, userID, from, to)
}

// Update applies p. The window of a derived event can only be moved by the synchronizer.
func (s *EventServiceImpl) Update(ctx context.Context, userID uuid.UUID, id int64, p model.EventPatch) (*model.CalendarEvent, error) {
	ev, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if ev.Origin.IsDerived() && movesWindow(ev, p) {
		return nil, errs.ErrDerived
	}

	if p.Name != nil {
		ev.Name = *p.Name
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if p.Color != nil {
		ev.Color = *p.Color
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	switch {
	case p.ClearReminders:
		ev.Reminders = nil
	case p.Reminders != nil:
		ev.Reminders = p.Reminders
	}

	if err := validateEvent(ev.Name, ev.Start, ev.End, ev.Reminders); err != nil {
		return nil, err
	}
	return s.events.Update(ctx, ev)
}

func movesWindow(ev *model.CalendarEvent, p model.EventPatch) bool {
	return (p.Start != nil && !p.Start.Equal(ev.Start)) || (p.End != nil && !p.End.Equal(ev.End))
}

// Delete removes an event. Deleting a derived event is allowed; the next
// reconciliation recreates it while the source still has a date.
func (s *EventServiceImpl) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	if userID == uuid.Nil || id <= 0 {
		return fmt.Errorf("%w: empty userID/id", errs.ErrValidation)
	}
	return s.events.Delete(ctx, userID, id)
}
