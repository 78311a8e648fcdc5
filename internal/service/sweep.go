// Package service contains application services for reminders, derived events and assets.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/reminder"
	"github.com/and161185/garage-keeper/internal/repository"
)

// Observer receives telemetry about sweeps and reconciliations.
type Observer interface {
	RecordSweep(res model.SweepResult, dur time.Duration, err error)
	RecordReconcile(res model.ReconcileResult, err error)
}

type nopObserver struct{}

func (nopObserver) RecordSweep(model.SweepResult, time.Duration, error) {}
func (nopObserver) RecordReconcile(model.ReconcileResult, error)        {}

// SweepService produces reminder notifications for newly due offsets.
type SweepService interface {
	// Sweep evaluates every candidate event once and records missing reminders.
	Sweep(ctx context.Context, now time.Time, grace time.Duration) (model.SweepResult, error)
}

// Sweeper implements SweepService.
type Sweeper struct {
	events        repository.EventRepository
	notifications repository.NotificationRepository
	defaults      []model.ReminderOverride
	log           *zap.Logger
	obs           Observer
}

// SweeperOption customizes a Sweeper.
type SweeperOption func(*Sweeper)

// WithDefaultReminders sets the overrides used by events with useDefault and no overrides.
func WithDefaultReminders(d []model.ReminderOverride) SweeperOption {
	return func(s *Sweeper) { s.defaults = d }
}

// WithSweepObserver attaches a telemetry observer.
func WithSweepObserver(o Observer) SweeperOption {
	return func(s *Sweeper) {
		if o != nil {
			s.obs = o
		}
	}
}

// NewSweeper constructs a Sweeper.
func NewSweeper(events repository.EventRepository, notifications repository.NotificationRepository, log *zap.Logger, opts ...SweeperOption) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{events: events, notifications: notifications, log: log, obs: nopObserver{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sweep lists events starting no earlier than now-grace, evaluates their due
// offsets and inserts a notification for each offset not yet recorded.
//
// Item-level failures are logged and counted. A failed listing, or a pass in
// which every store round-trip failed, is returned as an error. A cancelled
// or expired ctx ends the pass early with Truncated set; the remaining events
// are picked up by the next run.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, grace time.Duration) (res model.SweepResult, err error) {
	started := time.Now()
	defer func() { s.obs.RecordSweep(res, time.Since(started), err) }()

	if grace < 0 {
		return res, fmt.Errorf("%w: negative grace window", errs.ErrValidation)
	}

	events, err := s.events.ListWithReminders(ctx, now.Add(-grace))
	if err != nil {
		return res, fmt.Errorf("list candidate events: %w", err)
	}
	res.Candidates = len(events)

	var t tally
	for i := range events {
		if ctx.Err() == nil && s.sweepEvent(ctx, &events[i], now, grace, &res, &t) {
			continue
		}
		res.Truncated = true
		s.log.Warn("sweep stopped early",
			zap.Int("processed", i),
			zap.Int("candidates", len(events)),
			zap.Error(ctx.Err()),
		)
		break
	}
	if t.attempts > 0 && t.storeFailures == t.attempts {
		return res, fmt.Errorf("notification store unavailable: all %d writes failed", t.attempts)
	}
	return res, nil
}

// tally counts store round-trips so a sweep where every one failed surfaces
// as an error instead of a quiet zero. Round-trips cut short by the sweep's
// own deadline are not counted.
type tally struct {
	attempts      int
	storeFailures int
}

// sweepEvent records the due reminders of ev. It reports false when the
// sweep ran out of time mid-event.
func (s *Sweeper) sweepEvent(ctx context.Context, ev *model.CalendarEvent, now time.Time, grace time.Duration, res *model.SweepResult, t *tally) bool {
	if ev.ReminderErr != nil {
		res.Failed++
		s.log.Warn("skip event with unreadable reminders", zap.Int64("event_id", ev.ID), zap.Error(ev.ReminderErr))
		return true
	}
	if err := ev.Reminders.Validate(); err != nil {
		res.Failed++
		s.log.Warn("skip event with invalid reminders", zap.Int64("event_id", ev.ID), zap.Error(err))
		return true
	}

	overrides := ev.Reminders.Effective(s.defaults)
	for _, minutes := range reminder.DueOffsets(ev.Start, overrides, now, grace) {
		out, err := s.record(ctx, ev, minutes, reminder.MethodFor(overrides, minutes))
		if err != nil && (ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return false
		}
		t.attempts++
		if err != nil {
			t.storeFailures++
			res.Failed++
			s.log.Error("record reminder",
				zap.Int64("event_id", ev.ID),
				zap.Int("minutes", minutes),
				zap.Error(err),
			)
			continue
		}
		switch out {
		case recordCreated:
			res.Created++
		case recordConflict:
			res.Duplicates++
		}
	}
	return true
}

type recordOutcome int

const (
	recordExisting recordOutcome = iota
	recordCreated
	recordConflict // lost the insert race to a concurrent sweep
)

// record inserts the reminder unless it already exists.
func (s *Sweeper) record(ctx context.Context, ev *model.CalendarEvent, minutes int, method model.ReminderMethod) (recordOutcome, error) {
	exists, err := s.notifications.ExistsReminder(ctx, ev.UserID, ev.ID, minutes)
	if err != nil {
		return 0, fmt.Errorf("exists: %w", err)
	}
	if exists {
		return recordExisting, nil
	}

	n := &model.Notification{
		UserID:  ev.UserID,
		Type:    model.NotificationTypeEventReminder,
		Title:   "Reminder: " + ev.Name,
		Message: reminderMessage(ev, minutes),
		Metadata: model.ReminderMetadata{
			EventID:         ev.ID,
			ReminderMinutes: minutes,
			Method:          method,
			EventStart:      ev.Start,
		},
	}
	if err := s.notifications.CreateReminder(ctx, n); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return recordConflict, nil
		}
		return 0, fmt.Errorf("create: %w", err)
	}
	return recordCreated, nil
}

func reminderMessage(ev *model.CalendarEvent, minutes int) string {
	msg := ev.Name + " starts " + humanOffset(minutes)
	if ev.Location != "" {
		msg += " at " + ev.Location
	}
	return msg
}

// humanOffset renders a reminder offset such as "in 1 hour" or "now".
func humanOffset(minutes int) string {
	switch {
	case minutes <= 0:
		return "now"
	case minutes%(24*60) == 0:
		return "in " + plural(minutes/(24*60), "day")
	case minutes%60 == 0:
		return "in " + plural(minutes/60, "hour")
	default:
		return "in " + plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
