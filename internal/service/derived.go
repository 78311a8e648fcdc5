package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/repository"
)

// expiryLayouts are the date formats accepted from stored fields and the
// external data source, tried in order.
var expiryLayouts = []string{
	time.DateOnly,
	"2006.01.02",
	time.RFC3339,
	"02/01/2006",
}

// ParseExpiry parses a raw expiry date. The second result is false for
// empty or unrecognised input.
func ParseExpiry(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DayWindow returns the all-day window [00:00:00, 23:59:59] of the calendar
// date of d, interpreted in loc.
func DayWindow(d time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, day := d.Date()
	start := time.Date(y, m, day, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Second)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// SyncService keeps derived calendar events in line with expiry fields.
type SyncService interface {
	// Reconcile creates or moves the derived event of every tracked kind with a valid date.
	Reconcile(ctx context.Context, src model.ExpirySource) (model.ReconcileResult, error)
}

// Synchronizer implements SyncService.
type Synchronizer struct {
	events    repository.EventRepository
	vehicles  repository.VehicleRepository
	loc       *time.Location
	reminders *model.ReminderConfig
	log       *zap.Logger
	obs       Observer
}

// SyncOption customizes a Synchronizer.
type SyncOption func(*Synchronizer)

// WithLocation sets the zone in which all-day windows are computed.
func WithLocation(loc *time.Location) SyncOption {
	return func(s *Synchronizer) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDerivedReminders sets the reminder config attached to newly created derived events.
func WithDerivedReminders(rc *model.ReminderConfig) SyncOption {
	return func(s *Synchronizer) { s.reminders = rc }
}

// WithSyncObserver attaches a telemetry observer.
func WithSyncObserver(o Observer) SyncOption {
	return func(s *Synchronizer) {
		if o != nil {
			s.obs = o
		}
	}
}

// NewSynchronizer constructs a Synchronizer. Windows default to UTC.
func NewSynchronizer(events repository.EventRepository, vehicles repository.VehicleRepository, log *zap.Logger, opts ...SyncOption) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Synchronizer{events: events, vehicles: vehicles, loc: time.UTC, log: log, obs: nopObserver{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reconcile brings the derived events of src in line with its expiry dates.
//
// Kinds without a parseable date are left alone. A kind without a derived
// event gets one; a derived event whose start date differs is moved; an
// up-to-date one is not written. When duplicates exist the lowest ID is
// used and the rest are left untouched. Per-kind write failures are logged
// and counted; only failing to load the existing events is returned as an
// error.
func (s *Synchronizer) Reconcile(ctx context.Context, src model.ExpirySource) (res model.ReconcileResult, err error) {
	defer func() { s.obs.RecordReconcile(res, err) }()

	log := s.log.With(zap.Int64("asset_id", src.AssetID), zap.String("user_id", src.UserID.String()))

	desired := make(map[model.ExpiryKind]time.Time, len(src.Expiries))
	kinds := make([]model.ExpiryKind, 0, len(src.Expiries))
	for kind, raw := range src.Expiries {
		d, ok := ParseExpiry(raw)
		if !ok {
			if strings.TrimSpace(raw) != "" {
				log.Warn("skip unparseable expiry", zap.String("kind", string(kind)), zap.String("value", raw))
			}
			continue
		}
		desired[kind] = d
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return res, nil
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	existing, err := s.events.ListForAsset(ctx, src.UserID, src.AssetID)
	if err != nil {
		return res, fmt.Errorf("list derived events: %w", err)
	}
	current := make(map[model.ExpiryKind]model.CalendarEvent)
	for _, ev := range existing {
		kind := ev.Origin.Kind()
		if kind == "" {
			continue
		}
		if prev, ok := current[kind]; ok && prev.ID < ev.ID {
			continue
		}
		current[kind] = ev
	}

	for _, kind := range kinds {
		start, end := DayWindow(desired[kind], s.loc)
		klog := log.With(zap.String("kind", string(kind)))

		ev, ok := current[kind]
		if !ok {
			if err := s.create(ctx, src, kind, start, end); err != nil {
				if errors.Is(err, errs.ErrAlreadyExists) {
					klog.Info("derived event created concurrently")
					continue
				}
				res.Failed++
				klog.Error("create derived event", zap.Error(err))
				continue
			}
			res.Created++
			continue
		}

		if sameDay(ev.Start, start, s.loc) {
			continue
		}
		if err := s.events.UpdateWindow(ctx, src.UserID, ev.ID, start, end); err != nil {
			res.Failed++
			klog.Error("move derived event", zap.Int64("event_id", ev.ID), zap.Error(err))
			continue
		}
		res.Updated++
	}

	if res.Created > 0 && !slices.Contains(src.Features, model.FeatureCalendar) {
		added, ferr := s.vehicles.EnableFeature(ctx, src.UserID, src.AssetID, model.FeatureCalendar)
		switch {
		case ferr != nil:
			log.Error("enable calendar feature", zap.Error(ferr))
		case added:
			res.EnabledFeatures = append(res.EnabledFeatures, model.FeatureCalendar)
		}
	}
	return res, nil
}

func (s *Synchronizer) create(ctx context.Context, src model.ExpirySource, kind model.ExpiryKind, start, end time.Time) error {
	asset := src.AssetID
	_, err := s.events.Create(ctx, model.NewEvent{
		UserID:      src.UserID,
		AssetID:     &asset,
		Name:        kind.Label() + ": " + src.Label,
		Description: fmt.Sprintf("%s for %s on %s.", kind.Label(), src.Label, start.Format("2 Jan 2006")),
		Color:       kind.Color(),
		Start:       start,
		End:         end,
		Reminders:   s.reminders,
		Origin:      model.DerivedOrigin(kind),
	})
	return err
}
