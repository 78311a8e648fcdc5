package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/repository"
)

// VehicleLookup resolves a registration against the external vehicle data source.
type VehicleLookup interface {
	Lookup(ctx context.Context, registration string) (model.VehicleLookup, error)
}

// VehicleService defines owner-scoped vehicle operations and the on-demand
// derived-event entry points.
type VehicleService interface {
	// Create registers a vehicle for the user.
	Create(ctx context.Context, userID uuid.UUID, v model.Vehicle) (*model.Vehicle, error)
	// Get returns a vehicle owned by the user.
	Get(ctx context.Context, userID uuid.UUID, id int64) (*model.Vehicle, error)
	// List returns the user's vehicles.
	List(ctx context.Context, userID uuid.UUID) ([]model.Vehicle, error)
	// Delete removes a vehicle.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
	// Reconcile syncs derived events from the stored expiry dates.
	Reconcile(ctx context.Context, userID uuid.UUID, id int64) (model.ReconcileResult, error)
	// Refresh pulls fresh expiry dates from the data source, stores them and reconciles.
	Refresh(ctx context.Context, userID uuid.UUID, id int64) (*model.Vehicle, model.ReconcileResult, error)
}

type VehicleServiceImpl struct {
	vehicles repository.VehicleRepository
	sync     SyncService
	lookup   VehicleLookup
	log      *zap.Logger
}

// NewVehicleService constructs VehicleService. lookup may be nil, which disables Refresh.
func NewVehicleService(vehicles repository.VehicleRepository, sync SyncService, lookup VehicleLookup, log *zap.Logger) *VehicleServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &VehicleServiceImpl{vehicles: vehicles, sync: sync, lookup: lookup, log: log}
}

// NormalizeRegistration upper-cases a registration and strips spaces.
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(strings.Join(strings.Fields(reg), ""))
}

// Create validates and stores a vehicle.
func (s *VehicleServiceImpl) Create(ctx context.Context, userID uuid.UUID, v model.Vehicle) (*model.Vehicle, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	v.Registration = NormalizeRegistration(v.Registration)
	if v.Registration == "" {
		return nil, fmt.Errorf("%w: empty registration", errs.ErrValidation)
	}
	v.UserID = userID
	return s.vehicles.Create(ctx, &v)
}

// Get fetches a vehicle by id.
func (s *VehicleServiceImpl) Get(ctx context.Context, userID uuid.UUID, id int64) (*model.Vehicle, error) {
	if userID == uuid.Nil || id <= 0 {
		return nil, fmt.Errorf("%w: empty userID/id", errs.ErrValidation)
	}
	return s.vehicles.Get(ctx, userID, id)
}

// List returns all vehicles of the user.
func (s *VehicleServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Vehicle, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	return s.vehicles.List(ctx, userID)
}

// Delete removes a vehicle by id.
func (s *VehicleServiceImpl) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	if userID == uuid.Nil || id <= 0 {
		return fmt.Errorf("%w: empty userID/id", errs.ErrValidation)
	}
	return s.vehicles.Delete(ctx, userID, id)
}

// Reconcile loads the vehicle, which also proves ownership, and syncs its derived events.
func (s *VehicleServiceImpl) Reconcile(ctx context.Context, userID uuid.UUID, id int64) (model.ReconcileResult, error) {
	v, err := s.Get(ctx, userID, id)
	if err != nil {
		return model.ReconcileResult{}, err
	}
	return s.sync.Reconcile(ctx, sourceOf(v))
}

// Refresh looks the registration up, stores changed expiry dates and reconciles.
// Nothing is written when the lookup fails.
func (s *VehicleServiceImpl) Refresh(ctx context.Context, userID uuid.UUID, id int64) (*model.Vehicle, model.ReconcileResult, error) {
	if s.lookup == nil {
		return nil, model.ReconcileResult{}, errors.New("vehicle data lookup is not configured")
	}
	v, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, model.ReconcileResult{}, err
	}

	info, err := s.lookup.Lookup(ctx, v.Registration)
	if err != nil {
		return nil, model.ReconcileResult{}, fmt.Errorf("lookup %s: %w", v.Registration, err)
	}

	mot, motChanged := mergeExpiry(v.MOTExpiry, info.MOTExpiry)
	tax, taxChanged := mergeExpiry(v.TaxDueDate, info.TaxDueDate)
	if motChanged || taxChanged {
		if err := s.vehicles.UpdateExpiries(ctx, userID, id, mot, tax); err != nil {
			return nil, model.ReconcileResult{}, fmt.Errorf("store expiries: %w", err)
		}
		v.MOTExpiry, v.TaxDueDate = mot, tax
		s.log.Info("vehicle expiries refreshed",
			zap.Int64("vehicle_id", id),
			zap.Bool("mot_changed", motChanged),
			zap.Bool("tax_changed", taxChanged),
		)
	}

	res, err := s.sync.Reconcile(ctx, sourceOf(v))
	if err != nil {
		return v, res, err
	}
	if len(res.EnabledFeatures) > 0 {
		v.Features = append(v.Features, res.EnabledFeatures...)
	}
	return v, res, nil
}

// mergeExpiry keeps the current date unless raw parses to a different day.
func mergeExpiry(current *time.Time, raw string) (*time.Time, bool) {
	d, ok := ParseExpiry(raw)
	if !ok {
		return current, false
	}
	y, m, day := d.Date()
	d = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	if current != nil && current.Equal(d) {
		return current, false
	}
	return &d, true
}

func sourceOf(v *model.Vehicle) model.ExpirySource {
	return model.ExpirySource{
		AssetID:  v.ID,
		UserID:   v.UserID,
		Label:    v.Registration,
		Features: v.Features,
		Expiries: v.Expiries(),
	}
}
