package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
)

const vehicleCols = `id, user_id, registration, make, model, colour, mot_expiry, tax_due_date, features, created_at, updated_at`

// VehicleRepo implements VehicleRepository using PostgreSQL.
type VehicleRepo struct{ db *DB }

// NewVehicleRepo constructs a vehicle repository.
func NewVehicleRepo(db *DB) *VehicleRepo { return &VehicleRepo{db: db} }

func scanVehicle(row scanner) (model.Vehicle, error) {
	var v model.Vehicle
	err := row.Scan(&v.ID, &v.UserID, &v.Registration, &v.Make, &v.Model, &v.Colour,
		&v.MOTExpiry, &v.TaxDueDate, &v.Features, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// Create inserts a vehicle row.
func (r *VehicleRepo) Create(ctx context.Context, in *model.Vehicle) (*model.Vehicle, error) {
	features := in.Features
	if features == nil {
		features = []string{}
	}
	const q = `
INSERT INTO vehicles (user_id, registration, make, model, colour, mot_expiry, tax_due_date, features)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING ` + vehicleCols
	v, err := scanVehicle(r.db.Pool.QueryRow(ctx, q, in.UserID, in.Registration, in.Make, in.Model,
		in.Colour, in.MOTExpiry, in.TaxDueDate, features))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}
	return &v, nil
}

// Get selects a vehicle owned by userID.
func (r *VehicleRepo) Get(ctx context.Context, userID uuid.UUID, id int64) (*model.Vehicle, error) {
	const q = `SELECT ` + vehicleCols + ` FROM vehicles WHERE user_id=$1 AND id=$2`
	v, err := scanVehicle(r.db.Pool.QueryRow(ctx, q, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// List returns the user's vehicles ordered by registration.
func (r *VehicleRepo) List(ctx context.Context, userID uuid.UUID) ([]model.Vehicle, error) {
	const q = `SELECT ` + vehicleCols + ` FROM vehicles WHERE user_id=$1 ORDER BY registration ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateExpiries stores the tracked expiry dates.
func (r *VehicleRepo) UpdateExpiries(ctx context.Context, userID uuid.UUID, id int64, mot, tax *time.Time) error {
	const q = `UPDATE vehicles SET mot_expiry=$3, tax_due_date=$4, updated_at=now() WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id, mot, tax)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// EnableFeature appends feature unless it is already enabled.
func (r *VehicleRepo) EnableFeature(ctx context.Context, userID uuid.UUID, id int64, feature string) (bool, error) {
	const q = `
UPDATE vehicles
SET features = array_append(features, $3), updated_at=now()
WHERE user_id=$1 AND id=$2 AND NOT ($3 = ANY(features))`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id, feature)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a vehicle.
func (r *VehicleRepo) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	const q = `DELETE FROM vehicles WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
