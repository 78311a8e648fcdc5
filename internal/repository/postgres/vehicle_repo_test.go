package postgres

import (
	"context"
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

var vehicleColumns = []string{"id", "user_id", "registration", "make", "model", "colour",
	"mot_expiry", "tax_due_date", "features", "created_at", "updated_at"}

func TestVehicleRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVehicleRepo(db)

	user := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO vehicles \(user_id, registration, make, model, colour, mot_expiry, tax_due_date, features\)`).
		WithArgs(user, "AB12CDE", "FORD", "", "", (*time.Time)(nil), (*time.Time)(nil), []string{}).
		WillReturnRows(pgxmock.NewRows(vehicleColumns).
			AddRow(int64(1), user, "AB12CDE", "FORD", "", "", (*time.Time)(nil), (*time.Time)(nil), []string{}, ts, ts))

	v, err := r.Create(context.Background(), &model.Vehicle{UserID: user, Registration: "AB12CDE", Make: "FORD"})
	require.NoError(t, err)
	require.Equal(t, int64(1), v.ID)

	mock.ExpectQuery(`INSERT INTO vehicles`).WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err = r.Create(context.Background(), &model.Vehicle{UserID: user, Registration: "AB12CDE"})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestVehicleRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVehicleRepo(db)

	user := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()
	mot := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM vehicles WHERE user_id=\$1 AND id=\$2`).
		WithArgs(user, int64(2)).
		WillReturnRows(pgxmock.NewRows(vehicleColumns).
			AddRow(int64(2), user, "AB12CDE", "", "", "", &mot, (*time.Time)(nil), []string{"calendar"}, ts, ts))

	v, err := r.Get(context.Background(), user, 2)
	require.NoError(t, err)
	require.Contains(t, v.Features, model.FeatureCalendar)
	require.Equal(t, map[model.ExpiryKind]string{model.ExpiryMOT: "2025-03-01"}, v.Expiries())

	mock.ExpectQuery(`SELECT .* FROM vehicles WHERE user_id=\$1 AND id=\$2`).
		WithArgs(user, int64(3)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(context.Background(), user, 3)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestVehicleRepo_UpdateExpiries(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVehicleRepo(db)

	user := uuid.Must(uuid.NewV4())
	mot := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE vehicles SET mot_expiry=\$3, tax_due_date=\$4, updated_at=now\(\) WHERE user_id=\$1 AND id=\$2`).
		WithArgs(user, int64(2), &mot, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateExpiries(context.Background(), user, 2, &mot, nil))

	mock.ExpectExec(`UPDATE vehicles SET mot_expiry`).
		WithArgs(user, int64(9), &mot, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateExpiries(context.Background(), user, 9, &mot, nil), errs.ErrNotFound)
}

func TestVehicleRepo_EnableFeature(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVehicleRepo(db)

	user := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE vehicles SET features = array_append\(features, \$3\), updated_at=now\(\) WHERE user_id=\$1 AND id=\$2 AND NOT \(\$3 = ANY\(features\)\)`).
		WithArgs(user, int64(2), "calendar").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	added, err := r.EnableFeature(context.Background(), user, 2, "calendar")
	require.NoError(t, err)
	require.True(t, added)

	mock.ExpectExec(`UPDATE vehicles SET features`).
		WithArgs(user, int64(2), "calendar").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	added, err = r.EnableFeature(context.Background(), user, 2, "calendar")
	require.NoError(t, err)
	require.False(t, added)
}

func TestVehicleRepo_ListAndDelete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVehicleRepo(db)

	user := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM vehicles WHERE user_id=\$1 ORDER BY registration ASC`).
		WithArgs(user).
		WillReturnRows(pgxmock.NewRows(vehicleColumns).
			AddRow(int64(1), user, "AA11AAA", "", "", "", (*time.Time)(nil), (*time.Time)(nil), []string{}, ts, ts).
			AddRow(int64(2), user, "BB22BBB", "", "", "", (*time.Time)(nil), (*time.Time)(nil), []string{}, ts, ts))
	out, err := r.List(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, out, 2)

	mock.ExpectExec(`DELETE FROM vehicles WHERE user_id=\$1 AND id=\$2`).
		WithArgs(user, int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(context.Background(), user, 1), errs.ErrNotFound)
}
