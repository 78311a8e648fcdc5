package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Policy bounds the failures tolerated inside Window before a Lockout.
type Policy struct {
	Window   time.Duration
	MaxFails int
	Lockout  time.Duration
}

// DefaultPolicy allows 5 bad secrets per 15 minutes, then locks for 15 minutes.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, Lockout: 15 * time.Minute}

// PG is a PostgreSQL-backed Limiter with a fixed window and lockout.
type PG struct {
	db  Querier
	p   Policy
	now func() time.Time
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter. Zero fields of p fall back to DefaultPolicy.
func NewPG(db Querier, p Policy) *PG {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxFails <= 0 {
		p.MaxFails = DefaultPolicy.MaxFails
	}
	if p.Lockout <= 0 {
		p.Lockout = DefaultPolicy.Lockout
	}
	return &PG{db: db, p: p, now: time.Now}
}

// Allow reports whether the client is currently unlocked.
func (l *PG) Allow(ctx context.Context, scope string, client []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM trigger_limiter WHERE scope=$1 AND client_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, scope, client).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, fmt.Errorf("limiter allow: %w", err)
	}
	if left := blockedUntil.Sub(l.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success clears the failure counter of the client.
func (l *PG) Success(ctx context.Context, scope string, client []byte) error {
	const q = `
UPDATE trigger_limiter SET fail_count=0, blocked_until='epoch', updated_at=now()
WHERE scope=$1 AND client_hash=$2 AND fail_count > 0`
	if _, err := l.db.Exec(ctx, q, scope, client); err != nil {
		return fmt.Errorf("limiter success: %w", err)
	}
	return nil
}

// Failure counts a bad secret. The counter restarts once Window has passed
// since the previous failure.
func (l *PG) Failure(ctx context.Context, scope string, client []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO trigger_limiter (scope, client_hash, fail_count, updated_at)
VALUES ($1,$2,1,now())
ON CONFLICT (scope, client_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - trigger_limiter.updated_at > $3::interval THEN 1 ELSE trigger_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, scope, client, l.p.Window).Scan(&fails); err != nil {
		return false, 0, fmt.Errorf("limiter failure: %w", err)
	}
	if fails < l.p.MaxFails {
		return false, 0, nil
	}
	const upd = `UPDATE trigger_limiter SET blocked_until=$3 WHERE scope=$1 AND client_hash=$2`
	if _, err := l.db.Exec(ctx, upd, scope, client, l.now().Add(l.p.Lockout)); err != nil {
		return false, 0, fmt.Errorf("limiter lock: %w", err)
	}
	return true, l.p.Lockout, nil
}
