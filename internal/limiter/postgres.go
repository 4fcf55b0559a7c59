package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter counting requests per target inside
// a fixed window.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	maxReq int
	now    func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxReq int) *PG {
	return &PG{pool: pool, window: window, maxReq: maxReq, now: time.Now}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, maxReq int) *PG {
	return &PG{pool: q, window: window, maxReq: maxReq, now: time.Now}
}

// cutoff is the window's trailing edge; rows at or before it no longer
// count.
func (l *PG) cutoff() time.Time { return l.now().Add(-l.window) }

// Allow reports whether the target is still under its request quota.
// maxReq <= 0 disables limiting.
func (l *PG) Allow(ctx context.Context, targetURL string) (bool, error) {
	if l.maxReq <= 0 {
		return true, nil
	}
	const q = `SELECT count(*) FROM request_limiter WHERE target_hash=$1 AND requested_at > $2`
	var n int
	if err := l.pool.QueryRow(ctx, q, HashTarget(targetURL), l.cutoff()).Scan(&n); err != nil {
		return false, err
	}
	return n < l.maxReq, nil
}

// Record logs a request and opportunistically drops rows that fell out
// of the window.
func (l *PG) Record(ctx context.Context, targetURL string) error {
	hash := HashTarget(targetURL)
	const del = `DELETE FROM request_limiter WHERE target_hash=$1 AND requested_at <= $2`
	if _, err := l.pool.Exec(ctx, del, hash, l.cutoff()); err != nil {
		return err
	}
	const ins = `INSERT INTO request_limiter (target_hash) VALUES ($1)`
	_, err := l.pool.Exec(ctx, ins, hash)
	return err
}
