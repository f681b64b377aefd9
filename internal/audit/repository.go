package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Repository provides PostgreSQL backed persistence for the trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry to the trail.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_entries (occurred_at, user_id, username, action, resource, effect, reason, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.OccurredAt, e.UserID, e.Username, e.Action, e.Resource, e.Effect, e.Reason, e.Details)
	return err
}

// Timeline returns one page of entries, newest first, plus the total
// count for the same filter. Count and page run in parallel.
func (r *Repository) Timeline(ctx context.Context, f TimelineFilter, limit, offset int) ([]Entry, int, error) {
	where := ` WHERE ($1 = 0 OR user_id = $1)
		AND ($2 = '' OR action = $2)
		AND ($3 = '' OR effect = $3)
		AND ($4::timestamptz IS NULL OR occurred_at >= $4)
		AND ($5::timestamptz IS NULL OR occurred_at < $5)`
	args := []any{f.UserID, f.Action, f.Effect, nullableTime(f.From), nullableTime(f.To)}

	var (
		entries []Entry
		total   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT count(*) FROM audit_entries`+where, args...).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `
			SELECT id, occurred_at, user_id, username, action, resource, effect, reason, details
			FROM audit_entries`+where+`
			ORDER BY occurred_at DESC, id DESC LIMIT $6 OFFSET $7`,
			append(args, limit, offset)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.ID, &e.OccurredAt, &e.UserID, &e.Username, &e.Action, &e.Resource, &e.Effect, &e.Reason, &e.Details); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// DeleteOlderThan prunes entries past the retention window and returns
// the number of rows removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_entries WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
