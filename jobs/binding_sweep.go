package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewBindingSweepHandler deletes role bindings whose expiry has
// passed. Expired bindings already stop contributing policies at query
// time; the sweep only keeps the table from growing without bound.
func NewBindingSweepHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tag, err := pool.Exec(ctx, `
			DELETE FROM iam_user_roles
			WHERE expires_at IS NOT NULL AND expires_at <= now()`)
		if err != nil {
			logger.Error("binding sweep failed", slog.Any("error", err))
			return err
		}
		if removed := tag.RowsAffected(); removed > 0 {
			logger.Info("expired role bindings removed", slog.Int64("count", removed))
		}
		return nil
	}
}
