package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/arkivo-dms/arkivo/internal/audit"
)

// NewAuditRetentionHandler prunes audit entries older than the
// configured retention window.
func NewAuditRetentionHandler(svc *audit.Service, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if retention <= 0 {
			return nil
		}
		removed, err := svc.Prune(ctx, retention)
		if err != nil {
			logger.Error("audit retention failed", slog.Any("error", err))
			return err
		}
		logger.Debug("audit retention finished", slog.Int64("removed", removed))
		return nil
	}
}
