package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/arkivo-dms/arkivo/internal/authz"
)

// RepositoryPort defines the persistence operations the service needs.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) error
	Timeline(ctx context.Context, f TimelineFilter, limit, offset int) ([]Entry, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service coordinates trail writes and timeline reads.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// RecordDecision appends a gate decision to the trail. A storage
// failure is logged and swallowed; the trail must never fail the
// request it describes. The insert is detached from the request
// context so a client disconnect cannot drop the record.
func (s *Service) RecordDecision(ctx context.Context, result authz.Result) {
	entry := Entry{
		OccurredAt: s.now(),
		UserID:     result.Principal.ID,
		Username:   result.Principal.Username,
		Action:     result.Action,
		Resource:   result.Resource,
		Effect:     string(result.Effect),
		Reason:     result.Reason,
		Details:    result.Details,
	}
	if err := s.repo.Insert(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("record decision",
			slog.Int64("user_id", entry.UserID),
			slog.String("action", entry.Action),
			slog.Any("error", err))
	}
}

// Timeline returns one page of the trail, newest first.
func (s *Service) Timeline(ctx context.Context, f TimelineFilter) ([]Entry, int, error) {
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return s.repo.Timeline(ctx, f, f.PageSize, (f.Page-1)*f.PageSize)
}

// Prune deletes entries older than the retention window.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("audit trail pruned",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return removed, nil
}
