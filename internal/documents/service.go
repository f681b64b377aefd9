package documents

import (
	"context"
	"strings"
)

// RepositoryPort defines the persistence operations the service needs.
type RepositoryPort interface {
	CreateDocument(ctx context.Context, authorID int64, title, body string, public bool) (Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error)
	UpdateDocument(ctx context.Context, id int64, title, body string, public bool) (Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

// Service handles document business logic. Authorization happens at
// the handler boundary; the service assumes its caller was cleared.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create stores a new document owned by authorID.
func (s *Service) Create(ctx context.Context, authorID int64, title, body string, public bool) (Document, error) {
	return s.repo.CreateDocument(ctx, authorID, strings.TrimSpace(title), body, public)
}

// Get fetches a document by id.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// List returns one page of documents plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListDocuments(ctx, filter)
}

// Update replaces the mutable fields of a document.
func (s *Service) Update(ctx context.Context, id int64, title, body string, public bool) (Document, error) {
	return s.repo.UpdateDocument(ctx, id, strings.TrimSpace(title), body, public)
}

// Delete removes a document.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteDocument(ctx, id)
}
