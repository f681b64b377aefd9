package documents

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// ListFilter narrows a listing. Zero values mean no filter.
type ListFilter struct {
	AuthorID   int64
	PublicOnly bool
	Limit      int
	Offset     int
}

// Repository provides PostgreSQL backed persistence for documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const documentColumns = "id, author_id, title, body, is_public, created_at, updated_at"

// CreateDocument inserts a document.
func (r *Repository) CreateDocument(ctx context.Context, authorID int64, title, body string, public bool) (Document, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO documents (author_id, title, body, is_public)
		VALUES ($1, $2, $3, $4)
		RETURNING `+documentColumns,
		authorID, title, body, public)
	return scanDocument(row)
}

// GetDocument fetches a document by id.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// ListDocuments returns one page of documents plus the total count for
// the same filter. The count and the page run as parallel queries on
// the pool.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	where := ` WHERE ($1 = 0 OR author_id = $1) AND (NOT $2 OR is_public)`

	var (
		docs  []Document
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx,
			`SELECT count(*) FROM documents`+where,
			filter.AuthorID, filter.PublicOnly).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `
			SELECT `+documentColumns+` FROM documents`+where+`
			ORDER BY updated_at DESC, id DESC LIMIT $3 OFFSET $4`,
			filter.AuthorID, filter.PublicOnly, filter.Limit, filter.Offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDocument(rows)
			if err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// UpdateDocument replaces the mutable fields of a document.
func (r *Repository) UpdateDocument(ctx context.Context, id int64, title, body string, public bool) (Document, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE documents
		SET title = $2, body = $3, is_public = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+documentColumns,
		id, title, body, public)
	return scanDocument(row)
}

// DeleteDocument removes a document.
func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.AuthorID, &d.Title, &d.Body, &d.IsPublic, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}
