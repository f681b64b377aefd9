// Package documents implements the document store that the policy
// engine guards. Every document is addressable as a resource string of
// the form "doc:{owner}/{id}", with public documents exposed under the
// shared "doc:public/" namespace as well.
package documents

import (
	"strconv"
	"time"
)

// Document is a stored document.
type Document struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resource returns the identifier this document is authorized under.
func (d Document) Resource() string {
	return "doc:" + strconv.FormatInt(d.AuthorID, 10) + "/" + strconv.FormatInt(d.ID, 10)
}

// PublicResource returns the shared namespace identifier for public
// documents, or "" when the document is private.
func (d Document) PublicResource() string {
	if !d.IsPublic {
		return ""
	}
	return "doc:public/" + strconv.FormatInt(d.ID, 10)
}
