package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arkivo-dms/arkivo/internal/authz"
	"github.com/arkivo-dms/arkivo/internal/iam/policy"
	"github.com/arkivo-dms/arkivo/internal/shared"
)

type memoryRepo struct {
	docs   map[int64]Document
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: make(map[int64]Document), nextID: 1}
}

func (m *memoryRepo) CreateDocument(_ context.Context, authorID int64, title, body string, public bool) (Document, error) {
	d := Document{ID: m.nextID, AuthorID: authorID, Title: title, Body: body, IsPublic: public, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.docs[d.ID] = d
	m.nextID++
	return d, nil
}

func (m *memoryRepo) GetDocument(_ context.Context, id int64) (Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (m *memoryRepo) ListDocuments(_ context.Context, filter ListFilter) ([]Document, int, error) {
	var out []Document
	for _, d := range m.docs {
		if filter.AuthorID != 0 && d.AuthorID != filter.AuthorID {
			continue
		}
		if filter.PublicOnly && !d.IsPublic {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *memoryRepo) UpdateDocument(_ context.Context, id int64, title, body string, public bool) (Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	d.Title, d.Body, d.IsPublic = title, body, public
	m.docs[id] = d
	return d, nil
}

func (m *memoryRepo) DeleteDocument(_ context.Context, id int64) error {
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

type staticPolicies map[int64][]policy.BoundPolicy

func (s staticPolicies) PoliciesForUser(_ context.Context, userID int64) ([]policy.BoundPolicy, error) {
	return s[userID], nil
}

type staticPrincipals map[int64]authz.Principal

func (s staticPrincipals) FindPrincipal(_ context.Context, userID int64) (authz.Principal, error) {
	p, ok := s[userID]
	if !ok {
		return authz.Principal{}, ErrNotFound
	}
	return p, nil
}

func authorPolicy() policy.BoundPolicy {
	raw := `{
		"Version": "2024-01-01",
		"Statement": [
			{"Effect": "Allow", "Action": ["docs:Create", "docs:List"], "Resource": "doc:*"},
			{"Effect": "Allow", "Action": ["docs:Read", "docs:Update", "docs:Delete"], "Resource": "doc:${user.id}/*"},
			{"Effect": "Allow", "Action": "docs:Read", "Resource": "doc:public/*"}
		]
	}`
	doc, err := policy.ParseDocument([]byte(raw))
	if err != nil {
		panic(err)
	}
	return policy.BoundPolicy{Name: "document-author-access", Document: doc}
}

func auditorPolicy() policy.BoundPolicy {
	raw := `{
		"Version": "2024-01-01",
		"Statement": [
			{"Effect": "Allow", "Action": ["docs:Read", "docs:List"], "Resource": "doc:*"},
			{"Effect": "Allow", "Action": "docs:Read", "Resource": "doc:public/*"},
			{"Effect": "Deny", "Action": ["docs:Create", "docs:Update", "docs:Delete"], "Resource": "doc:*"}
		]
	}`
	doc, err := policy.ParseDocument([]byte(raw))
	if err != nil {
		panic(err)
	}
	return policy.BoundPolicy{Name: "auditor-access", Document: doc}
}

type fixture struct {
	router chi.Router
	repo   *memoryRepo
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	policies := staticPolicies{
		1: {authorPolicy()},
		2: {authorPolicy()},
		3: {auditorPolicy()},
	}
	principals := staticPrincipals{
		1: {ID: 1, Username: "alice", Email: "alice@example.com"},
		2: {ID: 2, Username: "bob", Email: "bob@example.com"},
		3: {ID: 3, Username: "carol", Email: "carol@example.com"},
	}
	guard := authz.Middleware{
		Gate:       authz.NewGate(policies, logger),
		Principals: principals,
		Logger:     logger,
	}

	repo := newMemoryRepo()
	handler := NewHandler(logger, NewService(repo), guard)

	router := chi.NewRouter()
	router.Route("/documents", handler.MountRoutes)
	return fixture{router: router, repo: repo}
}

func (f fixture) do(t *testing.T, userID int64, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	sess := &shared.Session{}
	sess.SetUser(strconv.FormatInt(userID, 10))
	r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func TestAuthorOwnsDocumentLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, 1, http.MethodPost, "/documents/", documentRequest{Title: "Draft", Body: "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var doc Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}

	target := "/documents/" + strconv.FormatInt(doc.ID, 10)
	if rec := f.do(t, 1, http.MethodGet, target, nil); rec.Code != http.StatusOK {
		t.Fatalf("author read status = %d", rec.Code)
	}
	if rec := f.do(t, 1, http.MethodPut, target, documentRequest{Title: "Edited", Body: "hi"}); rec.Code != http.StatusOK {
		t.Fatalf("author update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, 1, http.MethodDelete, target, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("author delete status = %d", rec.Code)
	}
}

func TestPrivateDocumentHiddenFromOtherAuthors(t *testing.T) {
	f := newFixture(t)
	doc, _ := f.repo.CreateDocument(context.Background(), 1, "Secret", "mine", false)
	target := "/documents/" + strconv.FormatInt(doc.ID, 10)

	if rec := f.do(t, 2, http.MethodGet, target, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("other author read status = %d", rec.Code)
	}
	if rec := f.do(t, 2, http.MethodDelete, target, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("other author delete status = %d", rec.Code)
	}
}

func TestPublicDocumentReadableViaSharedNamespace(t *testing.T) {
	f := newFixture(t)
	doc, _ := f.repo.CreateDocument(context.Background(), 1, "Published", "for all", true)
	target := "/documents/" + strconv.FormatInt(doc.ID, 10)

	if rec := f.do(t, 2, http.MethodGet, target, nil); rec.Code != http.StatusOK {
		t.Fatalf("public read status = %d", rec.Code)
	}
	// Public visibility never implies write access.
	if rec := f.do(t, 2, http.MethodPut, target, documentRequest{Title: "Hijack"}); rec.Code != http.StatusForbidden {
		t.Fatalf("public write status = %d", rec.Code)
	}
}

func TestAuditorDenyOverridesRead(t *testing.T) {
	f := newFixture(t)
	doc, _ := f.repo.CreateDocument(context.Background(), 1, "Record", "evidence", false)
	target := "/documents/" + strconv.FormatInt(doc.ID, 10)

	if rec := f.do(t, 3, http.MethodGet, target, nil); rec.Code != http.StatusOK {
		t.Fatalf("auditor read status = %d", rec.Code)
	}
	if rec := f.do(t, 3, http.MethodPut, target, documentRequest{Title: "Tamper"}); rec.Code != http.StatusForbidden {
		t.Fatalf("auditor update status = %d", rec.Code)
	}
	if rec := f.do(t, 3, http.MethodPost, "/documents/", documentRequest{Title: "New"}); rec.Code != http.StatusForbidden {
		t.Fatalf("auditor create status = %d", rec.Code)
	}
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	f := newFixture(t)
	r := httptest.NewRequest(http.MethodGet, "/documents/", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
}
