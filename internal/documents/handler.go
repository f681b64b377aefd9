package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arkivo-dms/arkivo/internal/authz"
	"github.com/arkivo-dms/arkivo/internal/platform/httpx"
	"github.com/arkivo-dms/arkivo/internal/shared"
)

// Handler exposes the document API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers document routes. Create and List are guarded
// up front; the per-document routes resolve the principal first and
// decide after loading the document, because the resource identifier
// depends on who owns it.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("docs:Create", authz.StaticResource("doc:*")))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("docs:List", authz.StaticResource("doc:*")))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticate)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
	})
}

type documentRequest struct {
	Title    string `json:"title" validate:"required,max=256"`
	Body     string `json:"body"`
	IsPublic bool   `json:"is_public"`
}

type listDocumentsResponse struct {
	Documents  []Document        `json:"documents"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, _ := authz.PrincipalFromContext(r.Context())
	var req documentRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.Create(r.Context(), principal.ID, req.Title, req.Body, req.IsPublic)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	authorID, _ := strconv.ParseInt(q.Get("author_id"), 10, 64)

	filter := ListFilter{
		AuthorID:   authorID,
		PublicOnly: q.Get("public") == "true",
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	}
	docs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	httpx.JSON(w, http.StatusOK, listDocumentsResponse{
		Documents:  docs,
		Pagination: shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	doc, principal, ok := h.loadTarget(w, r)
	if !ok {
		return
	}
	if !h.authorizeRead(r, principal, doc) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	doc, principal, ok := h.loadTarget(w, r)
	if !ok {
		return
	}
	if !h.authorizeWrite(r, principal, "docs:Update", doc) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
		return
	}
	var req documentRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.service.Update(r.Context(), doc.ID, req.Title, req.Body, req.IsPublic)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	doc, principal, ok := h.loadTarget(w, r)
	if !ok {
		return
	}
	if !h.authorizeWrite(r, principal, "docs:Delete", doc) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
		return
	}
	if err := h.service.Delete(r.Context(), doc.ID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeRead clears a read against the owner namespace first and
// falls back to the shared public namespace for public documents, so a
// grant on doc:public/* is enough to read published documents.
func (h *Handler) authorizeRead(r *http.Request, principal authz.Principal, doc Document) bool {
	overrides := contextFor(doc)
	result := h.guard.Check(r.Context(), principal, "docs:Read", doc.Resource(), overrides)
	if result.Allowed() {
		return true
	}
	if public := doc.PublicResource(); public != "" {
		return h.guard.Check(r.Context(), principal, "docs:Read", public, overrides).Allowed()
	}
	return false
}

func (h *Handler) authorizeWrite(r *http.Request, principal authz.Principal, action string, doc Document) bool {
	return h.guard.Check(r.Context(), principal, action, doc.Resource(), contextFor(doc)).Allowed()
}

// contextFor exposes the target document's attributes to policy
// conditions.
func contextFor(doc Document) map[string]any {
	return map[string]any{
		"docs:author_id": strconv.FormatInt(doc.AuthorID, 10),
		"doc": map[string]any{
			"id":        strconv.FormatInt(doc.ID, 10),
			"author_id": strconv.FormatInt(doc.AuthorID, 10),
			"public":    strconv.FormatBool(doc.IsPublic),
		},
	}
}

func (h *Handler) loadTarget(w http.ResponseWriter, r *http.Request) (Document, authz.Principal, bool) {
	principal, _ := authz.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return Document{}, principal, false
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return Document{}, principal, false
	}
	return doc, principal, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
		return
	}
	h.logger.Error("documents request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
