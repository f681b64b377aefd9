package iam

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arkivo-dms/arkivo/internal/authz"
	"github.com/arkivo-dms/arkivo/internal/iam/policy"
	"github.com/arkivo-dms/arkivo/internal/platform/httpx"
)

// Handler exposes the policy and role administration API.
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

// MountRoutes registers the administration routes. Every route is
// guarded by the same engine it administers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/policies", func(r chi.Router) {
		r.With(h.guard.Require("iam:ListPolicies", authz.StaticResource("policy:*"))).Get("/", h.listPolicies)
		r.With(h.guard.Require("iam:CreatePolicy", authz.StaticResource("policy:*"))).Post("/", h.createPolicy)
		r.With(h.guard.Require("iam:ReadPolicy", idResource("policy"))).Get("/{id}", h.getPolicy)
		r.With(h.guard.Require("iam:UpdatePolicy", idResource("policy"))).Put("/{id}", h.updatePolicy)
		r.With(h.guard.Require("iam:DeletePolicy", idResource("policy"))).Delete("/{id}", h.deletePolicy)
	})

	r.Route("/roles", func(r chi.Router) {
		r.With(h.guard.Require("iam:ListRoles", authz.StaticResource("role:*"))).Get("/", h.listRoles)
		r.With(h.guard.Require("iam:CreateRole", authz.StaticResource("role:*"))).Post("/", h.createRole)
		r.With(h.guard.Require("iam:ReadRole", idResource("role"))).Get("/{id}", h.getRole)
		r.With(h.guard.Require("iam:UpdateRole", idResource("role"))).Put("/{id}", h.updateRole)
		r.With(h.guard.Require("iam:DeleteRole", idResource("role"))).Delete("/{id}", h.deleteRole)
		r.With(h.guard.Require("iam:ReadRole", idResource("role"))).Get("/{id}/policies", h.listRolePolicies)
		r.With(h.guard.Require("iam:AttachPolicy", idResource("role"))).Post("/{id}/policies", h.attachPolicy)
		r.With(h.guard.Require("iam:DetachPolicy", idResource("role"))).Delete("/{id}/policies/{policyID}", h.detachPolicy)
	})

	r.Route("/users/{userID}/roles", func(r chi.Router) {
		r.With(h.guard.Require("iam:ListUserRoles", userRolesResource)).Get("/", h.listUserRoles)
		r.With(h.guard.Require("iam:AssignRole", userRolesResource)).Post("/", h.assignRole)
		r.With(h.guard.Require("iam:RevokeRole", userRolesResource)).Delete("/{roleID}", h.revokeRole)
	})
}

func idResource(kind string) authz.ResourceFunc {
	return func(r *http.Request) string {
		return kind + ":" + chi.URLParam(r, "id")
	}
}

func userRolesResource(r *http.Request) string {
	return "user:" + chi.URLParam(r, "userID")
}

type policyRequest struct {
	Name        string          `json:"name" validate:"required,max=128"`
	Description string          `json:"description" validate:"max=512"`
	Document    json.RawMessage `json:"document" validate:"required"`
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
}

type attachRequest struct {
	PolicyID int64 `json:"policy_id" validate:"required"`
}

type assignRequest struct {
	RoleID    int64      `json:"role_id" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.service.ListPolicies(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if policies == nil {
		policies = []Policy{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePolicy(w, r)
	if !ok {
		return
	}
	p, err := h.service.CreatePolicy(r.Context(), req.Name, req.Description, req.Document)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.GetPolicy(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) updatePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	req, ok := h.decodePolicy(w, r)
	if !ok {
		return
	}
	p, err := h.service.UpdatePolicy(r.Context(), id, req.Name, req.Description, req.Document)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePolicy(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	req, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRolePolicies(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	policies, err := h.service.ListRolePolicies(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if policies == nil {
		policies = []Policy{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (h *Handler) attachPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req attachRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AttachPolicy(r.Context(), id, req.PolicyID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPolicy(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	policyID, ok := h.pathID(w, r, "policyID")
	if !ok {
		return
	}
	if err := h.service.DetachPolicy(r.Context(), roleID, policyID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	bindings, err := h.service.ListUserRoles(r.Context(), userID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if bindings == nil {
		bindings = []UserRole{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": bindings})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := authz.PrincipalFromContext(r.Context())
	if err := h.service.AssignRole(r.Context(), userID, req.RoleID, principal.ID, req.ExpiresAt); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), userID, roleID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodePolicy(w http.ResponseWriter, r *http.Request) (policyRequest, bool) {
	var req policyRequest
	ok := h.decode(w, r, &req)
	return req, ok
}

func (h *Handler) decodeRole(w http.ResponseWriter, r *http.Request) (roleRequest, bool) {
	var req roleRequest
	ok := h.decode(w, r, &req)
	return req, ok
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrDuplicateBinding):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrSystemManaged), errors.Is(err, ErrRoleInUse), errors.Is(err, ErrPolicyInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrExpiryInPast), errors.Is(err, policy.ErrInvalidDocument):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("iam request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
