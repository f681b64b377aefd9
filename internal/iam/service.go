package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/arkivo-dms/arkivo/internal/iam/policy"
)

// RepositoryPort defines the persistence operations the service needs.
type RepositoryPort interface {
	CreatePolicy(ctx context.Context, name, description string, doc policy.Document, system bool) (Policy, error)
	GetPolicy(ctx context.Context, id int64) (Policy, error)
	GetPolicyByName(ctx context.Context, name string) (Policy, error)
	ListPolicies(ctx context.Context) ([]Policy, error)
	UpdatePolicy(ctx context.Context, id int64, name, description string, doc policy.Document) (Policy, error)
	DeletePolicy(ctx context.Context, id int64) error

	CreateRole(ctx context.Context, name, description string, system bool) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	AttachPolicy(ctx context.Context, roleID, policyID int64) error
	DetachPolicy(ctx context.Context, roleID, policyID int64) error
	ListRolePolicies(ctx context.Context, roleID int64) ([]Policy, error)

	AssignRole(ctx context.Context, userID, roleID, assignedBy int64, expiresAt *time.Time) error
	RevokeRole(ctx context.Context, userID, roleID int64) error
	ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error)
}

var nameFolder = cases.Fold()

// Service enforces the administrative invariants around policies,
// roles and bindings: documents are validated before they are ever
// persisted, system records stay immutable, and roles cannot be
// deleted out from under their holders.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreatePolicy validates and stores a new custom policy. The raw
// document is parsed and validated first so a malformed policy is
// never persisted.
func (s *Service) CreatePolicy(ctx context.Context, name, description string, rawDocument json.RawMessage) (Policy, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Policy{}, err
	}
	doc, err := policy.ParseDocument(rawDocument)
	if err != nil {
		return Policy{}, err
	}
	return s.repo.CreatePolicy(ctx, name, strings.TrimSpace(description), doc, false)
}

// GetPolicy fetches a policy by id.
func (s *Service) GetPolicy(ctx context.Context, id int64) (Policy, error) {
	return s.repo.GetPolicy(ctx, id)
}

// ListPolicies returns all policies.
func (s *Service) ListPolicies(ctx context.Context) ([]Policy, error) {
	return s.repo.ListPolicies(ctx)
}

// UpdatePolicy validates and applies changes to a custom policy.
// System policies are immutable.
func (s *Service) UpdatePolicy(ctx context.Context, id int64, name, description string, rawDocument json.RawMessage) (Policy, error) {
	current, err := s.repo.GetPolicy(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	if current.IsSystem {
		return Policy{}, ErrSystemManaged
	}
	name, err = normalizeName(name)
	if err != nil {
		return Policy{}, err
	}
	doc, err := policy.ParseDocument(rawDocument)
	if err != nil {
		return Policy{}, err
	}
	return s.repo.UpdatePolicy(ctx, id, name, strings.TrimSpace(description), doc)
}

// DeletePolicy removes a custom policy that is not attached anywhere.
func (s *Service) DeletePolicy(ctx context.Context, id int64) error {
	current, err := s.repo.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return ErrSystemManaged
	}
	return s.repo.DeletePolicy(ctx, id)
}

// CreateRole stores a new custom role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Role{}, err
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description), false)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// UpdateRole applies changes to a custom role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem {
		return Role{}, ErrSystemManaged
	}
	name, err = normalizeName(name)
	if err != nil {
		return Role{}, err
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a custom role. The repository performs the
// holder check and the delete in a single transaction; this boundary
// only rules out system roles.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return ErrSystemManaged
	}
	return s.repo.DeleteRole(ctx, id)
}

// AttachPolicy links a policy to a role.
func (s *Service) AttachPolicy(ctx context.Context, roleID, policyID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.repo.GetPolicy(ctx, policyID); err != nil {
		return err
	}
	return s.repo.AttachPolicy(ctx, roleID, policyID)
}

// DetachPolicy unlinks a policy from a role. System roles keep their
// seeded policy set.
func (s *Service) DetachPolicy(ctx context.Context, roleID, policyID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemManaged
	}
	return s.repo.DetachPolicy(ctx, roleID, policyID)
}

// ListRolePolicies returns the policies attached to a role.
func (s *Service) ListRolePolicies(ctx context.Context, roleID int64) ([]Policy, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePolicies(ctx, roleID)
}

// AssignRole binds a role to a user, optionally until expiresAt.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, assignedBy int64, expiresAt *time.Time) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return ErrExpiryInPast
	}
	return s.repo.AssignRole(ctx, userID, roleID, assignedBy, expiresAt)
}

// RevokeRole removes a user's role binding. The change takes effect on
// the next authorization check because decisions are never cached.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.RevokeRole(ctx, userID, roleID)
}

// ListUserRoles returns a user's bindings, expired ones included, so
// the admin surface can show lapsed grants.
func (s *Service) ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	return s.repo.ListUserRoles(ctx, userID)
}

// normalizeName trims and case-folds a policy or role name so lookups
// and uniqueness behave the same regardless of casing.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name required", ErrInvalidName)
	}
	return nameFolder.String(name), nil
}
