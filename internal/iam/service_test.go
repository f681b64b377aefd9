package iam

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/arkivo-dms/arkivo/internal/iam/policy"
)

type stubRepo struct {
	policies map[int64]Policy
	roles    map[int64]Role
	attached map[int64][]int64
	bindings []UserRole
	nextID   int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		policies: make(map[int64]Policy),
		roles:    make(map[int64]Role),
		attached: make(map[int64][]int64),
		nextID:   1,
	}
}

func (s *stubRepo) CreatePolicy(_ context.Context, name, description string, doc policy.Document, system bool) (Policy, error) {
	for _, p := range s.policies {
		if p.Name == name {
			return Policy{}, ErrNameTaken
		}
	}
	p := Policy{ID: s.nextID, Name: name, Description: description, IsSystem: system, Document: doc}
	s.policies[p.ID] = p
	s.nextID++
	return p, nil
}

func (s *stubRepo) GetPolicy(_ context.Context, id int64) (Policy, error) {
	p, ok := s.policies[id]
	if !ok {
		return Policy{}, ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) GetPolicyByName(_ context.Context, name string) (Policy, error) {
	for _, p := range s.policies {
		if p.Name == name {
			return p, nil
		}
	}
	return Policy{}, ErrNotFound
}

func (s *stubRepo) ListPolicies(_ context.Context) ([]Policy, error) {
	var out []Policy
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) UpdatePolicy(_ context.Context, id int64, name, description string, doc policy.Document) (Policy, error) {
	p, ok := s.policies[id]
	if !ok {
		return Policy{}, ErrNotFound
	}
	p.Name, p.Description, p.Document = name, description, doc
	s.policies[id] = p
	return p, nil
}

func (s *stubRepo) DeletePolicy(_ context.Context, id int64) error {
	for _, ids := range s.attached {
		for _, pid := range ids {
			if pid == id {
				return ErrPolicyInUse
			}
		}
	}
	delete(s.policies, id)
	return nil
}

func (s *stubRepo) CreateRole(_ context.Context, name, description string, system bool) (Role, error) {
	role := Role{ID: s.nextID, Name: name, Description: description, IsSystem: system}
	s.roles[role.ID] = role
	s.nextID++
	return role, nil
}

func (s *stubRepo) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (s *stubRepo) GetRoleByName(_ context.Context, name string) (Role, error) {
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (s *stubRepo) ListRoles(_ context.Context) ([]Role, error) {
	var out []Role
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *stubRepo) UpdateRole(_ context.Context, id int64, name, description string) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.Name, role.Description = name, description
	s.roles[id] = role
	return role, nil
}

func (s *stubRepo) DeleteRole(_ context.Context, id int64) error {
	for _, b := range s.bindings {
		if b.RoleID == id {
			return ErrRoleInUse
		}
	}
	delete(s.roles, id)
	return nil
}

func (s *stubRepo) AttachPolicy(_ context.Context, roleID, policyID int64) error {
	for _, pid := range s.attached[roleID] {
		if pid == policyID {
			return ErrDuplicateBinding
		}
	}
	s.attached[roleID] = append(s.attached[roleID], policyID)
	return nil
}

func (s *stubRepo) DetachPolicy(_ context.Context, roleID, policyID int64) error {
	ids := s.attached[roleID]
	for i, pid := range ids {
		if pid == policyID {
			s.attached[roleID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *stubRepo) ListRolePolicies(_ context.Context, roleID int64) ([]Policy, error) {
	var out []Policy
	for _, pid := range s.attached[roleID] {
		out = append(out, s.policies[pid])
	}
	return out, nil
}

func (s *stubRepo) AssignRole(_ context.Context, userID, roleID, assignedBy int64, expiresAt *time.Time) error {
	for _, b := range s.bindings {
		if b.UserID == userID && b.RoleID == roleID {
			return ErrDuplicateBinding
		}
	}
	s.bindings = append(s.bindings, UserRole{UserID: userID, RoleID: roleID, AssignedBy: assignedBy, AssignedAt: time.Now(), ExpiresAt: expiresAt})
	return nil
}

func (s *stubRepo) RevokeRole(_ context.Context, userID, roleID int64) error {
	for i, b := range s.bindings {
		if b.UserID == userID && b.RoleID == roleID {
			s.bindings = append(s.bindings[:i], s.bindings[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *stubRepo) ListUserRoles(_ context.Context, userID int64) ([]UserRole, error) {
	var out []UserRole
	for _, b := range s.bindings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

const validDocument = `{
	"Version": "2024-01-01",
	"Statement": [{"Effect": "Allow", "Action": "docs:Read", "Resource": "doc:public/*"}]
}`

func TestCreatePolicyRejectsMalformedDocument(t *testing.T) {
	svc := NewService(newStubRepo())

	cases := map[string]string{
		"not json":       `{`,
		"no version":     `{"Statement": [{"Effect": "Allow", "Action": "a", "Resource": "r"}]}`,
		"no statements":  `{"Version": "2024-01-01", "Statement": []}`,
		"bad effect":     `{"Version": "2024-01-01", "Statement": [{"Effect": "Maybe", "Action": "a", "Resource": "r"}]}`,
		"missing action": `{"Version": "2024-01-01", "Statement": [{"Effect": "Allow", "Resource": "r"}]}`,
	}
	for name, raw := range cases {
		if _, err := svc.CreatePolicy(context.Background(), "p-"+name, "", json.RawMessage(raw)); err == nil {
			t.Errorf("%s: malformed document accepted", name)
		}
	}

	if _, err := svc.CreatePolicy(context.Background(), "good", "", json.RawMessage(validDocument)); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
}

func TestPolicyNameNormalization(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	p, err := svc.CreatePolicy(context.Background(), "  Read-Only  ", "desc", json.RawMessage(validDocument))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Name != "read-only" {
		t.Fatalf("name = %q, want folded", p.Name)
	}

	if _, err := svc.CreatePolicy(context.Background(), "", "", json.RawMessage(validDocument)); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("blank name error = %v", err)
	}
}

func TestSystemRecordsAreImmutable(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	sysPolicy, _ := repo.CreatePolicy(context.Background(), "administrator-access", "", policy.Document{}, true)
	sysRole, _ := repo.CreateRole(context.Background(), "administrator", "", true)

	if _, err := svc.UpdatePolicy(context.Background(), sysPolicy.ID, "x", "", json.RawMessage(validDocument)); !errors.Is(err, ErrSystemManaged) {
		t.Fatalf("update system policy error = %v", err)
	}
	if err := svc.DeletePolicy(context.Background(), sysPolicy.ID); !errors.Is(err, ErrSystemManaged) {
		t.Fatalf("delete system policy error = %v", err)
	}
	if _, err := svc.UpdateRole(context.Background(), sysRole.ID, "x", ""); !errors.Is(err, ErrSystemManaged) {
		t.Fatalf("update system role error = %v", err)
	}
	if err := svc.DeleteRole(context.Background(), sysRole.ID); !errors.Is(err, ErrSystemManaged) {
		t.Fatalf("delete system role error = %v", err)
	}
	if err := svc.DetachPolicy(context.Background(), sysRole.ID, sysPolicy.ID); !errors.Is(err, ErrSystemManaged) {
		t.Fatalf("detach from system role error = %v", err)
	}
}

func TestDeleteRoleWithHolders(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	role, _ := repo.CreateRole(context.Background(), "editor", "", false)
	if err := svc.AssignRole(context.Background(), 42, role.ID, 1, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := svc.DeleteRole(context.Background(), role.ID); !errors.Is(err, ErrRoleInUse) {
		t.Fatalf("delete held role error = %v", err)
	}
	if err := svc.RevokeRole(context.Background(), 42, role.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.DeleteRole(context.Background(), role.ID); err != nil {
		t.Fatalf("delete after revoke: %v", err)
	}
}

func TestAssignRoleValidation(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	role, _ := repo.CreateRole(context.Background(), "editor", "", false)

	past := time.Now().Add(-time.Hour)
	if err := svc.AssignRole(context.Background(), 1, role.ID, 99, &past); !errors.Is(err, ErrExpiryInPast) {
		t.Fatalf("past expiry error = %v", err)
	}

	if err := svc.AssignRole(context.Background(), 1, 12345, 99, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown role error = %v", err)
	}

	future := time.Now().Add(time.Hour)
	if err := svc.AssignRole(context.Background(), 1, role.ID, 99, &future); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := svc.AssignRole(context.Background(), 1, role.ID, 99, &future); !errors.Is(err, ErrDuplicateBinding) {
		t.Fatalf("duplicate binding error = %v", err)
	}
}

func TestAttachDetachPolicy(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	role, _ := repo.CreateRole(context.Background(), "editor", "", false)
	p, err := svc.CreatePolicy(context.Background(), "doc-read", "", json.RawMessage(validDocument))
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}

	if err := svc.AttachPolicy(context.Background(), role.ID, p.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := svc.DeletePolicy(context.Background(), p.ID); !errors.Is(err, ErrPolicyInUse) {
		t.Fatalf("delete attached policy error = %v", err)
	}

	attached, err := svc.ListRolePolicies(context.Background(), role.ID)
	if err != nil || len(attached) != 1 {
		t.Fatalf("list role policies = %v, %v", attached, err)
	}

	if err := svc.DetachPolicy(context.Background(), role.ID, p.ID); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := svc.DeletePolicy(context.Background(), p.ID); err != nil {
		t.Fatalf("delete after detach: %v", err)
	}
}
