package iam

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkivo-dms/arkivo/internal/iam/policy"
	platformdb "github.com/arkivo-dms/arkivo/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for policies,
// roles and bindings.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

// CreatePolicy inserts a policy. The document has already been
// validated by the service.
func (r *Repository) CreatePolicy(ctx context.Context, name, description string, doc policy.Document, system bool) (Policy, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Policy{}, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO iam_policies (name, description, is_system, document)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, is_system, document, created_at, updated_at`,
		name, description, system, raw)
	p, err := scanPolicy(row)
	if err != nil {
		return Policy{}, mapUniqueViolation(err, ErrNameTaken)
	}
	return p, nil
}

// GetPolicy fetches a policy by id.
func (r *Repository) GetPolicy(ctx context.Context, id int64) (Policy, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system, document, created_at, updated_at
		FROM iam_policies WHERE id = $1`, id)
	return scanPolicy(row)
}

// GetPolicyByName fetches a policy by its unique name.
func (r *Repository) GetPolicyByName(ctx context.Context, name string) (Policy, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system, document, created_at, updated_at
		FROM iam_policies WHERE lower(name) = lower($1)`, name)
	return scanPolicy(row)
}

// ListPolicies returns all policies ordered by name.
func (r *Repository) ListPolicies(ctx context.Context) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, is_system, document, created_at, updated_at
		FROM iam_policies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// UpdatePolicy replaces the mutable fields of a policy.
func (r *Repository) UpdatePolicy(ctx context.Context, id int64, name, description string, doc policy.Document) (Policy, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Policy{}, err
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE iam_policies
		SET name = $2, description = $3, document = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, is_system, document, created_at, updated_at`,
		id, name, description, raw)
	p, err := scanPolicy(row)
	if err != nil {
		return Policy{}, mapUniqueViolation(err, ErrNameTaken)
	}
	return p, nil
}

// DeletePolicy removes a policy. Deletion is blocked while the policy
// is still attached to a role, checked inside one transaction.
func (r *Repository) DeletePolicy(ctx context.Context, id int64) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var attached int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM iam_role_policies WHERE policy_id = $1`, id).Scan(&attached); err != nil {
			return err
		}
		if attached > 0 {
			return ErrPolicyInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM iam_policies WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateRole inserts a role.
func (r *Repository) CreateRole(ctx context.Context, name, description string, system bool) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO iam_roles (name, description, is_system)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, is_system, created_at, updated_at`,
		name, description, system)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapUniqueViolation(err, ErrNameTaken)
	}
	return role, nil
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system, created_at, updated_at
		FROM iam_roles WHERE id = $1`, id)
	return scanRole(row)
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system, created_at, updated_at
		FROM iam_roles WHERE lower(name) = lower($1)`, name)
	return scanRole(row)
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, is_system, created_at, updated_at
		FROM iam_roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole replaces the mutable fields of a role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE iam_roles SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, is_system, created_at, updated_at`,
		id, name, description)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapUniqueViolation(err, ErrNameTaken)
	}
	return role, nil
}

// DeleteRole removes a role. The holder check and the delete run in
// one transaction so a binding created concurrently cannot slip past
// the check.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var holders int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM iam_user_roles
			WHERE role_id = $1 AND (expires_at IS NULL OR expires_at > now())`, id).Scan(&holders); err != nil {
			return err
		}
		if holders > 0 {
			return ErrRoleInUse
		}
		if _, err := tx.Exec(ctx, `DELETE FROM iam_user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM iam_role_policies WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM iam_roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AttachPolicy links a policy to a role.
func (r *Repository) AttachPolicy(ctx context.Context, roleID, policyID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO iam_role_policies (role_id, policy_id) VALUES ($1, $2)`,
		roleID, policyID)
	return mapUniqueViolation(err, ErrDuplicateBinding)
}

// DetachPolicy unlinks a policy from a role.
func (r *Repository) DetachPolicy(ctx context.Context, roleID, policyID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM iam_role_policies WHERE role_id = $1 AND policy_id = $2`,
		roleID, policyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRolePolicies returns the policies attached to a role.
func (r *Repository) ListRolePolicies(ctx context.Context, roleID int64) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.description, p.is_system, p.document, p.created_at, p.updated_at
		FROM iam_policies p
		JOIN iam_role_policies rp ON rp.policy_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// AssignRole binds a role to a user. The (user, role) pair is unique.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID, assignedBy int64, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO iam_user_roles (user_id, role_id, assigned_by, expires_at)
		VALUES ($1, $2, $3, $4)`,
		userID, roleID, assignedBy, expiresAt)
	return mapUniqueViolation(err, ErrDuplicateBinding)
}

// RevokeRole removes a user's role binding.
func (r *Repository) RevokeRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM iam_user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserRoles returns the user's bindings, including expired ones.
func (r *Repository) ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, role_id, assigned_by, assigned_at, expires_at
		FROM iam_user_roles WHERE user_id = $1
		ORDER BY assigned_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bindings []UserRole
	for rows.Next() {
		var b UserRole
		if err := rows.Scan(&b.UserID, &b.RoleID, &b.AssignedBy, &b.AssignedAt, &b.ExpiresAt); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// PoliciesForUser resolves the policy documents currently bound to a
// user across all non-expired role bindings, deduplicated by policy.
// Expiry is filtered here, at the resolution boundary, so the
// evaluation core never sees lapsed grants. Rows whose stored document
// no longer decodes are skipped with a warning; they can never grant
// access.
func (r *Repository) PoliciesForUser(ctx context.Context, userID int64) ([]policy.BoundPolicy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.name, p.document
		FROM iam_policies p
		JOIN iam_role_policies rp ON rp.policy_id = p.id
		JOIN iam_user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		  AND (ur.expires_at IS NULL OR ur.expires_at > now())
		ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bound []policy.BoundPolicy
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var doc policy.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			r.logger.Warn("skipping undecodable policy document",
				slog.String("policy", name),
				slog.Any("error", err))
			continue
		}
		bound = append(bound, policy.BoundPolicy{Name: name, Document: doc})
	}
	return bound, rows.Err()
}

func scanPolicy(row pgx.Row) (Policy, error) {
	var p Policy
	var raw []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.IsSystem, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, ErrNotFound
		}
		return Policy{}, err
	}
	if err := json.Unmarshal(raw, &p.Document); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func mapUniqueViolation(err error, sentinel error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sentinel
	}
	return err
}
