package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arkivo-dms/arkivo/internal/iam/policy"
)

// Names of the seeded system roles.
const (
	RoleAdministrator  = "administrator"
	RoleDocumentAuthor = "document-author"
	RoleAuditor        = "auditor"
)

const documentVersion = "2024-01-01"

type seedPolicy struct {
	name        string
	description string
	document    policy.Document
}

type seedRole struct {
	name        string
	description string
	policies    []string
}

func systemPolicies() []seedPolicy {
	return []seedPolicy{
		{
			name:        "administrator-access",
			description: "Full access to every action and resource.",
			document: policy.Document{
				Version: documentVersion,
				Statement: []policy.Statement{{
					Effect:   policy.EffectAllow,
					Action:   policy.NewStringList("*"),
					Resource: policy.NewStringList("*"),
				}},
			},
		},
		{
			name:        "document-author-access",
			description: "Manage own documents, read public ones.",
			document: policy.Document{
				Version: documentVersion,
				Statement: []policy.Statement{
					{
						Effect:   policy.EffectAllow,
						Action:   policy.NewStringList("docs:Create", "docs:List"),
						Resource: policy.NewStringList("doc:*"),
					},
					{
						Effect:   policy.EffectAllow,
						Action:   policy.NewStringList("docs:Read", "docs:Update", "docs:Delete"),
						Resource: policy.NewStringList("doc:${user.id}/*"),
					},
					{
						Effect:   policy.EffectAllow,
						Action:   policy.NewStringList("docs:Read"),
						Resource: policy.NewStringList("doc:public/*"),
					},
				},
			},
		},
		{
			name:        "auditor-access",
			description: "Read-only access to documents and the audit trail.",
			document: policy.Document{
				Version: documentVersion,
				Statement: []policy.Statement{
					{
						Effect:   policy.EffectAllow,
						Action:   policy.NewStringList("docs:Read", "docs:List", "audit:Read"),
						Resource: policy.NewStringList("*"),
					},
					{
						Effect:   policy.EffectDeny,
						Action:   policy.NewStringList("docs:Create", "docs:Update", "docs:Delete"),
						Resource: policy.NewStringList("*"),
					},
				},
			},
		},
	}
}

func systemRoles() []seedRole {
	return []seedRole{
		{RoleAdministrator, "Full administrative access.", []string{"administrator-access"}},
		{RoleDocumentAuthor, "Create and manage own documents.", []string{"document-author-access"}},
		{RoleAuditor, "Inspect documents and audit records.", []string{"auditor-access"}},
	}
}

// Bootstrap seeds the system policies and roles. It is idempotent:
// records that already exist are left untouched, so operator edits to
// descriptions survive restarts while the seeded set stays complete.
func Bootstrap(ctx context.Context, repo RepositoryPort, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	policyIDs := make(map[string]int64)
	for _, seed := range systemPolicies() {
		existing, err := repo.GetPolicyByName(ctx, seed.name)
		switch {
		case err == nil:
			policyIDs[seed.name] = existing.ID
			continue
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("iam: bootstrap lookup policy %q: %w", seed.name, err)
		}
		created, err := repo.CreatePolicy(ctx, seed.name, seed.description, seed.document, true)
		if err != nil {
			return fmt.Errorf("iam: bootstrap create policy %q: %w", seed.name, err)
		}
		policyIDs[seed.name] = created.ID
		logger.Info("seeded system policy", slog.String("policy", seed.name))
	}

	for _, seed := range systemRoles() {
		role, err := repo.GetRoleByName(ctx, seed.name)
		if errors.Is(err, ErrNotFound) {
			role, err = repo.CreateRole(ctx, seed.name, seed.description, true)
			if err == nil {
				logger.Info("seeded system role", slog.String("role", seed.name))
			}
		}
		if err != nil {
			return fmt.Errorf("iam: bootstrap role %q: %w", seed.name, err)
		}
		for _, policyName := range seed.policies {
			id, ok := policyIDs[policyName]
			if !ok {
				return fmt.Errorf("iam: bootstrap role %q references unknown policy %q", seed.name, policyName)
			}
			if err := repo.AttachPolicy(ctx, role.ID, id); err != nil && !errors.Is(err, ErrDuplicateBinding) {
				return fmt.Errorf("iam: bootstrap attach %q to %q: %w", policyName, seed.name, err)
			}
		}
	}
	return nil
}
