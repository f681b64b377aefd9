// Package iam owns the access-control data model: policies, roles and
// their bindings. The evaluation core lives in the policy subpackage;
// this package provides the administrative surface around it.
package iam

import (
	"time"

	"github.com/arkivo-dms/arkivo/internal/iam/policy"
)

// Policy is a named, versioned authorization document. System policies
// are seeded at bootstrap and cannot be modified or deleted.
type Policy struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
	Document    policy.Document
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role is a named bundle of policies. System roles are seeded at
// bootstrap and are immutable.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RolePolicy attaches a policy to a role.
type RolePolicy struct {
	RoleID     int64
	PolicyID   int64
	AssignedAt time.Time
}

// UserRole binds a user to a role, optionally until ExpiresAt. An
// expired binding no longer contributes policies to the user.
type UserRole struct {
	UserID     int64
	RoleID     int64
	AssignedBy int64
	AssignedAt time.Time
	ExpiresAt  *time.Time
}

// Expired reports whether the binding has lapsed at the given instant.
func (b UserRole) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}
