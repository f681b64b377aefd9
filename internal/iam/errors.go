package iam

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("iam: not found")
	// ErrNameTaken indicates a policy or role name is already in use.
	ErrNameTaken = errors.New("iam: name already in use")
	// ErrSystemManaged indicates an attempt to mutate a seeded record.
	ErrSystemManaged = errors.New("iam: system records cannot be modified")
	// ErrRoleInUse indicates a role still has active holders.
	ErrRoleInUse = errors.New("iam: role is still assigned to users")
	// ErrPolicyInUse indicates a policy is still attached to a role.
	ErrPolicyInUse = errors.New("iam: policy is still attached to roles")
	// ErrDuplicateBinding indicates the binding already exists.
	ErrDuplicateBinding = errors.New("iam: binding already exists")
	// ErrExpiryInPast indicates an expiry that has already lapsed.
	ErrExpiryInPast = errors.New("iam: expiry must be in the future")
	// ErrInvalidName indicates a missing or unusable name.
	ErrInvalidName = errors.New("iam: invalid name")
)
