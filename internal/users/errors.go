package users

import "errors"

var (
	// ErrNotFound indicates no account matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already registered")
	// ErrInactive indicates the account has been deactivated.
	ErrInactive = errors.New("user is inactive")
)
