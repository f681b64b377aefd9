// Package users manages the accounts that policies are evaluated
// against. Accounts carry credentials for login and the identity
// attributes exposed to the policy engine.
package users

import "time"

// User represents an account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
