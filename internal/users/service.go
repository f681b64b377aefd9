package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/arkivo-dms/arkivo/internal/authz"
)

// RepositoryPort defines the persistence operations the service needs.
type RepositoryPort interface {
	CreateUser(ctx context.Context, username, email, name, passwordHash string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	UpdateUser(ctx context.Context, id int64, email, name string) (User, error)
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

var identFolder = cases.Fold()

// Service handles account business logic.
type Service struct {
	repo RepositoryPort
	cost int
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// CreateUser registers an account. Usernames and emails are folded to
// a canonical case before storage so lookups are case insensitive.
func (s *Service) CreateUser(ctx context.Context, username, email, name, password string) (User, error) {
	username = identFolder.String(strings.TrimSpace(username))
	email = identFolder.String(strings.TrimSpace(email))
	if username == "" || email == "" {
		return User{}, fmt.Errorf("users: username and email required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, username, email, strings.TrimSpace(name), string(hash))
}

// GetUser fetches an account by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListUsers returns one page of accounts plus the total count.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]User, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListUsers(ctx, limit, offset)
}

// UpdateUser replaces the profile fields of an account.
func (s *Service) UpdateUser(ctx context.Context, id int64, email, name string) (User, error) {
	return s.repo.UpdateUser(ctx, id, identFolder.String(strings.TrimSpace(email)), strings.TrimSpace(name))
}

// ChangePassword replaces the account credential.
func (s *Service) ChangePassword(ctx context.Context, id int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordHash(ctx, id, string(hash))
}

// Deactivate disables an account. Existing sessions stop resolving a
// principal on their next request.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, false)
}

// Activate re-enables an account.
func (s *Service) Activate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, true)
}

// Authenticate validates username/password credentials. All failure
// modes collapse into ErrNotFound-free generic errors at the handler,
// so this only distinguishes them for logging.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.GetUserByUsername(ctx, identFolder.String(strings.TrimSpace(username)))
	if err != nil {
		return User{}, err
	}
	if !user.IsActive {
		return User{}, ErrInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, err
	}
	return user, nil
}

// FindPrincipal resolves the authorization identity behind a session.
// Deactivated accounts resolve to nothing, which the gate treats as an
// unauthenticated request.
func (s *Service) FindPrincipal(ctx context.Context, userID int64) (authz.Principal, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return authz.Principal{}, err
	}
	if !user.IsActive {
		return authz.Principal{}, ErrInactive
	}
	return authz.Principal{ID: user.ID, Username: user.Username, Email: user.Email}, nil
}
