// Package service contains the business logic for the Users API.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here; services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/users-api/internal/domain"
	"github.com/pkordes/users-api/internal/repo"
	"github.com/pkordes/users-api/internal/validate"
)

// UserService implements business logic for User operations.
type UserService struct {
	repo repo.UserRepo
}

// NewUserService constructs a UserService backed by the provided UserRepo.
func NewUserService(r repo.UserRepo) *UserService {
	return &UserService{repo: r}
}

// List returns one page of users and the total count.
// Always returns a non-nil slice so callers can safely range over it.
func (s *UserService) List(ctx context.Context, p domain.PaginationParams) ([]domain.User, int64, error) {
	users, total, err := s.repo.ListPaged(ctx, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.UserService.List: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, total, nil
}

// GetByID returns a single user.
// Returns a domain NotFound error when no user has that ID.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if repo.IsRecordNotFound(err) {
		return domain.User{}, domain.NotFound(
			fmt.Sprintf("user with id %s not found", id),
			domain.WithCause(err),
			domain.WithField("id", id.String()),
		)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("service.UserService.GetByID: %w", err)
	}
	return u, nil
}

// Create normalizes and validates in, then persists a new user.
// A duplicate email comes back as the storage engine's error.
func (s *UserService) Create(ctx context.Context, in domain.CreateUserInput) (domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, err
	}

	u, err := s.repo.Create(ctx, domain.User{Name: in.Name, Email: in.Email})
	if err != nil {
		return domain.User{}, fmt.Errorf("service.UserService.Create: %w", err)
	}
	return u, nil
}

// Update applies the fields present in in to an existing user.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, in domain.UpdateUserInput) (domain.User, error) {
	if in.IsEmpty() {
		return domain.User{}, domain.Validation("at least one of name or email is required")
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := validate.Struct(in); err != nil {
		return domain.User{}, err
	}

	u, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return domain.User{}, fmt.Errorf("service.UserService.Update: %w", err)
	}
	return u, nil
}

// Delete removes a user by ID.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.UserService.Delete: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
