// Package domain contains the core data types and the error taxonomy of the
// Users API. It is imported by every other internal package (repo, service,
// handler) and imports no other internal package.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a single user record.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"ctime"`
	UpdatedAt time.Time `json:"mtime"`
}

// CreateUserInput is the payload accepted by POST /users.
type CreateUserInput struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// UpdateUserInput is the payload accepted by PUT /users/{id}.
// Nil fields are left unchanged.
type UpdateUserInput struct {
	Name  *string `json:"name,omitempty" validate:"omitnil,min=1,max=100"`
	Email *string `json:"email,omitempty" validate:"omitnil,email,max=254"`
}

// IsEmpty reports whether no field is set.
func (in UpdateUserInput) IsEmpty() bool {
	return in.Name == nil && in.Email == nil
}
