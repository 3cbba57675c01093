// Package repo contains all database access logic for the Users API.
// Each engine has its own file with a UserRepo implementation.
// No business logic lives here, only SQL and type mapping. Engine failures
// are returned as-is (wrapped with the operation name); see Recognize.
package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/users-api/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepo defines the persistence operations for Users.
// The service layer depends on this interface, not on an engine.
type UserRepo interface {
	// Create inserts a new user and returns the persisted record.
	// A duplicate email surfaces as the engine's unique-violation error.
	Create(ctx context.Context, u domain.User) (domain.User, error)

	// GetByID retrieves a single user. A missing row surfaces as the
	// engine's no-rows error.
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)

	// ListPaged returns one page of users ordered by creation time and the
	// total number of users.
	ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.User, int64, error)

	// Update applies the non-nil fields of in and returns the updated record.
	Update(ctx context.Context, id uuid.UUID, in domain.UpdateUserInput) (domain.User, error)

	// Delete removes a user by ID.
	Delete(ctx context.Context, id uuid.UUID) error
}

// pgUserRepo is the Postgres implementation of UserRepo.
type pgUserRepo struct {
	db db
}

// NewUserRepo constructs a Postgres UserRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewUserRepo(db db) UserRepo {
	return &pgUserRepo{db: db}
}

func (r *pgUserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	const q = `
		INSERT INTO users (name, email)
		VALUES (@name, @email)
		RETURNING id, name, email, created_at, updated_at`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"name": u.Name, "email": u.Email})
	result, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	const q = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.GetByID: %w", err)
	}
	return result, nil
}

// ListPaged counts first, then fetches the page. The two statements are not
// in one snapshot; a concurrent insert may make total off by one.
func (r *pgUserRepo) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.User, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: count: %w", err)
	}

	const q = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		ORDER BY created_at, id
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"limit": p.Limit, "offset": p.Offset()})
	if err != nil {
		return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: rows: %w", err)
	}
	return users, total, nil
}

// Update overwrites only the fields present in in; nil args become NULL and
// COALESCE keeps the stored value.
func (r *pgUserRepo) Update(ctx context.Context, id uuid.UUID, in domain.UpdateUserInput) (domain.User, error) {
	const q = `
		UPDATE users
		SET name       = COALESCE(@name, name),
		    email      = COALESCE(@email, email),
		    updated_at = now()
		WHERE id = @id
		RETURNING id, name, email, created_at, updated_at`

	args := pgx.NamedArgs{
		"id":    id,
		"name":  in.Name,
		"email": in.Email,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.Update: %w", err)
	}
	return result, nil
}

func (r *pgUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM users WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("repo.UserRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.UserRepo.Delete: %w", pgx.ErrNoRows)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanUser maps a single database row into a domain.User.
func scanUser(s scanner) (domain.User, error) {
	var (
		u  domain.User
		id pgtype.UUID
	)
	if err := s.Scan(&id, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.ID = uuid.UUID(id.Bytes)
	return u, nil
}
