package repo

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
	"github.com/qustavo/dotsql"

	"github.com/pkordes/users-api/internal/domain"
)

//go:embed queries/users.sqlite.sql
var sqliteQueries embed.FS

// OpenSQLite opens a sqlite:// URL. sqlite://file.db is relative,
// sqlite:///abs/path.db is absolute, sqlite://:memory: is an in-memory
// database held on a single connection.
func OpenSQLite(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("repo.OpenSQLite: invalid database URL: %w", err)
	}
	if u.Scheme != "sqlite" {
		return nil, fmt.Errorf("repo.OpenSQLite: unsupported scheme %q", u.Scheme)
	}

	dsn := u.Host + u.Path
	if u.Host == "" {
		dsn = u.Path
	}
	if dsn == "" {
		return nil, fmt.Errorf("repo.OpenSQLite: missing database path in %q", dbURL)
	}
	memory := dsn == ":memory:"
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("repo.OpenSQLite: open: %w", err)
	}
	if memory {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("repo.OpenSQLite: ping: %w", err)
	}
	return db, nil
}

// sqliteUserRepo is the SQLite implementation of UserRepo. Queries are named
// entries in queries/users.sqlite.sql.
type sqliteUserRepo struct {
	db  *sqlx.DB
	dot *dotsql.DotSql
	now func() time.Time
}

// NewSQLiteUserRepo constructs a UserRepo backed by a SQLite database opened
// with OpenSQLite.
func NewSQLiteUserRepo(db *sqlx.DB) (UserRepo, error) {
	raw, err := sqliteQueries.ReadFile("queries/users.sqlite.sql")
	if err != nil {
		return nil, fmt.Errorf("repo.NewSQLiteUserRepo: read queries: %w", err)
	}
	dot, err := dotsql.LoadFromString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("repo.NewSQLiteUserRepo: parse queries: %w", err)
	}
	return &sqliteUserRepo{db: db, dot: dot, now: func() time.Time { return time.Now().UTC() }}, nil
}

// userRow mirrors the users table for sqlx scanning.
type userRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row userRow) toDomain() (domain.User, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("parse id %q: %w", row.ID, err)
	}
	return domain.User{
		ID:        id,
		Name:      row.Name,
		Email:     row.Email,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (r *sqliteUserRepo) query(name string) (string, error) {
	q, err := r.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query %q not found: %w", name, err)
	}
	return q, nil
}

func (r *sqliteUserRepo) getOne(ctx context.Context, q sqlx.QueryerContext, id string) (domain.User, error) {
	getQ, err := r.query("get-user")
	if err != nil {
		return domain.User{}, err
	}
	var row userRow
	if err := sqlx.GetContext(ctx, q, &row, getQ, id); err != nil {
		return domain.User{}, err
	}
	return row.toDomain()
}

// execThenGet runs the named statement and reads the row back inside one
// transaction. A statement that touches no row yields sql.ErrNoRows.
func (r *sqliteUserRepo) execThenGet(ctx context.Context, name, id string, args ...any) (domain.User, error) {
	q, err := r.query(name)
	if err != nil {
		return domain.User{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return domain.User{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.User{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.User{}, sql.ErrNoRows
	}

	u, err := r.getOne(ctx, tx, id)
	if err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

func (r *sqliteUserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	now := r.now()
	id := uuid.NewString()
	result, err := r.execThenGet(ctx, "create-user", id, id, u.Name, u.Email, now, now)
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.Create: %w", err)
	}
	return result, nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	result, err := r.getOne(ctx, r.db, id.String())
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *sqliteUserRepo) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.User, int64, error) {
	countQ, err := r.query("count-users")
	if err != nil {
		return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: %w", err)
	}
	var total int64
	if err := r.db.GetContext(ctx, &total, countQ); err != nil {
		return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: count: %w", err)
	}

	listQ, err := r.query("list-users")
	if err != nil {
		return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: %w", err)
	}
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, listQ, p.Limit, p.Offset()); err != nil {
		return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: %w", err)
	}

	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toDomain()
		if err != nil {
			return nil, 0, fmt.Errorf("repo.UserRepo.ListPaged: scan: %w", err)
		}
		users = append(users, u)
	}
	return users, total, nil
}

func (r *sqliteUserRepo) Update(ctx context.Context, id uuid.UUID, in domain.UpdateUserInput) (domain.User, error) {
	result, err := r.execThenGet(ctx, "update-user", id.String(),
		nullString(in.Name), nullString(in.Email), r.now(), id.String())
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.Update: %w", err)
	}
	return result, nil
}

func (r *sqliteUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := r.query("delete-user")
	if err != nil {
		return fmt.Errorf("repo.UserRepo.Delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, id.String())
	if err != nil {
		return fmt.Errorf("repo.UserRepo.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo.UserRepo.Delete: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repo.UserRepo.Delete: %w", sql.ErrNoRows)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
