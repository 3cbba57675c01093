package repo

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// FailureCode names a storage-engine failure the rest of the application
// knows how to answer.
type FailureCode string

const (
	FailureUniqueViolation FailureCode = "unique_violation"
	FailureRecordNotFound  FailureCode = "record_not_found"
)

// Failure is the engine-neutral shape of a recognized storage failure.
type Failure struct {
	Code FailureCode

	// Engine is "postgres" or "sqlite".
	Engine string

	// Target identifies what violated a unique constraint: the Postgres
	// constraint name or the SQLite column list. Empty for missing records.
	Target string

	// Degraded is set when Code was recognized but the code-specific detail
	// the engine normally reports is absent.
	Degraded bool

	// Err is the original engine error, for logging.
	Err error
}

// Recognize inspects err itself (not its chain) and reports whether it is a
// storage failure with a recognized code.
func Recognize(err error) (Failure, bool) {
	if err == nil {
		return Failure{}, false
	}
	if err == pgx.ErrNoRows {
		return Failure{Code: FailureRecordNotFound, Engine: "postgres", Err: err}, true
	}
	if err == sql.ErrNoRows {
		return Failure{Code: FailureRecordNotFound, Engine: "sqlite", Err: err}, true
	}

	switch e := err.(type) {
	case *pgconn.PgError:
		if e.Code != pgerrcode.UniqueViolation {
			return Failure{}, false
		}
		return Failure{
			Code:     FailureUniqueViolation,
			Engine:   "postgres",
			Target:   e.ConstraintName,
			Degraded: e.ConstraintName == "",
			Err:      err,
		}, true
	case sqlite3.Error:
		return recognizeSQLite(e, err)
	case *sqlite3.Error:
		if e == nil {
			return Failure{}, false
		}
		return recognizeSQLite(*e, err)
	}
	return Failure{}, false
}

func recognizeSQLite(e sqlite3.Error, err error) (Failure, bool) {
	if e.Code != sqlite3.ErrConstraint {
		return Failure{}, false
	}
	f := Failure{Code: FailureUniqueViolation, Engine: "sqlite", Err: err}
	switch e.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		_, f.Target, _ = strings.Cut(e.Error(), "constraint failed: ")
	case 0:
		f.Degraded = true
	default:
		// NOT NULL, CHECK, FOREIGN KEY: not a uniqueness failure.
		return Failure{}, false
	}
	return f, true
}

// IsRecordNotFound reports whether any error in err's chain is a missing-row
// failure from either engine.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}
