package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pkordes/users-api/internal/domain"
	"github.com/pkordes/users-api/internal/repo"
)

// Fixed client-facing texts. None of them carries failure detail.
const (
	UniqueViolationMessage = "There is a unique constraint violation, a new user cannot be created with this email"
	RecordNotFoundMessage  = "Record not found"
	CatastrophicMessage    = "Something went wrong"
)

// timestampLayout is ISO-8601 with millisecond precision, always in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Class names which branch of the translator produced a response.
type Class string

const (
	ClassPersistence  Class = "persistence"
	ClassDomain       Class = "domain"
	ClassCatastrophic Class = "catastrophic"
)

// Envelope is the body for domain failures.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Message    string `json:"message"`
}

// PersistenceBody is the body for recognized storage failures.
type PersistenceBody struct {
	Error string `json:"error"`
}

// CatastrophicBody is the body for everything the translator does not
// recognize.
type CatastrophicBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Response is the outcome of translating one failure.
type Response struct {
	Status int
	Body   any
	Class  Class
}

func catastrophic() Response {
	return Response{
		Status: http.StatusInternalServerError,
		Body:   CatastrophicBody{Status: http.StatusInternalServerError, Message: CatastrophicMessage},
		Class:  ClassCatastrophic,
	}
}

func envelope(e *domain.Error, path string, now time.Time) Response {
	status := e.Status()
	return Response{
		Status: status,
		Body: Envelope{
			StatusCode: status,
			Timestamp:  now.UTC().Format(timestampLayout),
			Path:       path,
			Message:    e.Message(),
		},
		Class: ClassDomain,
	}
}

// Translate maps err to the HTTP response the client sees. It walks the
// unwrap chain from the outermost error and the first recognized link wins.
// Unexpected domain errors are skipped during the walk and answered only when
// nothing beneath them was recognized. Translate is pure: equal inputs yield
// equal responses.
func Translate(err error, path string, now time.Time) Response {
	var outerUnexpected *domain.Error

	for link := err; link != nil; link = errors.Unwrap(link) {
		if f, ok := repo.Recognize(link); ok {
			return persistence(f)
		}

		de, ok := link.(*domain.Error)
		if !ok || de == nil {
			continue
		}
		if de.Kind() == domain.KindUnexpected {
			if outerUnexpected == nil {
				outerUnexpected = de
			}
			continue
		}
		if de.Message() == "" {
			return catastrophic()
		}
		return envelope(de, path, now)
	}

	if outerUnexpected != nil {
		return envelope(outerUnexpected, path, now)
	}
	return catastrophic()
}

func persistence(f repo.Failure) Response {
	if f.Degraded {
		return catastrophic()
	}
	switch f.Code {
	case repo.FailureUniqueViolation:
		return Response{
			Status: http.StatusInternalServerError,
			Body:   PersistenceBody{Error: UniqueViolationMessage},
			Class:  ClassPersistence,
		}
	case repo.FailureRecordNotFound:
		return Response{
			Status: http.StatusNotFound,
			Body:   PersistenceBody{Error: RecordNotFoundMessage},
			Class:  ClassPersistence,
		}
	}
	return catastrophic()
}

// ErrorTranslator writes every failure response of the API. It holds only a
// logger and a clock and is safe for concurrent use.
type ErrorTranslator struct {
	log *slog.Logger
	now func() time.Time
}

// NewErrorTranslator returns a translator that logs to log. A nil log uses
// slog.Default().
func NewErrorTranslator(log *slog.Logger) *ErrorTranslator {
	if log == nil {
		log = slog.Default()
	}
	return &ErrorTranslator{log: log, now: time.Now}
}

// WithClock returns a copy of t that reads the time from now.
func (t *ErrorTranslator) WithClock(now func() time.Time) *ErrorTranslator {
	cp := *t
	cp.now = now
	return &cp
}

// WriteError translates err, logs it and writes the response. It never fails
// and writes exactly once.
func (t *ErrorTranslator) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	path := r.URL.RequestURI()
	resp := Translate(err, path, t.now())

	t.logFailure(r, err, path, resp)

	body, mErr := json.Marshal(resp.Body)
	if mErr != nil {
		// All body types are plain structs; this cannot happen in practice.
		resp = catastrophic()
		body, _ = json.Marshal(resp.Body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(body)
}

// logFailure emits one log record for the failure. A panicking sink is
// swallowed so the response still goes out.
func (t *ErrorTranslator) logFailure(r *http.Request, err error, path string, resp Response) {
	defer func() { _ = recover() }()

	attrs := []slog.Attr{
		slog.String("class", string(resp.Class)),
		slog.Int("status", resp.Status),
		slog.String("path", path),
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		if cause := errors.Unwrap(err); cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}
	}

	var de *domain.Error
	if errors.As(err, &de) {
		attrs = append(attrs, slog.String("kind", de.Kind().String()))
		if ctx := de.Context(); len(ctx) > 0 {
			attrs = append(attrs, slog.Any("context", ctx))
		}
		if d := de.Detail(); d != "" {
			attrs = append(attrs, slog.String("detail", d))
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		attrs = append(attrs, slog.Group("pg",
			slog.String("code", pgErr.Code),
			slog.String("constraint", pgErr.ConstraintName),
			slog.String("table", pgErr.TableName),
			slog.String("detail", pgErr.Detail),
		))
	}

	level := slog.LevelWarn
	if resp.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	t.log.LogAttrs(r.Context(), level, "request failed", attrs...)
}
