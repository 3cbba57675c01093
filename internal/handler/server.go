// Package handler implements the HTTP surface of the Users API.
// Handlers are methods on Server; routes and middleware are assembled in
// NewRouter. Every failure response is written by ErrorTranslator.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pkordes/users-api/internal/domain"
	"github.com/pkordes/users-api/internal/middleware"
)

// UserServicer defines the business operations the user handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type UserServicer interface {
	List(ctx context.Context, p domain.PaginationParams) ([]domain.User, int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	Create(ctx context.Context, in domain.CreateUserInput) (domain.User, error)
	Update(ctx context.Context, id uuid.UUID, in domain.UpdateUserInput) (domain.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Server holds the dependencies shared by all handlers.
type Server struct {
	users UserServicer
	errs  *ErrorTranslator
}

// NewServer constructs the Server with all its dependencies.
func NewServer(users UserServicer, errs *ErrorTranslator) *Server {
	return &Server{users: users, errs: errs}
}

// RouterOptions configures the middleware chain built by NewRouter.
type RouterOptions struct {
	CORSOrigins  []string
	MaxBodyBytes int64
}

// NewRouter wires the middleware chain and every route of the API.
// Middleware is applied in order: RequestID → RealIP → SlogLogger →
// Recoverer → CORS → MaxBodySize.
func NewRouter(s *Server, log *slog.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(log))
	r.Use(middleware.NewRecoverer(log, s.errs))
	r.Use(middleware.NewCORSHandler(opts.CORSOrigins))
	if opts.MaxBodyBytes > 0 {
		r.Use(middleware.NewMaxBodySizeHandler(opts.MaxBodyBytes, s.errs))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errs.WriteError(w, r, domain.NotFound("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errs.WriteError(w, r, domain.BadRequest("method not allowed",
			domain.WithField("method", r.Method)))
	})

	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.ListUsers)
		r.Post("/", s.CreateUser)
		r.Get("/{id}", s.GetUser)
		r.Put("/{id}", s.UpdateUser)
		r.Delete("/{id}", s.DeleteUser)
	})

	return r
}
