package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/users-api/internal/domain"
	"github.com/pkordes/users-api/internal/middleware"
)

const component = "UserHandler"

// Pagination is the paging block of a list response.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// UserPage is the body of GET /users.
type UserPage struct {
	Data       []domain.User `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// ListUsers handles GET /users.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	var page, limit *int
	if err := runtime.BindQueryParameter("form", true, false, "page", r.URL.Query(), &page); err != nil {
		s.errs.WriteError(w, r, domain.BadRequest("invalid query parameter page", domain.WithCause(err)))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		s.errs.WriteError(w, r, domain.BadRequest("invalid query parameter limit", domain.WithCause(err)))
		return
	}

	params := domain.NewPaginationParams(page, limit)
	users, total, err := s.users.List(r.Context(), params)
	if err != nil {
		s.errs.WriteError(w, r, domain.Wrap(err, component, "ListUsers", params))
		return
	}

	writeJSON(w, http.StatusOK, UserPage{
		Data:       users,
		Pagination: Pagination{Page: params.Page, Limit: params.Limit, Total: total},
	})
}

// GetUser handles GET /users/{id}.
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	u, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		s.errs.WriteError(w, r, domain.Wrap(err, component, "GetUser", id))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// CreateUser handles POST /users.
func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateUserInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	u, err := s.users.Create(r.Context(), in)
	if err != nil {
		s.errs.WriteError(w, r, domain.Wrap(err, component, "CreateUser", in))
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// UpdateUser handles PUT /users/{id}.
func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var in domain.UpdateUserInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	u, err := s.users.Update(r.Context(), id, in)
	if err != nil {
		s.errs.WriteError(w, r, domain.Wrap(err, component, "UpdateUser", map[string]any{"id": id, "input": in}))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteUser handles DELETE /users/{id}.
func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.errs.WriteError(w, r, domain.Wrap(err, component, "DeleteUser", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- request helpers --------------------------------------------------------

// pathID binds the {id} path parameter. On failure it writes the response and
// reports false.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.errs.WriteError(w, r, domain.BadRequest("invalid user id",
			domain.WithCause(err),
			domain.WithField("id", chi.URLParam(r, "id")),
		))
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a JSON body into dst. Unknown fields are rejected. On
// failure it writes the response and reports false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		// A second value after the object is as malformed as a broken one.
		if dec.Decode(&struct{}{}) != io.EOF {
			err = errors.New("unexpected data after JSON body")
		}
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.errs.WriteError(w, r, domain.BadRequest(middleware.BodyTooLargeMessage,
			domain.WithCause(err), domain.WithField("limit", tooLarge.Limit)))
		return false
	}
	s.errs.WriteError(w, r, domain.BadRequest("malformed JSON body", domain.WithCause(err)))
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
