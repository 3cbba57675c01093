package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/users-api/internal/domain"
	"github.com/pkordes/users-api/internal/handler"
)

// mockUserServicer is a testify mock for handler.UserServicer.
type mockUserServicer struct{ mock.Mock }

func (m *mockUserServicer) List(ctx context.Context, p domain.PaginationParams) ([]domain.User, int64, error) {
	args := m.Called(ctx, p)
	users, _ := args.Get(0).([]domain.User)
	return users, args.Get(1).(int64), args.Error(2)
}
func (m *mockUserServicer) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}
func (m *mockUserServicer) Create(ctx context.Context, in domain.CreateUserInput) (domain.User, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.User), args.Error(1)
}
func (m *mockUserServicer) Update(ctx context.Context, id uuid.UUID, in domain.UpdateUserInput) (domain.User, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(domain.User), args.Error(1)
}
func (m *mockUserServicer) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// compile-time check: mockUserServicer must satisfy handler.UserServicer.
var _ handler.UserServicer = (*mockUserServicer)(nil)

// ---- helpers ---------------------------------------------------------------

const testMaxBody = 1 << 10

// newRouter wires a Server with the given mock into the full middleware chain.
// This mirrors how main.go wires it in production. The returned buffer holds
// every log line.
func newRouter(svc handler.UserServicer) (http.Handler, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	errs := handler.NewErrorTranslator(log)
	srv := handler.NewServer(svc, errs)
	return handler.NewRouter(srv, log, handler.RouterOptions{
		CORSOrigins:  []string{"http://localhost:5173"},
		MaxBodyBytes: testMaxBody,
	}), &buf
}

func userFixture() domain.User {
	return domain.User{
		ID:        uuid.MustParse("b04c4994-b4b5-11ef-96a4-0242ac120002"),
		Name:      "johndoe",
		Email:     "johndoe@gmail.com",
		CreatedAt: time.Date(2024, 12, 10, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 12, 10, 9, 0, 0, 0, time.UTC),
	}
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func serve(h http.Handler, method, target string, body *bytes.Buffer) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) handler.Envelope {
	t.Helper()
	var env handler.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

// ---- GET /users ------------------------------------------------------------

func TestListUsers_200(t *testing.T) {
	svc := &mockUserServicer{}
	svc.On("List", mock.Anything, domain.PaginationParams{Page: 2, Limit: 5}).
		Return([]domain.User{userFixture()}, int64(6), nil)
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users?page=2&limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var page handler.UserPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, handler.Pagination{Page: 2, Limit: 5, Total: 6}, page.Pagination)
	svc.AssertExpectations(t)
}

func TestListUsers_Defaults(t *testing.T) {
	svc := &mockUserServicer{}
	svc.On("List", mock.Anything, domain.PaginationParams{Page: 1, Limit: 20}).
		Return([]domain.User{}, int64(0), nil)
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"pagination":{"page":1,"limit":20,"total":0}}`, rec.Body.String())
}

func TestListUsers_400_BadPage(t *testing.T) {
	svc := &mockUserServicer{}
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users?page=abc", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid query parameter page", decodeEnvelope(t, rec).Message)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

// ---- GET /users/{id} -------------------------------------------------------

func TestGetUser_200(t *testing.T) {
	fixture := userFixture()
	svc := &mockUserServicer{}
	svc.On("GetByID", mock.Anything, fixture.ID).Return(fixture, nil)
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users/"+fixture.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"id": "b04c4994-b4b5-11ef-96a4-0242ac120002",
		"name": "johndoe",
		"email": "johndoe@gmail.com",
		"ctime": "2024-12-10T09:00:00Z",
		"mtime": "2024-12-10T09:00:00Z"
	}`, rec.Body.String())
}

// The not-found scenario: the service reports a missing user as a NotFound
// domain error and the client gets the envelope with that message.
func TestGetUser_404_NotFoundScenario(t *testing.T) {
	id := uuid.MustParse("b04c4994-b4b5-11ef-96a4-0242ac120002")
	svc := &mockUserServicer{}
	svc.On("GetByID", mock.Anything, id).Return(domain.User{},
		domain.NotFound(fmt.Sprintf("user with id %s not found", id), domain.WithCause(pgx.ErrNoRows)))
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users/b04c4994-b4b5-11ef-96a4-0242ac120002", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decodeEnvelope(t, rec)
	assert.Equal(t, 404, env.StatusCode)
	assert.Equal(t, "/users/b04c4994-b4b5-11ef-96a4-0242ac120002", env.Path)
	assert.Equal(t, "user with id b04c4994-b4b5-11ef-96a4-0242ac120002 not found", env.Message)
	_, err := time.Parse(time.RFC3339, env.Timestamp)
	assert.NoError(t, err, "timestamp must be ISO-8601")
}

func TestGetUser_400_MalformedID(t *testing.T) {
	svc := &mockUserServicer{}
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users/not-a-uuid", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid user id", decodeEnvelope(t, rec).Message)
	svc.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGetUser_500_UnrecognizedFailure(t *testing.T) {
	fixture := userFixture()
	svc := &mockUserServicer{}
	svc.On("GetByID", mock.Anything, fixture.ID).
		Return(domain.User{}, fmt.Errorf("service.UserService.GetByID: %w", fmt.Errorf("conn reset by peer")))
	h, logs := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users/"+fixture.ID.String(), nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "There was an unexpected internal error", env.Message)
	assert.NotContains(t, rec.Body.String(), "conn reset")
	assert.Contains(t, logs.String(), "<UserHandler> had an unexpected internal error when performing the <GetUser>")
}

// ---- POST /users -----------------------------------------------------------

func TestCreateUser_201(t *testing.T) {
	fixture := userFixture()
	in := domain.CreateUserInput{Name: "johndoe", Email: "johndoe@gmail.com"}
	svc := &mockUserServicer{}
	svc.On("Create", mock.Anything, in).Return(fixture, nil)
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodPost, "/users", jsonBody(t, in))

	require.Equal(t, http.StatusCreated, rec.Code)
	var got domain.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, fixture.ID, got.ID)
	svc.AssertExpectations(t)
}

// Creating a user whose email already exists answers 500 with the fixed
// uniqueness body. This is documented API behavior.
func TestCreateUser_500_UniqueViolation(t *testing.T) {
	in := domain.CreateUserInput{Name: "johndoe", Email: "johndoe@gmail.com"}
	svc := &mockUserServicer{}
	svc.On("Create", mock.Anything, in).Return(domain.User{},
		fmt.Errorf("service.UserService.Create: %w", fmt.Errorf("repo.UserRepo.Create: %w", uniqueViolation())))
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodPost, "/users", jsonBody(t, in))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t,
		`{"error":"There is a unique constraint violation, a new user cannot be created with this email"}`,
		rec.Body.String())
}

func TestCreateUser_400_Validation(t *testing.T) {
	in := domain.CreateUserInput{Name: "johndoe"}
	svc := &mockUserServicer{}
	svc.On("Create", mock.Anything, in).Return(domain.User{}, domain.Validation("email is required"))
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodPost, "/users", jsonBody(t, map[string]any{"name": "johndoe"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, 400, env.StatusCode)
	assert.Equal(t, "/users", env.Path)
	assert.Equal(t, "email is required", env.Message)
}

func TestCreateUser_400_MalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"broken json":   `{"name":`,
		"empty":         ``,
		"unknown field": `{"name":"johndoe","email":"johndoe@gmail.com","admin":true}`,
		"trailing data": `{"name":"johndoe","email":"johndoe@gmail.com"} {}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := &mockUserServicer{}
			h, _ := newRouter(svc)

			rec := serve(h, http.MethodPost, "/users", bytes.NewBufferString(body))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "malformed JSON body", decodeEnvelope(t, rec).Message)
			svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateUser_400_BodyTooLarge(t *testing.T) {
	svc := &mockUserServicer{}
	h, _ := newRouter(svc)
	big := `{"name":"` + strings.Repeat("x", testMaxBody) + `","email":"johndoe@gmail.com"}`

	rec := serve(h, http.MethodPost, "/users", bytes.NewBufferString(big))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body too large", decodeEnvelope(t, rec).Message)
}

// Without a Content-Length the limit is enforced while decoding.
func TestCreateUser_400_StreamedBodyTooLarge(t *testing.T) {
	svc := &mockUserServicer{}
	h, _ := newRouter(svc)
	big := `{"name":"` + strings.Repeat("x", testMaxBody) + `","email":"johndoe@gmail.com"}`

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(big))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body too large", decodeEnvelope(t, rec).Message)
}

// ---- PUT /users/{id} -------------------------------------------------------

func TestUpdateUser_200(t *testing.T) {
	fixture := userFixture()
	name := "John Doe"
	svc := &mockUserServicer{}
	svc.On("Update", mock.Anything, fixture.ID, domain.UpdateUserInput{Name: &name}).Return(fixture, nil)
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodPut, "/users/"+fixture.ID.String(), jsonBody(t, map[string]any{"name": name}))

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestUpdateUser_404_RecordNotFound(t *testing.T) {
	fixture := userFixture()
	svc := &mockUserServicer{}
	svc.On("Update", mock.Anything, fixture.ID, mock.Anything).
		Return(domain.User{}, fmt.Errorf("service.UserService.Update: %w", pgx.ErrNoRows))
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodPut, "/users/"+fixture.ID.String(), jsonBody(t, map[string]any{"name": "x"}))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Record not found"}`, rec.Body.String())
}

// ---- DELETE /users/{id} ----------------------------------------------------

func TestDeleteUser_204(t *testing.T) {
	fixture := userFixture()
	svc := &mockUserServicer{}
	svc.On("Delete", mock.Anything, fixture.ID).Return(nil)
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodDelete, "/users/"+fixture.ID.String(), nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestDeleteUser_404(t *testing.T) {
	fixture := userFixture()
	svc := &mockUserServicer{}
	svc.On("Delete", mock.Anything, fixture.ID).Return(fmt.Errorf("service.UserService.Delete: %w", pgx.ErrNoRows))
	h, _ := newRouter(svc)

	rec := serve(h, http.MethodDelete, "/users/"+fixture.ID.String(), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Record not found"}`, rec.Body.String())
}

// ---- routing & recovery ----------------------------------------------------

func TestUnknownRoute_404(t *testing.T) {
	h, _ := newRouter(&mockUserServicer{})

	rec := serve(h, http.MethodGet, "/nope", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "route not found", env.Message)
	assert.Equal(t, "/nope", env.Path)
}

func TestWrongMethod_400(t *testing.T) {
	h, _ := newRouter(&mockUserServicer{})

	rec := serve(h, http.MethodPatch, "/users/b04c4994-b4b5-11ef-96a4-0242ac120002", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "method not allowed", decodeEnvelope(t, rec).Message)
}

func TestPanic_500_Catastrophic(t *testing.T) {
	fixture := userFixture()
	svc := &mockUserServicer{}
	svc.On("GetByID", mock.Anything, fixture.ID).Run(func(mock.Arguments) {
		panic("nil map write")
	})
	h, logs := newRouter(svc)

	rec := serve(h, http.MethodGet, "/users/"+fixture.ID.String(), nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":500,"message":"Something went wrong"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "panic recovered")
}

// Every failure response carries the request ID in its log line.
func TestFailure_LogCarriesRequestID(t *testing.T) {
	h, logs := newRouter(&mockUserServicer{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("X-Request-Id", "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	found := false
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "request failed" {
			found = true
			assert.Equal(t, "req-123", entry["request_id"])
		}
	}
	assert.True(t, found, "no failure log line")
}
