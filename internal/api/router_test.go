package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/milsabores/identity-service/internal/api/handler"
	"github.com/milsabores/identity-service/internal/core/domain"
	"github.com/milsabores/identity-service/internal/core/service"
	"github.com/milsabores/identity-service/internal/infrastructure/security"
)

// memDirectory is an in-memory user directory with a unique email index.
type memDirectory struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (d *memDirectory) Save(_ context.Context, user *domain.User) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, u := range d.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return nil, domain.ErrDuplicateEmail
		}
	}
	d.users[user.ID] = *user
	out := *user
	return &out, nil
}

func (d *memDirectory) find(match func(domain.User) bool) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if match(u) {
			out := u
			return &out, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (d *memDirectory) FindByID(_ context.Context, id string) (*domain.User, error) {
	return d.find(func(u domain.User) bool { return u.ID == id })
}

func (d *memDirectory) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return d.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (d *memDirectory) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := d.FindByEmail(ctx, email)
	return err == nil, nil
}

func (d *memDirectory) FindByExternalIdentityID(_ context.Context, externalID string) (*domain.User, error) {
	return d.find(func(u domain.User) bool {
		return u.ExternalIdentityID != nil && *u.ExternalIdentityID == externalID
	})
}

func newTestRouter(t *testing.T, enforceOwnership bool) *echo.Echo {
	t.Helper()
	tokens, err := security.NewJWTService("router-test-secret")
	if err != nil {
		t.Fatalf("jwt service: %v", err)
	}
	identity := service.NewIdentityService(
		&memDirectory{users: map[string]domain.User{}},
		security.NewBcryptHasherWithCost(bcrypt.MinCost),
		tokens,
		nil,
		zerolog.Nop(),
	)
	return NewRouter(Dependencies{
		Identity:              identity,
		Tokens:                tokens,
		Checks:                map[string]handler.Check{"directory": func(context.Context) error { return nil }},
		Log:                   zerolog.Nop(),
		EnforceTokenOwnership: enforceOwnership,
		Registry:              prometheus.NewRegistry(),
	})
}

func do(e *echo.Echo, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRouter_RegisterLoginMe(t *testing.T) {
	e := newTestRouter(t, false)

	rec := do(e, http.MethodPost, "/auth/register",
		`{"id":"11111111-1","name":"Ana","email":"a@x.com","password":"secret","birth_date":"10-05-2020"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"secret"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("login: empty token")
	}

	rec = do(e, http.MethodGet, "/auth/me", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	me := decodeBody(t, rec)
	if me["id"] != "11111111-1" || me["role_id"] != float64(domain.RoleCustomer) {
		t.Fatalf("me: unexpected payload %+v", me)
	}
	if _, leaked := me["password_hash"]; leaked {
		t.Fatal("me: password hash exposed")
	}
}

func TestRouter_ErrorStatuses(t *testing.T) {
	e := newTestRouter(t, false)
	do(e, http.MethodPost, "/auth/register", `{"id":"1","email":"a@x.com","password":"secret"}`, "")

	cases := []struct {
		name, method, target, body string
		want                       int
	}{
		{"duplicate email", http.MethodPost, "/auth/register", `{"id":"2","email":"a@x.com","password":"p"}`, http.StatusBadRequest},
		{"invalid date", http.MethodPost, "/auth/register", `{"id":"3","email":"b@x.com","password":"p","birth_date":"2020-05-10"}`, http.StatusBadRequest},
		{"wrong password", http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"nope"}`, http.StatusUnauthorized},
		{"unknown email", http.MethodPost, "/auth/login", `{"email":"ghost@x.com","password":"secret"}`, http.StatusUnauthorized},
		{"rename unknown", http.MethodPut, "/auth/users/999/name", `{"new_name":"x"}`, http.StatusNotFound},
		{"photo unknown", http.MethodPut, "/auth/users/999/photo", `{"image_base64":"aGk="}`, http.StatusNotFound},
		{"external unknown", http.MethodGet, "/auth/users/external/fb-x", "", http.StatusNotFound},
		{"reset unknown", http.MethodPost, "/auth/reset-password", `{"email":"ghost@x.com","new_password":"n"}`, http.StatusBadRequest},
		{"me without token", http.MethodGet, "/auth/me", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, tc.method, tc.target, tc.body, "")
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
			if msg, _ := decodeBody(t, rec)["error"].(string); msg == "" {
				t.Fatalf("expected error envelope, got %s", rec.Body.String())
			}
		})
	}
}

func TestRouter_RecoverPasswordIsUniform(t *testing.T) {
	e := newTestRouter(t, false)
	do(e, http.MethodPost, "/auth/register", `{"id":"1","email":"a@x.com","password":"secret"}`, "")

	known := do(e, http.MethodPost, "/auth/recover-password", `{"email":"a@x.com"}`, "")
	unknown := do(e, http.MethodPost, "/auth/recover-password", `{"email":"ghost@x.com"}`, "")

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d and %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("responses differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
}

func TestRouter_ResetThenLogin(t *testing.T) {
	e := newTestRouter(t, false)
	do(e, http.MethodPost, "/auth/register", `{"id":"1","email":"a@x.com","password":"old"}`, "")

	if rec := do(e, http.MethodPost, "/auth/reset-password", `{"email":"a@x.com","new_password":"new"}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"new"}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"old"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("login with old password: expected 401, got %d", rec.Code)
	}
}

func TestRouter_OwnershipEnforced(t *testing.T) {
	e := newTestRouter(t, true)

	rec := do(e, http.MethodPost, "/auth/register", `{"id":"1","email":"a@x.com","password":"secret"}`, "")
	ownToken, _ := decodeBody(t, rec)["token"].(string)
	rec = do(e, http.MethodPost, "/auth/register", `{"id":"2","email":"b@x.com","password":"secret"}`, "")
	otherToken, _ := decodeBody(t, rec)["token"].(string)

	if rec := do(e, http.MethodPut, "/auth/users/1/name", `{"new_name":"Ana"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPut, "/auth/users/1/name", `{"new_name":"Ana"}`, otherToken); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign token: expected 403, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPut, "/auth/users/1/name", `{"new_name":"Ana"}`, ownToken); rec.Code != http.StatusOK {
		t.Fatalf("own token: expected 200, got %d", rec.Code)
	}
}

func TestRouter_OpenProfileRoutesByDefault(t *testing.T) {
	e := newTestRouter(t, false)
	do(e, http.MethodPost, "/auth/register", `{"id":"1","email":"a@x.com","password":"secret"}`, "")

	if rec := do(e, http.MethodPut, "/auth/users/1/photo", `{"image_base64":"aGk="}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without token, got %d", rec.Code)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	e := newTestRouter(t, false)

	for _, path := range []string{"/health", "/health/ready"} {
		if rec := do(e, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	do(e, http.MethodGet, "/health", "", "")
	rec := do(e, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "identity_requests_total") {
		t.Fatalf("metrics: http counters missing")
	}
}
