package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fitclub-access/internal/auth"
	"fitclub-access/internal/mailer"
	"fitclub-access/internal/reset"
	"fitclub-access/internal/security"
	"fitclub-access/internal/session"
	"fitclub-access/internal/user/domain"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, userType domain.Type, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Type == userType && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByResetToken(_ context.Context, userType domain.Type, token string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == "" {
		return nil, nil
	}
	for _, u := range r.users {
		if u.Type == userType && u.ResetPasswordToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) SetResetToken(_ context.Context, userID, token string, expiresAt, requestedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.ResetPasswordToken = token
	exp, req := expiresAt, requestedAt
	u.ResetPasswordExpires = &exp
	u.ResetPasswordRequestedAt = &req
	return nil
}

func (r *memUserRepo) ConsumeResetToken(_ context.Context, userID, token, newPasswordHash string, changedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.ResetPasswordToken != token {
		return false, nil
	}
	u.PasswordHash = newPasswordHash
	u.ResetPasswordToken = ""
	u.ResetPasswordExpires = nil
	ch := changedAt
	u.PasswordChangedAt = &ch
	return true, nil
}

func (r *memUserRepo) ClearExpiredResetTokens(_ context.Context, now time.Time) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared []*domain.User
	for _, u := range r.users {
		if u.ResetPasswordToken != "" && u.ResetPasswordExpires != nil && u.ResetPasswordExpires.Before(now) {
			cp := *u
			cleared = append(cleared, &cp)
			u.ResetPasswordToken = ""
			u.ResetPasswordExpires = nil
		}
	}
	return cleared, nil
}

type apiFixture struct {
	router http.Handler
	repo   *memUserRepo
	store  *session.MemoryStore
	hasher *security.Hasher
}

func newAPIFixture(t *testing.T, devToken bool) *apiFixture {
	t.Helper()
	repo := newMemUserRepo()
	store := session.NewMemoryStore(session.DefaultMaxAge)
	hasher := security.NewHasher(4)
	resets := reset.NewService(repo, nil, hasher, mailer.Noop{}, time.Hour, "https://club.example/reset")
	authSvc := auth.NewService(repo, store, hasher)
	h := NewHandler(Options{
		Auth:               authSvc,
		Sessions:           store,
		Resets:             resets,
		SessionMaxAge:      session.DefaultMaxAge,
		DevTokenInResponse: devToken,
	})
	return &apiFixture{router: h.Routes(), repo: repo, store: store, hasher: hasher}
}

func (f *apiFixture) seedUser(t *testing.T, id, email, role, password string, userType domain.Type, active bool) {
	t.Helper()
	hash, err := f.hasher.Hash([]byte(password))
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = f.repo.Create(context.Background(), &domain.User{
		ID:           id,
		Type:         userType,
		Email:        email,
		Name:         "Test " + role,
		Role:         role,
		PasswordHash: hash,
		IsActive:     active,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookie)
	return nil
}

func (f *apiFixture) login(t *testing.T, email, password string, userType domain.Type) *http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password, "user_type": string(userType),
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	return sessionCookie(t, rec)
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)

	rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "Ana@Club.Test", "password": "correct horse", "user_type": "member",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.ID != "u1" || resp.User.Email != "ana@club.test" {
		t.Errorf("user snapshot = %+v", resp.User)
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("expires_at missing")
	}

	c := sessionCookie(t, rec)
	if c.Value == "" || !c.HttpOnly {
		t.Errorf("cookie = %+v, want non-empty HttpOnly", c)
	}
}

func TestLoginRejections(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)
	f.seedUser(t, "u2", "off@club.test", "member", "pw123456", domain.TypeMember, false)

	cases := []struct {
		name     string
		body     map[string]string
		wantCode int
	}{
		{"wrong password", map[string]string{"email": "ana@club.test", "password": "nope", "user_type": "member"}, http.StatusUnauthorized},
		{"unknown email", map[string]string{"email": "ghost@club.test", "password": "correct horse", "user_type": "member"}, http.StatusUnauthorized},
		{"wrong partition", map[string]string{"email": "ana@club.test", "password": "correct horse", "user_type": "staff"}, http.StatusUnauthorized},
		{"deactivated", map[string]string{"email": "off@club.test", "password": "pw123456", "user_type": "member"}, http.StatusUnauthorized},
		{"bad user type", map[string]string{"email": "ana@club.test", "password": "correct horse", "user_type": "robot"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/auth/login", tc.body, nil)
			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.wantCode, rec.Body.String())
			}
		})
	}
}

func TestMeRequiresSession(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)

	rec := f.do(t, http.MethodGet, "/api/auth/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: status = %d, want 401", rec.Code)
	}

	cookie := f.login(t, "ana@club.test", "correct horse", domain.TypeMember)
	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("with cookie: status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ana@club.test"`) {
		t.Errorf("me response missing email: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, &http.Cookie{Name: SessionCookie, Value: "forged"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("forged cookie: status = %d, want 401", rec.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)
	cookie := f.login(t, "ana@club.test", "correct horse", domain.TypeMember)

	rec := f.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", rec.Code)
	}
	cleared := sessionCookie(t, rec)
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Errorf("logout cookie = %+v, want cleared", cleared)
	}

	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout: status = %d, want 401", rec.Code)
	}

	// Logging out again, or without a cookie, is a quiet no-op.
	rec = f.do(t, http.MethodPost, "/api/auth/logout", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("logout without cookie: status = %d, want 204", rec.Code)
	}
}

func TestResetRequestResponseIsUniform(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)
	f.seedUser(t, "u2", "off@club.test", "member", "pw123456", domain.TypeMember, false)

	bodies := make(map[string]string)
	for _, email := range []string{"ana@club.test", "ghost@club.test", "off@club.test"} {
		rec := f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
			"email": email, "user_type": "member",
		}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", email, rec.Code)
		}
		bodies[email] = rec.Body.String()
	}
	if bodies["ana@club.test"] != bodies["ghost@club.test"] || bodies["ana@club.test"] != bodies["off@club.test"] {
		t.Errorf("responses differ across existing/unknown/deactivated accounts: %v", bodies)
	}
	if !strings.Contains(bodies["ana@club.test"], resetRequestedMessage) {
		t.Errorf("response missing generic message: %s", bodies["ana@club.test"])
	}

	// The real outcome is only visible server side.
	u, _ := f.repo.GetByID(context.Background(), "u1")
	if u.ResetPasswordToken == "" {
		t.Error("existing user has no stored reset token")
	}
	u2, _ := f.repo.GetByID(context.Background(), "u2")
	if u2.ResetPasswordToken != "" {
		t.Error("deactivated user was issued a token")
	}
}

func TestResetRequestDevMode(t *testing.T) {
	f := newAPIFixture(t, true)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)

	rec := f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
		"email": "ana@club.test", "user_type": "member",
	}, nil)
	var resp resetRequestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ResetToken == "" || resp.ExpiresAt == nil {
		t.Fatalf("dev mode response missing token: %+v", resp)
	}

	// Even in dev mode an unknown email leaks nothing.
	rec = f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
		"email": "ghost@club.test", "user_type": "member",
	}, nil)
	var ghost resetRequestResponse
	if err := json.NewDecoder(rec.Body).Decode(&ghost); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ghost.ResetToken != "" {
		t.Errorf("unknown account got a token: %+v", ghost)
	}
}

func TestResetVerify(t *testing.T) {
	f := newAPIFixture(t, true)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)

	rec := f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
		"email": "ana@club.test", "user_type": "member",
	}, nil)
	var issued resetRequestResponse
	if err := json.NewDecoder(rec.Body).Decode(&issued); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = f.do(t, http.MethodGet, "/api/password-reset/verify?token="+issued.ResetToken+"&user_type=member", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"valid":true`) {
		t.Errorf("verify body = %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/password-reset/verify?token=not-a-token&user_type=member", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid token: status = %d, want 400", rec.Code)
	}

	// Force the stored token past its expiry.
	past := time.Now().Add(-time.Minute)
	f.repo.mu.Lock()
	f.repo.users["u1"].ResetPasswordExpires = &past
	f.repo.mu.Unlock()
	rec = f.do(t, http.MethodGet, "/api/password-reset/verify?token="+issued.ResetToken+"&user_type=member", nil, nil)
	if rec.Code != http.StatusGone {
		t.Errorf("expired token: status = %d, want 410: %s", rec.Code, rec.Body.String())
	}
}

func TestResetConfirm(t *testing.T) {
	f := newAPIFixture(t, true)
	f.seedUser(t, "u1", "ana@club.test", "member", "old password", domain.TypeMember, true)

	rec := f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
		"email": "ana@club.test", "user_type": "member",
	}, nil)
	var issued resetRequestResponse
	if err := json.NewDecoder(rec.Body).Decode(&issued); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = f.do(t, http.MethodPost, "/api/password-reset/confirm", map[string]string{
		"token": issued.ResetToken, "new_password": "short", "user_type": "member",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password: status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/password-reset/confirm", map[string]string{
		"token": issued.ResetToken, "new_password": "brand new password", "user_type": "member",
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("confirm status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	// The token is single use.
	rec = f.do(t, http.MethodPost, "/api/password-reset/confirm", map[string]string{
		"token": issued.ResetToken, "new_password": "another password", "user_type": "member",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reused token: status = %d, want 400", rec.Code)
	}

	if f.login(t, "ana@club.test", "brand new password", domain.TypeMember) == nil {
		t.Error("login with new password failed")
	}
	rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "ana@club.test", "password": "old password", "user_type": "member",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old password still accepted: status = %d", rec.Code)
	}
}

func TestAdminRoutesGated(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)
	f.seedUser(t, "a1", "boss@club.test", "admin", "admin password", domain.TypeStaff, true)

	rec := f.do(t, http.MethodGet, "/api/admin/sessions/stats", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: status = %d, want 401", rec.Code)
	}

	member := f.login(t, "ana@club.test", "correct horse", domain.TypeMember)
	rec = f.do(t, http.MethodGet, "/api/admin/sessions/stats", nil, member)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member: status = %d, want 403", rec.Code)
	}

	admin := f.login(t, "boss@club.test", "admin password", domain.TypeStaff)
	rec = f.do(t, http.MethodGet, "/api/admin/sessions/stats", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d: %s", rec.Code, rec.Body.String())
	}
	var stats struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Active != 2 {
		t.Errorf("active sessions = %d, want 2", stats.Active)
	}
}

func TestAdminUserSessions(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "u1", "ana@club.test", "member", "correct horse", domain.TypeMember, true)
	f.seedUser(t, "a1", "boss@club.test", "admin", "admin password", domain.TypeStaff, true)

	memberCookie := f.login(t, "ana@club.test", "correct horse", domain.TypeMember)
	f.login(t, "ana@club.test", "correct horse", domain.TypeMember)
	admin := f.login(t, "boss@club.test", "admin password", domain.TypeStaff)

	rec := f.do(t, http.MethodGet, "/api/admin/users/u1/sessions", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(listed.Sessions))
	}

	rec = f.do(t, http.MethodPost, "/api/admin/users/u1/sessions/terminate", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("terminate status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"terminated":2`) {
		t.Errorf("terminate body = %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, memberCookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("member session survives termination: status = %d", rec.Code)
	}

	// Unknown user yields an empty list, not an error.
	rec = f.do(t, http.MethodGet, "/api/admin/users/ghost/sessions", nil, admin)
	if rec.Code != http.StatusOK {
		t.Errorf("unknown user list: status = %d", rec.Code)
	}
}

func TestAuditListUnavailableWithoutRepo(t *testing.T) {
	f := newAPIFixture(t, false)
	f.seedUser(t, "a1", "boss@club.test", "admin", "admin password", domain.TypeStaff, true)
	admin := f.login(t, "boss@club.test", "admin password", domain.TypeStaff)

	rec := f.do(t, http.MethodGet, "/api/admin/audit/password-resets", nil, admin)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, false)
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t, false)
	rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "a@b.c", "password": "pw", "user_type": "member", "admin": "true",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
