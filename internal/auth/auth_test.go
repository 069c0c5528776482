package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(nil, ServiceConfig{JWTSecret: []byte("test-secret"), TokenTTL: time.Hour})

	token, err := svc.issueToken(&User{ID: 42, Username: "alice", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != 42 || claims.Role != RoleAdmin || claims.Subject != "alice" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService(nil, ServiceConfig{JWTSecret: []byte("secret-a")})
	verifier := NewService(nil, ServiceConfig{JWTSecret: []byte("secret-b")})

	token, err := issuer.issueToken(&User{ID: 1, Username: "bob"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := verifier.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	svc := NewService(nil, ServiceConfig{JWTSecret: []byte("test-secret"), TokenTTL: -time.Hour})

	token, err := svc.issueToken(&User{ID: 1, Username: "bob"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := svc.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

type mockAuthService struct {
	loginFn         func(ctx context.Context, username, password string) (string, *User, error)
	userFromTokenFn func(ctx context.Context, tokenStr string) (*User, error)
	createUserFn    func(ctx context.Context, in CreateUserInput) (*User, error)
	listUsersFn     func(ctx context.Context, role string) ([]User, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (string, *User, error) {
	if m.loginFn == nil {
		return "", nil, errors.New("not implemented")
	}
	return m.loginFn(ctx, username, password)
}

func (m *mockAuthService) UserFromToken(ctx context.Context, tokenStr string) (*User, error) {
	if m.userFromTokenFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.userFromTokenFn(ctx, tokenStr)
}

func (m *mockAuthService) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if m.createUserFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createUserFn(ctx, in)
}

func (m *mockAuthService) ListUsers(ctx context.Context, role string) ([]User, error) {
	if m.listUsersFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listUsersFn(ctx, role)
}

func TestLoginHandler(t *testing.T) {
	h := NewHandler(&mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, *User, error) {
			if username == "alice" && password == "correct-horse" {
				return "tok123", &User{ID: 1, Username: "alice"}, nil
			}
			return "", nil, ErrInvalidCredentials
		},
	})

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "correct-horse"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Login(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w = httptest.NewRecorder()
	h.Login(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	h := NewHandler(&mockAuthService{
		userFromTokenFn: func(ctx context.Context, tokenStr string) (*User, error) {
			if tokenStr == "valid" {
				return &User{ID: 5, Username: "carol", Role: RoleStudent}, nil
			}
			return nil, ErrInvalidToken
		},
	})

	var seen *User
	next := h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer valid")
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen == nil || seen.ID != 5 {
		t.Fatalf("user not placed in context: %+v", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w = httptest.NewRecorder()
	next.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w = httptest.NewRecorder()
	next.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing header, got %d", w.Code)
	}
}

func TestRequireRoles(t *testing.T) {
	mw := RequireRoles(RoleAdmin)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 1, Role: RoleAdmin}))
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin should pass, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 2, Role: RoleStudent}))
	w = httptest.NewRecorder()
	next.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("student should be forbidden, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	w = httptest.NewRecorder()
	next.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous should be unauthorized, got %d", w.Code)
	}
}
