package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, role string, expires time.Time) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAllowsSufficientRole(t *testing.T) {
	m := NewMiddleware(testSecret)
	handler := m.Require(RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RoleFromContext(r.Context()) != RoleOperator {
			t.Error("role missing from context")
		}
		if SubjectFromContext(r.Context()) != "user-1" {
			t.Error("subject missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "operator", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsInsufficientRole(t *testing.T) {
	m := NewMiddleware(testSecret)
	handler := m.Require(RoleAdmin, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "viewer", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsMissingAndExpiredTokens(t *testing.T) {
	m := NewMiddleware(testSecret)
	handler := m.Require(RoleViewer, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "viewer", time.Now().Add(-time.Hour)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareUnconfiguredSecretFailsClosed(t *testing.T) {
	m := NewMiddleware(nil)
	handler := m.Require(RoleViewer, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "viewer", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestIngestAuth(t *testing.T) {
	m := NewIngestAuthMiddleware([]byte("field-secret"))
	handler := m.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/ingest/readings", nil)
	req.Header.Set("X-Ingest-Secret", "field-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid secret: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/ingest/readings", nil)
	req.Header.Set("X-Ingest-Secret", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/ingest/readings", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: expected 401, got %d", rec.Code)
	}

	unconfigured := NewIngestAuthMiddleware(nil)
	req = httptest.NewRequest(http.MethodPost, "/ingest/readings", nil)
	req.Header.Set("X-Ingest-Secret", "anything")
	rec = httptest.NewRecorder()
	unconfigured.Wrap(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured: expected 500, got %d", rec.Code)
	}
}
