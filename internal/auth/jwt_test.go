package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voiceagent-platform/internal/config"

	"github.com/gin-gonic/gin"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.IssueAccess(now, "user-1", "tenant-1", "owner")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "tenant-1" || claims.Role != "owner" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	tok, _ := m.IssueAccess(now, "u", "t", "owner")

	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}

	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "issuer", JWTAudience: "aud"})
	if _, err := other.Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestRequireAccessToken_InjectsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	tok, _ := m.IssueAccess(time.Now(), "u1", "t1", "owner")

	r := gin.New()
	r.GET("/me", RequireAccessToken(m), func(c *gin.Context) {
		tid, err := TenantID(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, tid)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "t1" {
		t.Fatalf("expected 200 t1, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestRequireAccessToken_SchemeAndIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	tok, _ := m.IssueAccess(time.Now(), "u1", "t1", "staff")

	var got Identity
	r := gin.New()
	r.GET("/me", RequireAccessToken(m), func(c *gin.Context) {
		got, _ = IdentityFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	lower := "bearer " + tok
	padded := "Bearer  " + tok
	basic := "Basic " + tok
	for header, want := range map[string]int{
		lower:              http.StatusNoContent,
		padded:             http.StatusNoContent,
		basic:              http.StatusUnauthorized,
		"Bearer":           http.StatusUnauthorized,
		"Bearer not.a.jwt": http.StatusUnauthorized,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("%q: expected %d, got %d", header, want, w.Code)
		}
	}
	if got != (Identity{UserID: "u1", TenantID: "t1", Role: "staff"}) {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestIdentityAccessors(t *testing.T) {
	ctx := context.Background()
	if _, err := TenantID(ctx); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	ctx = WithIdentity(ctx, "u1", "", "owner")
	if _, err := TenantID(ctx); err != ErrNoIdentity {
		t.Fatalf("empty tenant must not pass, got %v", err)
	}
	if role, err := Role(ctx); err != nil || role != "owner" {
		t.Fatalf("expected owner, got %q %v", role, err)
	}
	if uid, err := UserID(ctx); err != nil || uid != "u1" {
		t.Fatalf("expected u1, got %q %v", uid, err)
	}
}
