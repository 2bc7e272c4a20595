package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func issueToken(t *testing.T, ownerID, role string) string {
	t.Helper()
	claims := APIClaims{
		OwnerID: ownerID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func authRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/private", RequireAuth(testSecret, roles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"owner": c.GetString(CtxOwnerID)})
	})
	return router
}

func doAuth(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	router := authRouter("user", "admin")
	w := doAuth(router, issueToken(t, "owner-1", "user"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	router := authRouter("user")
	if w := doAuth(router, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsBadSignature(t *testing.T) {
	claims := APIClaims{OwnerID: "owner-1", Role: "user"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	router := authRouter("user")
	if w := doAuth(router, token); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	claims := APIClaims{
		OwnerID: "owner-1",
		Role:    "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	router := authRouter("user")
	if w := doAuth(router, token); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthEnforcesRole(t *testing.T) {
	router := authRouter("admin", "super_admin")
	if w := doAuth(router, issueToken(t, "owner-1", "user")); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for insufficient role, got %d", w.Code)
	}
}
