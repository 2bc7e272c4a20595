package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by RequireAuth.
const (
	CtxOwnerID = "owner_id"
	CtxRole    = "role"
)

// APIClaims is the token payload for dashboard and agent API access.
type APIClaims struct {
	OwnerID string `json:"owner_id"`
	Role    string `json:"role"` // user|admin|super_admin
	jwt.RegisteredClaims
}

// RequireAuth validates the bearer token and, when roles are given, requires
// the claim's role to be one of them. Tokens are issued by the account
// service; this backend only verifies them.
func RequireAuth(secret string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "missing bearer token"})
			c.Abort()
			return
		}

		claims := &APIClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid || claims.OwnerID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid token"})
			c.Abort()
			return
		}

		if len(roles) > 0 && !roleAllowed(claims.Role, roles) {
			c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "insufficient role"})
			c.Abort()
			return
		}

		c.Set(CtxOwnerID, claims.OwnerID)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

func roleAllowed(role string, allowed []string) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
