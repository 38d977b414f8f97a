package httpgin

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "admin"
	RoleOwner = "owner"

	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Claims are the JWT claims the API understands: the subject identifies the
// user and Role grants access to the admin API.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func parseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	raw = strings.TrimSpace(raw)
	return raw, ok && raw != ""
}

// OptionalAuth records the caller identity when a valid bearer token is present.
// Requests without a token pass through anonymously; an invalid token is rejected.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok || secret == "" {
			c.Next()
			return
		}

		claims, err := parseToken(secret, raw)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects requests whose token does not carry one of roles.
// It must run after OptionalAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxUserID); !ok {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		if !slices.Contains(roles, c.GetString(ctxRole)) {
			abortJSON(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			return
		}

		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// actor names the caller for audit fields, e.g. "admin:42" or "customer".
func actor(c *gin.Context, fallback string) string {
	id := userID(c)
	if id == "" {
		return fallback
	}
	if role := c.GetString(ctxRole); role != "" {
		return role + ":" + id
	}
	return "user:" + id
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Error: msg})
}
