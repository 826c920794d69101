package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/galihcitta/confras/internal/auth"
)

const (
	ContextTenantID = "tenant_id"
	ContextEmail    = "email"
	ContextClaims   = "claims"
)

type TokenValidator interface {
	Validate(tokenString, purpose string) (*auth.Claims, error)
}

// JWTAuthMiddleware validates organizer session tokens from the Authorization
// header or the token query parameter.
func JWTAuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization token required")
			return
		}

		claims, err := tokens.Validate(tokenString, auth.PurposeSession)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware enforces a session only when required is set.
// Otherwise a valid token still scopes the request, and a missing or bad one
// is ignored.
func OptionalAuthMiddleware(tokens TokenValidator, required bool) gin.HandlerFunc {
	if required {
		return JWTAuthMiddleware(tokens)
	}
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := tokens.Validate(tokenString, auth.PurposeSession); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// TenantID returns the tenant the request is scoped to, if any.
func TenantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextTenantID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(ContextTenantID, claims.TenantID)
	c.Set(ContextEmail, claims.Email)
	c.Set(ContextClaims, claims)
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":  "error",
		"code":    code,
		"message": message,
	})
}
