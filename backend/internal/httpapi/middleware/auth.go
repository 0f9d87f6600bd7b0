package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"codeweave/backend/internal/apperr"
	"codeweave/backend/internal/authservice"
)

// Context keys set for authenticated requests.
const (
	CtxUserID   = "userId"
	CtxUsername = "username"
	CtxClaims   = "claims"
)

type Authenticator interface {
	Authenticate(token string) (*authservice.Claims, error)
}

// AuthMiddleware rejects requests without a valid access token.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "Authorization header is missing or invalid",
			})
			return
		}
		if !authenticate(c, auth, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth identifies the caller when a token is sent and lets anonymous
// requests through. A token that is sent but invalid is still rejected.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c)
		if token == "" {
			c.Next()
			return
		}
		if !authenticate(c, auth, token) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, auth Authenticator, token string) bool {
	claims, err := auth.Authenticate(token)
	if err != nil {
		e := apperr.As(err)
		status := e.Status
		if status == 0 || e.Kind == apperr.Internal {
			status = http.StatusUnauthorized
		}
		c.AbortWithStatusJSON(status, gin.H{"code": e.Code, "message": e.Message})
		return false
	}
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxUsername, claims.Username)
	c.Set(CtxClaims, claims)
	return true
}

// tokenFrom reads the bearer token, falling back to ?token= since browsers cannot
// set headers on a websocket handshake.
func tokenFrom(c *gin.Context) string {
	if t := extractBearer(c.Request.Header.Get("Authorization")); t != "" {
		return t
	}
	return strings.TrimSpace(c.Query("token"))
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	// "Bearer" prefix, case-insensitive
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
