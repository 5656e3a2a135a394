package middleware

import (
	"errors"
	"net/http"
	"strings"

	"support360/internal/auth"
	"support360/internal/models"

	"github.com/gin-gonic/gin"
)

// Context keys set by Auth.
const (
	ContextUser   = "user"
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// TokenVerifier resolves a session token to its live user.
type TokenVerifier interface {
	Verify(token string) (*models.User, error)
}

// Auth enforces a session token on protected routes. The token comes from
// "Authorization: Bearer <jwt>" or, for websocket upgrades, the "token" query.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		user, err := verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				unauthorized(c, "token expired")
			case errors.Is(err, auth.ErrUserUnavailable):
				unauthorized(c, "user deleted or inactive")
			default:
				unauthorized(c, "invalid token")
			}
			return
		}
		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)
		c.Set(ContextRole, user.Role)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth, or nil on public routes.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ContextUser); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func bearerToken(header string) string {
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"message": msg,
	})
}
