package middleware

import (
	"net/http"

	"support360/internal/models"

	"github.com/gin-gonic/gin"
)

// RequireRoles lets the request through when the authenticated user holds
// one of the given roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if user := CurrentUser(c); user != nil {
			if _, ok := allowed[user.Role]; ok {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Forbidden",
			"message": "insufficient role",
		})
	}
}

// RequireStaff is RequireRoles(agent, admin).
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.RoleAgent, models.RoleAdmin)
}
