package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clinic-scheduling-api/internal/auth"
	"clinic-scheduling-api/internal/model"
	"clinic-scheduling-api/internal/schedule"
)

const (
	callerIDKey   = "callerId"
	callerRoleKey = "callerRole"
)

// Auth verifies the bearer token and stores the caller identity on the
// request context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// token from Authorization: Bearer <jwt>
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "no token provided"})
			return
		}
		raw := strings.TrimPrefix(h, "Bearer ")

		claims, err := auth.ParseToken(raw, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}

		c.Set(callerIDKey, claims.UserID)
		c.Set(callerRoleKey, claims.Role)
		c.Next()
	}
}

// AllowTo gates a route to the given roles. Runs after Auth.
func AllowTo(roles ...model.Role) gin.HandlerFunc {
	allowed := map[model.Role]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "no token provided"})
			return
		}
		if _, ok := allowed[caller.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "access denied"})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the authenticated caller set by Auth.
func CallerFrom(c *gin.Context) (schedule.Caller, bool) {
	id, ok := c.Get(callerIDKey)
	if !ok {
		return schedule.Caller{}, false
	}
	role, ok := c.Get(callerRoleKey)
	if !ok {
		return schedule.Caller{}, false
	}
	return schedule.Caller{ID: id.(string), Role: role.(model.Role)}, true
}
