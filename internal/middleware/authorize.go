package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"filevault/internal/models"
)

// RequireAdmin guards the management routes. Non-admins get a plain 404, the
// same response an unmapped path produces, so the panel's location is not
// confirmed by a 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || user.Role != models.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user placed by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(ctxUser)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

// CurrentSession returns the session behind the request's credentials.
func CurrentSession(c *gin.Context) (models.Session, bool) {
	val, exists := c.Get(ctxSession)
	if !exists {
		return models.Session{}, false
	}
	session, ok := val.(models.Session)
	return session, ok
}
