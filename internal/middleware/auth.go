package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"filevault/internal/config"
	"filevault/internal/service"
)

const (
	ctxUser    = "current_user"
	ctxSession = "current_session"
)

// Auth accepts either the session cookie or a bearer access token. The cookie
// is the browser path; the bearer token serves API clients that got a JWT
// from login.
func Auth(cfg *config.AppConfig, auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")

		if token, err := c.Cookie(cfg.Session.CookieName); err == nil && token != "" {
			user, session, err := auth.ValidateSession(ctx, token, ip, userAgent)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
				return
			}
			c.Set(ctxUser, user)
			c.Set(ctxSession, session)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			user, session, err := auth.ValidateAccessToken(ctx, tokenStr)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
				return
			}
			c.Set(ctxUser, user)
			c.Set(ctxSession, session)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_credentials"})
	}
}
