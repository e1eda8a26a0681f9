package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/service"
)

// Actor attaches the caller identity to the request context so services can stamp audit rows.
// It must run after JWT on protected groups; public routes still record IP and user agent.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := service.Actor{
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims, ok := Claims(c); ok {
			actor.UserID = claims.UserID
		}
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}
