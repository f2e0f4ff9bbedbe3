package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Actor context keys set for handlers
const (
	ContextActorID   = "actorID"
	ContextActorRole = "actorRole"
)

// RequireActor extracts the acting operator from the gateway headers.
// Session and role resolution happen upstream; this service trusts the
// X-Actor-Id / X-Actor-Role headers injected by the gateway.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader("X-Actor-Id")
		if actorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "X-Actor-Id header is required",
			})
			return
		}

		c.Set(ContextActorID, actorID)
		c.Set(ContextActorRole, c.GetHeader("X-Actor-Role"))

		c.Next()
	}
}
