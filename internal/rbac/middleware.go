package rbac

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"voice-bridge/internal/auth"
)

// RequireIdentity allows a request only when the verified client identity is
// one of allowed. Run it after auth.RequireAccessToken.
// An empty allow-list admits any authenticated identity.
func RequireIdentity(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		if id = strings.TrimSpace(id); id != "" {
			allowedSet[id] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		identity, err := auth.Identity(c.Request.Context())
		if err != nil || identity == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}
		if len(allowedSet) == 0 {
			c.Next()
			return
		}
		if _, ok := allowedSet[identity]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
