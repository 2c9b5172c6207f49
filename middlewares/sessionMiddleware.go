package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wavehaus/bookings_backend/utils"
)

// SessionMiddleware extracts the triggering principal from a bearer token,
// best effort. Reconciliation runs are often system-initiated (scheduler,
// ops CLI) so a missing or unparsable token is not an error: the run just
// proceeds with a nil principal and the audit entry records it as such.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Next()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := utils.JwtValidate(raw)
		if err != nil || !token.Valid {
			c.Next()
			return
		}
		claims, ok := token.Claims.(*utils.JwtCustomClaim)
		if !ok || claims.Username == "" {
			c.Next()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), raw)
		ctx = utils.SetUsernameInContext(ctx, claims.Username)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
