package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"clipstream/internal/pkg/token"
	"clipstream/internal/transport/http/response"
)

const ContextUserIDKey = "user_id"

// AccessTokenCookie is the cookie browsers send when no Authorization header
// is present.
const AccessTokenCookie = "accessToken"

// AuthJWT authenticates a request from a bearer header or the access-token
// cookie and stores the subject user id in the gin context.
func AuthJWT(tokens *token.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing access token")
			c.Abort()
			return
		}

		userID, err := tokens.VerifyAccess(raw)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if strings.HasPrefix(authHeader, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}
