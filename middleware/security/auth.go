package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	jwtsec "mdzgate/tools/security"
)

// —— context key ——
// 后续模块统一用这个 key 读取
const CtxUserIDKey = "userID"

// UserID reads the authenticated user id the middleware stored.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

// Middleware validates "Authorization: Bearer <token>" and puts the
// numeric user id into the request context. Requests without a valid
// token are rejected.
func Middleware(opts jwtsec.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		uid, err := jwtsec.Verify(opts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(CtxUserIDKey, uid)
		c.Next()
	}
}
