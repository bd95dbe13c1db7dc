package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminIDKey is the gin context key holding the authenticated admin id.
const AdminIDKey = "admin_id"

// AdminChecker confirms admin status at request time.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// AdminAuth enforces bearer JWT tokens signed with HS256 whose subject is
// still a registered admin.
func AdminAuth(signingKey, issuer string, admins AdminChecker, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		id, err := claims.AdminID()
		if err != nil || claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ok, err := admins.IsAdmin(c.Request.Context(), id)
		if err != nil {
			logger.Error("admin lookup failed", "user_id", id, "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no rights"})
			return
		}
		c.Set(AdminIDKey, id)
		c.Next()
	}
}
