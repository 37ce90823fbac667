package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lumeodev/cra_backend/utils"
)

// IdentityMiddleware resolves the caller's identity from gateway headers.
// Authentication/authorization happens upstream (API gateway + OAuth
// provider); this service trusts the forwarded identity and only maps it
// into the request context.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId := c.GetHeader("X-Company-Id")
		userIdRaw := c.GetHeader("X-User-Id")

		if companyId == "" || userIdRaw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity headers"})
			c.Abort()
			return
		}
		userId, err := strconv.Atoi(userIdRaw)
		if err != nil || userId <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetCompanyIdInContext(ctx, companyId)
		ctx = utils.SetUserIdInContext(ctx, userId)
		if userName := c.GetHeader("X-User-Name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
