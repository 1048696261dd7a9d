package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/sitestack/internal/utils"
)

const RequestIdHeader = "X-Request-Id"

// CustomContextMiddleware stores caller identity headers and a request id in
// the request context and echoes the request id back.
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIdHeader, utils.GetRequestIdFromContext(ctx))
		c.Next()
	}
}
