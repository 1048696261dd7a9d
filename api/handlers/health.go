package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/sitestack/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports which hosting platform the service provisions against
func Status(platform interfaces.HostingPlatform) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"platform": platform.Name(),
		})
	}
}
