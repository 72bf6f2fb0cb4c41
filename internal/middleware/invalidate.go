package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// InvalidateDashboard drops the cached dashboard snapshot after a
// successful mutation. Attach it to routes that change roster or
// billing numbers; failed requests leave the cache alone.
func InvalidateDashboard(dash dashboardInvalidator) gin.HandlerFunc {
	if dash == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		c.Next()

		if status := c.Writer.Status(); status >= http.StatusOK && status < http.StatusMultipleChoices {
			dash.Invalidate(c.Request.Context())
		}
	}
}
