// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"templestock/internal/core/apperror"
	appctx "templestock/internal/core/context"
	"templestock/pkg/logger"
)

// Recovery turns a handler panic into an INTERNAL error for ErrorHandler to
// render. The stack goes to the log only. Tenant and actor are added by the
// request logger once Auth has run.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			logger.Error(ctx, "panic recovered",
				"method", c.Request.Method,
				"route", c.FullPath(),
				"resource_id", c.Param("id"),
				"error", rec,
				"stack", string(debug.Stack()),
			)

			_ = c.Error(
				apperror.NewInternal(fmt.Errorf("panic: %v", rec)).
					WithDetail("request_id", appctx.GetRequestID(ctx)),
			)
			c.Abort()
		}()
		c.Next()
	}
}
