// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"

	"echo-widget-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 不捕获请求体与响应体：聊天请求可能携带用户对话内容，
// 且流式响应体一旦缓冲就会破坏首字延迟。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"tenantId", c.GetString(ContextTenantIDKey),
		)
	}
}
