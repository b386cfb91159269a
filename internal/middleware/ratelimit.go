package middleware

import (
	"echo-widget-go/internal/service"

	"github.com/gin-gonic/gin"
)

// TenantRateLimit 对聊天类端点执行租户级双窗口限流。
// 必须挂在 TenantAuth 之后。
func TenantRateLimit(rateLimitService service.RateLimitService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := TenantFromContext(c)
		if !ok {
			// TenantAuth 已拒绝的请求不会走到这里
			c.Next()
			return
		}
		err := rateLimitService.Admit(
			c.Request.Context(),
			tc.Tenant.TenantID,
			tc.Tenant.HourLimit(),
			tc.Tenant.DayLimit(),
		)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// PublicRateLimit 对无需认证的公共路由执行 IP 级粗粒度限流。
func PublicRateLimit(rateLimitService service.RateLimitService) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := rateLimitService.AdmitPublic(c.Request.Context(), c.ClientIP(), c.FullPath())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}
