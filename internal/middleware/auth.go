package middleware

import (
	"net/http"
	"strings"

	"echo-widget-go/internal/apperr"
	"echo-widget-go/internal/model"
	"echo-widget-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Gin 上下文中的键。
const (
	ContextTenantKey   = "tenantContext"
	ContextTenantIDKey = "tenantId"
)

// Preflight 处理 CORS 预检请求。
// 预检请求不携带 API 凭证，无法做租户级来源校验，这里宽松放行；
// 真正的来源强制在实际请求的 TenantAuth 中执行。
func Preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
		h.Set("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// TenantAuth 创建租户认证中间件：提取凭证、解析租户上下文、校验来源。
// 解析出的 TenantContext 存入 Gin 上下文供后续处理器使用。
func TenantAuth(tenantService service.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := extractCredential(c)
		if credential == "" {
			abortWithError(c, apperr.MissingCredential())
			return
		}

		tc, err := tenantService.ResolveContext(c.Request.Context(), credential)
		if err != nil {
			abortWithError(c, err)
			return
		}

		// 来源校验只在 Origin 头存在时执行；服务端到服务端的调用
		// 不携带 Origin，按调度层约定放行。
		origin := c.GetHeader("Origin")
		if origin != "" {
			if !service.OriginAllowed(origin, tc.Config.AllowedOrigins) {
				abortWithError(c, apperr.OriginNotAllowed(origin))
				return
			}
			// 只反射通过校验的来源
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Set(ContextTenantKey, tc)
		c.Set(ContextTenantIDKey, tc.Tenant.TenantID)
		c.Next()
	}
}

// TenantFromContext 从 Gin 上下文中取出租户上下文。
func TenantFromContext(c *gin.Context) (*model.TenantContext, bool) {
	v, ok := c.Get(ContextTenantKey)
	if !ok {
		return nil, false
	}
	tc, ok := v.(*model.TenantContext)
	return tc, ok
}

// extractCredential 依次尝试 X-API-Key 头与 Authorization: Bearer 头。
func extractCredential(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	const bearerPrefix = "Bearer "
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return ""
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
