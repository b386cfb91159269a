package middleware

import (
	"net/http"
	"strconv"

	"echo-widget-go/internal/apperr"
	"echo-widget-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// errorBody 是所有错误响应的统一 JSON 结构。
type errorBody struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Window     string `json:"window,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// ErrorRenderer 是每条路由唯一的顶层错误出口。
// 处理器与中间件通过 c.Error(...) 上报错误，这里统一映射为结构化 JSON，
// 保证传输层永远不会看到裸异常。
func ErrorRenderer() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		e := apperr.From(c.Errors.Last().Err)

		message := e.Message
		if e.Kind == apperr.KindInternal || e.Kind == apperr.KindConfigNotFound {
			log.Error("请求处理发生内部错误", e)
			// 生产模式下隐藏内部细节
			if gin.Mode() == gin.ReleaseMode {
				message = "internal server error"
			}
		}

		if e.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(e.RetryAfter))
		}

		c.JSON(e.Status, gin.H{"error": errorBody{
			Type:       string(e.Kind),
			Message:    message,
			Field:      e.Field,
			Window:     e.Window,
			RetryAfter: e.RetryAfter,
		}})
	}
}

// Recovery 捕获处理链中的 panic 并渲染为通用 500 响应。
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Errorf("请求处理发生 panic: %v", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorBody{
			Type:    string(apperr.KindInternal),
			Message: "internal server error",
		}})
	})
}
