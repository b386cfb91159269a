package handler

import (
	"fmt"
	"net/http"

	"echo-widget-go/internal/apperr"
	"echo-widget-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// WidgetHandler 负责挂件配置与挂件引导脚本。
type WidgetHandler struct {
	scriptBaseURL string
}

// NewWidgetHandler 创建一个新的 WidgetHandler 实例。
// scriptBaseURL 是挂件脚本回连后端时使用的地址。
func NewWidgetHandler(scriptBaseURL string) *WidgetHandler {
	return &WidgetHandler{scriptBaseURL: scriptBaseURL}
}

// Config 是 GET /v1/widget/config 的处理函数。
// 只返回对挂件前端公开安全的配置子集。
func (h *WidgetHandler) Config(c *gin.Context) {
	tc, ok := middleware.TenantFromContext(c)
	if !ok {
		_ = c.Error(apperr.Internal(fmt.Errorf("tenant context missing")))
		return
	}
	c.JSON(http.StatusOK, tc.Config.PublicView())
}

// 挂件引导脚本模板。线上站点以
// <script src=".../widget.js?key=cb_xxx"></script> 的方式嵌入，
// 脚本本身不含任何租户数据，配置由挂件运行时另行拉取。
const bootstrapScript = `(function () {
  var s = document.currentScript || (function (ss) { return ss[ss.length - 1]; })(document.getElementsByTagName("script"));
  var key = (s && (new URL(s.src)).searchParams.get("key")) || "";
  if (!key) { console.warn("[echo-widget] missing key parameter"); return; }
  window.EchoWidget = window.EchoWidget || {};
  window.EchoWidget.apiKey = key;
  window.EchoWidget.baseUrl = %q;
  var loader = document.createElement("script");
  loader.async = true;
  loader.src = window.EchoWidget.baseUrl + "/static/widget-app.js";
  document.head.appendChild(loader);
})();
`

// Script 是 GET /widget.js 的处理函数。公共路由，仅受 IP 级限流保护。
func (h *WidgetHandler) Script(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8",
		[]byte(fmt.Sprintf(bootstrapScript, h.scriptBaseURL)))
}
