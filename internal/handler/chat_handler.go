// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"net/http"

	"echo-widget-go/internal/apperr"
	"echo-widget-go/internal/middleware"
	"echo-widget-go/internal/model"
	"echo-widget-go/internal/service"
	"echo-widget-go/pkg/log"
	"echo-widget-go/pkg/sse"

	"github.com/gin-gonic/gin"
)

// 请求体约束。
const (
	maxMessages     = 50
	maxMessageChars = 4000
	maxTemperature  = 2.0
	maxTokensLimit  = 4000
)

// ChatHandler 负责处理聊天补全请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Completions 是 POST /v1/chat/completions 的处理函数。
// 按 stream 标志选择单个 JSON 对象或 SSE 事件流两种响应模式。
func (h *ChatHandler) Completions(c *gin.Context) {
	tc, ok := middleware.TenantFromContext(c)
	if !ok {
		_ = c.Error(apperr.Internal(fmt.Errorf("tenant context missing")))
		return
	}

	var req model.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.Validation("body", "request body is not valid JSON"))
		return
	}
	if err := validateChatRequest(&req); err != nil {
		_ = c.Error(err)
		return
	}

	// Complete 的契约是全量的：推理失败也返回可用的兜底结果，
	// 聊天端永远不会因为模型问题看到错误状态码。
	completion := h.chatService.Complete(c.Request.Context(), tc, &req)

	if !req.Stream {
		c.JSON(http.StatusOK, model.ChatCompletionResponse{
			ID:       completion.ID,
			Object:   "chat.completion",
			Model:    completion.Model,
			Content:  completion.Content,
			Usage:    completion.Usage,
			Fallback: completion.Fallback,
		})
		return
	}

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		_ = c.Error(apperr.Internal(err))
		return
	}
	c.Status(http.StatusOK)
	if err := writer.StreamText(c.Request.Context(), completion.ID, completion.Model, completion.Content); err != nil {
		// 客户端断开或写失败：流已经开始，无法再改写状态码，只记录
		log.Warnf("[ChatHandler] 流式响应中断: %v", err)
	}
}

// validateChatRequest 校验请求体约束，尽早拒绝坏请求。
func validateChatRequest(req *model.ChatCompletionRequest) error {
	if len(req.Messages) == 0 {
		return apperr.Validation("messages", "messages must not be empty")
	}
	if len(req.Messages) > maxMessages {
		return apperr.Validation("messages", fmt.Sprintf("messages must contain at most %d entries", maxMessages))
	}

	for i, m := range req.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return apperr.Validation("messages", fmt.Sprintf("message %d has invalid role %q", i, m.Role))
		}
		if !m.Content.HasTextPart() {
			return apperr.Validation("messages", fmt.Sprintf("message %d must contain at least one text part", i))
		}
		text := m.Content.PlainText()
		if text == "" {
			return apperr.Validation("messages", fmt.Sprintf("message %d has empty content", i))
		}
		if len(text) > maxMessageChars {
			return apperr.Validation("messages", fmt.Sprintf("message %d exceeds %d characters", i, maxMessageChars))
		}
	}

	if last := req.Messages[len(req.Messages)-1]; last.Role != "user" {
		return apperr.Validation("messages", "the last message must have role user")
	}

	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > maxTemperature) {
		return apperr.Validation("temperature", "temperature must be between 0 and 2")
	}
	if req.MaxTokens != nil && (*req.MaxTokens < 1 || *req.MaxTokens > maxTokensLimit) {
		return apperr.Validation("max_tokens", fmt.Sprintf("max_tokens must be between 1 and %d", maxTokensLimit))
	}
	return nil
}
