package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"echo-widget-go/internal/middleware"
	"echo-widget-go/internal/model"
	"echo-widget-go/internal/repository"
	"echo-widget-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCredential = "cb_0123456789abcdef0123456789abcdef"

// stubTenantRepository 提供单租户的内存数据，驱动真实的 TenantService。
type stubTenantRepository struct {
	tenant *model.Tenant
	config *model.WidgetConfig
}

func (s *stubTenantRepository) FindByCredential(_ context.Context, credential string) (*model.Tenant, error) {
	if s.tenant != nil && s.tenant.Credential == credential {
		return s.tenant, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubTenantRepository) FindConfigByTenantID(_ context.Context, tenantID string) (*model.WidgetConfig, error) {
	if s.config != nil && s.config.TenantID == tenantID {
		return s.config, nil
	}
	return nil, repository.ErrNotFound
}

// stubCounterRepository 是内存计数器，语义与 Redis 的原子 INCR 一致。
type stubCounterRepository struct {
	counts map[string]int64
}

func (s *stubCounterRepository) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.counts[key]++
	return s.counts[key], nil
}

// stubChatService 返回固定的补全结果。
type stubChatService struct {
	completion *model.ChatCompletion
}

func (s *stubChatService) Complete(_ context.Context, _ *model.TenantContext, _ *model.ChatCompletionRequest) *model.ChatCompletion {
	return s.completion
}

type routerOptions struct {
	hourLimit  int
	completion *model.ChatCompletion
}

// newTestRouter 搭建与生产路由同构的最小管线：
// 错误渲染 → 租户认证 → 租户限流 → 聊天处理器。
func newTestRouter(opts routerOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)

	if opts.completion == nil {
		opts.completion = &model.ChatCompletion{
			ID:      "chatcmpl-test",
			Model:   "gpt-4o-mini",
			Content: "Hello there, how can I help you?",
			Usage:   model.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
		}
	}

	tenantRepo := &stubTenantRepository{
		tenant: &model.Tenant{
			TenantID:         "t-1",
			Credential:       testCredential,
			Status:           "active",
			RateLimitPerHour: opts.hourLimit,
		},
		config: &model.WidgetConfig{
			TenantID:       "t-1",
			BotName:        "Echo",
			AllowedOrigins: "*.example.com",
		},
	}
	tenantService := service.NewTenantService(tenantRepo)
	rateLimitService := service.NewRateLimitService(
		&stubCounterRepository{counts: make(map[string]int64)}, 1000)
	chatHandler := NewChatHandler(&stubChatService{completion: opts.completion})

	r := gin.New()
	r.Use(middleware.ErrorRenderer())
	v1 := r.Group("/v1")
	v1.Use(middleware.TenantAuth(tenantService))
	chat := v1.Group("/chat")
	chat.Use(middleware.TenantRateLimit(rateLimitService))
	chat.POST("/completions", chatHandler.Completions)
	return r
}

func postCompletions(r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func authHeaders() map[string]string {
	return map[string]string{"X-API-Key": testCredential}
}

const validBody = `{"messages":[{"role":"user","content":"hello"}]}`

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Type
}

func TestCompletionsMissingCredential(t *testing.T) {
	r := newTestRouter(routerOptions{})
	rec := postCompletions(r, validBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_credential", errorType(t, rec))
}

func TestCompletionsMalformedCredential(t *testing.T) {
	r := newTestRouter(routerOptions{})
	rec := postCompletions(r, validBody, map[string]string{"X-API-Key": "not-a-key"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credential_format", errorType(t, rec))
}

func TestCompletionsUnknownCredential(t *testing.T) {
	r := newTestRouter(routerOptions{})
	rec := postCompletions(r, validBody, map[string]string{
		"X-API-Key": "cb_ffffffffffffffffffffffffffffffff",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication_failed", errorType(t, rec))
}

func TestCompletionsBearerTokenAccepted(t *testing.T) {
	r := newTestRouter(routerOptions{})
	rec := postCompletions(r, validBody, map[string]string{
		"Authorization": "Bearer " + testCredential,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompletionsOriginEnforcement(t *testing.T) {
	r := newTestRouter(routerOptions{})

	// 白名单内的来源放行，并反射到 CORS 头
	headers := authHeaders()
	headers["Origin"] = "https://app.example.com"
	rec := postCompletions(r, validBody, headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// 白名单外的来源拒绝
	headers["Origin"] = "https://evil.com"
	rec = postCompletions(r, validBody, headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "origin_not_allowed", errorType(t, rec))

	// 无 Origin 头（服务端调用）放行
	rec = postCompletions(r, validBody, authHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompletionsValidation(t *testing.T) {
	r := newTestRouter(routerOptions{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"messages":`},
		{"empty messages", `{"messages":[]}`},
		{"invalid role", `{"messages":[{"role":"robot","content":"hi"}]}`},
		{"empty content", `{"messages":[{"role":"user","content":""}]}`},
		{"last message not user", `{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`},
		{"no text part", `{"messages":[{"role":"user","content":[{"type":"image_url","image_url":{"url":"https://i.com/a.png"}}]}]}`},
		{"temperature out of range", `{"messages":[{"role":"user","content":"hi"}],"temperature":3.5}`},
		{"max_tokens out of range", `{"messages":[{"role":"user","content":"hi"}],"max_tokens":100000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postCompletions(r, tt.body, authHeaders())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_failed", errorType(t, rec))
		})
	}
}

func TestCompletionsOversizedMessage(t *testing.T) {
	r := newTestRouter(routerOptions{})
	long := strings.Repeat("a", maxMessageChars+1)
	body := `{"messages":[{"role":"user","content":"` + long + `"}]}`
	rec := postCompletions(r, body, authHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletionsNonStreaming(t *testing.T) {
	r := newTestRouter(routerOptions{})
	rec := postCompletions(r, validBody, authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "chatcmpl-test", resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "Hello there, how can I help you?", resp.Content)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
	assert.False(t, resp.Fallback)
}

// 兜底结果仍以 200 返回：模型故障不向聊天端暴露错误状态码。
func TestCompletionsFallbackStillOK(t *testing.T) {
	r := newTestRouter(routerOptions{completion: &model.ChatCompletion{
		ID:       "chatcmpl-fb",
		Model:    "gpt-4o-mini",
		Content:  "Echo is having a little trouble right now.",
		Fallback: true,
	}})
	rec := postCompletions(r, validBody, authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.NotEmpty(t, resp.Content)
}

func TestCompletionsStreaming(t *testing.T) {
	r := newTestRouter(routerOptions{completion: &model.ChatCompletion{
		ID:      "chatcmpl-s",
		Model:   "gpt-4o-mini",
		Content: "hello wide world",
	}})

	body := `{"messages":[{"role":"user","content":"hello"}],"stream":true}`
	rec := postCompletions(r, body, authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	raw := rec.Body.String()
	assert.True(t, strings.HasSuffix(raw, "data: [DONE]\n\n"))

	// 重组所有增量帧，必须还原完整回复
	var full strings.Builder
	sawStop := false
	for _, frame := range strings.Split(raw, "\n\n") {
		payload := strings.TrimPrefix(frame, "data: ")
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var ev struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		require.Len(t, ev.Choices, 1)
		if ev.Choices[0].FinishReason != nil {
			assert.Equal(t, "stop", *ev.Choices[0].FinishReason)
			sawStop = true
			continue
		}
		full.WriteString(ev.Choices[0].Delta.Content)
	}
	assert.True(t, sawStop)
	assert.Equal(t, "hello wide world", full.String())
}

// 小时配额耗尽后返回 429 并携带 Retry-After。
func TestCompletionsHourlyRateLimit(t *testing.T) {
	r := newTestRouter(routerOptions{hourLimit: 2})

	for i := 0; i < 2; i++ {
		rec := postCompletions(r, validBody, authHeaders())
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := postCompletions(r, validBody, authHeaders())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", errorType(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Window     string `json:"window"`
			RetryAfter int    `json:"retryAfter"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hourly", body.Error.Window)
	assert.Greater(t, body.Error.RetryAfter, 0)
}
