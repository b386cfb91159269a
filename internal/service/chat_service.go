package service

import (
	"context"
	"strings"
	"time"

	"echo-widget-go/internal/model"
	"echo-widget-go/pkg/events"
	"echo-widget-go/pkg/llm"
	"echo-widget-go/pkg/log"

	"github.com/google/uuid"
)

// ChatService 编排一次聊天补全：上下文增强 → 提示词组装 → 模型推理 → 用量上报。
// 与推理编排器一样，Complete 的契约是全量的，永远返回可用结果。
type ChatService interface {
	Complete(ctx context.Context, tc *model.TenantContext, req *model.ChatCompletionRequest) *model.ChatCompletion
}

type chatService struct {
	contextService   ContextService
	inferenceService InferenceService
	usageProducer    events.Producer
	defaultModel     string
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(contextService ContextService, inferenceService InferenceService, usageProducer events.Producer, defaultModel string) ChatService {
	return &chatService{
		contextService:   contextService,
		inferenceService: inferenceService,
		usageProducer:    usageProducer,
		defaultModel:     defaultModel,
	}
}

// Complete 处理一次聊天补全请求。
func (s *chatService) Complete(ctx context.Context, tc *model.TenantContext, req *model.ChatCompletionRequest) *model.ChatCompletion {
	query := lastUserText(req.Messages)

	// 1. 上下文增强（必须在模型调用前完成，增强产物进入提示词）
	promptCtx := s.contextService.Augment(ctx, tc, query)

	// 2. 组装 system 提示词与消息序列
	systemPrompt := composeSystemPrompt(tc.Config.SystemPrompt, promptCtx)
	messages := composeMessages(systemPrompt, req.Messages)

	// 3. 推理（总是返回可用文本，失败以 Fallback 标记）
	gen := s.buildGenerationParams(tc.Config, req)
	outcome := s.inferenceService.Generate(ctx, tc.Config.BotName, messages, gen)

	// 4. 统计用量并异步上报
	usage := approximateUsage(messages, outcome.Text)
	completion := &model.ChatCompletion{
		ID:       "chatcmpl-" + uuid.NewString(),
		Model:    gen.Model,
		Content:  outcome.Text,
		Usage:    usage,
		Fallback: outcome.Fallback,
	}
	s.publishUsage(tc.Tenant.TenantID, completion, req.Stream)

	return completion
}

// lastUserText 提取客户端提交的最后一条 user 消息的纯文本。
func lastUserText(messages []model.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content.PlainText()
		}
	}
	return ""
}

// composeSystemPrompt 将租户提示词与增强区块拼装为最终的 system 消息。
// 区块顺序固定：检索结果在前，搜索结果在后。
func composeSystemPrompt(base string, promptCtx *model.PromptContext) string {
	var b strings.Builder
	if base != "" {
		b.WriteString(base)
	}
	if !promptCtx.Empty() {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Use the following reference material when it is relevant:\n\n")
		if promptCtx.RetrievalSection != "" {
			b.WriteString(promptCtx.RetrievalSection)
			b.WriteString("\n")
		}
		if promptCtx.SearchSection != "" {
			b.WriteString(promptCtx.SearchSection)
		}
	}
	return b.String()
}

// composeMessages 构造发给模型的消息序列：system 在前，客户端消息原序跟随。
// 多模态内容在这里展平为纯文本。
func composeMessages(systemPrompt string, clientMessages []model.ChatMessage) []llm.Message {
	messages := make([]llm.Message, 0, len(clientMessages)+1)
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range clientMessages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content.PlainText()})
	}
	return messages
}

// buildGenerationParams 合并请求参数与租户配置，请求参数优先。
func (s *chatService) buildGenerationParams(cfg *model.WidgetConfig, req *model.ChatCompletionRequest) llm.GenerationParams {
	gen := llm.GenerationParams{Model: req.Model}
	if gen.Model == "" {
		gen.Model = cfg.ModelName
	}
	if gen.Model == "" {
		gen.Model = s.defaultModel
	}

	if req.Temperature != nil {
		gen.Temperature = req.Temperature
	} else if cfg.Temperature > 0 {
		t := cfg.Temperature
		gen.Temperature = &t
	}

	if req.MaxTokens != nil {
		gen.MaxTokens = req.MaxTokens
	} else if cfg.MaxTokens > 0 {
		m := cfg.MaxTokens
		gen.MaxTokens = &m
	}
	return gen
}

// approximateUsage 以空白分词近似统计 token 用量。
func approximateUsage(messages []llm.Message, completionText string) model.Usage {
	promptTokens := 0
	for _, m := range messages {
		promptTokens += model.ApproximateTokens(m.Content)
	}
	completionTokens := model.ApproximateTokens(completionText)
	return model.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// publishUsage 异步上报用量事件。上报失败只记录日志。
func (s *chatService) publishUsage(tenantID string, completion *model.ChatCompletion, stream bool) {
	event := events.UsageEvent{
		TenantID:         tenantID,
		Model:            completion.Model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		Fallback:         completion.Fallback,
		Stream:           stream,
		Timestamp:        time.Now(),
	}
	// 使用独立的后台上下文：即使原始请求已结束也要完成上报
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.usageProducer.PublishUsage(ctx, event); err != nil {
			log.Warnf("[Usage] 用量事件上报失败, tenant: %s, err: %v", tenantID, err)
		}
	}()
}
