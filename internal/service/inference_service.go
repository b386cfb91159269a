package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"echo-widget-go/internal/model"
	"echo-widget-go/pkg/llm"
	"echo-widget-go/pkg/log"
)

// 连贯性过滤的阈值。低于 minCoherentLen 或超过 maxCoherentLen 的输出
// 视为不可信；重复度检查只对足够长的输出生效，避免误杀正常短回答。
const (
	minCoherentLen      = 10
	maxCoherentLen      = 50000
	repetitionMinWords  = 10
	repetitionThreshold = 0.3
)

// 兜底回复模板，%s 处填充租户的机器人名称。推理失败或输出不连贯时
// 从中均匀随机选取一条，保证聊天端永远拿到可用的回复。
var fallbackTemplates = []string{
	"%s is having a little trouble right now. Could you try asking again in a moment?",
	"Sorry about that — %s couldn't put together a good answer. Mind rephrasing your question?",
	"%s hit a snag while thinking that one over. Please try again shortly.",
	"Hmm, %s couldn't come up with a solid answer just now. Give it another try in a bit?",
}

// InferenceService 是模型推理的编排器。
// 对外契约是全量的：无论上游如何失败，Generate 总是返回一个可用的文本结果，
// 失败只通过结果中的 Fallback 标记向观测侧暴露。
type InferenceService interface {
	Generate(ctx context.Context, botName string, messages []llm.Message, gen llm.GenerationParams) *model.InferenceOutcome
}

type inferenceService struct {
	client      llm.Client
	timeout     time.Duration
	maxAttempts int
	baseBackoff time.Duration
}

// NewInferenceService 创建一个新的 InferenceService 实例。
func NewInferenceService(client llm.Client, timeoutSeconds, maxAttempts, backoffSeconds int) InferenceService {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if backoffSeconds <= 0 {
		backoffSeconds = 1
	}
	return &inferenceService{
		client:      client,
		timeout:     time.Duration(timeoutSeconds) * time.Second,
		maxAttempts: maxAttempts,
		baseBackoff: time.Duration(backoffSeconds) * time.Second,
	}
}

// Generate 执行带超时与有限重试的模型调用，并对结果做连贯性检查。
// 状态机：PENDING → (ATTEMPT 1..N) → SUCCESS_COHERENT
// | SUCCESS_INCOHERENT→FALLBACK | EXHAUSTED→FALLBACK。
func (s *inferenceService) Generate(ctx context.Context, botName string, messages []llm.Message, gen llm.GenerationParams) *model.InferenceOutcome {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		text, err := s.client.ChatCompletion(attemptCtx, messages, gen)
		cancel()

		if err == nil {
			if reason := incoherenceReason(text); reason != "" {
				log.Warnw("模型输出未通过连贯性检查，替换为兜底回复",
					"reason", reason, "outputLen", len(text))
				return fallbackOutcome(botName, "incoherent:"+reason)
			}
			return &model.InferenceOutcome{Text: text}
		}

		lastErr = err
		log.Warnf("[Inference] 第 %d 次模型调用失败: %v", attempt, err)

		if attempt < s.maxAttempts {
			delay := s.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				// 请求已取消，不再重试
				return fallbackOutcome(botName, "canceled")
			}
		}
	}

	log.Error("模型调用重试耗尽，替换为兜底回复", lastErr)
	return fallbackOutcome(botName, "exhausted")
}

// incoherenceReason 对模型输出做启发式检查，返回空串表示通过。
// 拦截：空输出、过短、过长、字面量 [error]、包含 undefined/null、
// 以及单一词占比过高的退化重复。
func incoherenceReason(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "empty"
	}
	if len(trimmed) < minCoherentLen {
		return "too_short"
	}
	if len(trimmed) > maxCoherentLen {
		return "too_long"
	}
	if strings.EqualFold(trimmed, "[error]") {
		return "error_sentinel"
	}
	lowered := strings.ToLower(trimmed)
	if strings.Contains(lowered, "undefined") || strings.Contains(lowered, "null") {
		return "literal_garbage"
	}

	words := strings.Fields(lowered)
	if len(words) >= repetitionMinWords {
		counts := make(map[string]int, len(words))
		maxCount := 0
		for _, w := range words {
			counts[w]++
			if counts[w] > maxCount {
				maxCount = counts[w]
			}
		}
		if float64(maxCount) > repetitionThreshold*float64(len(words)) {
			return "degenerate_repetition"
		}
	}
	return ""
}

func fallbackOutcome(botName, reason string) *model.InferenceOutcome {
	if botName == "" {
		botName = "The assistant"
	}
	template := fallbackTemplates[rand.Intn(len(fallbackTemplates))]
	return &model.InferenceOutcome{
		Text:           fmt.Sprintf(template, botName),
		Fallback:       true,
		FallbackReason: reason,
	}
}
