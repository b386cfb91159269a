package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"echo-widget-go/pkg/log"
	"echo-widget-go/pkg/websearch"
)

// SearchPolicy 决定一个用户问题是否值得触发 Web 搜索。
// 触发条件是产品策略而非正确性约束，因此以可插拔函数的形式注入。
type SearchPolicy func(query string) bool

// 默认启发式：问题暗示需要时效性或外部信息时触发。
var (
	searchKeywords = []string{
		"today", "latest", "news", "current", "recent", "now",
		"price", "weather", "stock", "score", "release", "update",
	}
	yearPattern = regexp.MustCompile(`\b20\d{2}\b`)
)

// DefaultSearchPolicy 是默认的触发策略。
func DefaultSearchPolicy(query string) bool {
	lowered := strings.ToLower(query)
	for _, kw := range searchKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return yearPattern.MatchString(lowered)
}

// WebSearchService 定义了 Web 搜索增强的接口。
// 与检索增强一样是尽力而为：重试耗尽后返回空结果放行。
type WebSearchService interface {
	FetchContext(ctx context.Context, query string) []websearch.Result
}

type webSearchService struct {
	client      websearch.Client
	policy      SearchPolicy
	enabled     bool
	maxResults  int
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

// NewWebSearchService 创建一个新的 WebSearchService 实例。
// enabled 为 false（未配置搜索服务凭证）时所有调用直接返回空。
func NewWebSearchService(client websearch.Client, policy SearchPolicy, enabled bool, maxResults, timeoutSeconds, maxAttempts, backoffSeconds int) WebSearchService {
	if policy == nil {
		policy = DefaultSearchPolicy
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if backoffSeconds <= 0 {
		backoffSeconds = 1
	}
	return &webSearchService{
		client:      client,
		policy:      policy,
		enabled:     enabled,
		maxResults:  maxResults,
		timeout:     time.Duration(timeoutSeconds) * time.Second,
		maxAttempts: maxAttempts,
		backoff:     time.Duration(backoffSeconds) * time.Second,
	}
}

// FetchContext 在策略允许时调用搜索服务，带独立超时与有限重试。
func (s *webSearchService) FetchContext(ctx context.Context, query string) []websearch.Result {
	if !s.enabled || !s.policy(query) {
		return nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		results, err := s.client.Search(attemptCtx, query, s.maxResults)
		cancel()
		if err == nil {
			return results
		}
		log.Warnf("[WebSearch] 第 %d 次搜索失败: %v", attempt, err)

		if attempt < s.maxAttempts {
			// 指数退避，外层请求取消时立即停止等待
			delay := s.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}
