package service

import (
	"context"
	"fmt"
	"strings"

	"echo-widget-go/internal/model"
	"echo-widget-go/pkg/websearch"

	"golang.org/x/sync/errgroup"
)

// 单条增强内容的最大长度，避免把超长片段整个塞进提示词。
const maxSnippetLen = 1000

// ContextService 编排两个相互独立的增强器。
// 两者各自带超时、各自可失败放行，因此并发执行，整体耗时取两者较慢的一个。
type ContextService interface {
	Augment(ctx context.Context, tc *model.TenantContext, query string) *model.PromptContext
}

type contextService struct {
	retrieval RetrievalService
	webSearch WebSearchService
}

// NewContextService 创建一个新的 ContextService 实例。
func NewContextService(retrieval RetrievalService, webSearch WebSearchService) ContextService {
	return &contextService{
		retrieval: retrieval,
		webSearch: webSearch,
	}
}

// Augment 并发执行检索增强与搜索增强，渲染为带标号的提示词区块。
// 检索增强只对启用了知识库的租户触发。
func (s *contextService) Augment(ctx context.Context, tc *model.TenantContext, query string) *model.PromptContext {
	var (
		chunks  []model.RetrievedChunk
		results []websearch.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	if tc.Tenant.RetrievalEnabled {
		g.Go(func() error {
			chunks = s.retrieval.FetchContext(gctx, tc.Tenant.TenantID, query)
			return nil
		})
	}
	g.Go(func() error {
		results = s.webSearch.FetchContext(gctx, query)
		return nil
	})
	// 两个增强器都不返回错误（失败放行），Wait 只用于汇合
	_ = g.Wait()

	return &model.PromptContext{
		RetrievalSection: renderRetrievalSection(chunks),
		SearchSection:    renderSearchSection(results),
	}
}

// renderRetrievalSection 将检索命中渲染为 [序号] 标题 / 来源 / 正文 的区块。
func renderRetrievalSection(chunks []model.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("### Knowledge base\n")
	for i, c := range chunks {
		title := c.Title
		if title == "" {
			title = "untitled"
		}
		b.WriteString(fmt.Sprintf("[%d] %s", i+1, title))
		if c.Source != "" {
			b.WriteString(fmt.Sprintf(" (%s)", c.Source))
		}
		b.WriteString("\n")
		b.WriteString(truncateSnippet(c.Content))
		b.WriteString("\n")
	}
	return b.String()
}

// renderSearchSection 将搜索结果渲染为 [序号] 标题 / 链接 / 摘要 的区块。
func renderSearchSection(results []websearch.Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("### Web results\n")
	for i, r := range results {
		b.WriteString(fmt.Sprintf("[%d] %s", i+1, r.Title))
		if r.URL != "" {
			b.WriteString(fmt.Sprintf(" (%s", r.URL))
			if r.PublishedDate != "" {
				b.WriteString(", " + r.PublishedDate)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
		b.WriteString(truncateSnippet(r.Snippet))
		b.WriteString("\n")
	}
	return b.String()
}

func truncateSnippet(text string) string {
	if len(text) > maxSnippetLen {
		return text[:maxSnippetLen] + "…"
	}
	return text
}
