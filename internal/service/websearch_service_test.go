package service

import (
	"context"
	"errors"
	"testing"

	"echo-widget-go/pkg/websearch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSearchClient struct {
	results []websearch.Result
	errs    []error
	calls   int
}

func (c *scriptedSearchClient) Search(_ context.Context, _ string, _ int) ([]websearch.Result, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return c.results, nil
}

func TestDefaultSearchPolicy(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"what's the latest iPhone price", true},
		{"Weather in Berlin today", true},
		{"what happened in 2024", true},
		{"how do I reset my password", false},
		{"tell me about your return policy", false},
		{"room 1204 on the second floor", false}, // 四位数字但不是年份
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultSearchPolicy(tt.query), "query %q", tt.query)
	}
}

func TestFetchContextSkipsWhenDisabled(t *testing.T) {
	client := &scriptedSearchClient{results: []websearch.Result{{Title: "hit"}}}
	svc := NewWebSearchService(client, DefaultSearchPolicy, false, 3, 1, 2, 1)

	assert.Nil(t, svc.FetchContext(context.Background(), "latest news"))
	assert.Zero(t, client.calls)
}

func TestFetchContextSkipsWhenPolicyRejects(t *testing.T) {
	client := &scriptedSearchClient{results: []websearch.Result{{Title: "hit"}}}
	svc := NewWebSearchService(client, DefaultSearchPolicy, true, 3, 1, 2, 1)

	assert.Nil(t, svc.FetchContext(context.Background(), "how do refunds work"))
	assert.Zero(t, client.calls)
}

func TestFetchContextReturnsResults(t *testing.T) {
	client := &scriptedSearchClient{results: []websearch.Result{
		{Title: "a", URL: "https://a.com", Snippet: "sa"},
		{Title: "b", URL: "https://b.com", Snippet: "sb"},
	}}
	svc := NewWebSearchService(client, DefaultSearchPolicy, true, 3, 1, 2, 1)

	results := svc.FetchContext(context.Background(), "latest release notes")
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Title)
	assert.Equal(t, 1, client.calls)
}

func TestFetchContextRetriesThenSucceeds(t *testing.T) {
	client := &scriptedSearchClient{
		results: []websearch.Result{{Title: "hit", Snippet: "s"}},
		errs:    []error{errors.New("429 too many requests"), nil},
	}
	svc := NewWebSearchService(client, DefaultSearchPolicy, true, 3, 1, 2, 1)

	results := svc.FetchContext(context.Background(), "today's weather")
	require.Len(t, results, 1)
	assert.Equal(t, 2, client.calls)
}

// 重试耗尽后返回空：搜索增强失败不阻断主流程。
func TestFetchContextFailsOpenWhenExhausted(t *testing.T) {
	client := &scriptedSearchClient{
		errs: []error{errors.New("down"), errors.New("down")},
	}
	svc := NewWebSearchService(client, DefaultSearchPolicy, true, 3, 1, 2, 1)

	assert.Nil(t, svc.FetchContext(context.Background(), "latest score"))
	assert.Equal(t, 2, client.calls)
}
