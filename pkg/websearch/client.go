// Package websearch provides a client for a web search provider.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"echo-widget-go/internal/config"
)

// Result 是一条搜索结果。
type Result struct {
	Title         string
	URL           string
	Snippet       string
	PublishedDate string
}

// Client defines the interface for a web search client.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

type httpClient struct {
	cfg    config.SearchConfig
	client *http.Client
}

// NewClient creates a new web search client.
func NewClient(cfg config.SearchConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic"`
}

// Search calls the search provider and returns up to maxResults results.
func (c *httpClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	reqBody := searchRequest{Query: query, Num: maxResults}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/search", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call search api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search api returned non-200 status: %s", resp.Status)
	}

	// 在边界处立即解析为窄类型
	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(searchResp.Organic))
	for _, item := range searchResp.Organic {
		if item.Title == "" && item.Snippet == "" {
			continue
		}
		results = append(results, Result{
			Title:         item.Title,
			URL:           item.Link,
			Snippet:       item.Snippet,
			PublishedDate: item.Date,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
