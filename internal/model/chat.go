package model

import (
	"encoding/json"
	"strings"
)

// ContentPart 是多模态消息内容中的一个片段。
type ContentPart struct {
	Type     string `json:"type"` // "text" 或 "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// MessageContent 兼容两种上游形态：纯字符串，或有序的多模态片段列表。
// 解析发生在边界处，内部只保留规整后的形态。
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// UnmarshalJSON 先尝试按字符串解析，失败则按片段列表解析。
func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Text = s
		m.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	m.Parts = parts
	return nil
}

// MarshalJSON 按原始形态序列化。
func (m MessageContent) MarshalJSON() ([]byte, error) {
	if m.Parts != nil {
		return json.Marshal(m.Parts)
	}
	return json.Marshal(m.Text)
}

// PlainText 提取内容的纯文本表示，多模态内容拼接所有 text 片段。
func (m *MessageContent) PlainText() string {
	if m.Parts == nil {
		return m.Text
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HasTextPart 判断多模态内容是否至少包含一个文本片段。
// 纯字符串内容恒为 true。
func (m *MessageContent) HasTextPart() bool {
	if m.Parts == nil {
		return true
	}
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			return true
		}
	}
	return false
}

// ChatMessage 代表一条对话消息。
type ChatMessage struct {
	Role    string         `json:"role"` // system / user / assistant
	Content MessageContent `json:"content"`
}

// ChatCompletionRequest 是聊天接口的请求体。
type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Model       string        `json:"model,omitempty"`
}

// Usage 是 token 用量统计。计数按空白分词近似，并非真实模型 token 数。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ApproximateTokens 以空白分词近似统计 token 数。
func ApproximateTokens(text string) int {
	return len(strings.Fields(text))
}

// InferenceOutcome 是推理编排器的产物。编排器的契约是全量的：
// Text 永远非空，失败只通过 Fallback 标记与原因暴露。
type InferenceOutcome struct {
	Text           string
	Fallback       bool
	FallbackReason string
}

// ChatCompletion 是一次聊天请求的最终结果。
// Fallback 标记该结果是否为兜底回复（推理失败或输出不连贯时替换）。
type ChatCompletion struct {
	ID       string `json:"id"`
	Model    string `json:"model"`
	Content  string `json:"content"`
	Usage    Usage  `json:"usage"`
	Fallback bool   `json:"fallback,omitempty"`
}

// ChatCompletionResponse 是非流式模式下返回的 JSON 结构。
type ChatCompletionResponse struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Model    string `json:"model"`
	Content  string `json:"content"`
	Usage    Usage  `json:"usage"`
	Fallback bool   `json:"fallback,omitempty"`
}
