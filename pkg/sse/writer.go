// Package sse 实现了与挂件前端约定的 Server-Sent-Events 流式协议。
// 线上挂件依赖逐字节精确的帧格式（data: <json>\n\n 与终止哨兵 data: [DONE]\n\n），
// 序列化逻辑集中在本包内，不向内部数据结构泄漏。
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode"
)

// ChunkDelta 是单帧中的增量内容。
type ChunkDelta struct {
	Content string `json:"content,omitempty"`
}

// ChunkChoice 对应 choices 数组的一项。
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkEvent 是一帧的 JSON 负载。
type ChunkEvent struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// Writer 将事件帧写入 HTTP 响应并立即刷出。
// 每一帧都是原子写入：要么完整发出，要么不发。
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter 创建一个 SSE Writer 并设置流式响应头。
// 底层 ResponseWriter 必须支持增量刷出，否则流式首字延迟无从谈起。
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent 序列化负载并作为一帧写出，随后立即 Flush。
func (s *Writer) WriteEvent(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteDone 写出终止哨兵帧。
func (s *Writer) WriteDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SplitChunks 将文本切分为流式分块，保持严格的从左到右顺序。
// 相邻空白归入后面的词，拼接所有分块可精确还原原文。
func SplitChunks(text string) []string {
	runes := []rune(text)
	var chunks []string
	i := 0
	for i < len(runes) {
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		k := j
		for k < len(runes) && !unicode.IsSpace(runes[k]) {
			k++
		}
		if k == j {
			// 只剩尾部空白，作为最后一个分块发出
			chunks = append(chunks, string(runes[i:]))
			break
		}
		chunks = append(chunks, string(runes[i:k]))
		i = k
	}
	return chunks
}

// StreamText 将完整文本按词分块写出，最后追加 finish 帧与 [DONE] 哨兵。
// 客户端断开（ctx 取消）时立即停止生产，不再入队任何帧。
func (s *Writer) StreamText(ctx context.Context, id, model, text string) error {
	chunks := SplitChunks(text)
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		event := ChunkEvent{
			ID:     id,
			Object: "chat.completion.chunk",
			Model:  model,
			Choices: []ChunkChoice{
				{Index: 0, Delta: ChunkDelta{Content: chunk}},
			},
		}
		if err := s.WriteEvent(event); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	stop := "stop"
	finish := ChunkEvent{
		ID:     id,
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []ChunkChoice{
			{Index: 0, Delta: ChunkDelta{}, FinishReason: &stop},
		},
	}
	if err := s.WriteEvent(finish); err != nil {
		return err
	}
	return s.WriteDone()
}
