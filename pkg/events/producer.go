// Package events 提供了用量事件上报的功能。
// 事件经 Kafka 进入计费/观测管道，发布失败只记录日志，从不影响请求链路。
package events

import (
	"context"
	"encoding/json"
	"time"

	"echo-widget-go/internal/config"
	"echo-widget-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// UsageEvent 是一次聊天补全产生的用量记录。
// Fallback 标记该次回复是否为兜底替换，供观测侧统计降级率。
type UsageEvent struct {
	TenantID         string    `json:"tenant_id"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Fallback         bool      `json:"fallback"`
	Stream           bool      `json:"stream"`
	Timestamp        time.Time `json:"timestamp"`
}

// Producer 定义了用量事件的发布接口。
type Producer interface {
	PublishUsage(ctx context.Context, event UsageEvent) error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer 创建一个新的 Kafka 用量事件生产者。
func NewKafkaProducer(cfg config.KafkaConfig) Producer {
	return &kafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishUsage 发布一条用量事件，以租户 ID 作为分区键。
func (p *kafkaProducer) PublishUsage(ctx context.Context, event UsageEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TenantID),
		Value: eventBytes,
	})
}

// noopProducer 在未配置 Kafka 时使用，只在 debug 级别记录事件。
type noopProducer struct{}

// NewNoopProducer 创建一个不上报的空实现。
func NewNoopProducer() Producer {
	return noopProducer{}
}

func (noopProducer) PublishUsage(_ context.Context, event UsageEvent) error {
	log.Debugf("[UsageEvents] 未配置 Kafka, 丢弃用量事件: tenant=%s tokens=%d",
		event.TenantID, event.PromptTokens+event.CompletionTokens)
	return nil
}
