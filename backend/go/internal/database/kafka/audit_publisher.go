package kafka

import (
	"Jarvis_RAG/backend/go/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 *kafka.Writer 中被用到的部分，测试时可以替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditPublisher 封装了向 Kafka 发送问答审计事件的逻辑。
type AuditPublisher struct {
	writer messageWriter
}

// NewAuditPublisher 创建一个新的 AuditPublisher 实例。
func NewAuditPublisher(client *KafkaClient) *AuditPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(client.Config.Brokers...),
		Topic:        client.Config.AuditTopic,
		Balancer:     &kafka.Hash{}, // 同一会话落在同一分区，保持顺序
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return &AuditPublisher{writer: writer}
}

// Publish 将 AuditEvent 序列化为 JSON 并发送到 Kafka。消息键为会话 ID，没有会话时使用 trace ID。
func (p *AuditPublisher) Publish(ctx context.Context, event *models.AuditEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := event.SessionID
	if key == "" {
		key = event.TraceID
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write audit event to kafka: %w", err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *AuditPublisher) Close() error {
	return p.writer.Close()
}
