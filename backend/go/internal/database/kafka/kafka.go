package kafka

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"
)

// KafkaClient 持有 Kafka 管理连接和配置。
type KafkaClient struct {
	Conn   *kafka.Conn
	Config *config.KafkaConfig
}

var (
	mu     sync.Mutex
	client *KafkaClient
)

// GetClient 返回共享的 KafkaClient。首次调用连接第一个 broker，
// 审计主题不存在时创建它；失败不缓存。
func GetClient(ctx context.Context, cfg *config.KafkaConfig, log *logger.Logger) (*KafkaClient, error) {
	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		return client, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("未配置 Kafka brokers")
	}
	if cfg.AuditTopic == "" {
		return nil, errors.New("未配置 Kafka 审计主题")
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka 初始化连接失败: %w", err)
	}
	if err := ensureTopic(conn, cfg.AuditTopic, log); err != nil {
		conn.Close()
		return nil, err
	}

	log.WithField("brokers", cfg.Brokers).WithField("topic", cfg.AuditTopic).Info("成功初始化 Kafka 客户端")
	client = &KafkaClient{Conn: conn, Config: cfg}
	return client, nil
}

func ensureTopic(conn *kafka.Conn, topic string, log *logger.Logger) error {
	partitions, err := conn.ReadPartitions(topic)
	if err == nil && len(partitions) > 0 {
		return nil
	}
	log.WithField("topic", topic).Info("审计主题不存在，准备创建")
	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	return nil
}

// Close 关闭管理连接，之后的 GetClient 会重新连接。
func (c *KafkaClient) Close() error {
	mu.Lock()
	if client == c {
		client = nil
	}
	mu.Unlock()
	if c == nil || c.Conn == nil {
		return nil
	}
	if err := c.Conn.Close(); err != nil {
		return fmt.Errorf("关闭 Kafka 管理连接失败: %w", err)
	}
	return nil
}

// HealthCheck 通过查询 controller 确认集群可达。
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil {
		return errors.New("kafka 客户端未初始化，无法进行健康检查")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.ControllerAddress()
	return err
}

// ControllerAddress 返回 controller 的 host:port。
func (c *KafkaClient) ControllerAddress() (string, error) {
	if c == nil || c.Conn == nil {
		return "", errors.New("kafka 客户端未初始化")
	}
	controller, err := c.Conn.Controller()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)), nil
}
