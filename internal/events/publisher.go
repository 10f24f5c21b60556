// Package events 定义生命周期事件发布
// 下游阈值引擎靠这些事件感知定义的创建/变更/删除
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-alarm-rules/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// 事件类型
const (
	TypeDefinitionCreated = "alarm-definition-created"
	TypeDefinitionUpdated = "alarm-definition-updated"
	TypeDefinitionDeleted = "alarm-definition-deleted"
)

// DefinitionEvent 定义生命周期事件载荷
type DefinitionEvent struct {
	Type                 string    `json:"type"`
	TenantID             string    `json:"tenant_id"`
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Severity             string    `json:"severity"`
	NormalizedExpression string    `json:"normalized_expression"`
	MatchBy              []string  `json:"match_by"`
	Timestamp            time.Time `json:"timestamp"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event *DefinitionEvent) error
	Close() error
}

// NewDefinitionEvent 从定义构造事件
func NewDefinitionEvent(eventType string, def *models.AlarmDefinition) *DefinitionEvent {
	return &DefinitionEvent{
		Type:                 eventType,
		TenantID:             def.TenantID,
		ID:                   def.ID,
		Name:                 def.Name,
		Severity:             string(def.Severity),
		NormalizedExpression: def.NormalizedExpression,
		MatchBy:              def.MatchBy,
		Timestamp:            time.Now().UTC(),
	}
}

// KafkaPublisher Kafka 实现（按定义 id 分区，保证单定义事件有序）
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 按 key（定义 id）分区
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}, nil
}

// Publish 发布事件
func (p *KafkaPublisher) Publish(ctx context.Context, event *DefinitionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize definition event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish definition event: %w", err)
	}

	p.logger.Debug("Published definition event",
		zap.String("type", event.Type),
		zap.String("tenant_id", event.TenantID),
		zap.String("id", event.ID),
	)
	return nil
}

// Close 关闭底层 writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher 空实现（测试或未启用事件发布的部署）
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, _ *DefinitionEvent) error { return nil }
func (NopPublisher) Close() error                                        { return nil }
