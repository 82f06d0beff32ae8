package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/finsecure/ledger-core/internal/app/core/domain"
	"github.com/finsecure/ledger-core/internal/app/core/usecase"
	"github.com/finsecure/ledger-core/pkg/rabbitmq"
)

// Sink 把通知發佈到 RabbitMQ queue 的 NotificationSink 實作
// 實際寄送（email/SMS）由下游消費者服務負責
type Sink struct {
	client *rabbitmq.Client
	queue  string
}

// NewSink 建立 AMQP 通知下游 宣告 queue 失敗視為致命錯誤
func NewSink(client *rabbitmq.Client, queue string) (*Sink, error) {
	if err := client.DeclareQueue(queue); err != nil {
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}
	return &Sink{client: client, queue: queue}, nil
}

// Send 將通知序列化為 JSON 後發佈
func (s *Sink) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.queue, body); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

var _ usecase.NotificationSink = (*Sink)(nil)
