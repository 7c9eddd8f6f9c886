package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"tso-admin/internal/config"
	"tso-admin/internal/metrics"
	"tso-admin/internal/model"
)

//go:generate mockgen -source=producer.go -destination=./mocks/publisher_mock.go -package=mocks Publisher

// OrderEvent — событие изменения заказа, публикуемое в топик аудита.
// Потребители (например, лента уведомлений о покупках) читают его
// независимо от админ-панели.
type OrderEvent struct {
	EventID    string       `json:"event_id"`
	Action     string       `json:"action"` // "created", "updated", "deleted"
	OrderID    string       `json:"order_id"`
	Order      *model.Order `json:"order,omitempty"` // nil для "deleted"
	OccurredAt time.Time    `json:"occurred_at"`
}

// Publisher публикует события изменения заказов.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, action, orderID string, order *model.Order)
	Close() error
}

// Producer пишет события заказов в Kafka. Публикация best-effort:
// ошибка логируется и не влияет на результат HTTP-запроса.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer создает и настраивает новый экземпляр продюсера.
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer}
}

// PublishOrderEvent отправляет событие изменения заказа.
func (p *Producer) PublishOrderEvent(ctx context.Context, action, orderID string, order *model.Order) {
	event := OrderEvent{
		EventID:    uuid.New().String(),
		Action:     action,
		OrderID:    orderID,
		Order:      order,
		OccurredAt: time.Now(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		log.Printf("Ошибка сериализации события %s для заказа %s: %v", action, orderID, err)
		metrics.OrderEventsPublished.WithLabelValues("error").Inc()
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: value,
	}); err != nil {
		log.Printf("Ошибка публикации события %s для заказа %s: %v", action, orderID, err)
		metrics.OrderEventsPublished.WithLabelValues("error").Inc()
		return
	}

	metrics.OrderEventsPublished.WithLabelValues("success").Inc()
}

// Close закрывает Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
