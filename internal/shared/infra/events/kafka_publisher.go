package events

import (
	"context"

	sharedBus "github.com/davicafu/tradeagent/internal/shared/infra/platform/bus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher publica mensajes del outbox en el topic del writer.
// La routing key viaja como key de partición y como header, para que el
// consumidor pueda despachar sin abrir el payload.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, payload []byte, routingKey string) error {
	msg := kafka.Message{
		Key:   []byte(routingKey),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(routingKey)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("⚠️ Error publicando en Kafka",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}

	p.log.Debug("✅ Mensaje publicado en Kafka", zap.String("routing_key", routingKey))
	return nil
}

// Verificación estática
var _ sharedBus.MessagePublisher = (*KafkaPublisher)(nil)
