package events

import (
	"context"
	"fmt"
	"time"

	sharedBus "github.com/davicafu/tradeagent/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitConfig agrupa la topología del broker.
type RabbitConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// RabbitPublisher publica mensajes del outbox en un exchange directo de
// RabbitMQ. La declaración de la topología es idempotente.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	log      *zap.Logger
}

func NewRabbitPublisher(cfg RabbitConfig, log *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &RabbitPublisher{
		conn:     conn,
		ch:       ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		log:      log,
	}, nil
}

// Publish liga la cola a la routing key (idempotente) y envía el mensaje.
// El mensaje es visible para los consumidores en cuanto la llamada devuelve
// éxito: no hay confirmación en dos fases, el contrato es at-least-once.
func (p *RabbitPublisher) Publish(ctx context.Context, payload []byte, routingKey string) error {
	if err := p.ch.QueueBind(p.queue, routingKey, p.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	err := p.ch.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: uuid.NewString(),
			Timestamp:     time.Now().UTC(),
			Body:          payload,
		},
	)
	if err != nil {
		p.log.Error("⚠️ Error publicando en RabbitMQ",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}

	p.log.Debug("✅ Mensaje publicado en RabbitMQ", zap.String("routing_key", routingKey))
	return nil
}

// Close libera canal y conexión.
func (p *RabbitPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Verificación estática
var _ sharedBus.MessagePublisher = (*RabbitPublisher)(nil)
