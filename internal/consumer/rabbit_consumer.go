package consumer

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	sharedInfraEvents "github.com/davicafu/tradeagent/internal/shared/infra/events"
)

// deliveryCountHeader lleva cuántas veces se ha entregado el mensaje. Lo
// incrementamos nosotros al reencolar porque un Nack con requeue no toca
// las cabeceras originales.
const deliveryCountHeader = "x-delivery-count"

// MessageHandler procesa un mensaje ya extraído del broker. Error = reencolar.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte) error
}

// RabbitConsumer escucha la cola de trades, delega en el handler y gestiona
// ack/nack. Tras maxDeliveries entregas el mensaje se desvía a la cola de
// dead letter y se confirma, para que un mensaje venenoso no bloquee la cola.
type RabbitConsumer struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	queue         string
	dlqExchange   string
	dlqRoutingKey string
	maxDeliveries int64
	handler       MessageHandler
	log           *zap.Logger
}

// RabbitConsumerConfig agrupa la topología de consumo.
type RabbitConsumerConfig struct {
	Rabbit        sharedInfraEvents.RabbitConfig
	DLQExchange   string
	DLQQueue      string
	MaxDeliveries int64
}

func NewRabbitConsumer(cfg RabbitConsumerConfig, handler MessageHandler, log *zap.Logger) (*RabbitConsumer, error) {
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declaramos la misma topología que el publicador más la rama DLQ.
	// Todo es idempotente: arranca igual el primero que llegue.
	if err := ch.ExchangeDeclare(cfg.Rabbit.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Rabbit.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.DLQExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare dlq queue: %w", err)
	}
	if err := ch.QueueBind(cfg.DLQQueue, "", cfg.DLQExchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind dlq queue: %w", err)
	}

	maxDeliveries := cfg.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}

	return &RabbitConsumer{
		conn:          conn,
		ch:            ch,
		queue:         cfg.Rabbit.Queue,
		dlqExchange:   cfg.DLQExchange,
		maxDeliveries: maxDeliveries,
		handler:       handler,
		log:           log,
	}, nil
}

// Start abre el stream de entregas y consume hasta que el contexto se cancele.
// Es bloqueante, el llamador decide si lo lanza en una goroutine.
func (c *RabbitConsumer) Start(ctx context.Context) error {
	deliveries, err := c.ch.Consume(
		c.queue,
		"",    // consumer tag autogenerado
		false, // autoAck: confirmamos manualmente
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.log.Info("🎧 Iniciando consumidor de RabbitMQ...", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("🛑 Consumidor de RabbitMQ detenido", zap.String("queue", c.queue))
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *RabbitConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	count := deliveryCount(d)

	err := c.handler.HandleMessage(ctx, d.RoutingKey, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Warn("⚠️ No se pudo confirmar el mensaje", zap.Error(ackErr))
		}
		return
	}

	if count >= c.maxDeliveries {
		// Agotados los reintentos: a la cola de dead letter y confirmamos
		// el original para desbloquear la cola.
		c.log.Error("☠️ Mensaje agotó sus entregas, desviando a DLQ",
			zap.String("routing_key", d.RoutingKey),
			zap.Int64("deliveries", count),
			zap.Error(err),
		)
		if dlqErr := c.publishToDLQ(ctx, d, count, err); dlqErr != nil {
			// Si ni la DLQ acepta el mensaje, lo reencolamos antes que perderlo.
			c.log.Error("⚠️ Error publicando en la DLQ, reencolando", zap.Error(dlqErr))
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	c.log.Warn("🔁 Error procesando mensaje, reencolando",
		zap.String("routing_key", d.RoutingKey),
		zap.Int64("deliveries", count),
		zap.Error(err),
	)
	if dlqErr := c.republish(ctx, d, count+1); dlqErr != nil {
		// No pudimos republicar con el contador incrementado; reencolamos
		// el original tal cual.
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// republish reinyecta el mensaje en su cola con el contador de entregas
// incrementado en las cabeceras.
func (c *RabbitConsumer) republish(ctx context.Context, d amqp.Delivery, count int64) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[deliveryCountHeader] = count

	return c.ch.PublishWithContext(ctx,
		d.Exchange,
		d.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   d.ContentType,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: d.CorrelationId,
			Timestamp:     time.Now().UTC(),
			Headers:       headers,
			Body:          d.Body,
		},
	)
}

func (c *RabbitConsumer) publishToDLQ(ctx context.Context, d amqp.Delivery, count int64, cause error) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[deliveryCountHeader] = count
	headers["x-death-reason"] = cause.Error()
	headers["x-original-routing-key"] = d.RoutingKey

	return c.ch.PublishWithContext(ctx,
		c.dlqExchange,
		"", // fanout, la routing key es irrelevante
		false,
		false,
		amqp.Publishing{
			ContentType:   d.ContentType,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: d.CorrelationId,
			Timestamp:     time.Now().UTC(),
			Headers:       headers,
			Body:          d.Body,
		},
	)
}

// Close libera canal y conexión.
func (c *RabbitConsumer) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// deliveryCount lee el contador de entregas de las cabeceras. La primera
// entrega no lleva cabecera y cuenta como 1.
func deliveryCount(d amqp.Delivery) int64 {
	if d.Headers == nil {
		return 1
	}
	switch v := d.Headers[deliveryCountHeader].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 1
}
