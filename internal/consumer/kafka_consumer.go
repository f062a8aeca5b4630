package consumer

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConsumer es la variante del consumidor para despliegues con Kafka.
// El offset hace de "ack": solo avanzamos tras procesar con éxito, y un
// mensaje que falla demasiadas veces se salta con un log de dead letter
// (en Kafka el propio topic es el archivo, no hay cola aparte).
type KafkaConsumer struct {
	reader        *kafka.Reader
	handler       MessageHandler
	maxDeliveries int64
	log           *zap.Logger
}

func NewKafkaConsumer(reader *kafka.Reader, handler MessageHandler, maxDeliveries int64, log *zap.Logger) *KafkaConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &KafkaConsumer{
		reader:        reader,
		handler:       handler,
		maxDeliveries: maxDeliveries,
		log:           log,
	}
}

// Start consume mensajes hasta que el contexto se cancele. Es bloqueante.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.log.Info("🎧 Iniciando consumidor de Kafka...",
		zap.String("topic", c.reader.Config().Topic),
		zap.Strings("brokers", c.reader.Config().Brokers),
	)

	for {
		// FetchMessage es bloqueante y no confirma el offset.
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("🛑 Consumidor de Kafka detenido", zap.String("topic", c.reader.Config().Topic))
				return nil
			}
			c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
			continue
		}

		c.processWithRetries(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warn("⚠️ No se pudo confirmar el offset", zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) processWithRetries(ctx context.Context, msg kafka.Message) {
	for attempt := int64(1); attempt <= c.maxDeliveries; attempt++ {
		if err := c.handler.HandleMessage(ctx, string(msg.Key), msg.Value); err == nil {
			return
		} else if attempt == c.maxDeliveries {
			c.log.Error("☠️ Mensaje agotó sus entregas, descartando",
				zap.String("topic", msg.Topic),
				zap.Int64("partition_offset", msg.Offset),
				zap.Int64("deliveries", attempt),
				zap.Error(err),
			)
		}
	}
}

// Close cierra el reader subyacente.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
