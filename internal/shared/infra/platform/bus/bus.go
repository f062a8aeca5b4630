package bus

import "context"

// MessagePublisher publica un payload ya serializado con su routing key.
// Sin estado entre llamadas; el error de transporte se propaga siempre.
type MessagePublisher interface {
	Publish(ctx context.Context, payload []byte, routingKey string) error
}
