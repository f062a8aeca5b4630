package mongodb

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OutboxRepoMongoDB implementa la cara de lectura/actualización del outbox
// sobre una colección de MongoDB, para despliegues donde el dispatcher corre
// contra un almacén de documentos.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	outboxColl := client.Database(dbName).Collection("outbox")
	return &OutboxRepoMongoDB{outboxColl: outboxColl}
}

// mongoOutboxMessage es un helper para mapear los documentos a un struct.
type mongoOutboxMessage struct {
	ID          uuid.UUID  `bson:"_id"`
	OccurredAt  time.Time  `bson:"occurredAt"`
	Type        string     `bson:"type"`
	Payload     string     `bson:"payload"`
	Status      string     `bson:"status"`
	Attempts    int        `bson:"attempts"`
	ProcessedAt *time.Time `bson:"processedAt,omitempty"`
	Error       *string    `bson:"error,omitempty"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

func (r *OutboxRepoMongoDB) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	return r.fetchByStatus(ctx, sharedDomain.OutboxPending, limit)
}

func (r *OutboxRepoMongoDB) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	return r.fetchByStatus(ctx, sharedDomain.OutboxFailed, limit)
}

func (r *OutboxRepoMongoDB) fetchByStatus(ctx context.Context, status sharedDomain.OutboxStatus, limit int) ([]sharedDomain.OutboxMessage, error) {
	filter := bson.M{"status": string(status)}

	// Ordenamos por fecha de ocurrencia, el más antiguo primero.
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []sharedDomain.OutboxMessage
	for cursor.Next(ctx) {
		var mo mongoOutboxMessage
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		msgs = append(msgs, fromMongoOutboxMessage(&mo))
	}
	return msgs, cursor.Err()
}

// ClaimProcessing hace el compare-and-set con un UpdateOne condicionado.
func (r *OutboxRepoMongoDB) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.outboxColl.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(sharedDomain.OutboxPending)},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxProcessing), "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *OutboxRepoMongoDB) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	return r.update(ctx,
		bson.M{"_id": id, "status": bson.M{"$nin": terminalStatuses()}},
		bson.M{"$set": bson.M{
			"status":      string(sharedDomain.OutboxProcessed),
			"processedAt": processedAt.UTC(),
			"updatedAt":   time.Now().UTC(),
		}, "$unset": bson.M{"error": ""}},
	)
}

func (r *OutboxRepoMongoDB) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	return r.update(ctx,
		bson.M{"_id": id, "status": bson.M{"$nin": terminalStatuses()}},
		bson.M{
			"$set": bson.M{
				"status":    string(sharedDomain.OutboxFailed),
				"error":     errText,
				"updatedAt": time.Now().UTC(),
			},
			"$inc": bson.M{"attempts": 1},
		},
	)
}

func (r *OutboxRepoMongoDB) MarkPending(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx,
		bson.M{"_id": id, "status": string(sharedDomain.OutboxFailed)},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxPending), "updatedAt": time.Now().UTC()}},
	)
}

func (r *OutboxRepoMongoDB) MarkDeadLettered(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx,
		bson.M{"_id": id, "status": string(sharedDomain.OutboxFailed)},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxDeadLettered), "updatedAt": time.Now().UTC()}},
	)
}

func (r *OutboxRepoMongoDB) ReleaseStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := r.outboxColl.UpdateMany(ctx,
		bson.M{
			"status":    string(sharedDomain.OutboxProcessing),
			"updatedAt": bson.M{"$lt": time.Now().UTC().Add(-olderThan)},
		},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxPending), "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (r *OutboxRepoMongoDB) update(ctx context.Context, filter, update bson.M) error {
	res, err := r.outboxColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w", sharedDomain.ErrOutboxNotFound)
	}
	return nil
}

func terminalStatuses() []string {
	return []string{
		string(sharedDomain.OutboxProcessed),
		string(sharedDomain.OutboxDeadLettered),
	}
}

// fromMongoOutboxMessage convierte de BSON a nuestro tipo de dominio.
func fromMongoOutboxMessage(mo *mongoOutboxMessage) sharedDomain.OutboxMessage {
	return sharedDomain.OutboxMessage{
		ID:          mo.ID,
		OccurredAt:  mo.OccurredAt,
		Type:        mo.Type,
		Payload:     mo.Payload,
		Status:      sharedDomain.OutboxStatus(mo.Status),
		Attempts:    mo.Attempts,
		ProcessedAt: mo.ProcessedAt,
		Error:       mo.Error,
	}
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
