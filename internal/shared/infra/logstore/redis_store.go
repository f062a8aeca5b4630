package logstore

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisLogStore guarda el log de demostración en una lista de Redis, para
// que API y consumer (procesos distintos) compartan el mismo canal lateral.
type RedisLogStore struct {
	rdb        *redis.Client
	key        string
	maxEntries int64
	log        *zap.Logger
}

func NewRedisLogStore(rdb *redis.Client, key string, maxEntries int64, log *zap.Logger) *RedisLogStore {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RedisLogStore{rdb: rdb, key: key, maxEntries: maxEntries, log: log}
}

// Append añade la línea al final y recorta la lista a maxEntries.
// Es best-effort: un Redis caído no rompe el flujo de negocio.
func (s *RedisLogStore) Append(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	entry := fmt.Sprintf("%s - %s", time.Now().UTC().Format(time.RFC3339Nano), line)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, s.key, entry)
	pipe.LTrim(ctx, s.key, -s.maxEntries, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("⚠️ No se pudo escribir en el log store", zap.Error(err))
	}
}

// Recent devuelve hasta n líneas, la más nueva primero.
func (s *RedisLogStore) Recent(n int) []string {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	entries, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		s.log.Warn("⚠️ No se pudo leer el log store", zap.Error(err))
		return nil
	}

	// La lista está en orden de inserción; invertimos y tomamos n.
	out := make([]string, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}

// Verificación estática
var _ sharedDomain.LogStore = (*RedisLogStore)(nil)
