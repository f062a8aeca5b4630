package main

import (
	"context"
	"os/signal"
	"syscall"

	config "github.com/davicafu/tradeagent/internal/config"
	"github.com/davicafu/tradeagent/internal/consumer"
	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	infraEvents "github.com/davicafu/tradeagent/internal/shared/infra/events"
	"github.com/davicafu/tradeagent/internal/shared/infra/logstore"
	"github.com/davicafu/tradeagent/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Binario del consumidor: escucha el broker, procesa eventos de operaciones
// y alimenta el log compartido. Se despliega como proceso independiente de
// la API.
func main() {
	logger.Init()
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	// Log store compartido con la API vía Redis; en memoria como fallback.
	var logStore sharedDomain.LogStore
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, log store en memoria:", zap.Error(err))
		logStore = logstore.NewMemoryLogStore(int(cfg.LogStoreMax))
	} else {
		logStore = logstore.NewRedisLogStore(rdb, cfg.LogStoreKey, cfg.LogStoreMax, log)
		log.Info("✅ Redis conectado, log store compartido habilitado")
	}

	handler := consumer.NewTradeMessageHandler(logStore, log)

	if cfg.UseKafka {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			GroupID:  cfg.KafkaGroupID,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		})
		kafkaConsumer := consumer.NewKafkaConsumer(reader, handler, cfg.MaxDeliveries, log)
		defer kafkaConsumer.Close()

		if err := kafkaConsumer.Start(ctx); err != nil {
			log.Fatal("kafka consumer stopped with error", zap.Error(err))
		}
		return
	}

	rabbitConsumer, err := consumer.NewRabbitConsumer(consumer.RabbitConsumerConfig{
		Rabbit: infraEvents.RabbitConfig{
			URL:      cfg.RabbitURL,
			Exchange: cfg.RabbitXchg,
			Queue:    cfg.RabbitQueue,
		},
		DLQExchange:   cfg.DLQExchange,
		DLQQueue:      cfg.DLQQueue,
		MaxDeliveries: cfg.MaxDeliveries,
	}, handler, log)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitConsumer.Close()

	if err := rabbitConsumer.Start(ctx); err != nil {
		log.Fatal("rabbit consumer stopped with error", zap.Error(err))
	}
}
