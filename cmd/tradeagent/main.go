package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	config "github.com/davicafu/tradeagent/internal/config"
	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	sharedDb "github.com/davicafu/tradeagent/internal/shared/infra/db"
	outboxMongo "github.com/davicafu/tradeagent/internal/shared/infra/db/mongodb"
	outboxPostgres "github.com/davicafu/tradeagent/internal/shared/infra/db/postgres"
	outboxSqlite "github.com/davicafu/tradeagent/internal/shared/infra/db/sqlite"
	infraEvents "github.com/davicafu/tradeagent/internal/shared/infra/events"
	"github.com/davicafu/tradeagent/internal/shared/infra/logstore"
	sharedBus "github.com/davicafu/tradeagent/internal/shared/infra/platform/bus"
	infraRelayer "github.com/davicafu/tradeagent/internal/shared/infra/relayer"
	tradeApp "github.com/davicafu/tradeagent/internal/trade/application"
	tradeDomain "github.com/davicafu/tradeagent/internal/trade/domain"
	tradeHttp "github.com/davicafu/tradeagent/internal/trade/infra/inbound/http"
	tradeAnalytics "github.com/davicafu/tradeagent/internal/trade/infra/outbound/analytics/clickhouse"
	tradeCache "github.com/davicafu/tradeagent/internal/trade/infra/outbound/cache"
	tradeRepoPostgres "github.com/davicafu/tradeagent/internal/trade/infra/outbound/db/postgres"
	tradeRepoSqlite "github.com/davicafu/tradeagent/internal/trade/infra/outbound/db/sqlite"

	"github.com/davicafu/tradeagent/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	// _ "github.com/mattn/go-sqlite3" // requires gcc
	_ "modernc.org/sqlite"
)

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	// ---------------- DB ----------------
	var db *sql.DB
	var err error
	var tradeRepo tradeDomain.TradeRepository
	var outboxInserter sharedDb.OutboxInserter
	var outboxRepo sharedDomain.OutboxRepository

	if cfg.LocalDeployment {
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open SQLite", zap.Error(err))
		}
		if err := tradeRepoSqlite.InitSQLite(db); err != nil {
			log.Fatal("failed to initialize SQLite", zap.Error(err))
		}
		if err := outboxSqlite.InitOutboxSQLite(db); err != nil {
			log.Fatal("failed to initialize outbox table", zap.Error(err))
		}
		tradeRepo = tradeRepoSqlite.NewTradeRepoSQLite(db)
		repo := outboxSqlite.NewOutboxRepoSQLite(db)
		outboxInserter = repo
		outboxRepo = repo
	} else {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open PostgreSQL", zap.Error(err))
		}
		tradeRepo = tradeRepoPostgres.NewTradeRepoPostgres(db)
		repo := outboxPostgres.NewOutboxRepoPostgres(db)
		outboxInserter = repo
		outboxRepo = repo
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping database", zap.Error(err))
	}

	// ---------------- Cache y log store ----------------
	var cacheInstance tradeDomain.TradeCache
	var logStore sharedDomain.LogStore

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, cache y log store en memoria:", zap.Error(err))
		cacheInstance = tradeCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		logStore = logstore.NewMemoryLogStore(int(cfg.LogStoreMax))
	} else {
		cacheInstance = tradeCache.NewRedisCache(rdb, cfg.CacheTTL)
		logStore = logstore.NewRedisLogStore(rdb, cfg.LogStoreKey, cfg.LogStoreMax, log)
		log.Info("✅ Redis conectado, cache y log store habilitados")
	}

	// ---------------- Analytics ----------------
	var analytics tradeDomain.TradeAnalytics
	if cfg.UseClickHouse {
		repo, err := tradeAnalytics.NewTradeAnalyticsRepo(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, analytics deshabilitado", zap.Error(err))
		} else if err := repo.InitSchema(); err != nil {
			log.Warn("⚠️ No se pudo inicializar el esquema de ClickHouse", zap.Error(err))
		} else {
			analytics = repo
			log.Info("✅ ClickHouse conectado, analytics habilitado")
		}
	}

	// --------------- Servicio --------------
	eventRegistry := tradeDomain.NewEventRegistry()
	uow := sharedDb.NewUnitOfWork(db, outboxInserter, eventRegistry, log)
	tradeService := tradeApp.NewTradeService(tradeRepo, uow, cacheInstance, analytics, logStore, log)

	// ---------------- Publisher ---------------
	var publisher sharedBus.MessagePublisher

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como bus de eventos")
		writer := kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		defer writer.Close()
		publisher = infraEvents.NewKafkaPublisher(writer, log)
	} else {
		log.Info("🚀 Usando RabbitMQ como bus de eventos")
		rabbit, err := infraEvents.NewRabbitPublisher(infraEvents.RabbitConfig{
			URL:      cfg.RabbitURL,
			Exchange: cfg.RabbitXchg,
			Queue:    cfg.RabbitQueue,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbit.Close()
		publisher = rabbit
	}

	// ------------ Outbox Dispatcher ------------
	// Normalmente vigila el mismo outbox SQL que escribe el UnitOfWork. La
	// variante Mongo drena un outbox alimentado por otro servicio.
	dispatcherRepo := outboxRepo
	if cfg.UseMongoOutbox {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Disconnect(ctx)
		dispatcherRepo = outboxMongo.NewOutboxRepoMongoDB(mongoClient, cfg.MongoDatabase)
		log.Info("📬 Dispatcher drenando outbox en MongoDB", zap.String("database", cfg.MongoDatabase))
	}

	dispatcher := infraRelayer.NewDispatcher(
		dispatcherRepo,
		publisher,
		infraRelayer.BoundedRetry{MaxAttempts: cfg.OutboxMaxRetries},
		infraRelayer.Config{
			Interval:   cfg.OutboxPeriod,
			RetryEvery: cfg.OutboxRetryEvery,
			BatchSize:  cfg.OutboxLimit,
			StuckAfter: cfg.OutboxStuckAfter,
		},
		log,
	)
	go dispatcher.Start(ctx)

	// ---------------- HTTP ----------------
	tradeHandler := tradeHttp.NewTradeHandler(tradeService)
	logsHandler := tradeHttp.NewLogsHandler(logStore)
	router := tradeHttp.NewRouter(tradeHandler, logsHandler, log)

	log.Info("🚀 Server running",
		zap.String("url", "http://localhost:"+cfg.HTTPPort),
	)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}
