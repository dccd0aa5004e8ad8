package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	appbilling "github.com/utilitybill/backend/internal/application/billing"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/infrastructure/cache"
	"github.com/utilitybill/backend/internal/infrastructure/config"
	"github.com/utilitybill/backend/internal/infrastructure/event"
	"github.com/utilitybill/backend/internal/infrastructure/logger"
	"github.com/utilitybill/backend/internal/infrastructure/messaging/kafka"
	"github.com/utilitybill/backend/internal/infrastructure/persistence"
	"github.com/utilitybill/backend/internal/infrastructure/scheduler"
	"github.com/utilitybill/backend/internal/infrastructure/storage"
	"github.com/utilitybill/backend/internal/infrastructure/telemetry"
	"github.com/utilitybill/backend/internal/interfaces/http/handler"
	"github.com/utilitybill/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	defer func() { _ = baseLog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry comes first so the bridged logger reaches the collector
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			baseLog.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log := telemetry.BridgeLogger(baseLog, providers.Logs, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting utility billing",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database, log, cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbMetrics := instrumentDatabase(ctx, db.DB, cfg, providers, log)
	if dbMetrics != nil {
		defer dbMetrics.Stop()
	}
	log.Info("Database connected successfully")

	// Initialize event serializer and register all event types
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)

	// Outbox publisher saves events inside the writing transaction
	outboxPublisher := event.NewOutboxPublisher(eventSerializer)
	outboxPublisher.SetMaxRetries(cfg.Event.MaxRetries)

	// Initialize repositories
	connectionRepo := persistence.NewGormConnectionRepository(db.DB)
	readingRepo := persistence.NewGormReadingRepository(db.DB)
	slabRepo := persistence.NewGormSlabRepository(db.DB)
	taxRepo := persistence.NewGormTaxRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Initialize billing
	calculator := billing.NewCalculator(
		billing.NoSubsidy{},
		billing.FixedRateSolarCredit{Rate: cfg.Billing.SolarExportRate},
		log.Named("calculator"),
	)
	engine := appbilling.NewTariffEngine(connectionRepo, readingRepo, slabRepo, taxRepo, calculator, log.Named("tariff"))
	billingService := appbilling.NewBillingService(
		engine,
		persistence.NewGormBillingScope(db.DB, outboxPublisher),
		appbilling.Repositories{
			Bills:       persistence.NewGormBillRepository(db.DB),
			Payments:    persistence.NewGormPaymentRepository(db.DB),
			Meters:      persistence.NewGormMeterRepository(db.DB),
			Connections: connectionRepo,
			Readings:    readingRepo,
		},
		appbilling.Config{
			MinDaysBetweenBills: cfg.Billing.MinDaysBetweenBills,
			DueDaysFromBillDate: cfg.Billing.DueDaysFromBillDate,
			MeterLockTTL:        cfg.Billing.MeterLockTTL,
		},
		log.Named("billing"),
	)
	billingService.SetBulkRateLimit(cfg.Billing.BulkRatePerSecond)

	billingMetrics, err := telemetry.NewBillingMetrics(providers.Meter.Meter("billing"))
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}
	billingService.SetMetrics(billingMetrics)

	// Redis backs idempotency and the per-meter lease; development may run without it
	stores, err := cache.NewStores(ctx, cfg.Redis, cfg.App.Env != "production", log)
	if err != nil {
		log.Fatal("Failed to initialize Redis stores", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing Redis stores", zap.Error(err))
		}
	}()
	billingService.SetMeterLocker(stores.MeterLocker)

	readingHandler := event.NewIdempotentHandler(
		appbilling.NewReadingCreatedHandler(billingService, log.Named("auto-billing")),
		stores.Idempotency,
		shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true},
		log,
	)

	// Initialize event bus. With Kafka enabled the bus forwards readings to the
	// topic and the consumer group bills them; otherwise the bus bills directly.
	eventBus := event.NewInMemoryEventBus(log.Named("event-bus"), cfg.Event.QueueSize)
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		forwarder, kafkaConsumer, err := newKafkaBridge(cfg.Kafka, eventSerializer, readingHandler, log.Named("kafka"))
		if err != nil {
			log.Fatal("Failed to initialize Kafka bridge", zap.Error(err))
		}
		defer func() {
			if err := forwarder.Close(); err != nil {
				log.Error("Error closing Kafka producer", zap.Error(err))
			}
		}()
		eventBus.Subscribe(forwarder)
		consumer = kafkaConsumer
	} else {
		eventBus.Subscribe(readingHandler)
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := eventBus.Stop(stopCtx); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()
	log.Info("Event bus started", zap.Int("queue_size", cfg.Event.QueueSize))

	// Initialize outbox processor for reliable event delivery
	if cfg.Event.ProcessorEnabled {
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
		}, log.Named("outbox"))
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := outboxProcessor.Stop(stopCtx); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", cfg.Event.BatchSize),
			zap.Duration("poll_interval", cfg.Event.PollInterval),
		)
	}

	consumerDone := make(chan struct{})
	if consumer != nil {
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				log.Error("Kafka consumer stopped", zap.Error(err))
			}
		}()
		log.Info("Kafka consumer started",
			zap.String("topic", cfg.Kafka.ReadingsTopic),
			zap.String("group_id", cfg.Kafka.GroupID),
		)
	} else {
		close(consumerDone)
	}

	// Initialize monthly bulk billing
	bulkScheduler, err := scheduler.NewBulkBillingScheduler(billingService, cfg.Scheduler, log.Named("scheduler"))
	if err != nil {
		log.Fatal("Failed to create bulk billing scheduler", zap.Error(err))
	}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ReportArchive(&cfg.Storage, storage.WithLogger(log.Named("storage")))
		if err != nil {
			log.Fatal("Failed to initialize report archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare report bucket", zap.Error(err))
		}
		bulkScheduler.SetReportArchive(archive, cfg.Storage.Prefix)
	}
	if err := bulkScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start bulk billing scheduler", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := bulkScheduler.Stop(stopCtx); err != nil {
			log.Error("Error stopping bulk billing scheduler", zap.Error(err))
		}
	}()

	// Ops endpoint: health, readiness and Prometheus metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opsEngine, err := router.NewEngine(router.Deps{
		Logger: log.Named("ops"),
		Health: handler.NewHealthHandler(cfg.App.Name, telemetry.ServiceVersion, map[string]handler.Checker{
			"database": handler.CheckerFunc(db.Ping),
			"redis":    handler.CheckerFunc(stores.Ping),
		}, 2*time.Second),
		Registry:       registry,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: providers.Tracer.IsEnabled(),
	})
	if err != nil {
		log.Fatal("Failed to build ops endpoint", zap.Error(err))
	}
	srv := router.NewServer(opsEngine, cfg.Ops)

	go func() {
		log.Info("Ops server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Ops server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Ops server forced to shutdown", zap.Error(err))
	}

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("Error closing Kafka consumer", zap.Error(err))
		}
	}
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("Kafka consumer did not stop in time")
	}

	log.Info("Server exited")
}

// instrumentDatabase installs query tracing and metrics on db. Failures are
// logged and the service keeps running uninstrumented.
func instrumentDatabase(ctx context.Context, db *gorm.DB, cfg *config.Config, providers *telemetry.Providers, log *zap.Logger) *telemetry.DBMetrics {
	tracingCfg := telemetry.DefaultDBTracingConfig()
	tracingCfg.Enabled = providers.Tracer.IsEnabled()
	tracingCfg.DBName = cfg.Database.DBName
	if err := telemetry.RegisterDBTracing(db, tracingCfg, log); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(db, providers.Meter, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
		return nil
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
	}
	return dbMetrics
}

// newKafkaBridge creates the producer side forwarding reading events to the
// topic and the consumer group feeding them to the billing handler.
func newKafkaBridge(
	cfg config.KafkaConfig,
	serializer *event.EventSerializer,
	handler shared.EventHandler,
	log *zap.Logger,
) (*kafka.Forwarder, *kafka.Consumer, error) {
	producerCfg, err := kafka.NewProducerConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerCfg)
	if err != nil {
		return nil, nil, err
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, kafka.NewConsumerConfig(cfg))
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}

	forwarder := kafka.NewForwarder(producer, serializer, cfg.ReadingsTopic, log)
	consumer := kafka.NewConsumer(group, cfg.ReadingsTopic, handler, serializer, cfg.MaxPerSecond, log)
	return forwarder, consumer, nil
}
