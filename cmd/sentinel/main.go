package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelsec/sentinel-core/pkg/config"
	infraCache "github.com/sentinelsec/sentinel-core/pkg/infra/cache"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/channel"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/event"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/subscriber"
	"github.com/sentinelsec/sentinel-core/pkg/infra/database"
	"github.com/sentinelsec/sentinel-core/pkg/infra/engine"
	"github.com/sentinelsec/sentinel-core/pkg/infra/httpx"
	infraLogger "github.com/sentinelsec/sentinel-core/pkg/infra/logger"
	_ "github.com/sentinelsec/sentinel-core/pkg/infra/migrations"
	"github.com/sentinelsec/sentinel-core/pkg/infra/prometheus"
	"github.com/sentinelsec/sentinel-core/pkg/infra/repository"
	"github.com/sentinelsec/sentinel-core/pkg/infra/telemetry"
	telemetrykafka "github.com/sentinelsec/sentinel-core/pkg/infra/telemetry/kafka"
	"github.com/sentinelsec/sentinel-core/pkg/plugins"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
	"github.com/sentinelsec/sentinel-core/pkg/scanner"
	"github.com/sentinelsec/sentinel-core/pkg/server"
	"github.com/sentinelsec/sentinel-core/pkg/types"
	"github.com/sentinelsec/sentinel-core/pkg/version"
)

func main() {
	ctx := context.Background()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger("sentinel")
	info := version.GetInfo()
	logger.WithFields(logrus.Fields{
		"version":    info.Version,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}).Infof("Starting %s", info.AppName)

	// Load configuration
	if err := config.Load("./config"); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.GetConfig()
	applyLogLevel(logger, cfg)

	metricsConfig := prometheus.DefaultMetricsConfig()
	if cfg.Metrics.DisableInvocationLatency {
		metricsConfig.EnableInvocationLatency = false
	}
	if cfg.Metrics.DisableQueueMetrics {
		metricsConfig.EnableQueueMetrics = false
	}
	prometheus.Initialize(metricsConfig)

	// Initialize database
	db, err := database.NewDB(logger, &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize redis
	cacheClient, err := infraCache.NewClient(infraCache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TLS:      cfg.Redis.TLS,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize redis client: %v", err)
	}
	defer cacheClient.Close()

	// repository
	pluginRepository := repository.NewPluginRepository(db.DB)
	findingRepository := repository.NewFindingRepository(db.DB)
	trafficRepository := repository.NewTrafficRepository(db.DB)

	// script engine
	fetchClient := httpx.NewFastHTTPClient(
		httpx.WithTimeout(time.Duration(cfg.Engine.FetchTimeoutSeconds) * time.Second),
	)
	loader := engine.NewLoader(cfg.Engine.TranspileCacheSize, logger)
	factory := engine.NewPluginFactory(loader, fetchClient, logger,
		engine.WithInvocationTimeout(time.Duration(cfg.Engine.InvocationTimeoutSeconds)*time.Second),
		engine.WithFetchTimeout(time.Duration(cfg.Engine.FetchTimeoutSeconds)*time.Second),
	)
	manager := plugins.NewManager(pluginRepository, factory, cfg.Engine.MainCategory, logger)
	defer manager.Close()

	if err := manager.LoadEnabledPlugins(ctx); err != nil {
		logger.WithError(err).Error("Failed to load enabled plugins at startup")
	}

	// bounded pipeline queues
	tasks := queue.New[types.ScanTask](
		cfg.Pipeline.TaskQueueSize,
		overflowPolicy(cfg.Pipeline.TaskOverflowPolicy, queue.DropOldest),
	)
	findings := queue.New[*types.Finding](
		cfg.Pipeline.FindingQueueSize,
		overflowPolicy(cfg.Pipeline.FindingOverflowPolicy, queue.Block),
	)

	// redis publisher and ingest listener
	redisPublisher := infraCache.NewRedisEventPublisher(cacheClient)
	redisListener := infraCache.NewRedisEventListener(logger, cacheClient, event.Registry)

	// subscribers
	requestSubscriber := subscriber.NewTrafficRequestEventSubscriber(logger, tasks)
	responseSubscriber := subscriber.NewTrafficResponseEventSubscriber(logger, tasks)
	reloadSubscriber := subscriber.NewPluginReloadRequestedEventSubscriber(logger, tasks)

	infraCache.RegisterEventSubscriber[event.TrafficRequestEvent](redisListener, requestSubscriber)
	infraCache.RegisterEventSubscriber[event.TrafficResponseEvent](redisListener, responseSubscriber)
	infraCache.RegisterEventSubscriber[event.PluginReloadRequestedEvent](redisListener, reloadSubscriber)

	// consumer loops
	storeBreaker := httpx.NewCircuitBreaker("traffic-store", 30*time.Second, 5)
	pipeline := scanner.NewPipeline(manager, tasks, findings, logger).
		WithTrafficStore(trafficRepository, storeBreaker).
		WithPublisher(redisPublisher)

	dedup := scanner.NewDeduplicator(findings, findingRepository, logger).
		WithPublisher(redisPublisher)

	for _, exporterConfig := range cfg.Telemetry.Exporters {
		exporter, err := buildExporter(exporterConfig)
		if err != nil {
			logger.Fatalf("Failed to initialize %s exporter: %v", exporterConfig.Name, err)
		}
		defer exporter.Close()
		dedup = dedup.WithExporter(exporter)
	}

	var group errgroup.Group
	pipelineDone := make(chan struct{})
	group.Go(func() error {
		defer close(pipelineDone)
		return pipeline.Run(ctx)
	})
	group.Go(func() error {
		return dedup.Run(ctx)
	})

	go func() {
		fmt.Println("starting listening traffic events...")
		redisListener.Listen(ctx, channel.TrafficEventsChannel)
	}()

	// periodic stats
	stats := scanner.NewStatsReporter(pipeline, dedup, manager, tasks, findings, logger)
	if err := stats.Start(cfg.Pipeline.StatsSchedule); err != nil {
		logger.WithError(err).Error("Failed to start stats reporter")
	}
	defer stats.Stop()

	// ops server
	srv := server.NewOpsServer(cfg, logger, stats)
	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down scan pipeline...")

	// Stop intake, drain the task queue, then drain the findings the
	// drained tasks emitted.
	tasks.Close()
	<-pipelineDone
	findings.Close()
	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("Consumer loop terminated with error")
	}

	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
		os.Exit(1)
	}
	fmt.Println("sentinel gracefully stopped")
}

func buildExporter(cfg config.ExporterConfig) (telemetry.Exporter, error) {
	switch cfg.Name {
	case telemetrykafka.ExporterName:
		return telemetrykafka.NewExporterFromSettings(cfg.Settings)
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", cfg.Name)
	}
}

func applyLogLevel(logger *logrus.Logger, cfg *config.Config) {
	if os.Getenv("LOG_LEVEL") != "" || cfg.Logging.Level == "" {
		return
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithField("level", cfg.Logging.Level).Warn("Ignoring invalid logging.level")
		return
	}
	logger.SetLevel(level)
}

func overflowPolicy(name string, fallback queue.Policy) queue.Policy {
	switch queue.Policy(name) {
	case queue.Block, queue.DropOldest:
		return queue.Policy(name)
	default:
		return fallback
	}
}
