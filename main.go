package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/yarrow/config"
	"github.com/Ramsey-B/yarrow/internal/repositories/ingestionrun"
	"github.com/Ramsey-B/yarrow/internal/repositories/recall"
	"github.com/Ramsey-B/yarrow/internal/repositories/searchindex"
	"github.com/Ramsey-B/yarrow/internal/repositories/watermark"
	"github.com/Ramsey-B/yarrow/pkg/connectors"
	"github.com/Ramsey-B/yarrow/pkg/connectors/sources"
	"github.com/Ramsey-B/yarrow/pkg/database"
	"github.com/Ramsey-B/yarrow/pkg/dedup"
	"github.com/Ramsey-B/yarrow/pkg/httpclient"
	"github.com/Ramsey-B/yarrow/pkg/ingest"
	"github.com/Ramsey-B/yarrow/pkg/kafka"
	"github.com/Ramsey-B/yarrow/pkg/middleware"
	"github.com/Ramsey-B/yarrow/pkg/normalize"
	"github.com/Ramsey-B/yarrow/pkg/redis"
	"github.com/Ramsey-B/yarrow/pkg/risk"
	"github.com/Ramsey-B/yarrow/pkg/routes/health"
	ingestionroutes "github.com/Ramsey-B/yarrow/pkg/routes/ingestion"
	recallroutes "github.com/Ramsey-B/yarrow/pkg/routes/recalls"
	riskroutes "github.com/Ramsey-B/yarrow/pkg/routes/risk"
	"github.com/Ramsey-B/yarrow/pkg/scheduler"
	"github.com/Ramsey-B/yarrow/pkg/search"
	"github.com/Ramsey-B/yarrow/pkg/startup"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
	"github.com/Ramsey-B/yarrow/pkg/tracing/exporters"
)

const serviceVersion = "0.1.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger ectologger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Fail fast on broken mapping tables before touching any external system
	for code, mapping := range normalize.DefaultMappings() {
		if err := normalize.Validate(mapping); err != nil {
			return fmt.Errorf("invalid field mapping for source %s: %w", code, err)
		}
	}

	dbPort, err := strconv.Atoi(cfg.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port %q: %w", cfg.DatabasePort, err)
	}

	db, err := database.Connect(ctx, database.Config{
		Host:            cfg.DatabaseHost,
		Port:            dbPort,
		Username:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := migrate(cfg, logger, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	locker := redis.NewLocker(redisClient, cfg.AppName)

	// Repositories
	recallRepo := recall.NewRepository(db, logger)
	watermarkRepo := watermark.NewRepository(db, logger)
	runRepo := ingestionrun.NewRepository(db, logger)
	indexRepo := searchindex.NewRepository(db, logger)

	// Connectors
	httpClient := httpclient.NewClient(httpclient.DefaultConfig(), logger)
	registry := connectors.NewRegistry()
	if err := sources.RegisterAll(registry, httpClient, sources.Config{}); err != nil {
		return fmt.Errorf("failed to register connectors: %w", err)
	}

	authorities := make(map[string]int)
	for _, connector := range registry.All() {
		info := connector.Source()
		authorities[info.Code] = info.Authority
	}

	normalizer := normalize.New(logger)
	merger := dedup.NewMerger(logger, recallRepo, dedup.Config{
		MatchThreshold:      cfg.DedupMatchThreshold,
		AmbiguityBand:       cfg.DedupAmbiguityBand,
		CandidateWindowDays: cfg.DedupCandidateWindowDays,
		SourcePriorities:    authorities,
	})
	scorer := risk.NewScorer(risk.Config{SourceAuthorities: authorities})

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}

	maintainer := search.NewMaintainer(logger, indexRepo)
	recalculator := risk.NewRecalculator(logger, recallRepo, scorer, maintainer, producer)

	retry := connectors.DefaultRetryConfig()
	retry.MaxRetries = cfg.IngestMaxRetries
	orchestrator := ingest.NewOrchestrator(
		logger, db, registry, normalizer, merger, scorer,
		recallRepo, watermarkRepo, runRepo, maintainer, producer, locker,
		ingest.Config{
			Concurrency:   cfg.IngestConcurrency,
			SourceTimeout: cfg.IngestSourceTimeout,
			Lookback:      cfg.IngestLookback,
			Retry:         retry,
		},
	)

	sched := scheduler.NewScheduler(orchestrator, recalculator, runRepo, watermarkRepo, locker, nil, scheduler.Config{
		PollInterval:      cfg.SchedulerPollInterval,
		IngestionInterval: cfg.SchedulerIngestionInterval,
		RecalcInterval:    cfg.SchedulerRecalcInterval,
	}, logger)

	if err := registerDependencies(logger, db, registry, orchestrator, recalculator, maintainer, recallRepo, runRepo); err != nil {
		return fmt.Errorf("failed to register dependencies: %w", err)
	}

	checker := health.NewChecker(db, redisClient, serviceVersion)
	server := newServer(cfg, logger, checker)

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(&dependency{
		name: "http-server",
		start: func(context.Context) error {
			go func() {
				if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error { return server.Shutdown(ctx) },
	})
	if cfg.SchedulerEnabled {
		s.AddDependency(&dependency{
			name:      "scheduler",
			dependsOn: []string{"http-server"},
			start:     func(context.Context) error { return sched.Start(context.Background()) },
			stop:      func(ctx context.Context) error { return sched.Stop(ctx) },
		})
	}

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	checker.SetReady(true)
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Graceful shutdown finished with errors")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}

	logger.Info("Shutdown complete")
	return nil
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func initTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	if cfg.OTLPEnabled {
		otlpExporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlpExporter
	} else {
		exporter = &exporters.ConsoleExporter{}
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

func migrate(cfg config.Config, logger ectologger.Logger, db database.DB) error {
	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
	if err != nil {
		return err
	}
	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return service.Migrate(cfg.DatabaseName, driver)
}

func registerDependencies(
	logger ectologger.Logger,
	db database.DB,
	registry *connectors.Registry,
	orchestrator *ingest.Orchestrator,
	recalculator *risk.Recalculator,
	maintainer *search.Maintainer,
	recallRepo *recall.Repository,
	runRepo *ingestionrun.Repository,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*connectors.Registry](container, registry); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*ingest.Orchestrator](container, orchestrator); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*risk.Recalculator](container, recalculator); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*search.Maintainer](container, maintainer); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*recall.Repository](container, recallRepo); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*ingestionrun.Repository](container, runRepo)
}

func newServer(cfg config.Config, logger ectologger.Logger, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	ingestionroutes.Register(api.Group("/ingestion"))
	riskroutes.Register(api.Group("/risk"))
	recallroutes.Register(api.Group("/recalls"))

	return e
}

// dependency adapts start/stop closures to the startup framework
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error  { return d.stop(ctx) }
