// Package main is the entry point for the DigiUrban portal server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/approval"
	"github.com/pitabwire/digiurban/internal/calendar"
	"github.com/pitabwire/digiurban/internal/capability"
	"github.com/pitabwire/digiurban/internal/config"
	"github.com/pitabwire/digiurban/internal/customdata"
	"github.com/pitabwire/digiurban/internal/definition"
	"github.com/pitabwire/digiurban/internal/document"
	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/idempotency"
	"github.com/pitabwire/digiurban/internal/interaction"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/internal/pending"
	"github.com/pitabwire/digiurban/internal/protocol"
	"github.com/pitabwire/digiurban/internal/scheduler"
	"github.com/pitabwire/digiurban/internal/search"
	"github.com/pitabwire/digiurban/internal/sla"
	"github.com/pitabwire/digiurban/internal/stock"
	"github.com/pitabwire/digiurban/internal/storage"
	"github.com/pitabwire/digiurban/internal/tfd"
	"github.com/pitabwire/digiurban/internal/transport"
	"github.com/pitabwire/digiurban/internal/workflow"
	"github.com/pitabwire/digiurban/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/portal.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "digiurban-portal", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	defs, err := loadDefinitions(cfg.Definitions, logger)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	registry := definition.NewRegistry(defs)
	metrics.SetDefinitionsLoaded(float64(len(defs)))

	cal, err := calendar.New(cfg.SLA.Holidays)
	if err != nil {
		logger.Error("holiday calendar invalid", zap.Error(err))
		return 1
	}

	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy loading failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL, metrics)

	checks := map[string]observability.HealthChecker{}
	optional := map[string]observability.HealthChecker{}
	var closers []func()

	stores, closeStores, err := buildStores(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("storage initialization failed", zap.Error(err))
		return 1
	}
	if closeStores != nil {
		closers = append(closers, closeStores)
	}
	if stores.health != nil {
		checks["postgres"] = stores.health
	}

	idemStore, closeIdem, err := buildIdempotencyStore(ctx, cfg.Idempotency, logger)
	if err != nil {
		logger.Error("idempotency store initialization failed", zap.Error(err))
		return 1
	}
	if closeIdem != nil {
		closers = append(closers, closeIdem)
	}
	if hc, ok := idemStore.(observability.HealthChecker); ok {
		checks["redis"] = hc
	}

	publisher, err := buildPublisher(cfg.Events, logger)
	if err != nil {
		logger.Error("event publisher initialization failed", zap.Error(err))
		return 1
	}
	if hc, ok := publisher.(observability.HealthChecker); ok {
		optional["kafka"] = hc
	}
	bus := events.NewBus(publisher, logger, metrics)

	index := buildIndex(cfg.Search, logger)
	if hc, ok := index.(observability.HealthChecker); ok {
		optional["meilisearch"] = hc
	}

	interactions := interaction.NewService(stores.interactions, stores.protocols, logger)
	documents := document.NewService(stores.documents, interactions, logger)
	pendings := pending.NewService(stores.pendings, interactions, logger)
	templates := workflow.NewTemplates(registry, stores.templates, logger)
	engine := workflow.NewEngine(workflow.EngineDeps{
		Templates:    templates,
		Store:        stores.instances,
		Calendar:     cal,
		CapResolver:  capResolver,
		Protocols:    stores.protocols,
		Documents:    documents,
		Pendings:     pendings,
		Interactions: interactions,
		Bus:          bus,
		Metrics:      metrics,
		Logger:       logger,
	})
	slas := sla.NewService(sla.Deps{
		Store:       stores.slas,
		Calendar:    cal,
		NearDueDays: cfg.SLA.NearDueDays,
		Bus:         bus,
		Metrics:     metrics,
		Logger:      logger,
	})
	protocols := protocol.NewService(protocol.Deps{
		Store:        stores.protocols,
		Workflows:    engine,
		SLAs:         slas,
		Interactions: interactions,
		Index:        index,
		Bus:          bus,
		Metrics:      metrics,
		Logger:       logger,
	})
	approvals := approval.NewService(approval.Deps{
		Gates:          registry,
		CapResolver:    capResolver,
		Interactions:   interactions,
		Idempotency:    idemStore,
		IdempotencyTTL: cfg.Idempotency.DefaultTTL,
		Bus:            bus,
		Metrics:        metrics,
		Logger:         logger,
	})
	tfdService := tfd.NewService(tfd.Deps{Store: stores.tfd, Bus: bus, Logger: logger})
	tfdService.SetDecider(approvals)
	approvals.Register(model.MachineProtocol, protocols.GateTarget())
	approvals.Register(model.MachineTFD, tfdService.GateTarget())

	stockService := stock.NewService(stock.Deps{
		Store:          stores.stock,
		Idempotency:    idemStore,
		IdempotencyTTL: cfg.Idempotency.DefaultTTL,
		NearExpiryDays: cfg.Stock.NearExpiryDays,
		Bus:            bus,
		Metrics:        metrics,
		Logger:         logger,
	})
	customData := customdata.NewService(stores.customData, metrics, logger)

	keyfunc, err := transport.NewKeyfunc(cfg.Identity, logger)
	if err != nil {
		logger.Error("identity configuration invalid", zap.Error(err))
		return 1
	}

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Count() > 0 },
		Dependencies:      checks,
		Optional:          optional,
	}

	var metricsHandler http.Handler
	if cfg.Observability.Metrics.Enabled {
		metricsHandler = observability.Handler()
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Metrics:            metrics,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, keyfunc),
		CapabilityResolver: capResolver,
		Protocols:          protocols,
		Workflows:          engine,
		Templates:          templates,
		SLAs:               slas,
		Documents:          documents,
		Interactions:       interactions,
		Pendings:           pendings,
		Approvals:          approvals,
		TFD:                tfdService,
		Stock:              stockService,
		CustomData:         customData,
		HealthHandler:      observability.HandleHealth(),
		ReadyHandler:       observability.HandleReady(readiness),
		MetricsHandler:     metricsHandler,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	jobs := scheduler.New(logger,
		scheduler.Job{
			Name:     "sla.refresh",
			Interval: cfg.SLA.ScanInterval,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				return slas.Refresh(ctx, "", now)
			},
		},
		scheduler.Job{
			Name:     "pending.expire",
			Interval: cfg.SLA.ScanInterval,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				return pendings.CheckExpired(ctx, "", now)
			},
		},
		scheduler.Job{
			Name:     "stock.expire",
			Interval: cfg.Stock.ExpiryScanInterval,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				return stockService.MarcarVencidos(ctx, "", now)
			},
		},
	)
	jobs.RunOnce(bgCtx)
	jobs.Start(bgCtx)

	reloads := make(chan os.Signal, 1)
	signal.Notify(reloads, syscall.SIGHUP)
	defer signal.Stop(reloads)
	go watchReloads(bgCtx, reloads, func() {
		if defs, err := loadDefinitions(cfg.Definitions, logger); err != nil {
			metrics.RecordDefinitionReload("error")
			logger.Error("definition reload failed", zap.Error(err))
		} else {
			registry.Replace(defs)
			metrics.RecordDefinitionReload("success")
			metrics.SetDefinitionsLoaded(float64(len(defs)))
			logger.Info("definitions reloaded", zap.String("checksum", registry.Checksum()))
		}
		if err := capResolver.Reload(); err != nil {
			logger.Error("capability policy reload failed", zap.Error(err))
			return
		}
		logger.Info("capability policy reloaded")
	})

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", len(defs)),
		zap.String("storage", cfg.Storage.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()
	jobs.Wait()

	if err := publisher.Close(); err != nil {
		logger.Error("event publisher close error", zap.Error(err))
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// storeSet holds the persistence backends of every service.
type storeSet struct {
	protocols    protocol.Store
	instances    workflow.InstanceStore
	templates    workflow.TemplateStore
	slas         sla.Store
	documents    document.Store
	interactions interaction.Store
	pendings     pending.Store
	tfd          tfd.Store
	stock        stock.Store
	customData   customdata.Store
	health       observability.HealthChecker
}

// buildStores creates the stores for cfg.Driver. The postgres driver runs
// migrations before returning.
func buildStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storeSet, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory stores")
		return storeSet{
			protocols:    protocol.NewMemoryStore(),
			instances:    workflow.NewMemoryInstanceStore(),
			templates:    workflow.NewMemoryTemplateStore(),
			slas:         sla.NewMemoryStore(),
			documents:    document.NewMemoryStore(),
			interactions: interaction.NewMemoryStore(),
			pendings:     pending.NewMemoryStore(),
			tfd:          tfd.NewMemoryStore(),
			stock:        stock.NewMemoryStore(),
			customData:   customdata.NewMemoryStore(),
		}, nil, nil
	case "postgres":
		db, err := storage.Open(ctx, cfg, logger)
		if err != nil {
			return storeSet{}, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return storeSet{}, nil, err
		}
		return storeSet{
			protocols:    protocol.NewPgStore(db.Pool),
			instances:    workflow.NewPgInstanceStore(db.Pool),
			templates:    workflow.NewPgTemplateStore(db.Pool),
			slas:         sla.NewPgStore(db.Pool),
			documents:    document.NewGormStore(db.Gorm),
			interactions: interaction.NewGormStore(db.Gorm),
			pendings:     pending.NewGormStore(db.Gorm),
			tfd:          tfd.NewGormStore(db.Gorm),
			stock:        stock.NewGormStore(db.Gorm),
			customData:   customdata.NewGormStore(db.Gorm),
			health:       db,
		}, db.Close, nil
	default:
		return storeSet{}, nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the idempotency store based on config.
func buildIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("idempotency store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("idempotency store: ping: %w", err)
		}
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return idempotency.NewRedisStore(client), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported idempotency store driver: %q", cfg.Driver)
	}
}

// buildPublisher creates the domain event publisher based on config.
func buildPublisher(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.Driver {
	case "none", "":
		return events.NopPublisher{}, nil
	case "memory":
		logger.Info("recording domain events in memory")
		return events.NewMemoryPublisher(), nil
	case "kafka":
		logger.Info("publishing domain events to kafka",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("topic", cfg.Topic),
		)
		kafka, err := events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, cfg.WriteTimeout)
		if err != nil {
			return nil, err
		}
		return events.NewBreakerPublisher(kafka, cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown), nil
	default:
		return nil, fmt.Errorf("unsupported events driver: %q", cfg.Driver)
	}
}

// buildIndex creates the protocol search index based on config.
func buildIndex(cfg config.SearchConfig, logger *zap.Logger) search.Index {
	if cfg.Driver == "meilisearch" {
		logger.Info("using meilisearch protocol index", zap.String("url", cfg.URL))
		return search.NewMeiliIndex(cfg.URL, os.Getenv(cfg.APIKeyEnv), logger)
	}
	return search.NewMemoryIndex()
}

// loadDefinitions reads and validates the workflow and gate definitions.
func loadDefinitions(cfg config.DefinitionsConfig, logger *zap.Logger) ([]model.DomainDefinition, error) {
	defs, err := definition.NewLoader().LoadAll(cfg.Directories)
	if err != nil {
		return nil, err
	}
	if verrs := definition.NewValidator().Validate(defs); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		return nil, fmt.Errorf("%d definition validation errors", len(verrs))
	}
	return defs, nil
}

// watchReloads calls reload on every SIGHUP until ctx ends.
func watchReloads(ctx context.Context, sig <-chan os.Signal, reload func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			reload()
		}
	}
}
