package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/config"
	"github.com/Ramsey-B/productsync/pkg/database"
	"github.com/Ramsey-B/productsync/pkg/embedding"
	"github.com/Ramsey-B/productsync/pkg/events"
	"github.com/Ramsey-B/productsync/pkg/graph"
	"github.com/Ramsey-B/productsync/pkg/ingest"
	"github.com/Ramsey-B/productsync/pkg/kafka"
	"github.com/Ramsey-B/productsync/pkg/matching"
	"github.com/Ramsey-B/productsync/pkg/normalization"
	"github.com/Ramsey-B/productsync/pkg/processor"
	"github.com/Ramsey-B/productsync/pkg/redis"
	"github.com/Ramsey-B/productsync/pkg/routes"
	"github.com/Ramsey-B/productsync/pkg/routes/health"
	"github.com/Ramsey-B/productsync/pkg/startup"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/store/memory"
	"github.com/Ramsey-B/productsync/pkg/store/postgres"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

const (
	depTracing   = "tracing"
	depStore     = "store"
	depRedis     = "redis"
	depGraph     = "graph"
	depProducer  = "kafka-producer"
	depProcessor = "processor"
	depHTTP      = "http"
	depConsumer  = "kafka-consumer"
)

type mode int

const (
	// modeServe runs the HTTP API and, when enabled, the ingest consumer.
	modeServe mode = iota
	// modeBatch builds only the processing pipeline.
	modeBatch
)

// application owns every long-lived component. Components are built inside
// startup dependencies so a failed connection is retried with backoff.
type application struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	checker *health.Checker

	db        *database.DatabaseInstance
	store     store.Store
	redis     *redis.Client
	dlq       *redis.DeadLetterQueue
	graph     *graph.Client
	producer  *kafka.Producer
	processor *processor.Processor
	consumer  *kafka.Consumer
	server    *http.Server

	shutdownTracing func(context.Context) error
	serverErr       chan error
}

func newApplication(cfg *config.Config, logger ectologger.Logger, m mode) *application {
	a := &application{
		cfg:       cfg,
		logger:    logger,
		startup:   startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker:   health.NewChecker(cfg.Version),
		serverErr: make(chan error, 1),
	}

	processorRequires := []string{depTracing, depStore}

	a.startup.AddDependency(&startup.Dependency{
		Name:      depTracing,
		StartFunc: a.startTracing,
		StopFunc:  func(ctx context.Context) error { return a.shutdownTracing(ctx) },
	})
	a.startup.AddDependency(&startup.Dependency{
		Name:      depStore,
		Requires:  []string{depTracing},
		StartFunc: a.startStore,
		StopFunc:  a.stopStore,
	})
	if cfg.RedisEnabled {
		processorRequires = append(processorRequires, depRedis)
		a.startup.AddDependency(&startup.Dependency{
			Name:      depRedis,
			StartFunc: a.startRedis,
			StopFunc:  func(context.Context) error { return a.redis.Close() },
		})
	}
	if cfg.GraphEnabled {
		processorRequires = append(processorRequires, depGraph)
		a.startup.AddDependency(&startup.Dependency{
			Name:      depGraph,
			StartFunc: a.startGraph,
			StopFunc:  func(ctx context.Context) error { return a.graph.Close(ctx) },
		})
	}
	if cfg.KafkaProducerEnabled {
		processorRequires = append(processorRequires, depProducer)
		a.startup.AddDependency(&startup.Dependency{
			Name: depProducer,
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(cfg.Producer(), logger)
				return nil
			},
			StopFunc: func(context.Context) error { return a.producer.Close() },
		})
	}
	a.startup.AddDependency(&startup.Dependency{
		Name:      depProcessor,
		Requires:  processorRequires,
		StartFunc: a.startProcessor,
	})

	if m != modeServe {
		return a
	}

	a.startup.AddDependency(&startup.Dependency{
		Name:      depHTTP,
		Requires:  []string{depProcessor},
		StartFunc: a.startHTTP,
		StopFunc:  func(ctx context.Context) error { return a.server.Shutdown(ctx) },
	})
	if cfg.KafkaConsumerEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name:      depConsumer,
			Requires:  []string{depProcessor, depRedis},
			StartFunc: a.startConsumer,
			StopFunc:  func(context.Context) error { return a.consumer.Stop() },
		})
	}
	return a
}

func (a *application) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *application) Stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

func (a *application) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, a.cfg.Tracing(), a.logger)
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

func (a *application) startStore(ctx context.Context) error {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.Warn("Using the in-memory catalog store; data is lost on exit")
		a.store = memory.New()
		return nil
	}

	if a.db == nil {
		db, err := database.Open(a.cfg.Database(), a.logger)
		if err != nil {
			return err
		}
		a.db = db
	}
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if a.cfg.DatabaseMigrateOnStart {
		migrations := database.NewMigrationService(a.logger, a.cfg.Migration())
		if err := migrations.MigratePostgres(a.db.DB.DB); err != nil {
			return err
		}
	}

	a.store = postgres.New(a.db, a.logger)
	a.checker.AddCheck("database", a.db.PingContext)
	return nil
}

func (a *application) stopStore(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *application) startRedis(ctx context.Context) error {
	client, err := redis.Connect(ctx, a.cfg.Redis(), a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.dlq = redis.NewDeadLetterQueue(client, a.cfg.DLQStream, a.logger)
	a.checker.AddCheck("redis", client.Ping)
	return nil
}

func (a *application) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(a.cfg.Graph(), a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("failed to reach graph database: %w", err)
	}
	a.graph = client
	a.checker.AddCheck("graph", client.VerifyConnectivity)
	return nil
}

func (a *application) startProcessor(context.Context) error {
	var embedder embedding.Embedder = embedding.NewHashingEmbedder(a.cfg.EmbeddingDimensions)
	if a.redis != nil {
		embedder = embedding.NewCachedEmbedder(embedder, a.redis, a.cfg.EmbeddingCacheTTL, a.logger)
	}

	matchCfg := a.cfg.Matching()
	normalizer := normalization.NewNormalizer(embedder, a.cfg.Normalization(), a.logger)
	proc := processor.NewProcessor(
		a.logger,
		a.store,
		normalizer,
		matching.NewRetriever(a.store, normalizer, matchCfg, a.logger),
		matching.NewSimilarityScorer(matchCfg),
		matching.NewResolver(matchCfg),
		a.cfg.Processor(),
	)

	if a.redis != nil {
		locker := redis.NewLocker(a.redis, a.cfg.AppName+":lock:")
		proc.SetLocker(processor.NewRedisKeyLocker(locker, a.cfg.RedisLockTTL, a.cfg.RedisLockWait, a.logger))
	}
	if a.producer != nil {
		proc.SetNotifier(events.NewEmitter(a.producer, a.logger))
	}
	if a.graph != nil {
		proc.SetProjector(graph.NewCatalogProjector(a.graph, a.logger))
	}

	a.processor = proc
	return nil
}

func (a *application) startHTTP(context.Context) error {
	if a.server == nil {
		if _, err := routes.NewContainer(a.cfg.AppName, routes.Dependencies{
			Processor: a.processor,
			Store:     a.store,
			Logger:    a.logger,
		}); err != nil {
			return err
		}

		e := routes.NewServer(routes.ServerConfig{
			ServiceName: a.cfg.AppName,
			ContainerID: a.cfg.AppName,
			BodyLimit:   a.cfg.HttpServerBodyLimit,
		}, a.logger, a.checker)

		a.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Port),
			Handler:           e,
			ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
			MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
		}
	}

	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serverErr <- err
		}
	}()
	a.logger.Infof("HTTP server listening on %s", a.server.Addr)
	return nil
}

func (a *application) startConsumer(ctx context.Context) error {
	handler := ingest.NewHandler(a.processor, a.dlq, a.logger)
	a.consumer = kafka.NewConsumer(a.cfg.Consumer(), a.logger, handler.Handle)
	a.checker.AddCheck("kafka_consumer", func(context.Context) error {
		if !a.consumer.Health() {
			return errors.New("consumer is not running")
		}
		return nil
	})
	return a.consumer.Start(context.WithoutCancel(ctx))
}
