package di

import (
    "context"
    "fmt"
    "net"
    "strconv"
    "time"

    drepo "StratTune/internal/domain/repository"
    "StratTune/internal/handler/api"
    mid "StratTune/internal/middleware"
    internalrepo "StratTune/internal/repository"
    "StratTune/internal/services/normalizer"
    "StratTune/internal/services/stream"
    "StratTune/internal/usecase"
    pkgcache "StratTune/pkg/cache"
    pkgch "StratTune/pkg/clickhouse"
    "StratTune/pkg/config"
    pkgkafka "StratTune/pkg/kafka"
    applogger "StratTune/pkg/logger"
    "StratTune/pkg/metrics"
    "StratTune/pkg/server"
    pkgsqlite "StratTune/pkg/sqlite"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideSQLiteClient opens the embedded store.
func ProvideSQLiteClient(cfg *config.Config) (*pkgsqlite.Client, error) {
	client, err := pkgsqlite.NewClient(
		pkgsqlite.WithPath(cfg.Store.Path),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite client: %w", err)
	}
	return client, nil
}

// ProvideStore creates the durable store and ensures its schema.
func ProvideStore(client *pkgsqlite.Client, cfg *config.Config, l *applogger.Logger) (drepo.Store, error) {
	store := internalrepo.NewSQLiteStore(client, cfg.Store.BusyRetries, cfg.Store.RetryBackoff)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return store, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideNormalizer creates the sample normalizer.
func ProvideNormalizer() *normalizer.Normalizer {
	return normalizer.New()
}

// ProvideClickHouseClient creates the archive client, or nil when the mirror
// is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.Archive.Host),
		pkgch.WithPort(cfg.Archive.Port),
		pkgch.WithDatabase(cfg.Archive.Database),
		pkgch.WithCredentials(cfg.Archive.User, cfg.Archive.Password),
		pkgch.WithTimeouts(cfg.Archive.DialTimeout, cfg.Archive.ReadTimeout, cfg.Archive.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.Archive.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideArchivePipeline creates the async archive mirror, or nil.
func ProvideArchivePipeline(chClient *pkgch.Client, cfg *config.Config, m drepo.Metrics, l *applogger.Logger) (*mid.ArchivePipeline, error) {
	if chClient == nil {
		return nil, nil
	}
	archiver := internalrepo.NewClickHouseArchiver(chClient)
	archiver.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archiver.Init(ctx); err != nil {
		return nil, fmt.Errorf("archive schema: %w", err)
	}

	return mid.NewArchivePipeline(archiver, m,
		mid.WithBufferSize(cfg.Archive.BufferSize),
	), nil
}

// ProvideKafkaProducer creates a Kafka producer for audit export, or nil.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Audit.Brokers),
		pkgkafka.WithCompression(cfg.Audit.Compression),
		pkgkafka.WithRequiredAcks(cfg.Audit.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Audit.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Audit.WriteTimeout, cfg.Audit.ReadTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAuditPublisher creates the audit topic publisher, or nil.
func ProvideAuditPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) drepo.AuditPublisher {
	if producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Audit.Topic)
	pub.SetLogger(l)
	return pub
}

// ProvideCache wires the response cache. With Redis enabled, a layered
// memory+Redis cache is used; otherwise a process-local memory cache.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Cache.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Cache.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvideStreamHub creates the live push hub, or nil.
func ProvideStreamHub(cfg *config.Config, l *applogger.Logger) *stream.Hub {
	if !cfg.Stream.Enabled {
		return nil
	}
	hub := stream.NewHub()
	hub.SetLogger(l)
	return hub
}

// ProvideController builds the tuning controller with all optional sinks.
func ProvideController(
	cfg *config.Config,
	norm *normalizer.Normalizer,
	store drepo.Store,
	m drepo.Metrics,
	audit drepo.AuditPublisher,
	pipeline *mid.ArchivePipeline,
	hub *stream.Hub,
	l *applogger.Logger,
) (*usecase.Controller, error) {
	ctlCfg := usecase.Config{
		HysteresisBars:    cfg.Controller.HysteresisBars,
		BufferCapacity:    cfg.Controller.BufferCapacity,
		WeakGradient:      cfg.Controller.WeakGradient,
		DecelThreshold:    cfg.Controller.DecelThreshold,
		AutoApplyEnabled:  cfg.Controller.AutoApplyEnabled,
		RecoveryFile:      cfg.Controller.RecoveryFile,
		ArtifactPaths:     cfg.Controller.ArtifactPaths,
		PerformanceWindow: cfg.Controller.PerformanceWindow,
		SnapshotInterval:  cfg.Controller.SnapshotInterval,
		RetentionDays:     cfg.Store.RetentionDays,
		PruneInterval:     cfg.Store.PruneInterval,
	}

	opts := []usecase.Option{}
	if audit != nil {
		opts = append(opts, usecase.WithAuditPublisher(audit))
	}
	if pipeline != nil {
		opts = append(opts, usecase.WithListener(pipeline))
	}
	if hub != nil {
		opts = append(opts, usecase.WithListener(hub))
	}

	ctl, err := usecase.New(ctlCfg, norm, store, m, l, opts...)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	return ctl, nil
}

// ProvideHandler builds the HTTP handler.
func ProvideHandler(
	cfg *config.Config,
	ctl *usecase.Controller,
	store drepo.Store,
	cache pkgcache.Service,
	hub *stream.Hub,
	l *applogger.Logger,
) *api.ControllerHandler {
	h := api.NewControllerHandler(l, ctl, store)
	h.SetCache(cache, cfg.Cache.TTL)
	if hub != nil {
		h.SetStreamHub(hub)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	ctl *usecase.Controller,
	handler *api.ControllerHandler,
	store drepo.Store,
	sqliteClient *pkgsqlite.Client,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	pipeline *mid.ArchivePipeline,
	hub *stream.Hub,
) *server.App {
	return server.New(cfg, l, ctl, handler, store, sqliteClient, chClient, producer, pipeline, hub)
}
