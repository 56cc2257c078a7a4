package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "StratTune/internal/domain/repository"
	"StratTune/internal/handler/api"
	mid "StratTune/internal/middleware"
	"StratTune/internal/services/stream"
	"StratTune/internal/usecase"
	pkgch "StratTune/pkg/clickhouse"
	"StratTune/pkg/config"
	xhttp "StratTune/pkg/http"
	pkgkafka "StratTune/pkg/kafka"
	applogger "StratTune/pkg/logger"
	pkgsqlite "StratTune/pkg/sqlite"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg          *config.Config
	l            *applogger.Logger
	ctl          *usecase.Controller
	handler      *api.ControllerHandler
	store        drepo.Store
	sqliteClient *pkgsqlite.Client
	chClient     *pkgch.Client
	producer     *pkgkafka.Producer
	pipeline     *mid.ArchivePipeline
	hub          *stream.Hub
	httpServer   *xhttp.Server
}

// New creates a new App instance with all dependencies. Optional sinks may be
// nil; only the store, controller and handler are mandatory.
func New(
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
) *App {
	return &App{
		cfg:          cfg,
		l:            l,
		ctl:          ctl,
		handler:      handler,
		store:        store,
		sqliteClient: sqliteClient,
		chClient:     chClient,
		producer:     producer,
		pipeline:     pipeline,
		hub:          hub,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start archive mirror
	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.l.Info("archive pipeline started",
			applogger.String("host", a.cfg.Archive.Host),
			applogger.Int("buffer", a.cfg.Archive.BufferSize),
		)
	}

	// Start snapshot and retention jobs
	a.ctl.StartJobs(ctx)

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("controller ready",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("auto_apply", a.ctl.AutoApplyEnabled()),
		applogger.Bool("archive", a.pipeline != nil),
		applogger.Bool("audit", a.producer != nil),
	)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// persist tuning state before anything closes
	if _, err := a.ctl.Snapshot(ctx, true); err != nil {
		a.l.Warn("shutdown snapshot error", applogger.Error(err))
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	// Disconnect stream clients
	if a.hub != nil {
		if err := a.hub.Close(); err != nil {
			a.l.Warn("stream hub close error", applogger.Error(err))
		}
	}

	// Drain the archive pipeline, then its client
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	// Close audit producer
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	// Close the embedded store last
	if err := a.store.Close(); err != nil {
		a.l.Warn("store close error", applogger.Error(err))
	}
	if a.sqliteClient != nil {
		if err := a.sqliteClient.Close(); err != nil {
			a.l.Warn("sqlite close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
