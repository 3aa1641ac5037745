package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/handler/ws"
	"FinPulse/internal/middleware"
	"FinPulse/internal/usecase"
	"FinPulse/pkg/config"
	xhttp "FinPulse/pkg/http"
	pkgkafka "FinPulse/pkg/kafka"
	applogger "FinPulse/pkg/logger"
	"FinPulse/pkg/scheduler"
)

// Closer is an infrastructure client released after every component has stopped.
type Closer struct {
	Name  string
	Close func() error
}

// Components groups what App starts. Optional parts are nil when disabled in config.
type Components struct {
	Loop      *usecase.IngestionLoop
	Engine    *usecase.QueryEngine
	Pipeline  *middleware.SnapshotPipeline
	Hub       *ws.Hub
	Consumer  *pkgkafka.Consumer
	Archiver  pkgkafka.MessageHandler
	Scheduler *scheduler.Scheduler
	Heartbeat *usecase.HeartbeatJob
	HTTP      *xhttp.Server
	Closers   []Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components

	started  time.Time
	loopDone chan struct{}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start brings components up in dependency order. The ingestion loop runs until ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.Generative.Timeout)
	err := a.c.Engine.Probe(probeCtx)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, models.ErrGenerativeUnavailable) && !a.cfg.Generative.Enabled:
		a.log.Info("generative provider disabled, answering offline")
	default:
		a.log.Warn("generative probe failed, answering offline", applogger.Error(err))
	}

	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(ctx)
		a.log.Info("snapshot publication started", applogger.String("sink", a.cfg.Sink.Type))
	}

	if a.c.Consumer != nil && a.c.Archiver != nil {
		a.c.Consumer.RegisterHandler(a.c.Archiver)
		if err := a.c.Consumer.Start(); err != nil {
			return err
		}
	}

	if a.c.Scheduler != nil && a.c.Heartbeat != nil {
		if err := a.c.Scheduler.AddJob(a.cfg.Heartbeat.Schedule, a.c.Heartbeat); err != nil {
			return err
		}
		a.c.Scheduler.Start()
	}

	if err := a.c.HTTP.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		if err := a.c.Loop.Run(ctx); err != nil {
			a.log.Error("ingestion loop error", applogger.Error(err))
		}
	}()
	a.log.Info("finpulse started",
		applogger.Int("instruments", len(a.cfg.Universe.Symbols)),
		applogger.Int("port", a.cfg.Server.Port),
	)
	return nil
}

// Shutdown stops components in reverse start order, then closes infrastructure clients.
// The ingestion loop must already be cancelled through the ctx given to Start.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.loopDone != nil {
		select {
		case <-a.loopDone:
		case <-ctx.Done():
			a.log.Warn("ingestion loop did not stop in time")
		}
	}

	if a.c.Scheduler != nil {
		a.c.Scheduler.Stop()
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}

	if a.c.Hub != nil {
		a.c.Hub.Close()
	}

	for i := len(a.c.Closers) - 1; i >= 0; i-- {
		cl := a.c.Closers[i]
		if err := cl.Close(); err != nil {
			a.log.Warn("close error", applogger.String("component", cl.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete", applogger.Duration("uptime", time.Since(a.started)))
	a.log.RemoveCollector()
	return nil
}
