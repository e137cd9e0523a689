package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EntryGate/internal/domain/repository"
	"EntryGate/internal/handler/ws"
	mid "EntryGate/internal/middleware"
	"EntryGate/internal/service/feed"
	"EntryGate/internal/service/ratelimit"
	"EntryGate/internal/usecase"
	pkgch "EntryGate/pkg/clickhouse"
	"EntryGate/pkg/config"
	xhttp "EntryGate/pkg/http"
	pkgkafka "EntryGate/pkg/kafka"
	applogger "EntryGate/pkg/logger"
	pkgpg "EntryGate/pkg/postgres"
)

const sweepInterval = time.Minute

// Components are the long-lived parts the App starts and stops. Optional
// ones are nil when their backend is disabled.
type Components struct {
	Conditions *usecase.ConditionService
	Store      repository.ConditionStore
	Pipeline   *mid.SnapshotPipeline
	Consumer   *pkgkafka.Consumer
	Feed       *feed.Client
	Decisions  repository.DecisionLog
	Publisher  repository.DecisionPublisher
	Hub        *ws.Hub
	Limiter    *ratelimit.Limiter
	Handler    xhttp.Handler
	Postgres   *pkgpg.Client
	ClickHouse *pkgch.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, log: l, c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and shuts down when ctx ends.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.c.Handler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(a.cfg.Metrics.Path),
		xhttp.WithSlowRequest(a.cfg.Server.SlowRequest),
		xhttp.WithLogger(a.log),
	)

	if a.c.Hub != nil {
		go a.c.Hub.Run(bg)
	}

	// A single in-memory instance is the only writer, nothing to poll.
	if a.c.Conditions != nil && a.cfg.Conditions.Backend != config.BackendMemory {
		go a.c.Conditions.Watch(bg, a.cfg.Conditions.RefreshInterval)
		a.log.Info("conditions refresh started",
			applogger.String("backend", a.cfg.Conditions.Backend),
			applogger.Duration("interval", a.cfg.Conditions.RefreshInterval))
	}

	go a.sweep(bg)

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.SnapshotTopic))
	}

	feedDone := make(chan struct{})
	if a.c.Feed != nil {
		go func() {
			defer close(feedDone)
			if err := a.c.Feed.Run(bg); err != nil {
				a.log.Error("snapshot feed stopped", applogger.Error(err))
			}
		}()
		a.log.Info("snapshot feed started", applogger.String("url", a.cfg.Feed.URL))
	} else {
		close(feedDone)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	<-feedDone
	return a.shutdown()
}

// sweep drops throttle and rate-limit state for idle keys.
func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := 0
			if a.c.Pipeline != nil {
				n += a.c.Pipeline.SweepThrottle()
			}
			if a.c.Limiter != nil {
				n += a.c.Limiter.Sweep()
			}
			if n > 0 {
				a.log.Debug("idle limiter keys dropped", applogger.Int("count", n))
			}
		}
	}
}

// shutdown stops intake first, then drains and closes the sinks.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.c.Decisions != nil {
		if err := a.c.Decisions.Close(); err != nil {
			a.log.Warn("decision log close error", applogger.Error(err))
		}
	}

	// The collector ships through the same producer the publisher closes.
	a.log.RemoveCollector()
	if a.c.Publisher != nil {
		if err := a.c.Publisher.Close(); err != nil {
			a.log.Warn("decision publisher close error", applogger.Error(err))
		}
	}

	if a.c.Store != nil {
		if err := a.c.Store.Close(); err != nil {
			a.log.Warn("condition store close error", applogger.Error(err))
		}
	}
	if a.c.Postgres != nil {
		a.c.Postgres.Close()
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
