package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"PerpLens/internal/handler/api"
	"PerpLens/internal/repository"
	icache "PerpLens/internal/service/cache"
	"PerpLens/internal/usecase"
	pkgch "PerpLens/pkg/clickhouse"
	"PerpLens/pkg/config"
	xhttp "PerpLens/pkg/http"
	pkgkafka "PerpLens/pkg/kafka"
	applogger "PerpLens/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	collector   *usecase.FlowCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	FlowProc    *usecase.FlowProcessor
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	collector *usecase.FlowCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// init app logger (console info by default)
	l, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})

	// Setup Echo HTTP server using pkg/http and register routes via handler
	var httpHandler xhttp.Handler
	if a.httpHandler != nil {
		httpHandler = a.httpHandler
	} else if a.chClient != nil {
		bars := repository.NewCHBarStore(a.chClient)
		bars.SetLogger(l)
		flow := repository.NewCHFlowStore(a.chClient)
		flow.SetLogger(l)
		configs := repository.NewCHConfigStore(a.chClient)
		configs.SetLogger(l)
		if err := configs.Load(ctx); err != nil {
			l.Error("config store load error", applogger.Error(err))
			return err
		}

		reader := usecase.NewFlowReader(flow)
		regime := usecase.NewRegimeService(configs, bars, reader, l)
		regime.SetDefaults(a.cfg.Regime.DefaultTimeframe, a.cfg.Regime.FlowWindow)
		analyzer := usecase.NewThresholdAnalyzer(flow, l)

		h := api.NewHandler(l, regime, analyzer, configs)
		if a.cfg.Regime.Redis.Enabled {
			h.SetCache(icache.NewRedisCache(icache.RedisConfig{
				Addr:     a.cfg.Regime.Redis.Addr,
				Password: a.cfg.Regime.Redis.Password,
				DB:       a.cfg.Regime.Redis.DB,
			}))
		} else {
			h.SetCache(icache.NewTTLCache())
		}
		h.SetHealthCheck(func() error {
			hctx, hcancel := context.WithTimeout(context.Background(), a.cfg.ClickHouse.ReadTimeout)
			defer hcancel()
			return a.chClient.Health(hctx)
		})
		httpHandler = h
	}

	a.httpServer = xhttp.NewServer(httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start collector
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("collector started", applogger.Strings("symbols", a.cfg.Hyperliquid.Symbols))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l, err := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return err
	}
	l.Info("shutting down...")

	// Stop collector (pipeline + stream)
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop consumer before closing the storage it writes to
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Close processor resources (publisher/storage)
	if a.FlowProc != nil {
		a.FlowProc.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
