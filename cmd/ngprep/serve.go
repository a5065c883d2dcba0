package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngprep/internal/config"
	"github.com/iamwavecut/ngprep/internal/infra"
	"github.com/iamwavecut/ngprep/internal/lifecycle"
	"github.com/iamwavecut/ngprep/internal/observability"
	"github.com/iamwavecut/ngprep/internal/pipeline"
	"github.com/iamwavecut/ngprep/internal/server"
	"github.com/iamwavecut/ngprep/internal/utils/text"
)

const shutdownTimeout = 10 * time.Second

func serve(cfg config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	entry := log.WithField("context", "serve")

	shutdownTracing := observability.InitTracing()
	metrics := observability.NewMetrics()
	access, err := observability.NewAccessLogger(log.GetLevel() >= log.DebugLevel)
	if err != nil {
		entry.WithError(err).Error("cant create access logger")
		return 1
	}
	defer func() { _ = access.Sync() }()

	opts := []pipeline.Option{
		pipeline.WithWorkers(cfg.EffectiveWorkers()),
		pipeline.WithMemorySize(cfg.Cache.MemorySize),
		pipeline.WithMetrics(metrics),
	}
	if cfg.Cache.Enabled {
		store, err := openStore(ctx, cfg)
		if err != nil {
			entry.WithError(err).Warn("cache disabled")
		} else {
			defer closeStore(store)
			if stats, err := store.Stats(ctx); err == nil {
				entry.WithFields(log.Fields{"entries": stats.Entries, "hits": stats.Hits}).Info("cache opened")
			}
			opts = append(opts, pipeline.WithStore(store))
		}
	}
	p := pipeline.New(opts...)

	api := server.NewAPI(p, access, cfg.HTTP.MaxBody)
	rt := lifecycle.NewRuntime(
		server.NewListener("api", cfg.HTTP.Addr, api.Handler(), cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
	)
	if cfg.HTTP.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		rt.Register(server.NewListener("metrics", cfg.HTTP.MetricsAddr, mux, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout))
	}
	if err := rt.Start(ctx); err != nil {
		entry.WithError(err).Error("cant start")
		return 1
	}
	entry.WithField("rules_version", text.RulesVersion).Info("serving")

	exeChanged := infra.MonitorExecutable(ctx)
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			entry.Info("shutting down")
			waiting = false
		case _, ok := <-exeChanged:
			if !ok {
				exeChanged = nil
				continue
			}
			entry.Warn("executable file was modified")
			waiting = false
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	code := 0
	if err := rt.Stop(stopCtx); err != nil {
		entry.WithError(err).Error("cant stop cleanly")
		code = 1
	}
	if err := shutdownTracing(stopCtx); err != nil {
		entry.WithError(err).Warn("cant shutdown tracing")
	}
	return code
}
