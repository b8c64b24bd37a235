// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Command concord-chat-service runs the realtime chat core: the
// websocket gateway, the fanout engine, and the social store behind
// them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/concord-chat/concord/gateway"
	"github.com/concord-chat/concord/lib/clock"
	"github.com/concord-chat/concord/lib/config"
	"github.com/concord-chat/concord/lib/process"
	"github.com/concord-chat/concord/realtime"
	"github.com/concord-chat/concord/social"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to concord.yaml (overrides CONCORD_CONFIG)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		process.Fatal(err)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	logger.Info("starting",
		"version", version,
		"environment", cfg.Environment,
		"addr", cfg.Listen.Addr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := realtime.NewRegistry()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	metrics := realtime.NewMetrics(promReg, registry.Len)

	engine := realtime.NewEngine(registry, logger, metrics)

	store, err := social.Open(social.StoreConfig{
		Path:      cfg.Store.Path,
		PoolSize:  cfg.Store.PoolSize,
		Clock:     clock.Real(),
		Logger:    logger,
		Publisher: engine,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	gw := gateway.New(registry, engine, clock.Real(), logger, gateway.Config{
		SendBuffer:      cfg.Gateway.SendBuffer,
		MaxEventBytes:   cfg.Gateway.MaxEventBytes,
		EventsPerSecond: cfg.Gateway.EventsPerSecond,
		EventBurst:      cfg.Gateway.EventBurst,
		PingInterval:    cfg.Gateway.PingInterval,
		AllowAnyOrigin:  cfg.Environment != config.Production,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.Listen.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Listen.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.Listen.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Listen.MetricsAddr, Handler: metricsMux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Listen.MetricsAddr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", "error", err)
		}
	}
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
