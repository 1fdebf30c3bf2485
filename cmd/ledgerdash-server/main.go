package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledgerdash/internal/amqp"
	"ledgerdash/internal/api"
	"ledgerdash/internal/catalog"
	"ledgerdash/internal/cli"
	apphttp "ledgerdash/internal/http"
	applog "ledgerdash/internal/log"
	"ledgerdash/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	logger.Info("Starting ledgerdash-server")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client, err := api.NewClient(cfg.APIBaseURL,
		api.WithHTTPClient(api.NewHTTPClient(cfg.HTTPTimeout)),
		api.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize backend client", applog.FieldError, err.Error())
		os.Exit(1)
	}

	probes := map[string]apphttp.Probe{
		"sqlite": repo.Ping,
	}

	registry := catalog.Default()

	// Queued exports need a broker; the gateway still serves tables without one.
	var exports *services.ExportService
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()

		exports = services.NewExportService(registry, catalog.Deps{Client: client, Logger: logger},
			nil, repo, amqpClient, services.DefaultExportServiceConfig())
		probes["amqp"] = func(context.Context) error { return amqpClient.Ping() }
	} else {
		logger.Info("Export queue disabled - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		TableCacheSize:     cfg.TableCacheSize,
		TableCacheTTL:      cfg.TableCacheTTL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Registry: registry,
		Client:   client,
		Store:    repo,
		Exports:  exports,
		Probes:   probes,
		Logger:   logger,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 2 * time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
	})

	logger.Info("Listening", "port", cfg.Port, "api", cfg.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
