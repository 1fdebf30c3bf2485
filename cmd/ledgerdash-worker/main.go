package main

import (
	"context"
	"os"
	"time"

	"ledgerdash/internal/amqp"
	"ledgerdash/internal/api"
	"ledgerdash/internal/backend"
	"ledgerdash/internal/catalog"
	"ledgerdash/internal/cli"
	applog "ledgerdash/internal/log"
	"ledgerdash/internal/services"
	"ledgerdash/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting ledgerdash-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Queued jobs run with the worker's own token.
	sess, err := api.ResolveSession(cfg.APIToken, cfg.APITokenFile)
	if err != nil {
		logger.Error("No service token", applog.FieldError, err.Error())
		os.Exit(1)
	}
	client, err := api.NewClient(cfg.APIBaseURL,
		api.WithHTTPClient(api.NewHTTPClient(cfg.HTTPTimeout)),
		api.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize backend client", applog.FieldError, err.Error())
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize export backend", applog.FieldError, err.Error())
		os.Exit(1)
	}
	if res.Cleanup != nil {
		defer res.Cleanup()
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportCfg := services.DefaultExportServiceConfig()
	exportCfg.Destination = backendCfg.Type.String()
	svc := services.NewExportService(catalog.Default(),
		catalog.Deps{Client: client, Session: sess, Logger: logger},
		res.Backend, repo, amqpClient, exportCfg)

	w := worker.NewExportWorker(amqpClient, svc.HandleJob, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := w.Stop(ctx); err != nil {
			logger.Error("Worker shutdown error", applog.FieldError, err.Error())
		}
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start export worker", applog.FieldError, err.Error())
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		<-done
	case <-w.Done():
		if err := w.Err(); err != nil {
			logger.Error("Export worker exited", applog.FieldError, err.Error())
			os.Exit(1)
		}
	}
	logger.Info("Worker stopped gracefully", "backend", backendCfg.Type.String())
}
