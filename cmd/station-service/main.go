package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/api/handler"
	"github.com/cuongbtq/printcheck-station/internal/api/router"
	"github.com/cuongbtq/printcheck-station/internal/capture"
	"github.com/cuongbtq/printcheck-station/internal/config"
	"github.com/cuongbtq/printcheck-station/internal/device"
	"github.com/cuongbtq/printcheck-station/internal/notify"
	"github.com/cuongbtq/printcheck-station/internal/orchestrator"
	"github.com/cuongbtq/printcheck-station/internal/recovery"
	"github.com/cuongbtq/printcheck-station/internal/validation"
	"github.com/cuongbtq/printcheck-station/internal/worker"
	"github.com/cuongbtq/printcheck-station/shared/logger"
	"github.com/cuongbtq/printcheck-station/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("STATION_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/station-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	settingsPath := flag.String("station-settings", os.Getenv("STATION_SETTINGS_PATH"), "Path to the KEY=VALUE station settings file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var unknownSettings []string
	if *settingsPath != "" {
		settings, err := config.LoadStationSettings(*settingsPath)
		if err != nil {
			return fmt.Errorf("failed to load station settings: %w", err)
		}
		if unknownSettings, err = cfg.ApplyStationSettings(settings); err != nil {
			return fmt.Errorf("invalid station settings: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting station service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("high_fidelity", cfg.Camera.HighFidelity),
	)
	for _, key := range unknownSettings {
		appLogger.Warn("Ignoring unknown station setting", slog.String("key", key))
	}

	// Hardware and vision pipeline
	acquisition := initAcquisition(cfg, appLogger.Logger)

	stages, err := validation.NewHTTPStages(&validation.HTTPStagesConfig{
		Logger:  appLogger.Logger,
		BaseURL: cfg.Inference.BaseURL,
		Paths: validation.Paths{
			Logos:    cfg.Inference.Paths.Logos,
			Position: cfg.Inference.Paths.Position,
			QR:       cfg.Inference.Paths.QR,
			OCR:      cfg.Inference.Paths.OCR,
		},
		Timeout: cfg.Inference.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize inference client: %w", err)
	}

	dispatcher := validation.NewDispatcher(&validation.DispatcherConfig{
		Logger:             appLogger.Logger,
		Stages:             stages,
		Parallel:           cfg.Validation.Parallel,
		RequireMeterQRSize: cfg.Validation.RequireMeterQRSize,
		StageTimeout:       cfg.Validation.StageTimeout,
	})

	// Validation runs off the request path on the worker pool
	pool := worker.NewPool(&worker.Config{
		Logger:      appLogger.Logger,
		WorkerID:    cfg.App.Name,
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
		JobTimeout:  cfg.Worker.JobTimeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	publisher, err := initPublisher(&cfg.Notify, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize result publisher: %w", err)
	}

	station := orchestrator.New(&orchestrator.Config{
		Logger:         appLogger.Logger,
		Acquirer:       acquisition,
		Validator:      dispatcher,
		Pool:           pool,
		Publisher:      publisher,
		PublishTimeout: cfg.Notify.PublishTimeout,
	})

	// Initialize router
	r := initRouter(cfg.App.Environment, appLogger.Logger, station)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	appLogger.Info("Station service is running",
		slog.String("address", addr),
		slog.String("inference", cfg.Inference.BaseURL),
		slog.Bool("notify", cfg.Notify.Enabled),
	)

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed", slog.Any("error", err))
		pool.Stop()
		_ = publisher.Close()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	// Drain validation, then let pending result events go out
	done := make(chan struct{})
	go func() {
		pool.Stop()
		station.Wait()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Validation workers stopped")
	case <-shutdownCtx.Done():
		appLogger.Warn("Shutdown timeout exceeded, abandoning running validations")
	}

	if err := publisher.Close(); err != nil {
		appLogger.Warn("Failed to close result publisher", slog.Any("error", err))
	}

	appLogger.Info("Station service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initAcquisition wires the camera hardware behind the recovery controller
func initAcquisition(cfg *config.Config, logger *slog.Logger) *recovery.Controller {
	runner := device.NewExecRunner(logger)
	controls := device.NewControls(runner)

	acquirer := capture.NewAcquirer(&capture.AcquirerConfig{
		Logger:       logger,
		Source:       capture.NewFFmpegSource(logger, cfg.Camera.FFmpegPath),
		Formats:      controls,
		Fast:         capture.FastTiming(),
		HighFidelity: capture.HighFidelityTiming(),
		Timeout:      cfg.Camera.CaptureTimeout,
	})

	return recovery.NewController(&recovery.Config{
		Logger: logger,
		Hub: device.NewHub(&device.HubConfig{
			Logger:        logger,
			Runner:        runner,
			Location:      cfg.USB.HubLocation,
			Ports:         cfg.USB.Ports,
			PowerOffDelay: cfg.USB.PowerOffDelay,
			SettleDelay:   cfg.USB.SettleDelay,
		}),
		Driver: device.NewDriver(&device.DriverConfig{
			Logger:      logger,
			Runner:      runner,
			Module:      cfg.Recovery.DriverModule,
			UnloadDelay: cfg.Recovery.UnloadDelay,
			ReloadDelay: cfg.Recovery.ReloadDelay,
		}),
		Resolver: device.NewResolver(&device.ResolverConfig{
			Logger:          logger,
			Runner:          runner,
			Pattern:         cfg.Camera.DevicePattern,
			MeterPhysicalID: cfg.Camera.Meter.PhysicalID,
			NICPhysicalID:   cfg.Camera.NIC.PhysicalID,
			MeterFallback:   cfg.Camera.Meter.FallbackDevice,
			NICFallback:     cfg.Camera.NIC.FallbackDevice,
		}),
		Exposure:      controls,
		Capturer:      acquirer,
		Gate:          capture.NewGate(cfg.Gate.MaxDarkRatio, cfg.Gate.DarkThreshold),
		Meter:         recovery.Camera{PhysicalID: cfg.Camera.Meter.PhysicalID, Rotation: cfg.Camera.Meter.Rotation},
		NIC:           recovery.Camera{PhysicalID: cfg.Camera.NIC.PhysicalID, Rotation: cfg.Camera.NIC.Rotation},
		Width:         cfg.Camera.Width,
		Height:        cfg.Camera.Height,
		HighFidelity:  cfg.Camera.HighFidelity,
		ExposureValue: cfg.Recovery.Exposure,
	})
}

// initPublisher connects to RabbitMQ when result publishing is enabled
func initPublisher(cfg *config.NotifyConfig, logger *slog.Logger) (notify.Publisher, error) {
	if !cfg.Enabled {
		return notify.NoopPublisher{}, nil
	}

	mq := &cfg.RabbitMQ
	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               mq.Host,
		Port:               mq.Port,
		User:               mq.User,
		Password:           mq.Password,
		VHost:              mq.VHost,
		ExchangeName:       mq.Exchange.Name,
		ExchangeType:       mq.Exchange.Type,
		ExchangeDurable:    mq.Exchange.Durable,
		ExchangeAutoDelete: mq.Exchange.AutoDelete,
		QueueName:          mq.Queue.Name,
		QueueDurable:       mq.Queue.Durable,
		RoutingKey:         mq.RoutingKey,
		RetryAttempts:      mq.Connection.RetryAttempts,
		RetryInterval:      mq.Connection.RetryInterval,
		Heartbeat:          mq.Connection.Heartbeat,
		PublishRetries:     mq.Publish.RetryAttempts,
		PublishRetryDelay:  mq.Publish.RetryInterval,
		PublishBackoffMult: mq.Publish.BackoffMultiplier,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("RabbitMQ connection established", slog.String("exchange", mq.Exchange.Name))
	return notify.NewAMQPPublisher(client, logger), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, station handler.Station) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:  logger,
		Station: station,
	})
}
