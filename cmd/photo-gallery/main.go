package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/photo-gallery/pkg/blobstore"
	"github.com/yourorg/photo-gallery/pkg/config"
	"github.com/yourorg/photo-gallery/pkg/gallery"
	"github.com/yourorg/photo-gallery/pkg/httpservice"
	"github.com/yourorg/photo-gallery/pkg/logging"
	"github.com/yourorg/photo-gallery/pkg/notify"
	"github.com/yourorg/photo-gallery/pkg/telemetry"
)

func main() {
	configFile := flag.String("config", "", "optional JSON or YAML config file; environment variables take precedence")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped with error", logging.NewField("error", err))
		logging.Sync(logger)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFromFile(path)
	}
	return config.LoadConfigFromEnv()
}

func run(cfg *config.Config, logger logging.Logger) error {
	logger.Info("Starting photo gallery",
		logging.NewField("version", cfg.AppVersion),
		logging.NewField("environment", cfg.Environment),
		logging.NewField("storage_backend", cfg.StorageBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gateway, err := blobstore.NewGateway(backend, logger)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.Close(closeCtx); err != nil {
			logger.Warn("Failed to close upload event publisher", logging.NewField("error", err))
		}
	}()

	newRelic, err := telemetry.NewNewRelicClient(telemetry.NewRelicConfig{
		LicenseKey:  cfg.NewRelicLicenseKey,
		AppName:     cfg.AppName,
		ServiceName: cfg.AppName,
		Enabled:     cfg.NewRelicEnabled,
	}, logger)
	if err != nil {
		return err
	}
	defer newRelic.Shutdown(10 * time.Second)

	photos, err := gallery.NewHandler(gateway, publisher, gallery.Options{
		PhotosContainer: cfg.PhotosContainer,
		DefaultPageSize: int32(cfg.BlobListPageSize),
		Recorder:        newRelic,
	})
	if err != nil {
		return err
	}

	server, err := httpservice.NewServer(httpservice.ServerConfig{
		Port:                   cfg.HTTPPort,
		ReadTimeout:            time.Duration(cfg.HTTPReadTimeout) * time.Second,
		WriteTimeout:           time.Duration(cfg.HTTPWriteTimeout) * time.Second,
		IdleTimeout:            time.Duration(cfg.HTTPIdleTimeout) * time.Second,
		Logger:                 logger,
		ServiceName:            cfg.AppName,
		Version:                cfg.AppVersion,
		RateLimitRPS:           cfg.RateLimitRPS,
		RateLimitBurst:         cfg.RateLimitBurst,
		AllowedOrigins:         cfg.CORSAllowedOrigins,
		MaxBodySize:            cfg.MaxUploadBytes,
		HSTSEnabled:            cfg.HSTSEnabled,
		HTTPSRedirect:          cfg.HTTPSRedirect,
		StaticDir:              cfg.StaticDir,
		SlowRequestThresholdMs: cfg.SlowRequestThresholdMs,
		Telemetry:              newRelic,
	}, photos)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCertFile != "" {
			errCh <- server.StartTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// newBackend builds the single storage client shared by every request.
func newBackend(ctx context.Context, cfg *config.Config, logger logging.Logger) (blobstore.Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendAzure:
		return blobstore.NewAzureBackendFromConnectionString(cfg.BlobStorageConnectionString, blobstore.AzureOptions{
			BlockSize:   cfg.BlobUploadBlockSize,
			Concurrency: cfg.BlobUploadConcurrency,
		})
	case config.BackendS3:
		return blobstore.NewS3Backend(ctx, blobstore.S3Options{
			Region:      cfg.S3Region,
			Endpoint:    cfg.S3Endpoint,
			PartSize:    cfg.BlobUploadBlockSize,
			Concurrency: cfg.BlobUploadConcurrency,
			MaxBuckets:  int32(cfg.BlobListPageSize),
		})
	case config.BackendMemory:
		logger.Warn("Using in-memory storage; photos are lost on restart")
		m := blobstore.NewMemoryBackend()
		m.CreateContainer(cfg.PhotosContainer)
		return m, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func newPublisher(cfg *config.Config, logger logging.Logger) (notify.Publisher, error) {
	if cfg.UploadEventsConnectionString == "" {
		logger.Info("Upload events disabled (no connection string configured)")
		return notify.NopPublisher{}, nil
	}
	return notify.NewServiceBusPublisher(cfg.UploadEventsConnectionString, cfg.UploadEventsQueue, logger)
}
