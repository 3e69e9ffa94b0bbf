package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cochin-smart-city/citypulse/internal/config"
	"github.com/cochin-smart-city/citypulse/internal/db"
	"github.com/cochin-smart-city/citypulse/internal/notify"
	"github.com/cochin-smart-city/citypulse/pkg/middleware"
	"github.com/cochin-smart-city/citypulse/pkg/server"
	"github.com/cochin-smart-city/citypulse/pkg/toast"
	"github.com/cochin-smart-city/citypulse/pkg/upload"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notification server",
		Long: `Start the CityPulse server.

Configuration is read from citypulse.json in the working directory
(or --config), then CITYPULSE_* environment variables, then flags.

Examples:
  citypulse serve
  citypulse serve --addr=:8080
  citypulse serve --config=/etc/citypulse/citypulse.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr, verbose)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.FileName, "Path to configuration file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from citypulse.json)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func runServe(configPath, addr string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Address = addr
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config warning", "warning", w)
	}

	ctx := context.Background()

	database, err := db.Connect(ctx, db.Config{
		Path:            cfg.Database.Path,
		RequireWritable: cfg.Database.RequireWritable,
		Logger:          logger.With("component", "db"),
	})
	if err != nil {
		return err
	}
	defer database.Close()

	store := toast.New(
		toast.WithLimit(cfg.Toasts.Limit),
		toast.WithRemoveDelay(cfg.ToastRemoveDelay()),
		toast.WithMetrics(prometheus.DefaultRegisterer),
	)
	defer store.Close()

	svc, err := notify.NewService(ctx, database, store, logger.With("component", "notify"))
	if err != nil {
		return err
	}

	uploads, err := buildUploadStore(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Info("citypulse starting",
		"name", cfg.Name,
		"address", cfg.Address,
		"database", cfg.Database.Path,
		"uploads", fmt.Sprintf("%v", uploads),
		"toastLimit", cfg.Toasts.Limit,
		"removeDelay", cfg.ToastRemoveDelay(),
	)

	srv := server.New(
		&server.Config{Address: cfg.Address},
		store,
		server.WithDatabase(database),
		server.WithNotifyService(svc),
		server.WithUploads(uploads),
		server.WithMiddleware(
			middleware.Metrics(),
			middleware.OpenTelemetry(),
		),
		server.WithLogger(logger.With("component", "server")),
	)

	return srv.Run()
}

// buildUploadStore picks the attachment backend: S3 when a bucket is
// configured, local disk otherwise.
func buildUploadStore(ctx context.Context, cfg *config.Config) (upload.Store, error) {
	if cfg.Uploads.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return upload.NewS3Store(client, cfg.Uploads.S3Bucket, cfg.Uploads.S3Prefix, cfg.Uploads.MaxSizeBytes), nil
	}
	return upload.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.MaxSizeBytes)
}
