// Command lorecored runs the lorecore HTTP server: project and element
// CRUD with the relationship graph API and element media attachments.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"lorecore/internal/config"
	"lorecore/internal/core"
	"lorecore/internal/logging"
	"lorecore/internal/media"
	"lorecore/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lorecored:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("lorecored", pflag.ContinueOnError)
	flags.Int("port", 8080, "HTTP listen port")
	flags.CountP("verbose", "v", "increase log verbosity")
	flags.Bool("jsonlogs", false, "emit JSON logs")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, logging.LevelForVerbosity(cfg.Verbose), cfg.JSONLogs)

	engine := core.DefaultRulesEngine()
	store, err := core.OpenPersistentStore(core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.Path,
		PostgresDSN: cfg.Storage.DSN,
	}, engine)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	mediaStore, err := media.Open(context.Background(), media.Config{
		Driver:          media.Driver(cfg.Media.Driver),
		Root:            cfg.Media.Root,
		Bucket:          cfg.Media.Bucket,
		Region:          cfg.Media.Region,
		Endpoint:        cfg.Media.Endpoint,
		AccessKeyID:     cfg.Media.AccessKey,
		SecretAccessKey: cfg.Media.SecretKey,
		SessionToken:    cfg.Media.SessionToken,
		PathStyle:       cfg.Media.PathStyle,
	})
	if err != nil {
		return fmt.Errorf("open media store: %w", err)
	}

	metrics, err := core.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	service := core.NewService(store,
		core.WithLogger(core.NewSlogLogger(logger)),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewLoggingAuditRecorder(core.NewSlogLogger(logger))),
	)

	logger.Info("lorecored starting",
		"port", cfg.Port,
		"storage", cfg.Storage.Driver,
		"media", cfg.Media.Driver,
	)
	server := web.NewServer(service, mediaStore, logger, prometheus.DefaultGatherer)
	return server.Start(cfg.Port)
}
