package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/docustream/report-engine/internal/api_server"
	"github.com/docustream/report-engine/internal/artifacts"
	"github.com/docustream/report-engine/internal/config"
	"github.com/docustream/report-engine/internal/events"
	"github.com/docustream/report-engine/internal/notifier"
	"github.com/docustream/report-engine/internal/renderer"
	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the report engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting report engine")
		defer zap.S().Info("Report engine stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(cmd.Context()); err != nil {
			zap.S().Fatalf("running initial migration: %v", err)
		}

		artifactStore, err := artifacts.NewMinioStore(
			artifacts.WithEndpoint(cfg.Storage.Endpoint),
			artifacts.WithBucket(cfg.Storage.Bucket),
			artifacts.WithAccessKey(cfg.Storage.AccessKey),
			artifacts.WithSecretKey(cfg.Storage.SecretKey),
			artifacts.WithSSL(cfg.Storage.UseSSL),
		)
		if err != nil {
			zap.S().Fatalf("initializing artifact store: %v", err)
		}

		var reportNotifier notifier.Notifier = &notifier.StdoutNotifier{}
		if cfg.Email.Host != "" {
			reportNotifier = notifier.NewSmtpNotifier(
				cfg.Email.Host, cfg.Email.Port, cfg.Email.User, cfg.Email.Password,
				notifier.WithFrom(cfg.Email.From),
				notifier.WithBaseUrl(cfg.Service.BaseUrl),
			)
		}

		ep := events.NewEventProducer(&events.StdoutWriter{})
		defer func() { _ = ep.Close() }()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalf("creating listener: %s", err)
			}

			server := apiserver.New(cfg, s, listener, renderer.NewHTMLRenderer(), artifactStore, reportNotifier, ep, true)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalf("Error running server: %s", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalf("creating listener: %s", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalf("Error running metrics server: %s", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
