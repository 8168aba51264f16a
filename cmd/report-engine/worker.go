package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docustream/report-engine/internal/artifacts"
	"github.com/docustream/report-engine/internal/config"
	"github.com/docustream/report-engine/internal/events"
	"github.com/docustream/report-engine/internal/jobs"
	"github.com/docustream/report-engine/internal/notifier"
	"github.com/docustream/report-engine/internal/renderer"
	"github.com/docustream/report-engine/internal/service"
	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/pkg/log"
)

// workerCmd runs the job processor without the API surface. Used when report
// generation is scaled independently of request handling.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the report generation worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting report worker")
		defer zap.S().Info("Report worker stopped")

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

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
		defer cancel()

		pool, err := newPgxPool(ctx, cfg)
		if err != nil {
			zap.S().Fatalf("creating pgx pool: %v", err)
		}
		defer pool.Close()

		workers := river.NewWorkers()
		river.AddWorker(workers, jobs.NewReportWorker(s, renderer.NewHTMLRenderer(), artifactStore, reportNotifier, ep))

		queueClient, err := jobs.NewClient(ctx, pool, cfg, workers, s.QueueJob())
		if err != nil {
			zap.S().Fatalf("creating queue client: %v", err)
		}

		if err := queueClient.Start(ctx); err != nil {
			zap.S().Fatalf("starting job queue: %v", err)
		}

		go service.NewOrphanSweeper(s, cfg.Queue.OrphanAge).Run(ctx)

		<-ctx.Done()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		return queueClient.Stop(stopCtx)
	},
}

func newPgxPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s dbname=%s",
		cfg.Database.Hostname,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Port,
		cfg.Database.Name,
	)
	return pgxpool.New(ctx, dsn)
}
