package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	artifactstore "github.com/docustream/report-engine/internal/artifacts"
	"github.com/docustream/report-engine/internal/config"
	"github.com/docustream/report-engine/internal/events"
	handlers "github.com/docustream/report-engine/internal/handlers/v1alpha1"
	"github.com/docustream/report-engine/internal/jobs"
	"github.com/docustream/report-engine/internal/notifier"
	"github.com/docustream/report-engine/internal/renderer"
	"github.com/docustream/report-engine/internal/service"
	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/pkg/metrics"
	"github.com/docustream/report-engine/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg       *config.Config
	store     store.Store
	listener  net.Listener
	renderer  renderer.Renderer
	artifacts artifactstore.Store
	notifier  notifier.Notifier
	events    *events.EventProducer

	// embedWorker runs the job processor inside this process, which is the
	// reference single-process deployment. With a dedicated worker process
	// the API runs insert-only.
	embedWorker bool
}

// New returns a new instance of the report-engine API server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
	renderer renderer.Renderer,
	artifacts artifactstore.Store,
	notifier notifier.Notifier,
	events *events.EventProducer,
	embedWorker bool,
) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		listener:    listener,
		renderer:    renderer,
		artifacts:   artifacts,
		notifier:    notifier,
		events:      events,
		embedWorker: embedWorker,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	// pgx pool for the job queue
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s dbname=%s",
		s.cfg.Database.Hostname,
		s.cfg.Database.User,
		s.cfg.Database.Password,
		s.cfg.Database.Port,
		s.cfg.Database.Name,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse pgx config: %w", err)
	}

	// Connection pool sized for job processing plus LISTEN/NOTIFY
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer dbPool.Close()

	var workers *river.Workers
	if s.embedWorker {
		workers = river.NewWorkers()
		river.AddWorker(workers, jobs.NewReportWorker(s.store, s.renderer, s.artifacts, s.notifier, s.events))
	}

	queueClient, err := jobs.NewClient(ctx, dbPool, s.cfg, workers, s.store.QueueJob())
	if err != nil {
		return fmt.Errorf("failed to create queue client: %w", err)
	}

	if s.embedWorker {
		if err := queueClient.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := queueClient.Stop(stopCtx); err != nil {
				zap.S().Named("api_server").Warnw("failed to stop queue client", "error", err)
			}
		}()
		zap.S().Named("api_server").Info("job queue initialized with embedded worker")
	}

	reportService := service.NewReportService(s.store, queueClient, s.artifacts, s.events)

	h := handlers.NewReportHandler(reportService)
	h.RegisterRoutes(router)
	handlers.RegisterHealthRoute(router)

	go service.NewOrphanSweeper(s.store, s.cfg.Queue.OrphanAge).Run(ctx)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
