package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docustream/report-engine/internal/config"
	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/pkg/log"
	"github.com/docustream/report-engine/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Migrating database")
		defer zap.S().Info("Db migrated")

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		pool, err := newPgxPool(cmd.Context(), cfg)
		if err != nil {
			zap.S().Fatalf("creating pgx pool: %v", err)
		}
		defer pool.Close()

		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder, pool); err != nil {
			zap.S().Fatalf("running migrations: %v", err)
		}

		return nil
	},
}
