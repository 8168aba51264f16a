package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Report() Report
	QueueJob() QueueJob
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db       *gorm.DB
	report   Report
	queueJob QueueJob
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		report:   NewReport(db),
		queueJob: NewQueueJobStore(db),
		db:       db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Report() Report {
	return s.report
}

func (s *DataStore) QueueJob() QueueJob {
	return s.queueJob
}

func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.report.InitialMigration(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
