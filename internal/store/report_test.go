package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/docustream/report-engine/api/v1alpha1"
	"github.com/docustream/report-engine/internal/config"
	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/internal/store/model"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Store Suite")
}

const (
	insertReportStm        = "INSERT INTO report_requests (id, status) VALUES ('%s', '%s');"
	insertReportWithAgeStm = "INSERT INTO report_requests (id, status, created_at) VALUES ('%s', '%s', now() - interval '%s');"
	insertRunningReportStm = "INSERT INTO report_requests (id, status, progress) VALUES ('%s', 'RUNNING', %d);"
	insertQueueJobStm      = "INSERT INTO river_job (state, args) VALUES ('%s', '{\"report_id\": \"%s\"}');"
	createQueueJobTableStm = "CREATE TABLE IF NOT EXISTS river_job (id BIGSERIAL PRIMARY KEY, state TEXT NOT NULL, args JSONB NOT NULL DEFAULT '{}');"
)

var _ = Describe("report store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db

		Expect(s.InitialMigration(context.TODO())).To(BeNil())
		Expect(gormdb.Exec(createQueueJobTableStm).Error).To(BeNil())
	})

	AfterAll(func() {
		gormdb.Exec("DROP TABLE IF EXISTS report_requests;")
		gormdb.Exec("DROP TABLE IF EXISTS river_job;")
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM report_requests;")
		gormdb.Exec("DELETE FROM river_job;")
	})

	Context("list", func() {
		It("successfully list all the reports", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, uuid.NewString(), "PENDING"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertReportStm, uuid.NewString(), "READY"))
			Expect(tx.Error).To(BeNil())

			reports, err := s.Report().List(context.TODO(), store.NewReportQueryFilter(), store.NewReportQueryOptions())
			Expect(err).To(BeNil())
			Expect(reports).To(HaveLen(2))
		})

		It("successfully list the reports -- filtered by status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, uuid.NewString(), "PENDING"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertReportStm, uuid.NewString(), "READY"))
			Expect(tx.Error).To(BeNil())

			reports, err := s.Report().List(context.TODO(), store.NewReportQueryFilter().ByStatus("READY"), store.NewReportQueryOptions())
			Expect(err).To(BeNil())
			Expect(reports).To(HaveLen(1))
			Expect(reports[0].Status).To(Equal("READY"))
		})

		It("successfully list the reports -- sorted by creation time desc", func() {
			oldID := uuid.NewString()
			newID := uuid.NewString()
			tx := gormdb.Exec(fmt.Sprintf(insertReportWithAgeStm, oldID, "PENDING", "1 hour"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertReportStm, newID, "PENDING"))
			Expect(tx.Error).To(BeNil())

			reports, err := s.Report().List(context.TODO(), store.NewReportQueryFilter(), store.NewReportQueryOptions().WithSortOrder(store.SortByCreatedTimeDesc))
			Expect(err).To(BeNil())
			Expect(reports).To(HaveLen(2))
			Expect(reports[0].ID.String()).To(Equal(newID))
		})
	})

	Context("create", func() {
		It("successfully creates a report record", func() {
			report, err := s.Report().Create(context.TODO(), model.Report{ID: uuid.New(), Recipient: "user@example.com"})
			Expect(err).To(BeNil())
			Expect(report).NotTo(BeNil())
			Expect(report.Status).To(Equal("PENDING"))
			Expect(report.Progress).To(Equal(0))
		})

		It("fails to create a report record -- duplicate id", func() {
			id := uuid.New()
			_, err := s.Report().Create(context.TODO(), model.Report{ID: id})
			Expect(err).To(BeNil())

			_, err = s.Report().Create(context.TODO(), model.Report{ID: id})
			Expect(err).To(MatchError(store.ErrDuplicateKey))
		})
	})

	Context("get", func() {
		It("successfully gets a report", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "PENDING"))
			Expect(tx.Error).To(BeNil())

			report, err := s.Report().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(report.ID).To(Equal(id))
		})

		It("fails to get a report -- report does not exist", func() {
			_, err := s.Report().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("update status", func() {
		It("successfully transitions when the current status matches", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "PENDING"))
			Expect(tx.Error).To(BeNil())

			progress := 10
			message := "Report generation started"
			report, err := s.Report().UpdateStatusIf(context.TODO(), id, []string{"PENDING", "RUNNING"}, store.StatusUpdate{
				Status:          "RUNNING",
				Progress:        &progress,
				ProgressMessage: &message,
			})
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal("RUNNING"))
			Expect(report.Progress).To(Equal(10))
			Expect(report.ProgressMessage).To(Equal("Report generation started"))
		})

		It("rejects the transition when the record moved on", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "CANCELLED"))
			Expect(tx.Error).To(BeNil())

			_, err := s.Report().UpdateStatusIf(context.TODO(), id, []string{"PENDING"}, store.StatusUpdate{Status: "RUNNING"})
			Expect(err).To(MatchError(store.ErrConcurrentUpdate))

			// the record is untouched
			report, err := s.Report().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal("CANCELLED"))
		})

		It("fails the transition -- report does not exist", func() {
			_, err := s.Report().UpdateStatusIf(context.TODO(), uuid.New(), []string{"PENDING"}, store.StatusUpdate{Status: "CANCELLED"})
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("writes the artifact key together with the terminal transition", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertRunningReportStm, id.String(), 85))
			Expect(tx.Error).To(BeNil())

			progress := 100
			artifactKey := id.String() + ".html"
			report, err := s.Report().UpdateStatusIf(context.TODO(), id, []string{"RUNNING"}, store.StatusUpdate{
				Status:      string(api.ReportStatusReady),
				Progress:    &progress,
				ArtifactKey: &artifactKey,
			})
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal("READY"))
			Expect(report.Progress).To(Equal(100))
			Expect(report.ArtifactKey).NotTo(BeNil())
			Expect(*report.ArtifactKey).To(Equal(artifactKey))
		})
	})

	Context("update progress", func() {
		It("successfully advances the progress of a running report", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertRunningReportStm, id.String(), 10))
			Expect(tx.Error).To(BeNil())

			err := s.Report().UpdateProgress(context.TODO(), id, 30, "Fetching data")
			Expect(err).To(BeNil())

			report, err := s.Report().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(report.Progress).To(Equal(30))
			Expect(report.ProgressMessage).To(Equal("Fetching data"))
		})

		It("rejects a stale progress write", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertRunningReportStm, id.String(), 50))
			Expect(tx.Error).To(BeNil())

			err := s.Report().UpdateProgress(context.TODO(), id, 30, "Fetching data")
			Expect(err).To(MatchError(store.ErrConcurrentUpdate))

			report, err := s.Report().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(report.Progress).To(Equal(50))
		})

		It("rejects a progress write on a report that is not running", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "CANCELLED"))
			Expect(tx.Error).To(BeNil())

			err := s.Report().UpdateProgress(context.TODO(), id, 30, "Fetching data")
			Expect(err).To(MatchError(store.ErrConcurrentUpdate))
		})
	})

	Context("orphans", func() {
		It("lists pending reports with no live queue job", func() {
			orphanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportWithAgeStm, orphanID.String(), "PENDING", "10 minutes"))
			Expect(tx.Error).To(BeNil())

			queuedID := uuid.New()
			tx = gormdb.Exec(fmt.Sprintf(insertReportWithAgeStm, queuedID.String(), "PENDING", "10 minutes"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertQueueJobStm, "available", queuedID.String()))
			Expect(tx.Error).To(BeNil())

			orphans, err := s.Report().ListOrphaned(context.TODO(), 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(orphans).To(HaveLen(1))
			Expect(orphans[0].ID).To(Equal(orphanID))
		})

		It("ignores recent pending reports", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, uuid.NewString(), "PENDING"))
			Expect(tx.Error).To(BeNil())

			orphans, err := s.Report().ListOrphaned(context.TODO(), 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(orphans).To(BeEmpty())
		})

		It("lists reports whose queue job is already finished", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportWithAgeStm, id.String(), "PENDING", "10 minutes"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertQueueJobStm, "completed", id.String()))
			Expect(tx.Error).To(BeNil())

			orphans, err := s.Report().ListOrphaned(context.TODO(), 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(orphans).To(HaveLen(1))
		})
	})
})

var _ = Describe("queue job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db

		Expect(gormdb.Exec(createQueueJobTableStm).Error).To(BeNil())
	})

	AfterAll(func() {
		gormdb.Exec("DROP TABLE IF EXISTS river_job;")
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM river_job;")
	})

	Context("not claimed job", func() {
		It("finds the job while it waits in the queue", func() {
			reportID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertQueueJobStm, "available", reportID.String()))
			Expect(tx.Error).To(BeNil())

			jobID, err := s.QueueJob().GetNotClaimedJob(context.TODO(), reportID)
			Expect(err).To(BeNil())
			Expect(jobID).NotTo(BeNil())
		})

		It("does not find the job once claimed by a worker", func() {
			reportID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertQueueJobStm, "running", reportID.String()))
			Expect(tx.Error).To(BeNil())

			jobID, err := s.QueueJob().GetNotClaimedJob(context.TODO(), reportID)
			Expect(err).To(BeNil())
			Expect(jobID).To(BeNil())
		})

		It("does not find a job for an unknown report", func() {
			jobID, err := s.QueueJob().GetNotClaimedJob(context.TODO(), uuid.New())
			Expect(err).To(BeNil())
			Expect(jobID).To(BeNil())
		})
	})

	Context("live job", func() {
		It("finds a running job", func() {
			reportID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertQueueJobStm, "running", reportID.String()))
			Expect(tx.Error).To(BeNil())

			jobID, err := s.QueueJob().GetLiveJob(context.TODO(), reportID)
			Expect(err).To(BeNil())
			Expect(jobID).NotTo(BeNil())
		})

		It("does not find a completed job", func() {
			reportID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertQueueJobStm, "completed", reportID.String()))
			Expect(tx.Error).To(BeNil())

			jobID, err := s.QueueJob().GetLiveJob(context.TODO(), reportID)
			Expect(err).To(BeNil())
			Expect(jobID).To(BeNil())
		})
	})
})
