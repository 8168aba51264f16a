package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"gorm.io/gorm"

	"github.com/docustream/report-engine/internal/config"
	"github.com/docustream/report-engine/internal/events"
	"github.com/docustream/report-engine/internal/jobs"
	"github.com/docustream/report-engine/internal/renderer"
	"github.com/docustream/report-engine/internal/store"
)

func TestJobs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Jobs Suite")
}

const insertReportStm = "INSERT INTO report_requests (id, status, progress) VALUES ('%s', '%s', %d);"

var _ = Describe("GenerateReportArgs", func() {
	Describe("Kind", func() {
		It("returns the report job kind", func() {
			args := jobs.GenerateReportArgs{}
			Expect(args.Kind()).To(Equal("report_generate"))
		})
	})

	Describe("InsertOpts", func() {
		It("returns default insert options", func() {
			args := jobs.GenerateReportArgs{}
			opts := args.InsertOpts()
			Expect(opts.Queue).To(Equal(jobs.DefaultQueue))
			Expect(opts.MaxAttempts).To(Equal(jobs.MaxJobAttempts))
		})
	})
})

var _ = Describe("ReportWorker", Ordered, func() {
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
	})

	AfterAll(func() {
		gormdb.Exec("DROP TABLE IF EXISTS report_requests;")
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM report_requests;")
	})

	newJob := func(reportID uuid.UUID, attempt int) *river.Job[jobs.GenerateReportArgs] {
		return &river.Job[jobs.GenerateReportArgs]{
			JobRow: &rivertype.JobRow{Attempt: attempt, MaxAttempts: jobs.MaxJobAttempts},
			Args:   jobs.GenerateReportArgs{ReportID: reportID, Recipient: "user@example.com"},
		}
	}

	Describe("Timeout", func() {
		It("bounds a single processing attempt", func() {
			worker := jobs.NewReportWorker(nil, nil, nil, nil, nil)
			Expect(worker.Timeout(nil)).To(Equal(jobs.JobTimeout))
		})
	})

	Describe("Work", func() {
		It("processes a pending report to READY", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "PENDING", 0))
			Expect(tx.Error).To(BeNil())

			artifacts := newTestArtifacts()
			n := &testNotifier{}
			worker := jobs.NewReportWorker(s, renderer.NewHTMLRenderer(), artifacts, n, events.NewEventProducer(newTestWriter()))

			err := worker.Work(context.TODO(), newJob(id, 1))
			Expect(err).To(BeNil())

			report, err := s.Report().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal("READY"))
			Expect(report.Progress).To(Equal(100))
			Expect(report.ArtifactKey).NotTo(BeNil())
			Expect(artifacts.objects).To(HaveKey(*report.ArtifactKey))
			Expect(strings.Contains(string(artifacts.objects[*report.ArtifactKey]), id.String())).To(BeTrue())

			// the notification went out exactly once
			Expect(n.notified).To(HaveLen(1))
			Expect(n.notified[0]).To(Equal(id))
		})

		It("skips a redelivery of an already completed report", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "READY", 100))
			Expect(tx.Error).To(BeNil())

			artifacts := newTestArtifacts()
			n := &testNotifier{}
			worker := jobs.NewReportWorker(s, renderer.NewHTMLRenderer(), artifacts, n, events.NewEventProducer(newTestWriter()))

			err := worker.Work(context.TODO(), newJob(id, 2))
			Expect(err).To(BeNil())

			// no side effect repeated: no artifact written, no mail sent
			Expect(artifacts.objects).To(BeEmpty())
			Expect(n.notified).To(BeEmpty())
		})

		It("declines a report cancelled before processing", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "CANCELLED", 0))
			Expect(tx.Error).To(BeNil())

			n := &testNotifier{}
			worker := jobs.NewReportWorker(s, renderer.NewHTMLRenderer(), newTestArtifacts(), n, events.NewEventProducer(newTestWriter()))

			err := worker.Work(context.TODO(), newJob(id, 1))
			Expect(err).NotTo(BeNil())

			// the record is untouched
			report, gerr := s.Report().Get(context.TODO(), id)
			Expect(gerr).To(BeNil())
			Expect(report.Status).To(Equal("CANCELLED"))
			Expect(n.notified).To(BeEmpty())
		})

		It("cancels the job when the record is missing", func() {
			worker := jobs.NewReportWorker(s, renderer.NewHTMLRenderer(), newTestArtifacts(), &testNotifier{}, events.NewEventProducer(newTestWriter()))
			err := worker.Work(context.TODO(), newJob(uuid.New(), 1))
			Expect(err).NotTo(BeNil())
		})

		It("leaves the record RUNNING on a non-final failed attempt", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "PENDING", 0))
			Expect(tx.Error).To(BeNil())

			worker := jobs.NewReportWorker(s, &failingRenderer{}, newTestArtifacts(), &testNotifier{}, events.NewEventProducer(newTestWriter()))

			err := worker.Work(context.TODO(), newJob(id, 1))
			Expect(err).NotTo(BeNil())

			report, gerr := s.Report().Get(context.TODO(), id)
			Expect(gerr).To(BeNil())
			Expect(report.Status).To(Equal("RUNNING"))
			// progress holds at the last successful checkpoint
			Expect(report.Progress).To(Equal(60))
			Expect(report.ErrorMessage).To(BeNil())
		})

		It("records FAILED with the failure detail on the final attempt", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "RUNNING", 60))
			Expect(tx.Error).To(BeNil())

			worker := jobs.NewReportWorker(s, &failingRenderer{}, newTestArtifacts(), &testNotifier{}, events.NewEventProducer(newTestWriter()))

			err := worker.Work(context.TODO(), newJob(id, jobs.MaxJobAttempts))
			Expect(err).NotTo(BeNil())

			report, gerr := s.Report().Get(context.TODO(), id)
			Expect(gerr).To(BeNil())
			Expect(report.Status).To(Equal("FAILED"))
			Expect(report.Progress).To(Equal(60))
			Expect(report.ErrorMessage).NotTo(BeNil())
			Expect(*report.ErrorMessage).To(ContainSubstring("rendering report"))
		})

		It("resumes a RUNNING record after a stall redelivery", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertReportStm, id.String(), "RUNNING", 50))
			Expect(tx.Error).To(BeNil())

			artifacts := newTestArtifacts()
			worker := jobs.NewReportWorker(s, renderer.NewHTMLRenderer(), artifacts, &testNotifier{}, events.NewEventProducer(newTestWriter()))

			err := worker.Work(context.TODO(), newJob(id, 2))
			Expect(err).To(BeNil())

			report, gerr := s.Report().Get(context.TODO(), id)
			Expect(gerr).To(BeNil())
			Expect(report.Status).To(Equal("READY"))
			Expect(report.Progress).To(Equal(100))
		})
	})
})

type failingRenderer struct{}

func (f *failingRenderer) Render(_ context.Context, _ renderer.ReportData) ([]byte, error) {
	return nil, errors.New("template execution failed")
}

type testNotifier struct {
	notified []uuid.UUID
}

func (n *testNotifier) Notify(_ context.Context, _ string, reportID uuid.UUID) error {
	n.notified = append(n.notified, reportID)
	return nil
}

type testArtifacts struct {
	objects map[string][]byte
}

func newTestArtifacts() *testArtifacts {
	return &testArtifacts{objects: map[string][]byte{}}
}

func (a *testArtifacts) Save(_ context.Context, key string, data []byte) (string, error) {
	a.objects[key] = data
	return key, nil
}

func (a *testArtifacts) Load(_ context.Context, ref string) ([]byte, error) {
	data, ok := a.objects[ref]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	return data, nil
}

type testwriter struct {
	Messages []cloudevents.Event
}

func newTestWriter() *testwriter {
	return &testwriter{Messages: []cloudevents.Event{}}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.Messages = append(t.Messages, e)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	return nil
}
