package store_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/docustream/report-engine/internal/config"
	st "github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/internal/store/model"
)

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store).ToNot(BeNil())

		Expect(store.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		gormDB.Exec("DROP TABLE IF EXISTS report_requests;")
		store.Close()
	})

	Context("transaction", func() {
		It("inserts a report successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			report, err := store.Report().Create(ctx, model.Report{ID: uuid.New()})
			Expect(report).ToNot(BeNil())
			Expect(err).To(BeNil())

			// commit
			_, cerr := st.Commit(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from report_requests;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rolls back a report successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			report, err := store.Report().Create(ctx, model.Report{ID: uuid.New()})
			Expect(report).ToNot(BeNil())
			Expect(err).To(BeNil())

			// visible in the same transaction
			reports, err := store.Report().List(ctx, st.NewReportQueryFilter(), st.NewReportQueryOptions())
			Expect(err).To(BeNil())
			Expect(reports).To(HaveLen(1))

			// rollback
			_, cerr := st.Rollback(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from report_requests;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})

		AfterEach(func() {
			gormDB.Exec("DELETE from report_requests;")
		})
	})
})
