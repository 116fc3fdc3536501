package audit_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/pkg/audit"
	"github.com/plugincraft/forge/pkg/shared/types"
)

func TestAudit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Audit Repository Suite")
}

var _ = Describe("Repository", func() {
	var (
		mock sqlmock.Sqlmock
		repo *audit.Repository
	)

	BeforeEach(func() {
		db, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		logger := logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
		repo = audit.NewRepository(db, logger)
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("issues the create-table statement on EnsureSchema", func() {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS session_outcomes").
			WillReturnResult(sqlmock.NewResult(0, 0))

		Expect(repo.EnsureSchema(context.Background())).To(Succeed())
	})

	It("upserts a session outcome on Record", func() {
		result := types.CreationResult{
			SessionID:    "s1",
			Success:      true,
			QualityScore: 92,
			PluginPath:   "/generated/user-1/CoolPlugin",
			TimeTakenMs:  4200,
			AgentsUsed:   []string{"analyst"},
			Issues:       nil,
			Suggestions:  nil,
		}

		mock.ExpectExec("INSERT INTO session_outcomes").
			WithArgs("s1", true, 92, "/generated/user-1/CoolPlugin", "", int64(4200), 0,
				[]byte(`["analyst"]`), []byte(`[]`), []byte(`[]`)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		Expect(repo.Record(context.Background(), result)).To(Succeed())
	})

	It("wraps the driver error when the insert fails", func() {
		mock.ExpectExec("INSERT INTO session_outcomes").
			WillReturnError(sqlmock.ErrCancelled)

		err := repo.Record(context.Background(), types.CreationResult{SessionID: "s2"})
		Expect(err).To(HaveOccurred())
	})

	It("summarizes the recorded outcomes", func() {
		rows := sqlmock.NewRows([]string{"count", "successes", "mean"}).
			AddRow(3, 2, 81.5)
		mock.ExpectQuery("SELECT count").WillReturnRows(rows)

		summary, err := repo.Summarize(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.TotalSessions).To(Equal(3))
		Expect(summary.Successes).To(Equal(2))
		Expect(summary.MeanQuality).To(Equal(81.5))
	})
})
