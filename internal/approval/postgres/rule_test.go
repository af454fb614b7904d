package postgres_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	approvalPostgres "github.com/expenseflow/expenseflow/internal/approval/postgres"
	ruleDatamodel "github.com/expenseflow/expenseflow/internal/core/datamodel/approvalrule"
	"github.com/expenseflow/expenseflow/internal/user"
)

func TestRuleRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rule Repository Suite")
}

var _ = Describe("RuleRepository", func() {
	var repo approval.Repository

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&ruleDatamodel.Rule{})
		Expect(err).NotTo(HaveOccurred())

		repo = approvalPostgres.NewRuleRepository(db)
	})

	It("should return not found for a company with no rule", func() {
		_, err := repo.GetByCompany(42)
		Expect(err).To(MatchError(internal.ErrRuleNotFound))
	})

	It("should insert a rule and read it back", func() {
		rule := approval.DefaultRule(1)
		rule.Sequence = []approval.Step{
			{Number: 1, Target: approval.ByRole(user.RoleManager)},
			{Number: 2, Target: approval.ByUser(77)},
		}

		saved, err := repo.Upsert(rule)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.ID).To(BeNumerically(">", 0))

		got, err := repo.GetByCompany(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.IsManagerApproverRequired).To(BeTrue())
		Expect(got.Sequence).To(HaveLen(2))
		Expect(got.Sequence[0].Target.Role).To(Equal(user.RoleManager))
		Expect(got.Sequence[1].Target.UserID).To(Equal(int64(77)))
	})

	It("should replace the rule wholesale on a second upsert", func() {
		first := approval.DefaultRule(1)
		first.Sequence = []approval.Step{{Number: 1, Target: approval.ByRole(user.RoleAdmin)}}
		_, err := repo.Upsert(first)
		Expect(err).NotTo(HaveOccurred())

		second := approval.DefaultRule(1)
		second.IsManagerApproverRequired = false
		second.Sequence = []approval.Step{}
		_, err = repo.Upsert(second)
		Expect(err).NotTo(HaveOccurred())

		got, err := repo.GetByCompany(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.IsManagerApproverRequired).To(BeFalse())
		Expect(got.Sequence).To(BeEmpty())
	})

	It("should keep rules per company independent", func() {
		_, err := repo.Upsert(approval.DefaultRule(1))
		Expect(err).NotTo(HaveOccurred())

		other := approval.DefaultRule(2)
		other.IsManagerApproverRequired = false
		_, err = repo.Upsert(other)
		Expect(err).NotTo(HaveOccurred())

		got, err := repo.GetByCompany(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.IsManagerApproverRequired).To(BeTrue())
	})
})
