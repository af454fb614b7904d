package approval_test

import (
	"fmt"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	"github.com/expenseflow/expenseflow/internal/user"
)

type mockRuleRepository struct {
	rules  map[int64]*approval.Rule
	nextID int64
}

func newMockRuleRepository() *mockRuleRepository {
	return &mockRuleRepository{rules: map[int64]*approval.Rule{}}
}

func (m *mockRuleRepository) GetByCompany(companyID int64) (*approval.Rule, error) {
	rule, ok := m.rules[companyID]
	if !ok {
		return nil, internal.ErrRuleNotFound
	}
	return rule, nil
}

func (m *mockRuleRepository) Upsert(rule *approval.Rule) (*approval.Rule, error) {
	if existing, ok := m.rules[rule.CompanyID]; ok {
		rule.ID = existing.ID
	} else {
		m.nextID++
		rule.ID = m.nextID
	}
	m.rules[rule.CompanyID] = rule
	return rule, nil
}

type mockUserLookup struct {
	users map[int64]*user.User
}

func (m *mockUserLookup) GetByID(id int64) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

var _ = Describe("RuleService", func() {
	var (
		service *approval.Service
		repo    *mockRuleRepository
		users   *mockUserLookup
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo = newMockRuleRepository()
		users = &mockUserLookup{users: map[int64]*user.User{
			77: {ID: 77, Name: "Pinned Pete", Role: user.RoleManager, CompanyID: 1},
			88: {ID: 88, Name: "Foreign Fred", Role: user.RoleManager, CompanyID: 2},
		}}
		service = approval.NewService(repo, users, logger)
	})

	Describe("EnsureDefault", func() {
		It("should create the starting rule once and return it on repeat calls", func() {
			created, err := service.EnsureDefault(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(created.IsManagerApproverRequired).To(BeTrue())
			Expect(created.Sequence).To(BeEmpty())

			again, err := service.EnsureDefault(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(again.ID).To(Equal(created.ID))
		})
	})

	Describe("UpdateRule", func() {
		It("should accept a step pinned to a user inside the company", func() {
			updated, err := service.UpdateRule(1, true, []approval.Step{
				{Number: 1, Target: approval.ByUser(77)},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.Sequence).To(HaveLen(1))
		})

		It("should refuse a step pinned to an unknown user", func() {
			_, err := service.UpdateRule(1, true, []approval.Step{
				{Number: 1, Target: approval.ByUser(404)},
			})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidApprovalRule))
			Expect(fmt.Sprintf("%v", appErr.Details)).To(ContainSubstring("unknown user"))
		})

		It("should refuse a step pinned to a user in another company", func() {
			_, err := service.UpdateRule(1, true, []approval.Step{
				{Number: 1, Target: approval.ByRole(user.RoleManager)},
				{Number: 2, Target: approval.ByUser(88)},
			})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidApprovalRule))
			Expect(fmt.Sprintf("%v", appErr.Details)).To(ContainSubstring("outside the company"))

			_, gerr := service.GetRule(1)
			Expect(gerr).To(MatchError(internal.ErrRuleNotFound))
		})

		It("should leave role-routed sequences untouched by the lookup", func() {
			updated, err := service.UpdateRule(1, false, []approval.Step{
				{Number: 1, Target: approval.ByRole(user.RoleManager)},
				{Number: 2, Target: approval.ByRole(user.RoleAdmin)},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.IsManagerApproverRequired).To(BeFalse())
			Expect(updated.Sequence).To(HaveLen(2))
		})
	})
})
