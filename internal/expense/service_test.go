package expense_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	"github.com/expenseflow/expenseflow/internal/company"
	"github.com/expenseflow/expenseflow/internal/core/events"
	"github.com/expenseflow/expenseflow/internal/expense"
	"github.com/expenseflow/expenseflow/internal/user"
)

func TestExpenseService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Expense Service Suite")
}

// Mock repository for testing
type mockExpenseRepository struct {
	mu       sync.Mutex
	expenses map[int64]*expense.Expense
	nextID   int64

	createError error
	updateError error
	updateCalls int
}

func newMockExpenseRepository() *mockExpenseRepository {
	return &mockExpenseRepository{
		expenses: make(map[int64]*expense.Expense),
		nextID:   1,
	}
}

func (m *mockExpenseRepository) Create(exp *expense.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return m.createError
	}
	exp.ID = m.nextID
	m.nextID++
	copied := *exp
	m.expenses[exp.ID] = &copied
	return nil
}

func (m *mockExpenseRepository) GetByID(id int64) (*expense.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expenses[id]
	if !ok {
		return nil, internal.ErrExpenseNotFound
	}
	copied := *exp
	return &copied, nil
}

func (m *mockExpenseRepository) GetByEmployee(employeeID int64, limit, offset int) ([]*expense.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*expense.Expense
	for _, exp := range m.expenses {
		if exp.EmployeeID == employeeID {
			result = append(result, exp)
		}
	}
	return result, nil
}

func (m *mockExpenseRepository) GetByEmployees(employeeIDs []int64) ([]*expense.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[int64]bool, len(employeeIDs))
	for _, id := range employeeIDs {
		ids[id] = true
	}
	var result []*expense.Expense
	for _, exp := range m.expenses {
		if ids[exp.EmployeeID] {
			result = append(result, exp)
		}
	}
	return result, nil
}

func (m *mockExpenseRepository) GetByCompany(companyID int64, limit, offset int) ([]*expense.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*expense.Expense
	for _, exp := range m.expenses {
		if exp.CompanyID == companyID {
			result = append(result, exp)
		}
	}
	return result, nil
}

func (m *mockExpenseRepository) GetPendingByCompany(companyID int64) ([]*expense.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*expense.Expense
	for _, exp := range m.expenses {
		if exp.CompanyID == companyID && exp.Status == approval.StatusPending {
			copied := *exp
			result = append(result, &copied)
		}
	}
	return result, nil
}

// UpdateWithVersion mimics the optimistic check in the real repository.
func (m *mockExpenseRepository) UpdateWithVersion(exp *expense.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateError != nil {
		return m.updateError
	}
	stored, ok := m.expenses[exp.ID]
	if !ok {
		return internal.ErrExpenseNotFound
	}
	if stored.Version != exp.Version {
		return internal.ErrConcurrentUpdate
	}
	m.updateCalls++
	exp.Version++
	copied := *exp
	m.expenses[exp.ID] = &copied
	return nil
}

func (m *mockExpenseRepository) UpdateConvertedAmount(id int64, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.expenses[id]; ok {
		exp.ConvertedAmount = &amount
	}
	return nil
}

type mockUserDirectory struct {
	users map[int64]*user.User
}

func (m *mockUserDirectory) GetUser(id int64) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserDirectory) GetUsersByCompany(companyID int64) ([]*user.User, error) {
	var result []*user.User
	for _, u := range m.users {
		if u.CompanyID == companyID {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserDirectory) GetTeam(managerID int64) ([]*user.User, error) {
	var result []*user.User
	for _, u := range m.users {
		if u.ManagerID != nil && *u.ManagerID == managerID {
			result = append(result, u)
		}
	}
	return result, nil
}

type mockRuleProvider struct {
	rule *approval.Rule
	err  error
}

func (m *mockRuleProvider) GetRule(companyID int64) (*approval.Rule, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.rule == nil {
		return nil, internal.ErrRuleNotFound
	}
	return m.rule, nil
}

type mockCompanyDirectory struct {
	company *company.Company
}

func (m *mockCompanyDirectory) GetByID(id int64) (*company.Company, error) {
	if m.company == nil {
		return nil, internal.ErrCompanyNotFound
	}
	return m.company, nil
}

type mockConverter struct {
	rate decimal.Decimal
	err  error
}

func (m *mockConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return amount.Mul(m.rate), nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) byType(eventType string) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []events.Event
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

var _ = Describe("ExpenseService", func() {
	var (
		service   *expense.Service
		mockRepo  *mockExpenseRepository
		mockUsers *mockUserDirectory
		mockRules *mockRuleProvider
		mockBus   *mockPublisher

		manager  *user.User
		admin    *user.User
		employee *user.User
	)

	submitDTO := func() expense.CreateExpenseDTO {
		return expense.CreateExpenseDTO{
			Amount:      decimal.NewFromInt(120),
			Currency:    "USD",
			Category:    "travel",
			Description: "Client visit",
			ExpenseDate: time.Now().Add(-24 * time.Hour),
		}
	}

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		mockRepo = newMockExpenseRepository()

		manager = &user.User{ID: 10, Name: "Max Manager", Email: "max@acme.test", Role: user.RoleManager, CompanyID: 1}
		admin = &user.User{ID: 20, Name: "Alice Admin", Email: "alice@acme.test", Role: user.RoleAdmin, CompanyID: 1}
		employee = &user.User{ID: 30, Name: "Eve Employee", Email: "eve@acme.test", Role: user.RoleEmployee, CompanyID: 1, ManagerID: &manager.ID}

		mockUsers = &mockUserDirectory{users: map[int64]*user.User{
			manager.ID:  manager,
			admin.ID:    admin,
			employee.ID: employee,
		}}
		mockRules = &mockRuleProvider{rule: approval.DefaultRule(1)}
		mockBus = &mockPublisher{}

		service = expense.NewService(mockRepo, mockUsers, mockRules, nil, nil, mockBus, logger)
	})

	Describe("Submit", func() {
		It("should create a pending claim at the manager gate with empty history", func() {
			result, err := service.Submit(context.Background(), employee.ID, submitDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(approval.StatusPending))
			Expect(result.CurrentStep).To(Equal(0))
			Expect(result.ApprovalHistory).To(BeEmpty())
			Expect(result.EmployeeName).To(Equal(employee.Name))
			Expect(result.ID).To(BeNumerically(">", 0))
		})

		It("should notify the manager when the gate is required", func() {
			_, err := service.Submit(context.Background(), employee.ID, submitDTO())

			Expect(err).ToNot(HaveOccurred())
			submitted := mockBus.byType(events.EventTypeExpenseSubmitted)
			Expect(submitted).To(HaveLen(1))
			ev := submitted[0].(*events.ExpenseEvent)
			Expect(ev.RecipientEmail).To(Equal(manager.Email))
		})

		It("should not notify anyone when the gate is off", func() {
			mockRules.rule = &approval.Rule{CompanyID: 1, IsManagerApproverRequired: false}

			_, err := service.Submit(context.Background(), employee.ID, submitDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(mockBus.byType(events.EventTypeExpenseSubmitted)).To(BeEmpty())
		})

		It("should not notify anyone when the employee has no manager", func() {
			employee.ManagerID = nil

			_, err := service.Submit(context.Background(), employee.ID, submitDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(mockBus.byType(events.EventTypeExpenseSubmitted)).To(BeEmpty())
		})

		Context("with a currency converter wired", func() {
			var logger *slog.Logger

			BeforeEach(func() {
				logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
			})

			It("should eventually store the converted amount", func() {
				companies := &mockCompanyDirectory{company: &company.Company{ID: 1, Name: "Acme", Currency: "USD"}}
				converter := &mockConverter{rate: decimal.NewFromFloat(1.1)}
				service = expense.NewService(mockRepo, mockUsers, mockRules, companies, converter, mockBus, logger)

				dto := submitDTO()
				dto.Currency = "EUR"
				result, err := service.Submit(context.Background(), employee.ID, dto)
				Expect(err).ToNot(HaveOccurred())

				Eventually(func() *decimal.Decimal {
					stored, _ := mockRepo.GetByID(result.ID)
					return stored.ConvertedAmount
				}).ShouldNot(BeNil())
			})

			It("should leave the amount unconverted when the rate lookup fails", func() {
				companies := &mockCompanyDirectory{company: &company.Company{ID: 1, Name: "Acme", Currency: "USD"}}
				converter := &mockConverter{err: internal.NewInternalError("rate API down", nil)}
				service = expense.NewService(mockRepo, mockUsers, mockRules, companies, converter, mockBus, logger)

				dto := submitDTO()
				dto.Currency = "EUR"
				result, err := service.Submit(context.Background(), employee.ID, dto)
				Expect(err).ToNot(HaveOccurred())

				Consistently(func() *decimal.Decimal {
					stored, _ := mockRepo.GetByID(result.ID)
					return stored.ConvertedAmount
				}, "200ms").Should(BeNil())
			})
		})

		It("should reject an invalid payload", func() {
			dto := submitDTO()
			dto.Amount = decimal.Zero

			_, err := service.Submit(context.Background(), employee.ID, dto)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("amount must be greater than 0"))
		})
	})

	Describe("Decide", func() {
		var expID int64

		BeforeEach(func() {
			result, err := service.Submit(context.Background(), employee.ID, submitDTO())
			Expect(err).ToNot(HaveOccurred())
			expID = result.ID
		})

		It("should finalize at the gate when no sequence follows", func() {
			result, outcome, err := service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "ok")

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Kind).To(Equal(approval.OutcomeFinalizedApproved))
			Expect(result.Status).To(Equal(approval.StatusApproved))
			Expect(result.ProcessedAt).ToNot(BeNil())
			Expect(result.ApprovalHistory).To(HaveLen(1))
			Expect(result.ApprovalHistory[0].Step).To(Equal(0))
			Expect(result.ApprovalHistory[0].ApproverID).To(Equal(manager.ID))
		})

		It("should notify the employee exactly once on a terminal transition", func() {
			_, _, err := service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")

			Expect(err).ToNot(HaveOccurred())
			approved := mockBus.byType(events.EventTypeExpenseApproved)
			Expect(approved).To(HaveLen(1))
			ev := approved[0].(*events.ExpenseEvent)
			Expect(ev.RecipientEmail).To(Equal(employee.Email))
		})

		It("should advance without notifying when a sequence follows", func() {
			mockRules.rule = &approval.Rule{
				CompanyID:                 1,
				IsManagerApproverRequired: true,
				Sequence:                  []approval.Step{{Number: 1, Target: approval.ByRole(user.RoleAdmin)}},
			}

			result, outcome, err := service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Kind).To(Equal(approval.OutcomeAdvanced))
			Expect(result.Status).To(Equal(approval.StatusPending))
			Expect(result.CurrentStep).To(Equal(1))
			Expect(mockBus.byType(events.EventTypeExpenseApproved)).To(BeEmpty())
		})

		It("should leave the claim untouched when the approver is unauthorized", func() {
			_, _, err := service.Decide(context.Background(), expID, admin.ID, approval.ActionApproved, "")

			Expect(err).To(MatchError(internal.ErrUnauthorizedApprover))

			stored, gerr := mockRepo.GetByID(expID)
			Expect(gerr).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(approval.StatusPending))
			Expect(stored.CurrentStep).To(Equal(0))
			Expect(stored.ApprovalHistory).To(BeEmpty())
		})

		It("should refuse a role-matching manager from another company", func() {
			mockRules.rule = &approval.Rule{
				CompanyID:                 1,
				IsManagerApproverRequired: false,
				Sequence:                  []approval.Step{{Number: 1, Target: approval.ByRole(user.RoleManager)}},
			}
			foreign := &user.User{ID: 70, Name: "Frank Foreign", Email: "frank@globex.test", Role: user.RoleManager, CompanyID: 2}
			mockUsers.users[foreign.ID] = foreign

			_, outcome, err := service.Decide(context.Background(), expID, admin.ID, approval.ActionApproved, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Kind).To(Equal(approval.OutcomeAdvanced))

			_, _, err = service.Decide(context.Background(), expID, foreign.ID, approval.ActionApproved, "")
			Expect(err).To(MatchError(internal.ErrUnauthorizedApprover))

			// the same step accepts a manager inside the company
			_, outcome, err = service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Kind).To(Equal(approval.OutcomeFinalizedApproved))
		})

		It("should refuse a second decision after finalization", func() {
			_, _, err := service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")
			Expect(err).ToNot(HaveOccurred())

			_, _, err = service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")
			Expect(err).To(MatchError(internal.ErrInvalidExpenseStatus))
		})

		It("should record the rejection comment and finalize", func() {
			result, outcome, err := service.Decide(context.Background(), expID, manager.ID, approval.ActionRejected, "missing receipt")

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Kind).To(Equal(approval.OutcomeFinalizedRejected))
			Expect(result.Status).To(Equal(approval.StatusRejected))
			Expect(result.ApprovalHistory[0].Comment).To(Equal("missing receipt"))
			Expect(mockBus.byType(events.EventTypeExpenseRejected)).To(HaveLen(1))
		})

		It("should return not found for an unknown expense", func() {
			_, _, err := service.Decide(context.Background(), 999, manager.ID, approval.ActionApproved, "")

			Expect(err).To(MatchError(internal.ErrExpenseNotFound))
		})

		It("should apply exactly one of two concurrent decisions", func() {
			var wg sync.WaitGroup
			errs := make([]error, 2)

			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _, errs[i] = service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
				} else {
					Expect(err).To(MatchError(internal.ErrInvalidExpenseStatus))
				}
			}
			Expect(succeeded).To(Equal(1))
			Expect(mockRepo.updateCalls).To(Equal(1))
			Expect(mockBus.byType(events.EventTypeExpenseApproved)).To(HaveLen(1))
		})
	})

	Describe("AdminOverride", func() {
		var expID int64

		BeforeEach(func() {
			result, err := service.Submit(context.Background(), employee.ID, submitDTO())
			Expect(err).ToNot(HaveOccurred())
			expID = result.ID
		})

		It("should finalize a pending expense with a step -1 record", func() {
			result, err := service.AdminOverride(context.Background(), expID, admin.ID, approval.ActionApproved, "")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(approval.StatusApproved))
			Expect(result.ApprovalHistory).To(HaveLen(1))
			record := result.ApprovalHistory[0]
			Expect(record.Step).To(Equal(expense.OverrideStep))
			Expect(record.ApproverName).To(Equal("Alice Admin (Admin Override)"))
			Expect(record.Comment).To(Equal("Admin override"))
		})

		It("should flip an already finalized expense", func() {
			_, _, err := service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")
			Expect(err).ToNot(HaveOccurred())

			result, err := service.AdminOverride(context.Background(), expID, admin.ID, approval.ActionRejected, "policy violation")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(approval.StatusRejected))
			Expect(result.ApprovalHistory).To(HaveLen(2))
			Expect(result.ApprovalHistory[1].Comment).To(Equal("policy violation"))
		})

		It("should block further decisions after an override", func() {
			_, err := service.AdminOverride(context.Background(), expID, admin.ID, approval.ActionRejected, "")
			Expect(err).ToNot(HaveOccurred())

			_, _, err = service.Decide(context.Background(), expID, manager.ID, approval.ActionApproved, "")
			Expect(err).To(MatchError(internal.ErrInvalidExpenseStatus))
		})

		It("should refuse non-admin callers", func() {
			_, err := service.AdminOverride(context.Background(), expID, manager.ID, approval.ActionApproved, "")

			Expect(err).To(MatchError(internal.ErrUnauthorizedApprover))
		})

		It("should refuse an admin from another company", func() {
			foreignAdmin := &user.User{ID: 71, Name: "Olga Outsider", Email: "olga@globex.test", Role: user.RoleAdmin, CompanyID: 2}
			mockUsers.users[foreignAdmin.ID] = foreignAdmin

			_, err := service.AdminOverride(context.Background(), expID, foreignAdmin.ID, approval.ActionApproved, "")
			Expect(err).To(MatchError(internal.ErrUnauthorizedApprover))

			stored, gerr := mockRepo.GetByID(expID)
			Expect(gerr).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(approval.StatusPending))
			Expect(stored.ApprovalHistory).To(BeEmpty())
		})
	})

	Describe("PendingForApprover", func() {
		It("should list gate claims for the direct manager only", func() {
			result, err := service.Submit(context.Background(), employee.ID, submitDTO())
			Expect(err).ToNot(HaveOccurred())

			pending, err := service.PendingForApprover(manager.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].ID).To(Equal(result.ID))

			pending, err = service.PendingForApprover(admin.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})

		It("should move the claim to the next approver's list after an advance", func() {
			mockRules.rule = &approval.Rule{
				CompanyID:                 1,
				IsManagerApproverRequired: true,
				Sequence:                  []approval.Step{{Number: 1, Target: approval.ByRole(user.RoleAdmin)}},
			}
			result, err := service.Submit(context.Background(), employee.ID, submitDTO())
			Expect(err).ToNot(HaveOccurred())

			_, _, err = service.Decide(context.Background(), result.ID, manager.ID, approval.ActionApproved, "")
			Expect(err).ToNot(HaveOccurred())

			pending, err := service.PendingForApprover(manager.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(BeEmpty())

			pending, err = service.PendingForApprover(admin.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(HaveLen(1))
		})

		It("should drop finalized claims from every list", func() {
			result, err := service.Submit(context.Background(), employee.ID, submitDTO())
			Expect(err).ToNot(HaveOccurred())

			_, _, err = service.Decide(context.Background(), result.ID, manager.ID, approval.ActionRejected, "no")
			Expect(err).ToNot(HaveOccurred())

			pending, err := service.PendingForApprover(manager.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})
	})

	Describe("TeamExpenses", func() {
		It("should return direct reports' expenses only", func() {
			_, err := service.Submit(context.Background(), employee.ID, submitDTO())
			Expect(err).ToNot(HaveOccurred())

			team, err := service.TeamExpenses(manager.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(team).To(HaveLen(1))

			team, err = service.TeamExpenses(admin.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(team).To(BeEmpty())
		})
	})

	Describe("GetByID", func() {
		var expID int64

		BeforeEach(func() {
			result, err := service.Submit(context.Background(), employee.ID, submitDTO())
			Expect(err).ToNot(HaveOccurred())
			expID = result.ID
		})

		It("should let the owner read their own claim", func() {
			result, err := service.GetByID(expID, employee)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.ID).To(Equal(expID))
		})

		It("should refuse another employee", func() {
			stranger := &user.User{ID: 99, Role: user.RoleEmployee, CompanyID: 1}

			_, err := service.GetByID(expID, stranger)

			Expect(err).To(HaveOccurred())
		})

		It("should hide claims from other companies", func() {
			outsider := &user.User{ID: 99, Role: user.RoleAdmin, CompanyID: 2}

			_, err := service.GetByID(expID, outsider)

			Expect(err).To(MatchError(internal.ErrExpenseNotFound))
		})
	})
})
