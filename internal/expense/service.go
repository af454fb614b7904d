package expense

import (
	"context"
	"log/slog"
	"time"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	"github.com/expenseflow/expenseflow/internal/company"
	"github.com/expenseflow/expenseflow/internal/core/events"
	"github.com/expenseflow/expenseflow/internal/user"
	"github.com/shopspring/decimal"
)

// Repository is the data access surface for expenses. UpdateWithVersion must
// refuse writes whose version no longer matches the row (see ErrConcurrentUpdate).
type Repository interface {
	Create(exp *Expense) error
	GetByID(id int64) (*Expense, error)
	GetByEmployee(employeeID int64, limit, offset int) ([]*Expense, error)
	GetByEmployees(employeeIDs []int64) ([]*Expense, error)
	GetByCompany(companyID int64, limit, offset int) ([]*Expense, error)
	GetPendingByCompany(companyID int64) ([]*Expense, error)
	UpdateWithVersion(exp *Expense) error
	UpdateConvertedAmount(id int64, amount decimal.Decimal) error
}

// UserDirectory resolves users for routing and notification addressing.
type UserDirectory interface {
	GetUser(id int64) (*user.User, error)
	GetUsersByCompany(companyID int64) ([]*user.User, error)
	GetTeam(managerID int64) ([]*user.User, error)
}

// RuleProvider hands out the company's approval rule.
type RuleProvider interface {
	GetRule(companyID int64) (*approval.Rule, error)
}

type CompanyDirectory interface {
	GetByID(id int64) (*company.Company, error)
}

// Converter is the best-effort currency conversion collaborator.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Publisher is where workflow events go; the notifier listens on the other end.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service orchestrates the approval workflow around the engine: it loads
// state, runs the engine, persists the result and fires side effects.
// Decide and AdminOverride are serialized per expense id.
type Service struct {
	repo      Repository
	users     UserDirectory
	rules     RuleProvider
	companies CompanyDirectory
	converter Converter
	bus       Publisher
	engine    *approval.Engine
	locks     *keyedMutex
	logger    *slog.Logger

	convertTimeout time.Duration
}

func NewService(
	repo Repository,
	users UserDirectory,
	rules RuleProvider,
	companies CompanyDirectory,
	converter Converter,
	bus Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:           repo,
		users:          users,
		rules:          rules,
		companies:      companies,
		converter:      converter,
		bus:            bus,
		engine:         approval.NewEngine(logger),
		locks:          newKeyedMutex(),
		logger:         logger,
		convertTimeout: 10 * time.Second,
	}
}

// Submit creates a pending claim at the manager gate. The employee's manager
// is notified only when a manager is assigned and the rule requires the gate.
// Conversion to company currency runs in the background and never blocks.
func (s *Service) Submit(ctx context.Context, employeeID int64, dto CreateExpenseDTO) (*Expense, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("expense validation failed", "error", err, "employee_id", employeeID)
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	employee, err := s.users.GetUser(employeeID)
	if err != nil {
		return nil, internal.ErrUserNotFound
	}

	now := time.Now()
	exp := &Expense{
		EmployeeID:      employee.ID,
		EmployeeName:    employee.Name,
		CompanyID:       employee.CompanyID,
		Amount:          dto.Amount,
		Currency:        dto.Currency,
		Category:        dto.Category,
		Description:     dto.Description,
		ExpenseDate:     dto.ExpenseDate,
		Status:          approval.StatusPending,
		CurrentStep:     0,
		ApprovalHistory: []ApprovalRecord{},
		ReceiptURL:      dto.ReceiptURL,
		OCRData:         dto.OCRData,
		SubmittedAt:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(exp); err != nil {
		s.logger.Error("failed to create expense", "error", err, "employee_id", employeeID)
		return nil, err
	}

	s.logger.Info("expense submitted",
		"expense_id", exp.ID,
		"employee_id", employeeID,
		"amount", exp.Amount.String(),
		"currency", exp.Currency)

	s.notifyManagerOnSubmit(ctx, exp, employee)
	s.convertAsync(exp)

	return exp, nil
}

// Decide applies one approver decision and returns what happened. Calls on
// the same expense are serialized; the versioned update backstops any writer
// that slipped past the lock (for example another replica).
func (s *Service) Decide(ctx context.Context, expenseID, approverID int64, action approval.Action, comment string) (*Expense, approval.Outcome, error) {
	unlock := s.locks.Lock(expenseID)
	defer unlock()

	exp, err := s.repo.GetByID(expenseID)
	if err != nil {
		return nil, approval.Outcome{}, err
	}

	approver, err := s.users.GetUser(approverID)
	if err != nil {
		return nil, approval.Outcome{}, internal.ErrUserNotFound
	}
	employee, err := s.users.GetUser(exp.EmployeeID)
	if err != nil {
		return nil, approval.Outcome{}, internal.ErrUserNotFound
	}

	rule, err := s.loadRule(exp.CompanyID)
	if err != nil {
		return nil, approval.Outcome{}, err
	}

	outcome, err := s.engine.Decide(rule, exp.Claim(), approver, employee, action)
	if err != nil {
		return nil, approval.Outcome{}, err
	}

	exp.AppendRecord(ApprovalRecord{
		Step:         exp.CurrentStep,
		ApproverID:   approver.ID,
		ApproverName: approver.Name,
		Action:       action,
		Comment:      comment,
		Timestamp:    time.Now(),
	})
	exp.ApplyOutcome(outcome)

	if err := s.repo.UpdateWithVersion(exp); err != nil {
		s.logger.Error("failed to persist decision", "error", err, "expense_id", expenseID)
		return nil, approval.Outcome{}, err
	}

	s.logger.Info("expense decision applied",
		"expense_id", exp.ID,
		"approver_id", approver.ID,
		"action", action,
		"outcome", outcome.Kind,
		"current_step", exp.CurrentStep)

	if outcome.Finalized() {
		s.notifyEmployeeFinal(ctx, exp, employee)
	}

	return exp, outcome, nil
}

// AdminOverride force-finalizes an expense regardless of its status or step,
// leaving a step=-1 audit record. CurrentStep is deliberately left unchanged.
func (s *Service) AdminOverride(ctx context.Context, expenseID, adminID int64, action approval.Action, comment string) (*Expense, error) {
	unlock := s.locks.Lock(expenseID)
	defer unlock()

	exp, err := s.repo.GetByID(expenseID)
	if err != nil {
		return nil, err
	}

	admin, err := s.users.GetUser(adminID)
	if err != nil {
		return nil, internal.ErrUserNotFound
	}
	if admin.CompanyID != exp.CompanyID {
		s.logger.Warn("override attempt across companies",
			"expense_id", expenseID, "admin_id", adminID, "admin_company_id", admin.CompanyID)
		return nil, internal.ErrUnauthorizedApprover
	}

	outcome, err := s.engine.Override(exp.Claim(), admin, action)
	if err != nil {
		return nil, err
	}

	if comment == "" {
		comment = "Admin override"
	}
	exp.AppendRecord(ApprovalRecord{
		Step:         OverrideStep,
		ApproverID:   admin.ID,
		ApproverName: admin.Name + " (Admin Override)",
		Action:       action,
		Comment:      comment,
		Timestamp:    time.Now(),
	})
	exp.ApplyOutcome(outcome)

	if err := s.repo.UpdateWithVersion(exp); err != nil {
		s.logger.Error("failed to persist override", "error", err, "expense_id", expenseID)
		return nil, err
	}

	s.logger.Info("admin override applied",
		"expense_id", exp.ID,
		"admin_id", admin.ID,
		"action", action)

	if employee, uerr := s.users.GetUser(exp.EmployeeID); uerr == nil {
		s.notifyEmployeeFinal(ctx, exp, employee)
	}

	return exp, nil
}

// PendingForApprover returns the pending claims the approver may decide on,
// using the same authorization check the engine itself applies.
func (s *Service) PendingForApprover(approverID int64) ([]*Expense, error) {
	approver, err := s.users.GetUser(approverID)
	if err != nil {
		return nil, internal.ErrUserNotFound
	}

	rule, err := s.loadRule(approver.CompanyID)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.GetPendingByCompany(approver.CompanyID)
	if err != nil {
		return nil, err
	}

	colleagues, err := s.users.GetUsersByCompany(approver.CompanyID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*user.User, len(colleagues))
	for _, u := range colleagues {
		byID[u.ID] = u
	}

	var result []*Expense
	for _, exp := range pending {
		employee, ok := byID[exp.EmployeeID]
		if !ok {
			continue
		}
		can, cerr := s.engine.CanDecide(rule, exp.Claim(), approver, employee)
		if cerr != nil {
			s.logger.Warn("skipping claim with malformed routing",
				"expense_id", exp.ID, "current_step", exp.CurrentStep, "error", cerr)
			continue
		}
		if can {
			result = append(result, exp)
		}
	}
	return result, nil
}

// TeamExpenses returns expenses of the manager's direct reports, one level
// down the org tree only.
func (s *Service) TeamExpenses(managerID int64) ([]*Expense, error) {
	team, err := s.users.GetTeam(managerID)
	if err != nil {
		return nil, err
	}
	if len(team) == 0 {
		return []*Expense{}, nil
	}

	ids := make([]int64, len(team))
	for i, member := range team {
		ids[i] = member.ID
	}
	return s.repo.GetByEmployees(ids)
}

// GetByID retrieves one expense. Employees see their own claims; managers and
// admins see any claim in their company.
func (s *Service) GetByID(expenseID int64, caller *user.User) (*Expense, error) {
	exp, err := s.repo.GetByID(expenseID)
	if err != nil {
		return nil, err
	}
	if exp.CompanyID != caller.CompanyID {
		return nil, internal.ErrExpenseNotFound
	}
	if exp.EmployeeID != caller.ID && caller.Role == user.RoleEmployee {
		s.logger.Warn("unauthorized expense access", "expense_id", expenseID, "user_id", caller.ID)
		return nil, internal.NewForbiddenError("not allowed to view this expense", internal.ErrCodeUnauthorizedApprover)
	}
	return exp, nil
}

func (s *Service) ListForEmployee(employeeID int64, limit, offset int) ([]*Expense, error) {
	return s.repo.GetByEmployee(employeeID, limit, offset)
}

func (s *Service) ListForCompany(companyID int64, limit, offset int) ([]*Expense, error) {
	return s.repo.GetByCompany(companyID, limit, offset)
}

// loadRule tolerates a missing rule (nil). The engine treats no rule as
// "manager gate off, empty sequence".
func (s *Service) loadRule(companyID int64) (*approval.Rule, error) {
	rule, err := s.rules.GetRule(companyID)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Code == internal.ErrCodeRuleNotFound {
			return nil, nil
		}
		return nil, err
	}
	return rule, nil
}

func (s *Service) notifyManagerOnSubmit(ctx context.Context, exp *Expense, employee *user.User) {
	if employee.ManagerID == nil {
		return
	}
	rule, err := s.loadRule(exp.CompanyID)
	if err != nil || rule == nil || !rule.IsManagerApproverRequired {
		return
	}
	manager, err := s.users.GetUser(*employee.ManagerID)
	if err != nil {
		s.logger.Warn("manager lookup failed for submission notification",
			"expense_id", exp.ID, "manager_id", *employee.ManagerID, "error", err)
		return
	}
	s.publish(ctx, events.EventTypeExpenseSubmitted, exp, manager.Email, manager.Name)
}

// notifyEmployeeFinal fires exactly one notification per terminal transition.
func (s *Service) notifyEmployeeFinal(ctx context.Context, exp *Expense, employee *user.User) {
	eventType := events.EventTypeExpenseApproved
	if exp.Status == approval.StatusRejected {
		eventType = events.EventTypeExpenseRejected
	}
	s.publish(ctx, eventType, exp, employee.Email, employee.Name)
}

func (s *Service) publish(ctx context.Context, eventType string, exp *Expense, email, name string) {
	if s.bus == nil {
		return
	}
	event := events.NewExpenseEvent(eventType, exp.ID, exp.EmployeeID, exp.Category,
		exp.Amount.String(), exp.Currency, email, name)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish workflow event",
			"event_type", eventType, "expense_id", exp.ID, "error", err)
	}
}

// convertAsync enriches the claim with its amount in company currency.
// Failures fall back to leaving convertedAmount unset.
func (s *Service) convertAsync(exp *Expense) {
	if s.converter == nil || s.companies == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.convertTimeout)
		defer cancel()

		comp, err := s.companies.GetByID(exp.CompanyID)
		if err != nil {
			s.logger.Warn("company lookup failed for conversion", "expense_id", exp.ID, "error", err)
			return
		}
		if comp.Currency == exp.Currency {
			return
		}

		converted, err := s.converter.Convert(ctx, exp.Amount, exp.Currency, comp.Currency)
		if err != nil {
			s.logger.Warn("currency conversion failed",
				"expense_id", exp.ID, "from", exp.Currency, "to", comp.Currency, "error", err)
			return
		}

		if err := s.repo.UpdateConvertedAmount(exp.ID, converted); err != nil {
			s.logger.Warn("failed to store converted amount", "expense_id", exp.ID, "error", err)
			return
		}

		s.logger.Debug("expense amount converted",
			"expense_id", exp.ID,
			"converted", converted.String(),
			"currency", comp.Currency)
	}()
}
