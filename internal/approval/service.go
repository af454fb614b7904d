package approval

import (
	"fmt"
	"log/slog"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/user"
)

// Repository is the data access surface for approval rules. One rule per
// company; Upsert replaces the sequence wholesale.
type Repository interface {
	GetByCompany(companyID int64) (*Rule, error)
	Upsert(rule *Rule) (*Rule, error)
}

// UserDirectory resolves user-pinned steps during rule validation.
type UserDirectory interface {
	GetByID(id int64) (*user.User, error)
}

// Service manages approval rule configuration.
type Service struct {
	repo   Repository
	users  UserDirectory
	logger *slog.Logger
}

func NewService(repo Repository, users UserDirectory, logger *slog.Logger) *Service {
	return &Service{repo: repo, users: users, logger: logger}
}

func (s *Service) GetRule(companyID int64) (*Rule, error) {
	rule, err := s.repo.GetByCompany(companyID)
	if err != nil {
		s.logger.Error("failed to get approval rule", "error", err, "company_id", companyID)
		return nil, err
	}
	return rule, nil
}

// EnsureDefault creates the company's starting rule if none exists yet.
// Called at company creation.
func (s *Service) EnsureDefault(companyID int64) (*Rule, error) {
	rule, err := s.repo.GetByCompany(companyID)
	if err == nil {
		return rule, nil
	}
	if appErr, ok := internal.IsAppError(err); !ok || appErr.Code != internal.ErrCodeRuleNotFound {
		return nil, err
	}

	created, err := s.repo.Upsert(DefaultRule(companyID))
	if err != nil {
		s.logger.Error("failed to create default approval rule", "error", err, "company_id", companyID)
		return nil, err
	}

	s.logger.Info("default approval rule created", "company_id", companyID, "rule_id", created.ID)
	return created, nil
}

// UpdateRule validates and replaces the company's rule.
func (s *Service) UpdateRule(companyID int64, isManagerApproverRequired bool, sequence []Step) (*Rule, error) {
	rule := &Rule{
		CompanyID:                 companyID,
		IsManagerApproverRequired: isManagerApproverRequired,
		Sequence:                  sequence,
	}
	if err := rule.Validate(); err != nil {
		s.logger.Warn("approval rule rejected", "error", err, "company_id", companyID)
		return nil, err
	}
	if err := s.checkPinnedUsers(companyID, sequence); err != nil {
		s.logger.Warn("approval rule rejected", "error", err, "company_id", companyID)
		return nil, err
	}

	updated, err := s.repo.Upsert(rule)
	if err != nil {
		s.logger.Error("failed to upsert approval rule", "error", err, "company_id", companyID)
		return nil, err
	}

	s.logger.Info("approval rule updated",
		"company_id", companyID,
		"manager_gate", isManagerApproverRequired,
		"sequence_len", len(sequence))
	return updated, nil
}

// checkPinnedUsers refuses steps routed to users that do not exist or sit in
// another company; such steps would either leak approvals across tenants or
// leave claims stuck forever.
func (s *Service) checkPinnedUsers(companyID int64, sequence []Step) error {
	for _, step := range sequence {
		if !step.Target.IsUser() {
			continue
		}
		u, err := s.users.GetByID(step.Target.UserID)
		if err != nil {
			return internal.ErrInvalidApprovalRule.WithDetails(
				fmt.Sprintf("step %d routes to unknown user %d", step.Number, step.Target.UserID))
		}
		if u.CompanyID != companyID {
			return internal.ErrInvalidApprovalRule.WithDetails(
				fmt.Sprintf("step %d routes to a user outside the company", step.Number))
		}
	}
	return nil
}
