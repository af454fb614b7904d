package company

import (
	"context"
	"log/slog"
	"strings"

	"github.com/expenseflow/expenseflow/internal"
)

type Repository interface {
	Create(company *Company) error
	GetByID(id int64) (*Company, error)
	UpdateCurrency(id int64, currency string) error
}

// CurrencyChecker validates a currency code against the exchange API's list.
// Unavailability of the list is treated as "supported": currency validation is
// best-effort, matching how little the rest of the system trusts the code.
type CurrencyChecker interface {
	IsSupported(ctx context.Context, code string) (bool, error)
}

type Service struct {
	repo       Repository
	currencies CurrencyChecker
	logger     *slog.Logger
}

func NewService(repo Repository, currencies CurrencyChecker, logger *slog.Logger) *Service {
	return &Service{repo: repo, currencies: currencies, logger: logger}
}

func (s *Service) Create(ctx context.Context, name, currency string) (*Company, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if name == "" || currency == "" {
		return nil, internal.NewValidationError("company name and currency are required", internal.ErrCodeValidationFailed)
	}
	if err := s.checkCurrency(ctx, currency); err != nil {
		return nil, err
	}

	company := &Company{Name: name, Currency: currency}
	if err := s.repo.Create(company); err != nil {
		s.logger.Error("failed to create company", "error", err, "name", name)
		return nil, err
	}

	s.logger.Info("company created", "company_id", company.ID, "currency", currency)
	return company, nil
}

func (s *Service) GetByID(id int64) (*Company, error) {
	return s.repo.GetByID(id)
}

func (s *Service) UpdateCurrency(ctx context.Context, id int64, currency string) (*Company, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, internal.NewValidationError("currency is required", internal.ErrCodeInvalidCurrency)
	}
	if err := s.checkCurrency(ctx, currency); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateCurrency(id, currency); err != nil {
		s.logger.Error("failed to update company currency", "error", err, "company_id", id)
		return nil, err
	}

	s.logger.Info("company currency updated", "company_id", id, "currency", currency)
	return s.repo.GetByID(id)
}

func (s *Service) checkCurrency(ctx context.Context, code string) error {
	if s.currencies == nil {
		return nil
	}
	supported, err := s.currencies.IsSupported(ctx, code)
	if err != nil {
		s.logger.Warn("currency list unavailable, accepting code unchecked", "error", err, "currency", code)
		return nil
	}
	if !supported {
		return internal.NewValidationError("unknown currency code", internal.ErrCodeInvalidCurrency)
	}
	return nil
}
