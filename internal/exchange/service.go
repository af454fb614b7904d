package exchange

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// RateSource yields the latest conversion rate for a currency pair.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Service converts amounts between currencies. It is a best-effort
// collaborator: callers treat errors as "keep the original amount".
type Service struct {
	rates  RateSource
	logger *slog.Logger
}

func NewService(rates RateSource, logger *slog.Logger) *Service {
	return &Service{rates: rates, logger: logger}
}

func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = normalizeCode(from)
	to = normalizeCode(to)
	if from == to {
		return amount, nil
	}

	rate, err := s.rates.Rate(ctx, from, to)
	if err != nil {
		s.logger.Warn("rate lookup failed", "from", from, "to", to, "error", err)
		return decimal.Decimal{}, err
	}

	return amount.Mul(rate).Round(2), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
