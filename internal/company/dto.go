package company

import (
	"strings"

	"github.com/expenseflow/expenseflow/internal"
)

type UpdateCurrencyDTO struct {
	Currency string `json:"currency"`
}

func (d *UpdateCurrencyDTO) Validate() error {
	if strings.TrimSpace(d.Currency) == "" {
		return internal.NewValidationError("currency is required", internal.ErrCodeInvalidCurrency)
	}
	return nil
}

type CompanyResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func ToCompanyResponse(c *Company) CompanyResponse {
	return CompanyResponse{
		ID:       c.ID,
		Name:     c.Name,
		Currency: c.Currency,
	}
}
