package expense

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/expenseflow/expenseflow/internal/approval"
	"github.com/shopspring/decimal"
)

// CreateExpenseDTO is the request payload for submitting an expense claim.
type CreateExpenseDTO struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ExpenseDate time.Time       `json:"expense_date"`
	ReceiptURL  *string         `json:"receipt_url,omitempty"`
	OCRData     json.RawMessage `json:"ocr_data,omitempty"`
}

func (dto CreateExpenseDTO) Validate() error {
	if !dto.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	if dto.Currency == "" {
		return errors.New("currency is required")
	}
	if dto.Description == "" {
		return errors.New("description is required")
	}
	if len(dto.Description) > 500 {
		return errors.New("description must be less than 500 characters")
	}
	if dto.Category == "" {
		return errors.New("category is required")
	}
	if dto.ExpenseDate.IsZero() {
		return errors.New("expense date is required")
	}
	if dto.ExpenseDate.After(time.Now()) {
		return errors.New("expense date cannot be in the future")
	}
	return nil
}

// DecisionDTO is the request payload for an approve/reject decision.
type DecisionDTO struct {
	Action  approval.Action `json:"action"`
	Comment string          `json:"comment,omitempty"`
}

func (dto DecisionDTO) Validate() error {
	if !dto.Action.Valid() {
		return errors.New("action must be either 'approved' or 'rejected'")
	}
	if dto.Action == approval.ActionRejected && dto.Comment == "" {
		return errors.New("comment is required when rejecting an expense")
	}
	return nil
}

// OverrideDTO is the request payload for an admin override.
type OverrideDTO struct {
	Action  approval.Action `json:"action"`
	Comment string          `json:"comment,omitempty"`
}

func (dto OverrideDTO) Validate() error {
	if !dto.Action.Valid() {
		return errors.New("action must be either 'approved' or 'rejected'")
	}
	return nil
}

// DecisionResponse reports what a decision did.
type DecisionResponse struct {
	Outcome     approval.OutcomeKind `json:"outcome"`
	Status      approval.Status      `json:"status"`
	CurrentStep int                  `json:"current_approval_step"`
}
