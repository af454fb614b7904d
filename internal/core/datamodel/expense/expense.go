package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is the persistence model for expense claims. ApprovalHistory and
// OCRData are stored as JSONB blobs; the domain layer owns their shape.
// Version backs the optimistic concurrency check on every status update.
type Expense struct {
	ID              int64            `json:"id" gorm:"primaryKey"`
	EmployeeID      int64            `json:"employee_id" gorm:"column:employee_id;not null;index"`
	EmployeeName    string           `json:"employee_name" gorm:"column:employee_name;not null"`
	CompanyID       int64            `json:"company_id" gorm:"column:company_id;not null;index"`
	Amount          decimal.Decimal  `json:"amount" gorm:"type:numeric(18,2);not null"`
	Currency        string           `json:"currency" gorm:"not null"`
	ConvertedAmount *decimal.Decimal `json:"converted_amount,omitempty" gorm:"column:converted_amount;type:numeric(18,2)"`
	Category        string           `json:"category"`
	Description     string           `json:"description" gorm:"not null"`
	ExpenseDate     time.Time        `json:"expense_date" gorm:"column:expense_date;type:date"`
	Status          string           `json:"status" gorm:"not null;default:pending;index"`
	CurrentStep     int              `json:"current_approval_step" gorm:"column:current_approval_step;not null;default:0"`
	ApprovalHistory []byte           `json:"-" gorm:"column:approval_history;type:jsonb"`
	ReceiptURL      *string          `json:"receipt_url,omitempty" gorm:"column:receipt_url"`
	OCRData         []byte           `json:"-" gorm:"column:ocr_data;type:jsonb"`
	Version         int64            `json:"-" gorm:"not null;default:0"`
	SubmittedAt     time.Time        `json:"submitted_at" gorm:"column:submitted_at;default:now()"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty" gorm:"column:processed_at"`
	CreatedAt       time.Time        `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Expense) TableName() string {
	return "expenses"
}
