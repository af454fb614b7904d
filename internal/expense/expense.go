package expense

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/expenseflow/expenseflow/internal/approval"
	expenseDatamodel "github.com/expenseflow/expenseflow/internal/core/datamodel/expense"
	"github.com/shopspring/decimal"
)

// OverrideStep marks an admin-override record in the approval history.
const OverrideStep = -1

// ApprovalRecord is one entry of the audit trail. Records are append-only and
// chronological; Step is the step the decision was made at, not transitioned
// to.
type ApprovalRecord struct {
	Step         int             `json:"step"`
	ApproverID   int64           `json:"approver_id"`
	ApproverName string          `json:"approver_name"`
	Action       approval.Action `json:"action"`
	Comment      string          `json:"comment,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Expense is an expense claim moving through the approval workflow.
// EmployeeName is a snapshot taken at submission so later renames do not
// rewrite history. ReceiptURL and OCRData are opaque enrichment.
type Expense struct {
	ID              int64            `json:"id"`
	EmployeeID      int64            `json:"employee_id"`
	EmployeeName    string           `json:"employee_name"`
	CompanyID       int64            `json:"company_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	ConvertedAmount *decimal.Decimal `json:"converted_amount,omitempty"`
	Category        string           `json:"category"`
	Description     string           `json:"description"`
	ExpenseDate     time.Time        `json:"expense_date"`
	Status          approval.Status  `json:"status"`
	CurrentStep     int              `json:"current_approval_step"`
	ApprovalHistory []ApprovalRecord `json:"approval_history"`
	ReceiptURL      *string          `json:"receipt_url,omitempty"`
	OCRData         json.RawMessage  `json:"ocr_data,omitempty"`
	Version         int64            `json:"-"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Claim projects the expense into the engine's view of it.
func (e *Expense) Claim() approval.Claim {
	return approval.Claim{Status: e.Status, CurrentStep: e.CurrentStep}
}

func (e *Expense) IsPending() bool {
	return e.Status == approval.StatusPending
}

// AppendRecord adds an audit entry at the step the decision was made at.
func (e *Expense) AppendRecord(record ApprovalRecord) {
	e.ApprovalHistory = append(e.ApprovalHistory, record)
}

// ApplyOutcome moves the expense per the engine's outcome. Overrides finalize
// without touching CurrentStep; normal advances bump it.
func (e *Expense) ApplyOutcome(outcome approval.Outcome) {
	now := time.Now()
	switch outcome.Kind {
	case approval.OutcomeAdvanced:
		e.CurrentStep = outcome.NewStep
	case approval.OutcomeFinalizedApproved, approval.OutcomeFinalizedRejected:
		e.Status = outcome.FinalStatus()
		e.ProcessedAt = &now
	}
	e.UpdatedAt = now
}

func ToDataModel(e *Expense) (*expenseDatamodel.Expense, error) {
	history, err := json.Marshal(e.ApprovalHistory)
	if err != nil {
		return nil, fmt.Errorf("marshal approval history: %w", err)
	}
	return &expenseDatamodel.Expense{
		ID:              e.ID,
		EmployeeID:      e.EmployeeID,
		EmployeeName:    e.EmployeeName,
		CompanyID:       e.CompanyID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		ConvertedAmount: e.ConvertedAmount,
		Category:        e.Category,
		Description:     e.Description,
		ExpenseDate:     e.ExpenseDate,
		Status:          string(e.Status),
		CurrentStep:     e.CurrentStep,
		ApprovalHistory: history,
		ReceiptURL:      e.ReceiptURL,
		OCRData:         e.OCRData,
		Version:         e.Version,
		SubmittedAt:     e.SubmittedAt,
		ProcessedAt:     e.ProcessedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}, nil
}

func FromDataModel(dm *expenseDatamodel.Expense) (*Expense, error) {
	e := &Expense{
		ID:              dm.ID,
		EmployeeID:      dm.EmployeeID,
		EmployeeName:    dm.EmployeeName,
		CompanyID:       dm.CompanyID,
		Amount:          dm.Amount,
		Currency:        dm.Currency,
		ConvertedAmount: dm.ConvertedAmount,
		Category:        dm.Category,
		Description:     dm.Description,
		ExpenseDate:     dm.ExpenseDate,
		Status:          approval.Status(dm.Status),
		CurrentStep:     dm.CurrentStep,
		ApprovalHistory: []ApprovalRecord{},
		ReceiptURL:      dm.ReceiptURL,
		OCRData:         dm.OCRData,
		Version:         dm.Version,
		SubmittedAt:     dm.SubmittedAt,
		ProcessedAt:     dm.ProcessedAt,
		CreatedAt:       dm.CreatedAt,
		UpdatedAt:       dm.UpdatedAt,
	}
	if len(dm.ApprovalHistory) > 0 {
		if err := json.Unmarshal(dm.ApprovalHistory, &e.ApprovalHistory); err != nil {
			return nil, fmt.Errorf("unmarshal approval history: %w", err)
		}
	}
	return e, nil
}

func FromDataModelSlice(dms []*expenseDatamodel.Expense) ([]*Expense, error) {
	result := make([]*Expense, len(dms))
	for i, dm := range dms {
		e, err := FromDataModel(dm)
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}
