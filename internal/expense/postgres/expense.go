package postgres

import (
	"time"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	expenseDatamodel "github.com/expenseflow/expenseflow/internal/core/datamodel/expense"
	"github.com/expenseflow/expenseflow/internal/expense"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExpenseRepository implements the expense.Repository interface using GORM.
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) expense.Repository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(exp *expense.Expense) error {
	dm, err := expense.ToDataModel(exp)
	if err != nil {
		return err
	}
	if err := r.db.Create(dm).Error; err != nil {
		return err
	}
	exp.ID = dm.ID
	exp.Version = dm.Version
	exp.CreatedAt = dm.CreatedAt
	exp.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *ExpenseRepository) GetByID(id int64) (*expense.Expense, error) {
	var dm expenseDatamodel.Expense
	err := r.db.Where("id = ?", id).First(&dm).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, err
	}
	return expense.FromDataModel(&dm)
}

func (r *ExpenseRepository) GetByEmployee(employeeID int64, limit, offset int) ([]*expense.Expense, error) {
	var dms []*expenseDatamodel.Expense
	err := r.db.Where("employee_id = ?", employeeID).
		Order("submitted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&dms).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(dms)
}

func (r *ExpenseRepository) GetByEmployees(employeeIDs []int64) ([]*expense.Expense, error) {
	var dms []*expenseDatamodel.Expense
	err := r.db.Where("employee_id IN ?", employeeIDs).
		Order("submitted_at DESC").
		Find(&dms).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(dms)
}

func (r *ExpenseRepository) GetByCompany(companyID int64, limit, offset int) ([]*expense.Expense, error) {
	var dms []*expenseDatamodel.Expense
	err := r.db.Where("company_id = ?", companyID).
		Order("submitted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&dms).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(dms)
}

func (r *ExpenseRepository) GetPendingByCompany(companyID int64) ([]*expense.Expense, error) {
	var dms []*expenseDatamodel.Expense
	err := r.db.Where("company_id = ? AND status = ?", companyID, string(approval.StatusPending)).
		Order("submitted_at ASC"). // FIFO for approvals
		Find(&dms).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(dms)
}

// UpdateWithVersion writes the full workflow state guarded by the version the
// expense was read at. A zero row count means someone else won the race.
func (r *ExpenseRepository) UpdateWithVersion(exp *expense.Expense) error {
	dm, err := expense.ToDataModel(exp)
	if err != nil {
		return err
	}

	readVersion := exp.Version
	result := r.db.Model(&expenseDatamodel.Expense{}).
		Where("id = ? AND version = ?", exp.ID, readVersion).
		Updates(map[string]interface{}{
			"status":                dm.Status,
			"current_approval_step": dm.CurrentStep,
			"approval_history":      dm.ApprovalHistory,
			"processed_at":          dm.ProcessedAt,
			"version":               readVersion + 1,
			"updated_at":            time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrConcurrentUpdate
	}

	exp.Version = readVersion + 1
	return nil
}

func (r *ExpenseRepository) UpdateConvertedAmount(id int64, amount decimal.Decimal) error {
	return r.db.Model(&expenseDatamodel.Expense{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"converted_amount": amount,
			"updated_at":       time.Now(),
		}).Error
}
