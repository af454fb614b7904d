package postgres

import (
	"time"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	ruleDatamodel "github.com/expenseflow/expenseflow/internal/core/datamodel/approvalrule"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RuleRepository implements approval.Repository using GORM.
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) approval.Repository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) GetByCompany(companyID int64) (*approval.Rule, error) {
	var dm ruleDatamodel.Rule
	err := r.db.Where("company_id = ?", companyID).First(&dm).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrRuleNotFound
		}
		return nil, err
	}
	return approval.FromDataModel(&dm)
}

// Upsert replaces the company's rule wholesale, keyed by company_id.
func (r *RuleRepository) Upsert(rule *approval.Rule) (*approval.Rule, error) {
	dm, err := approval.ToDataModel(rule)
	if err != nil {
		return nil, err
	}
	dm.UpdatedAt = time.Now()
	if dm.CreatedAt.IsZero() {
		dm.CreatedAt = dm.UpdatedAt
	}

	err = r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_manager_approver_required", "sequence", "updated_at",
		}),
	}).Create(dm).Error
	if err != nil {
		return nil, err
	}

	return r.GetByCompany(rule.CompanyID)
}
