package postgres

import (
	"time"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/company"
	companyDatamodel "github.com/expenseflow/expenseflow/internal/core/datamodel/company"
	"gorm.io/gorm"
)

// CompanyRepository implements company.Repository using GORM.
type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) company.Repository {
	return &CompanyRepository{db: db}
}

func (r *CompanyRepository) Create(c *company.Company) error {
	dm := company.ToDataModel(c)
	if err := r.db.Create(dm).Error; err != nil {
		return err
	}
	c.ID = dm.ID
	c.CreatedAt = dm.CreatedAt
	c.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *CompanyRepository) GetByID(id int64) (*company.Company, error) {
	var dm companyDatamodel.Company
	err := r.db.Where("id = ?", id).First(&dm).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrCompanyNotFound
		}
		return nil, err
	}
	return company.FromDataModel(&dm), nil
}

func (r *CompanyRepository) UpdateCurrency(id int64, currency string) error {
	result := r.db.Model(&companyDatamodel.Company{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"currency":   currency,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrCompanyNotFound
	}
	return nil
}
