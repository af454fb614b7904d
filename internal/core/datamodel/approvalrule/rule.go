package approvalrule

import "time"

// Rule is the persistence model for a company's approval rule. The ordered
// step sequence is stored as a JSONB blob and replaced wholesale on edit.
type Rule struct {
	ID                      int64     `json:"id" gorm:"primaryKey"`
	CompanyID               int64     `json:"company_id" gorm:"column:company_id;uniqueIndex;not null"`
	IsManagerApproverNeeded bool      `json:"is_manager_approver_required" gorm:"column:is_manager_approver_required;not null;default:true"`
	Sequence                []byte    `json:"-" gorm:"column:sequence;type:jsonb"`
	CreatedAt               time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt               time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Rule) TableName() string {
	return "approval_rules"
}
