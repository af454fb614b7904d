package approval

import (
	"errors"

	"github.com/expenseflow/expenseflow/internal/user"
)

// UpdateRuleDTO is the request payload for replacing a company's rule.
type UpdateRuleDTO struct {
	IsManagerApproverRequired bool      `json:"is_manager_approver_required"`
	Sequence                  []StepDTO `json:"sequence"`
}

type StepDTO struct {
	Step   int       `json:"step"`
	Role   user.Role `json:"role,omitempty"`
	UserID int64     `json:"user_id,omitempty"`
}

func (dto UpdateRuleDTO) Validate() error {
	for _, step := range dto.Sequence {
		if step.Role != "" && step.UserID != 0 {
			return errors.New("a step may name a role or a user, not both")
		}
		if step.Role == "" && step.UserID == 0 {
			return errors.New("a step must name a role or a user")
		}
	}
	return nil
}

// ToSteps renumbers the payload contiguously in payload order, so a UI that
// deletes a middle step does not have to renumber client-side.
func (dto UpdateRuleDTO) ToSteps() []Step {
	steps := make([]Step, len(dto.Sequence))
	for i, s := range dto.Sequence {
		target := ByRole(s.Role)
		if s.UserID != 0 {
			target = ByUser(s.UserID)
		}
		steps[i] = Step{Number: i + 1, Target: target}
	}
	return steps
}

// RuleResponse is the wire shape for a rule.
type RuleResponse struct {
	ID                        int64     `json:"id"`
	CompanyID                 int64     `json:"company_id"`
	IsManagerApproverRequired bool      `json:"is_manager_approver_required"`
	Sequence                  []StepDTO `json:"sequence"`
}

func ToRuleResponse(r *Rule) RuleResponse {
	steps := make([]StepDTO, len(r.Sequence))
	for i, s := range r.Sequence {
		steps[i] = StepDTO{Step: s.Number, Role: s.Target.Role, UserID: s.Target.UserID}
	}
	return RuleResponse{
		ID:                        r.ID,
		CompanyID:                 r.CompanyID,
		IsManagerApproverRequired: r.IsManagerApproverRequired,
		Sequence:                  steps,
	}
}
