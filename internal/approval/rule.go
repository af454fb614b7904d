package approval

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/expenseflow/expenseflow/internal"
	ruleDatamodel "github.com/expenseflow/expenseflow/internal/core/datamodel/approvalrule"
	"github.com/expenseflow/expenseflow/internal/user"
)

// RouteTarget names who a sequence step routes to: either a specific user or
// anyone holding a role. Exactly one of the two is set.
type RouteTarget struct {
	Role   user.Role
	UserID int64
}

func ByRole(role user.Role) RouteTarget {
	return RouteTarget{Role: role}
}

func ByUser(userID int64) RouteTarget {
	return RouteTarget{UserID: userID}
}

func (t RouteTarget) IsUser() bool {
	return t.UserID != 0
}

// Matches reports whether the approver satisfies this routing target.
// A user-pinned step matches only that user, never by role.
func (t RouteTarget) Matches(approver *user.User) bool {
	if t.IsUser() {
		return approver.ID == t.UserID
	}
	return approver.Role == t.Role
}

// Step is one position in the post-manager-gate approval sequence.
// Numbers are 1-based and contiguous.
type Step struct {
	Number int
	Target RouteTarget
}

type stepJSON struct {
	Step   int       `json:"step"`
	Role   user.Role `json:"role,omitempty"`
	UserID int64     `json:"user_id,omitempty"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{Step: s.Number, Role: s.Target.Role, UserID: s.Target.UserID})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Number = raw.Step
	// user_id wins when both are present, matching how stored rules from
	// older configs are interpreted
	if raw.UserID != 0 {
		s.Target = ByUser(raw.UserID)
	} else {
		s.Target = ByRole(raw.Role)
	}
	return nil
}

// Rule is a company's approval configuration: an optional manager gate
// followed by an ordered step sequence. Replaced wholesale on every edit.
type Rule struct {
	ID                        int64     `json:"id"`
	CompanyID                 int64     `json:"company_id"`
	IsManagerApproverRequired bool      `json:"is_manager_approver_required"`
	Sequence                  []Step    `json:"sequence"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// DefaultRule is the rule a company starts with: manager approval required,
// no sequence beyond the gate.
func DefaultRule(companyID int64) *Rule {
	return &Rule{
		CompanyID:                 companyID,
		IsManagerApproverRequired: true,
		Sequence:                  []Step{},
	}
}

// Validate enforces what the engine assumes: step numbers contiguous from 1
// and exactly one routing key per step.
func (r *Rule) Validate() error {
	for i, step := range r.Sequence {
		if step.Number != i+1 {
			return internal.ErrInvalidApprovalRule.WithDetails(
				fmt.Sprintf("step %d is numbered %d; steps must be contiguous starting at 1", i+1, step.Number))
		}
		hasRole := step.Target.Role != ""
		hasUser := step.Target.UserID != 0
		if hasRole == hasUser {
			return internal.ErrInvalidApprovalRule.WithDetails(
				fmt.Sprintf("step %d must name exactly one of role or user", step.Number))
		}
		if hasRole && !step.Target.Role.Valid() {
			return internal.ErrInvalidApprovalRule.WithDetails(
				fmt.Sprintf("step %d has unknown role %q", step.Number, step.Target.Role))
		}
	}
	return nil
}

// StepAt returns the sequence step a claim at currentStep is waiting on.
// currentStep is the expense's 1-based position.
func (r *Rule) StepAt(currentStep int) (Step, error) {
	if currentStep < 1 || currentStep > len(r.Sequence) {
		return Step{}, internal.ErrInvalidApprovalRule.WithDetails(
			fmt.Sprintf("step %d is out of range for a sequence of %d", currentStep, len(r.Sequence)))
	}
	return r.Sequence[currentStep-1], nil
}

func ToDataModel(r *Rule) (*ruleDatamodel.Rule, error) {
	seq, err := json.Marshal(r.Sequence)
	if err != nil {
		return nil, fmt.Errorf("marshal rule sequence: %w", err)
	}
	return &ruleDatamodel.Rule{
		ID:                      r.ID,
		CompanyID:               r.CompanyID,
		IsManagerApproverNeeded: r.IsManagerApproverRequired,
		Sequence:                seq,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}, nil
}

func FromDataModel(dm *ruleDatamodel.Rule) (*Rule, error) {
	rule := &Rule{
		ID:                        dm.ID,
		CompanyID:                 dm.CompanyID,
		IsManagerApproverRequired: dm.IsManagerApproverNeeded,
		Sequence:                  []Step{},
		CreatedAt:                 dm.CreatedAt,
		UpdatedAt:                 dm.UpdatedAt,
	}
	if len(dm.Sequence) > 0 {
		if err := json.Unmarshal(dm.Sequence, &rule.Sequence); err != nil {
			return nil, fmt.Errorf("unmarshal rule sequence: %w", err)
		}
	}
	return rule, nil
}
