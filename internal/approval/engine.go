package approval

import (
	"log/slog"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/user"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Action string

const (
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
)

func (a Action) Valid() bool {
	return a == ActionApproved || a == ActionRejected
}

// Claim is the slice of an expense the engine transitions on. Step 0 means
// the claim has not passed the manager gate; step N (1-based) means it waits
// on sequence step N.
type Claim struct {
	Status      Status
	CurrentStep int
}

type OutcomeKind string

const (
	OutcomeAdvanced          OutcomeKind = "advanced"
	OutcomeFinalizedApproved OutcomeKind = "finalized_approved"
	OutcomeFinalizedRejected OutcomeKind = "finalized_rejected"
)

// Outcome is the result of a decision. NewStep is set only for advances.
type Outcome struct {
	Kind    OutcomeKind
	NewStep int
}

func (o Outcome) Finalized() bool {
	return o.Kind == OutcomeFinalizedApproved || o.Kind == OutcomeFinalizedRejected
}

// FinalStatus returns the status an expense ends in after this outcome, or
// StatusPending if it merely advanced.
func (o Outcome) FinalStatus() Status {
	switch o.Kind {
	case OutcomeFinalizedApproved:
		return StatusApproved
	case OutcomeFinalizedRejected:
		return StatusRejected
	}
	return StatusPending
}

// Engine computes approval transitions. It is pure: callers load the rule,
// claim and users, and persist whatever outcome comes back.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// CanDecide is the single authorization check shared by Decide and the
// pending-approvals query view, so the two can never disagree about who may
// act on a claim.
//
// At the manager gate (step 0) with the gate configured, only the employee's
// direct manager qualifies. With no gate configured the claim would otherwise
// be unreachable, so admins may move it.
func (e *Engine) CanDecide(rule *Rule, claim Claim, approver, employee *user.User) (bool, error) {
	// decisions never cross tenants, whatever the routing below says
	if approver.CompanyID != employee.CompanyID {
		return false, nil
	}

	if claim.CurrentStep == 0 {
		if rule != nil && rule.IsManagerApproverRequired {
			return approver.ManagerOf(employee), nil
		}
		return approver.IsAdmin(), nil
	}

	if rule == nil {
		return false, internal.ErrInvalidApprovalRule.WithDetails("claim is mid-sequence but no rule is configured")
	}
	step, err := rule.StepAt(claim.CurrentStep)
	if err != nil {
		return false, err
	}
	return step.Target.Matches(approver), nil
}

// Decide computes the transition for one approver decision. It mutates
// nothing; on success the caller appends the audit record and applies the
// outcome atomically.
func (e *Engine) Decide(rule *Rule, claim Claim, approver, employee *user.User, action Action) (Outcome, error) {
	if approver == nil || employee == nil {
		return Outcome{}, internal.ErrUserNotFound
	}
	if claim.Status != StatusPending {
		return Outcome{}, internal.ErrInvalidExpenseStatus
	}
	if !action.Valid() {
		return Outcome{}, internal.NewValidationError("action must be approved or rejected", internal.ErrCodeValidationFailed)
	}

	ok, err := e.CanDecide(rule, claim, approver, employee)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		e.logger.Warn("decision by unauthorized approver",
			"approver_id", approver.ID,
			"approver_role", approver.Role,
			"current_step", claim.CurrentStep)
		return Outcome{}, internal.ErrUnauthorizedApprover
	}

	if action == ActionRejected {
		// a rejection finalizes from any position, never advances
		return Outcome{Kind: OutcomeFinalizedRejected}, nil
	}

	if claim.CurrentStep == 0 {
		if rule != nil && len(rule.Sequence) > 0 {
			return Outcome{Kind: OutcomeAdvanced, NewStep: 1}, nil
		}
		return Outcome{Kind: OutcomeFinalizedApproved}, nil
	}

	if claim.CurrentStep < len(rule.Sequence) {
		return Outcome{Kind: OutcomeAdvanced, NewStep: claim.CurrentStep + 1}, nil
	}
	return Outcome{Kind: OutcomeFinalizedApproved}, nil
}

// Override computes an admin override: a sequence-bypassing terminal decision
// valid on any claim regardless of status or step.
func (e *Engine) Override(claim Claim, admin *user.User, action Action) (Outcome, error) {
	if admin == nil {
		return Outcome{}, internal.ErrUserNotFound
	}
	if !admin.IsAdmin() {
		return Outcome{}, internal.ErrUnauthorizedApprover
	}
	if !action.Valid() {
		return Outcome{}, internal.NewValidationError("action must be approved or rejected", internal.ErrCodeValidationFailed)
	}

	if action == ActionApproved {
		return Outcome{Kind: OutcomeFinalizedApproved}, nil
	}
	return Outcome{Kind: OutcomeFinalizedRejected}, nil
}
