package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeExpenseSubmitted = "expense.submitted"
	EventTypeExpenseApproved  = "expense.approved"
	EventTypeExpenseRejected  = "expense.rejected"
	EventTypeUserInvited      = "user.invited"
)

// ExpenseEvent covers submitted/approved/rejected. Recipient is the user the
// notifier should mail: the employee's manager for submissions, the employee
// for terminal decisions.
type ExpenseEvent struct {
	BaseEvent
	ExpenseID      int64  `json:"expense_id"`
	EmployeeID     int64  `json:"employee_id"`
	Category       string `json:"category"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name"`
}

func NewExpenseEvent(eventType string, expenseID, employeeID int64, category, amount, currency, recipientEmail, recipientName string) *ExpenseEvent {
	return &ExpenseEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"expense_id":  expenseID,
				"employee_id": employeeID,
				"category":    category,
				"amount":      amount,
				"currency":    currency,
			},
		},
		ExpenseID:      expenseID,
		EmployeeID:     employeeID,
		Category:       category,
		Amount:         amount,
		Currency:       currency,
		RecipientEmail: recipientEmail,
		RecipientName:  recipientName,
	}
}

// UserInvitedEvent carries the generated initial password so the notifier can
// mail credentials to a newly created user.
type UserInvitedEvent struct {
	BaseEvent
	UserID         int64  `json:"user_id"`
	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name"`
	TempPassword   string `json:"-"`
}

func NewUserInvitedEvent(userID int64, email, name, tempPassword string) *UserInvitedEvent {
	return &UserInvitedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeUserInvited,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
			},
		},
		UserID:         userID,
		RecipientEmail: email,
		RecipientName:  name,
		TempPassword:   tempPassword,
	}
}
