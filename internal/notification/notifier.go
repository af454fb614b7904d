package notification

import "fmt"

type Kind string

const (
	KindSubmitted   Kind = "expense_submitted"
	KindApproved    Kind = "expense_approved"
	KindRejected    Kind = "expense_rejected"
	KindCredentials Kind = "credentials"
)

// Email is one outbound message. Delivery is fire-and-forget.
type Email struct {
	To      string
	ToName  string
	Subject string
	Body    string
	Kind    Kind
}

// Notifier is the delivery collaborator. Implementations must never block the
// caller on network I/O.
type Notifier interface {
	Enqueue(email Email)
}

// ExpenseEmail renders the message for a workflow transition.
func ExpenseEmail(kind Kind, recipientEmail, recipientName, category, amount, currency string) Email {
	var subject, body string
	switch kind {
	case KindSubmitted:
		subject = fmt.Sprintf("New Expense Submitted - %s", category)
		body = fmt.Sprintf("Hi %s,\n\nA new expense of %s %s (%s) is waiting for your approval.",
			recipientName, amount, currency, category)
	case KindApproved:
		subject = fmt.Sprintf("Expense Approved - %s", category)
		body = fmt.Sprintf("Hi %s,\n\nYour expense of %s %s (%s) has been approved.",
			recipientName, amount, currency, category)
	case KindRejected:
		subject = fmt.Sprintf("Expense Rejected - %s", category)
		body = fmt.Sprintf("Hi %s,\n\nYour expense of %s %s (%s) has been rejected. Check the approval history for the reviewer's comment.",
			recipientName, amount, currency, category)
	}
	return Email{
		To:      recipientEmail,
		ToName:  recipientName,
		Subject: subject,
		Body:    body,
		Kind:    kind,
	}
}

// CredentialsEmail renders the initial-password message for a new account.
func CredentialsEmail(recipientEmail, recipientName, tempPassword string) Email {
	return Email{
		To:      recipientEmail,
		ToName:  recipientName,
		Subject: "Your ExpenseFlow Account Credentials",
		Body: fmt.Sprintf("Hi %s,\n\nAn account has been created for you. Your temporary password is: %s\n\nPlease change it after your first login.",
			recipientName, tempPassword),
		Kind: KindCredentials,
	}
}
