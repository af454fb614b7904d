package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/expenseflow/expenseflow/internal/core/events"
)

// Subscriber bridges the event bus and the mailer. It owns the mapping from
// workflow events to outbound email; nothing else in the codebase knows mail
// exists.
type Subscriber struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewSubscriber(notifier Notifier, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		notifier: notifier,
		logger:   logger,
	}
}

func (s *Subscriber) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeExpenseSubmitted, s.handleExpense(KindSubmitted))
	bus.Subscribe(events.EventTypeExpenseApproved, s.handleExpense(KindApproved))
	bus.Subscribe(events.EventTypeExpenseRejected, s.handleExpense(KindRejected))
	bus.Subscribe(events.EventTypeUserInvited, s.handleUserInvited)
}

func (s *Subscriber) handleExpense(kind Kind) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.ExpenseEvent)
		if !ok {
			return fmt.Errorf("unexpected payload for %s: %T", event.EventType(), event)
		}

		if e.RecipientEmail == "" {
			s.logger.Debug("expense event has no recipient, skipping mail",
				"event_type", event.EventType(),
				"expense_id", e.ExpenseID)
			return nil
		}

		s.notifier.Enqueue(ExpenseEmail(kind, e.RecipientEmail, e.RecipientName, e.Category, e.Amount, e.Currency))
		return nil
	}
}

func (s *Subscriber) handleUserInvited(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.UserInvitedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload for %s: %T", event.EventType(), event)
	}

	s.notifier.Enqueue(CredentialsEmail(e.RecipientEmail, e.RecipientName, e.TempPassword))
	return nil
}
