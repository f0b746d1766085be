package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/credit-payments/internal/core/events"
)

// EventHandler observes reconciliation events. It never writes to the store.
type EventHandler struct {
	metrics *Metrics
	logger  *slog.Logger
}

func NewEventHandler(metrics *Metrics, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		metrics: metrics,
		logger:  logger,
	}
}

func (h *EventHandler) HandlePaymentConfirmed(ctx context.Context, event events.Event) error {
	confirmed, ok := event.(*events.PaymentConfirmedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentConfirmedEvent, got %T", event)
	}

	h.logger.Info("payment confirmed",
		"txn_id", confirmed.TxnID,
		"user_id", confirmed.UserID,
		"plan_name", confirmed.PlanName,
		"credits_granted", confirmed.CreditsGranted,
		"event_id", confirmed.EventID())
	h.metrics.ObserveEvent(confirmed.EventType())
	h.metrics.AddCredits(confirmed.PlanName, confirmed.CreditsGranted)
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.logger.Info("payment failed",
		"txn_id", failed.TxnID,
		"user_id", failed.UserID,
		"failure_reason", failed.FailureReason,
		"event_id", failed.EventID())
	h.metrics.ObserveEvent(failed.EventType())
	return nil
}

func (h *EventHandler) HandlePaymentConflict(ctx context.Context, event events.Event) error {
	conflict, ok := event.(*events.PaymentConflictEvent)
	if !ok {
		return fmt.Errorf("expected PaymentConflictEvent, got %T", event)
	}

	h.logger.Warn("payment queued for manual review",
		"txn_id", conflict.TxnID,
		"reason", conflict.Reason,
		"stored_status", conflict.StoredStatus,
		"reported_status", conflict.ReportedStatus,
		"event_id", conflict.EventID())
	h.metrics.ObserveEvent(conflict.EventType())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentConfirmed, h.HandlePaymentConfirmed)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypePaymentConflict, h.HandlePaymentConflict)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{
			events.EventTypePaymentConfirmed,
			events.EventTypePaymentFailed,
			events.EventTypePaymentConflict,
		})
}
