package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentConflict  = "payment.conflict"
)

// PaymentConfirmedEvent is published after a success transition and its credit grant have committed.
type PaymentConfirmedEvent struct {
	BaseEvent
	TxnID            string `json:"txn_id"`
	UserID           string `json:"user_id"`
	PlanName         string `json:"plan_name"`
	Amount           string `json:"amount"`
	CreditsGranted   int64  `json:"credits_granted"`
	GatewayReference string `json:"gateway_reference"`
}

func NewPaymentConfirmedEvent(txnID, userID, planName, amount string, credits int64, gatewayRef string) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"txn_id":            txnID,
				"user_id":           userID,
				"plan_name":         planName,
				"amount":            amount,
				"credits_granted":   credits,
				"gateway_reference": gatewayRef,
			},
		},
		TxnID:            txnID,
		UserID:           userID,
		PlanName:         planName,
		Amount:           amount,
		CreditsGranted:   credits,
		GatewayReference: gatewayRef,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	TxnID            string `json:"txn_id"`
	UserID           string `json:"user_id"`
	Amount           string `json:"amount"`
	FailureReason    string `json:"failure_reason"`
	GatewayReference string `json:"gateway_reference"`
}

func NewPaymentFailedEvent(txnID, userID, amount, failureReason, gatewayRef string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"txn_id":            txnID,
				"user_id":           userID,
				"amount":            amount,
				"failure_reason":    failureReason,
				"gateway_reference": gatewayRef,
			},
		},
		TxnID:            txnID,
		UserID:           userID,
		Amount:           amount,
		FailureReason:    failureReason,
		GatewayReference: gatewayRef,
	}
}

// PaymentConflictEvent signals a notification that contradicted stored state and was queued for review.
type PaymentConflictEvent struct {
	BaseEvent
	TxnID          string `json:"txn_id"`
	Reason         string `json:"reason"`
	StoredStatus   string `json:"stored_status"`
	ReportedStatus string `json:"reported_status"`
}

func NewPaymentConflictEvent(txnID, reason, storedStatus, reportedStatus string) *PaymentConflictEvent {
	return &PaymentConflictEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConflict,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"txn_id":          txnID,
				"reason":          reason,
				"stored_status":   storedStatus,
				"reported_status": reportedStatus,
			},
		},
		TxnID:          txnID,
		Reason:         reason,
		StoredStatus:   storedStatus,
		ReportedStatus: reportedStatus,
	}
}
