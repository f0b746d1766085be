package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Transaction is created pending at checkout and moved to a terminal status exactly once by the reconciler.
// Rows are never deleted.
type Transaction struct {
	ID                int64           `gorm:"primaryKey" json:"id"`
	TxnID             string          `gorm:"column:txn_id;not null;uniqueIndex" json:"txn_id"`
	UserID            string          `gorm:"column:user_id;not null;index" json:"user_id"`
	PlanName          string          `gorm:"column:plan_name;not null" json:"plan_name"`
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	// PlanCredits is fixed at checkout. Zero on rows created before it existed.
	PlanCredits       int64           `gorm:"column:plan_credits;not null;default:0" json:"plan_credits"`
	Status            Status          `gorm:"column:status;not null;index" json:"status"`
	GatewayReference  *string         `gorm:"column:gateway_reference" json:"gateway_reference,omitempty"`
	RawGatewayPayload datatypes.JSON  `gorm:"column:raw_gateway_payload" json:"raw_gateway_payload,omitempty"`
	ValidUntil        time.Time       `gorm:"column:valid_until;not null" json:"valid_until"`
	ProcessedAt       *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

type ReviewReason string

const (
	ReviewReasonStatusConflict ReviewReason = "status_conflict"
	ReviewReasonAmountMismatch ReviewReason = "amount_mismatch"
	ReviewReasonUnknownPlan    ReviewReason = "unknown_plan"
)

// ReconciliationReview records a notification that contradicted stored state.
// One row per (txn_id, reason, reported_status); redeliveries of the same contradiction collapse into it.
type ReconciliationReview struct {
	ID             int64          `gorm:"primaryKey" json:"id"`
	TxnID          string         `gorm:"column:txn_id;not null;uniqueIndex:idx_reviews_txn_reason_status" json:"txn_id"`
	Reason         ReviewReason   `gorm:"column:reason;not null;uniqueIndex:idx_reviews_txn_reason_status" json:"reason"`
	ReportedStatus Status         `gorm:"column:reported_status;not null;uniqueIndex:idx_reviews_txn_reason_status" json:"reported_status"`
	StoredStatus   Status         `gorm:"column:stored_status;not null" json:"stored_status"`
	Detail         string         `gorm:"column:detail" json:"detail"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	ResolvedAt     *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy     *string        `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
	Resolution     *string        `gorm:"column:resolution" json:"resolution,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (ReconciliationReview) TableName() string {
	return "reconciliation_reviews"
}
