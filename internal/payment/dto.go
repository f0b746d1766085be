package payment

import (
	"strings"
	"time"

	errors "github.com/frahmantamala/credit-payments/internal"
	"github.com/frahmantamala/credit-payments/internal/core/common/validation"
	"github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var (
	ErrMissingSecret       = errors.NewConfigurationError("payment gateway secret is not configured", errors.ErrCodeMissingSecret)
	ErrMalformedPayload    = errors.NewValidationError("malformed webhook payload", errors.ErrCodeMalformedPayload)
	ErrInvalidSignature    = errors.NewUnauthorizedError("Invalid hash signature", errors.ErrCodeInvalidSignature)
	ErrTransactionNotFound = errors.NewNotFoundError("transaction not found", errors.ErrCodeTransactionNotFound)
	ErrReconcileConflict   = errors.NewConflictError("reported status conflicts with the recorded status", errors.ErrCodeStatusConflict)
	ErrAmountMismatch      = errors.NewConflictError("reported amount does not match the transaction amount", errors.ErrCodeAmountMismatch)
	ErrStorageUnavailable  = errors.NewUnavailableError("transaction store unavailable, retry later", errors.ErrCodeStorageUnavailable)
	ErrReviewNotFound      = errors.NewNotFoundError("open review not found", errors.ErrCodeReviewNotFound)
	ErrUnknownPlan         = errors.NewConflictError("transaction references an unknown plan", errors.ErrCodeUnknownPlan)
)

// Notification is a verified gateway callback reduced to what reconciliation needs.
type Notification struct {
	TxnID            string
	Status           payment.Status
	Amount           decimal.Decimal
	GatewayReference string
	FailureReason    string
	Audit            AuditRecord
	// Payload is the sanitized callback body stored alongside the transaction.
	Payload datatypes.JSON
}

// ParseNotification coerces verified params into a Notification. Statuses other than
// success and failure, including pending, are validation failures.
func ParseNotification(params types.Params) (*Notification, error) {
	validator := validation.NewValidator()
	validator.Field(types.FieldTxnID, params.Get(types.FieldTxnID)).Required().MaxLength(64)
	validator.Field(types.FieldStatus, params.Get(types.FieldStatus)).
		Required().
		OneOf(errors.ErrCodeUnsupportedStatus, types.StatusSuccess, types.StatusFailure)
	validator.Field(types.FieldAmount, params.Get(types.FieldAmount)).
		Required().
		PositiveDecimal(errors.ErrCodeInvalidAmount)
	if appErr := validator.Validate(); appErr != nil {
		return nil, appErr
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(params.Get(types.FieldAmount)))
	if err != nil {
		return nil, errors.NewValidationFieldError(types.FieldAmount, "amount is not a valid amount", errors.ErrCodeInvalidAmount)
	}

	payload, err := SanitizePayload(params)
	if err != nil {
		return nil, ErrMalformedPayload.Wrap(err)
	}

	n := &Notification{
		TxnID:            strings.TrimSpace(params.Get(types.FieldTxnID)),
		Status:           payment.Status(strings.ToLower(strings.TrimSpace(params.Get(types.FieldStatus)))),
		Amount:           amount,
		GatewayReference: strings.TrimSpace(params.Get(types.FieldMihPayID)),
		Audit:            NewAuditRecord(params),
		Payload:          payload,
	}
	if n.Status == payment.StatusFailure {
		n.FailureReason = params.Get(types.FieldErrorMessage)
	}
	return n, nil
}

type ReconcileOutcome string

const (
	OutcomeApplied        ReconcileOutcome = "applied"
	OutcomeAlreadyApplied ReconcileOutcome = "already_applied"
)

type ReconcileResult struct {
	Outcome        ReconcileOutcome
	TxnID          string
	Status         payment.Status
	CreditsGranted int64
}

// WebhookResponse is the body returned to the gateway on 200.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	TxnID   string `json:"txnId"`
	Status  string `json:"status"`
}

type ReviewResponse struct {
	ID             int64      `json:"id"`
	TxnID          string     `json:"txn_id"`
	Reason         string     `json:"reason"`
	StoredStatus   string     `json:"stored_status"`
	ReportedStatus string     `json:"reported_status"`
	Detail         string     `json:"detail"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
	Resolution     *string    `json:"resolution,omitempty"`
}

func NewReviewResponse(r payment.ReconciliationReview) ReviewResponse {
	return ReviewResponse{
		ID:             r.ID,
		TxnID:          r.TxnID,
		Reason:         string(r.Reason),
		StoredStatus:   string(r.StoredStatus),
		ReportedStatus: string(r.ReportedStatus),
		Detail:         r.Detail,
		CreatedAt:      r.CreatedAt,
		ResolvedAt:     r.ResolvedAt,
		ResolvedBy:     r.ResolvedBy,
		Resolution:     r.Resolution,
	}
}

type ResolveReviewRequest struct {
	Resolution string `json:"resolution"`
}

func (r *ResolveReviewRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("resolution", r.Resolution).Required().MaxLength(500)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type TransactionResponse struct {
	TxnID            string     `json:"txn_id"`
	UserID           string     `json:"user_id"`
	PlanName         string     `json:"plan_name"`
	Amount           string     `json:"amount"`
	PlanCredits      int64      `json:"plan_credits"`
	Status           string     `json:"status"`
	GatewayReference *string    `json:"gateway_reference,omitempty"`
	ValidUntil       time.Time  `json:"valid_until"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func NewTransactionResponse(t *payment.Transaction) TransactionResponse {
	return TransactionResponse{
		TxnID:            t.TxnID,
		UserID:           t.UserID,
		PlanName:         t.PlanName,
		Amount:           t.Amount.StringFixed(2),
		PlanCredits:      t.PlanCredits,
		Status:           string(t.Status),
		GatewayReference: t.GatewayReference,
		ValidUntil:       t.ValidUntil,
		ProcessedAt:      t.ProcessedAt,
		CreatedAt:        t.CreatedAt,
	}
}
