package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/credit-payments/internal"
	"github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/credit-payments/internal/core/events"
	"gorm.io/datatypes"
)

// Grant is the credit entitlement committed together with a success transition.
type Grant struct {
	UserID   string
	PlanName string
	Credits  int64
}

// Transition moves one pending transaction to a terminal status.
type Transition struct {
	TxnID            string
	Status           payment.Status
	GatewayReference string
	Payload          datatypes.JSON
	ProcessedAt      time.Time
	Grant            *Grant
}

// Store is the persistence contract of the reconciler.
//
// ApplyTransition must update the row only while it is still pending and commit the
// status change and the grant in one database transaction. It reports false, with a
// nil error, when the row had already left pending.
type Store interface {
	FindByTxnID(ctx context.Context, txnID string) (*payment.Transaction, error)
	ApplyTransition(ctx context.Context, t Transition) (bool, error)
	FlagForReview(ctx context.Context, review *payment.ReconciliationReview) error
}

type ReconcilerAPI interface {
	Reconcile(ctx context.Context, n *Notification) (*ReconcileResult, error)
}

type Reconciler struct {
	store     Store
	plans     *PlanCatalog
	publisher events.Publisher
	metrics   *Metrics
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithPublisher(p events.Publisher) ReconcilerOption {
	return func(r *Reconciler) { r.publisher = p }
}

func WithMetrics(m *Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithStoreTimeout bounds each store call. Zero means internal.DefaultStoreTimeout.
func WithStoreTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.timeout = d }
}

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(store Store, plans *PlanCatalog, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:   store,
		plans:   plans,
		logger:  logger,
		timeout: internal.DefaultStoreTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies a verified notification to the stored transaction.
// Storage failures are returned as ErrStorageUnavailable and never retried here;
// the gateway redelivers on 503.
func (r *Reconciler) Reconcile(ctx context.Context, n *Notification) (*ReconcileResult, error) {
	txn, err := r.find(ctx, n.TxnID)
	if err != nil {
		return nil, err
	}

	if !txn.Amount.Equal(n.Amount) {
		detail := fmt.Sprintf("stored amount %s, reported %s", txn.Amount.StringFixed(2), n.Amount.StringFixed(2))
		return nil, r.conflict(ctx, txn, n, payment.ReviewReasonAmountMismatch, detail, ErrAmountMismatch)
	}

	if txn.Status.IsTerminal() {
		return r.classifyTerminal(ctx, txn, n)
	}

	transition := Transition{
		TxnID:            txn.TxnID,
		Status:           n.Status,
		GatewayReference: n.GatewayReference,
		Payload:          n.Payload,
		ProcessedAt:      r.now().UTC(),
	}
	if n.Status == payment.StatusSuccess {
		credits, ok := r.planCredits(txn)
		if !ok {
			detail := fmt.Sprintf("plan %q has no credit allotment", txn.PlanName)
			return nil, r.conflict(ctx, txn, n, payment.ReviewReasonUnknownPlan, detail, ErrUnknownPlan)
		}
		transition.Grant = &Grant{
			UserID:   txn.UserID,
			PlanName: txn.PlanName,
			Credits:  credits,
		}
	}

	applied, err := r.apply(ctx, transition)
	if err != nil {
		return nil, err
	}

	if !applied {
		// Another delivery won the compare-and-swap; classify against what it wrote.
		current, err := r.find(ctx, n.TxnID)
		if err != nil {
			return nil, err
		}
		if !current.Status.IsTerminal() {
			return nil, ErrStorageUnavailable.Wrap(fmt.Errorf("transaction %s still pending after lost update", n.TxnID))
		}
		return r.classifyTerminal(ctx, current, n)
	}

	result := &ReconcileResult{
		Outcome: OutcomeApplied,
		TxnID:   txn.TxnID,
		Status:  n.Status,
	}
	if transition.Grant != nil {
		result.CreditsGranted = transition.Grant.Credits
	}

	r.logger.Info("transaction reconciled",
		"txn_id", txn.TxnID,
		"status", n.Status,
		"credits_granted", result.CreditsGranted,
		"gateway_reference", n.GatewayReference)
	r.metrics.ObserveOutcome(string(OutcomeApplied))
	r.publishApplied(ctx, txn, n, result)

	return result, nil
}

// planCredits prefers the allotment fixed at checkout and falls back to the
// catalog for rows created without one.
func (r *Reconciler) planCredits(txn *payment.Transaction) (int64, bool) {
	if txn.PlanCredits > 0 {
		return txn.PlanCredits, true
	}
	return r.plans.Credits(txn.PlanName)
}

func (r *Reconciler) classifyTerminal(ctx context.Context, txn *payment.Transaction, n *Notification) (*ReconcileResult, error) {
	if txn.Status == n.Status {
		r.logger.Info("duplicate notification ignored",
			"txn_id", txn.TxnID,
			"status", txn.Status)
		r.metrics.ObserveOutcome(string(OutcomeAlreadyApplied))
		return &ReconcileResult{
			Outcome: OutcomeAlreadyApplied,
			TxnID:   txn.TxnID,
			Status:  txn.Status,
		}, nil
	}

	detail := fmt.Sprintf("recorded %s, gateway reported %s", txn.Status, n.Status)
	return nil, r.conflict(ctx, txn, n, payment.ReviewReasonStatusConflict, detail, ErrReconcileConflict)
}

// conflict flags the notification for manual review and returns cause. The stored
// transaction is left as it is. A failure to record the flag is transient so the
// gateway redelivers and the flag is retried.
func (r *Reconciler) conflict(ctx context.Context, txn *payment.Transaction, n *Notification, reason payment.ReviewReason, detail string, cause *internal.AppError) error {
	r.logger.Error("notification conflicts with recorded transaction",
		"txn_id", txn.TxnID,
		"reason", reason,
		"detail", detail,
		"audit", n.Audit)
	r.metrics.ObserveOutcome(string(reason))

	review := &payment.ReconciliationReview{
		TxnID:          txn.TxnID,
		Reason:         reason,
		ReportedStatus: n.Status,
		StoredStatus:   txn.Status,
		Detail:         detail,
		Payload:        n.Payload,
		CreatedAt:      r.now().UTC(),
	}

	sctx, cancel := internal.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.FlagForReview(sctx, review); err != nil {
		return r.storageError("flag for review", n.TxnID, err)
	}

	r.publish(ctx, events.NewPaymentConflictEvent(txn.TxnID, string(reason), string(txn.Status), string(n.Status)))

	return cause.Wrap(errors.New(detail))
}

func (r *Reconciler) find(ctx context.Context, txnID string) (*payment.Transaction, error) {
	sctx, cancel := internal.WithTimeout(ctx, r.timeout)
	defer cancel()

	txn, err := r.store.FindByTxnID(sctx, txnID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			r.logger.Error("notification references unknown transaction", "txn_id", txnID)
			r.metrics.ObserveOutcome("not_found")
			return nil, ErrTransactionNotFound
		}
		return nil, r.storageError("find transaction", txnID, err)
	}
	return txn, nil
}

func (r *Reconciler) apply(ctx context.Context, t Transition) (bool, error) {
	sctx, cancel := internal.WithTimeout(ctx, r.timeout)
	defer cancel()

	applied, err := r.store.ApplyTransition(sctx, t)
	if err != nil {
		return false, r.storageError("apply transition", t.TxnID, err)
	}
	return applied, nil
}

func (r *Reconciler) storageError(op, txnID string, err error) error {
	r.logger.Error("transaction store failure",
		"op", op,
		"txn_id", txnID,
		"error", err)
	r.metrics.ObserveStoreError(err)
	r.metrics.ObserveOutcome("storage_error")
	return ErrStorageUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
}

func (r *Reconciler) publishApplied(ctx context.Context, txn *payment.Transaction, n *Notification, result *ReconcileResult) {
	amount := txn.Amount.StringFixed(2)
	switch n.Status {
	case payment.StatusSuccess:
		r.publish(ctx, events.NewPaymentConfirmedEvent(txn.TxnID, txn.UserID, txn.PlanName, amount, result.CreditsGranted, n.GatewayReference))
	case payment.StatusFailure:
		r.publish(ctx, events.NewPaymentFailedEvent(txn.TxnID, txn.UserID, amount, n.FailureReason, n.GatewayReference))
	}
}

// publish runs after commit, detached from the request so observers outlive the response.
func (r *Reconciler) publish(ctx context.Context, event events.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("failed to publish payment event",
			"event_type", event.EventType(),
			"error", err)
	}
}
