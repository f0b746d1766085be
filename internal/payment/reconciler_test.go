package payment_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	model "github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/credit-payments/internal/core/events"
	"github.com/frahmantamala/credit-payments/internal/payment"
	"github.com/frahmantamala/credit-payments/internal/payment/postgres"
)

func notification(txnID string, status model.Status, amount string) *payment.Notification {
	return &payment.Notification{
		TxnID:            txnID,
		Status:           status,
		Amount:           decimal.RequireFromString(amount),
		GatewayReference: "403993715521937565",
		Audit:            payment.AuditRecord{TxnID: txnID, Status: string(status), Amount: amount},
	}
}

var _ = Describe("Reconciler", func() {
	var (
		ctx        context.Context
		store      *postgres.Store
		publisher  *recordingPublisher
		registry   *prometheus.Registry
		reconciler *payment.Reconciler
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newTestStore()
		publisher = &recordingPublisher{}
		registry = prometheus.NewRegistry()
		reconciler = payment.NewReconciler(store,
			payment.NewPlanCatalog(map[string]int64{"STARTER": 270, "DAILY": 630}),
			discardLogger(),
			payment.WithPublisher(publisher),
			payment.WithMetrics(payment.NewMetrics(registry)))

		seedPending(store, "TXN1", "user-1", "STARTER", "499.00")
	})

	Context("with a pending transaction", func() {
		It("applies success and grants the plan credits", func() {
			result, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499.00"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(payment.OutcomeApplied))
			Expect(result.Status).To(Equal(model.StatusSuccess))
			Expect(result.CreditsGranted).To(Equal(int64(270)))

			Expect(statusOf(store, "TXN1")).To(Equal(model.StatusSuccess))
			Expect(creditsOf(store, "user-1")).To(Equal(int64(270)))
			Expect(publisher.Types()).To(ConsistOf(events.EventTypePaymentConfirmed))
		})

		It("accepts an amount written with a different scale", func() {
			result, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(payment.OutcomeApplied))
		})

		It("applies failure without granting credits", func() {
			result, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusFailure, "499.00"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(payment.OutcomeApplied))
			Expect(result.CreditsGranted).To(BeZero())

			Expect(statusOf(store, "TXN1")).To(Equal(model.StatusFailure))
			Expect(creditsOf(store, "user-1")).To(BeZero())
			Expect(publisher.Types()).To(ConsistOf(events.EventTypePaymentFailed))
		})

		It("grants exactly once when 16 deliveries race", func() {
			var applied, duplicates atomic.Int32
			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < 16; i++ {
				g.Go(func() error {
					result, err := reconciler.Reconcile(gctx, notification("TXN1", model.StatusSuccess, "499.00"))
					if err != nil {
						return err
					}
					switch result.Outcome {
					case payment.OutcomeApplied:
						applied.Add(1)
					case payment.OutcomeAlreadyApplied:
						duplicates.Add(1)
					}
					return nil
				})
			}
			Expect(g.Wait()).To(Succeed())

			Expect(applied.Load()).To(Equal(int32(1)))
			Expect(duplicates.Load()).To(Equal(int32(15)))
			Expect(creditsOf(store, "user-1")).To(Equal(int64(270)))

			grants, err := store.CountGrants(ctx, "TXN1")
			Expect(err).NotTo(HaveOccurred())
			Expect(grants).To(Equal(int64(1)))
		})

		It("flags an amount mismatch and leaves the transaction pending", func() {
			_, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "1.00"))
			Expect(err).To(MatchError(payment.ErrAmountMismatch))

			Expect(statusOf(store, "TXN1")).To(Equal(model.StatusPending))
			Expect(creditsOf(store, "user-1")).To(BeZero())

			reviews, err := store.ListOpenReviews(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(reviews).To(HaveLen(1))
			Expect(reviews[0].Reason).To(Equal(model.ReviewReasonAmountMismatch))
			Expect(publisher.Types()).To(ConsistOf(events.EventTypePaymentConflict))
		})

		It("flags a success for a plan it does not know and stays pending", func() {
			seedPending(store, "TXN2", "user-2", "LEGACY", "10.00")

			for i := 0; i < 2; i++ {
				_, err := reconciler.Reconcile(ctx, notification("TXN2", model.StatusSuccess, "10.00"))
				Expect(err).To(MatchError(payment.ErrUnknownPlan))
			}
			Expect(statusOf(store, "TXN2")).To(Equal(model.StatusPending))
			Expect(creditsOf(store, "user-2")).To(BeZero())

			reviews, err := store.ListOpenReviews(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(reviews).To(HaveLen(1))
			Expect(reviews[0].TxnID).To(Equal("TXN2"))
			Expect(reviews[0].Reason).To(Equal(model.ReviewReasonUnknownPlan))
		})

		It("grants the allotment fixed at checkout rather than the current catalog", func() {
			now := time.Now().UTC()
			Expect(store.CreatePending(ctx, &model.Transaction{
				TxnID:       "TXN3",
				UserID:      "user-3",
				PlanName:    "RETIRED",
				Amount:      decimal.RequireFromString("99.00"),
				PlanCredits: 42,
				Status:      model.StatusPending,
				ValidUntil:  now.Add(30 * 24 * time.Hour),
				CreatedAt:   now,
				UpdatedAt:   now,
			})).To(Succeed())

			result, err := reconciler.Reconcile(ctx, notification("TXN3", model.StatusSuccess, "99.00"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.CreditsGranted).To(Equal(int64(42)))
			Expect(creditsOf(store, "user-3")).To(Equal(int64(42)))
		})

		It("counts outcomes", func() {
			_, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499.00"))
			Expect(err).NotTo(HaveOccurred())
			_, err = reconciler.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499.00"))
			Expect(err).NotTo(HaveOccurred())

			expected := `
# HELP credit_payments_reconciler_outcomes_total Reconciliation outcomes.
# TYPE credit_payments_reconciler_outcomes_total counter
credit_payments_reconciler_outcomes_total{outcome="already_applied"} 1
credit_payments_reconciler_outcomes_total{outcome="applied"} 1
`
			Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected), "credit_payments_reconciler_outcomes_total")).To(Succeed())
		})
	})

	Context("with a transaction that already succeeded", func() {
		BeforeEach(func() {
			_, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499.00"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports a duplicate as already applied without a second grant", func() {
			result, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499.00"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(payment.OutcomeAlreadyApplied))
			Expect(result.CreditsGranted).To(BeZero())
			Expect(creditsOf(store, "user-1")).To(Equal(int64(270)))
		})

		It("rejects a later failure as a conflict and keeps success", func() {
			_, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusFailure, "499.00"))
			Expect(err).To(MatchError(payment.ErrReconcileConflict))

			Expect(statusOf(store, "TXN1")).To(Equal(model.StatusSuccess))
			Expect(creditsOf(store, "user-1")).To(Equal(int64(270)))

			reviews, err := store.ListOpenReviews(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(reviews).To(HaveLen(1))
			Expect(reviews[0].StoredStatus).To(Equal(model.StatusSuccess))
			Expect(reviews[0].ReportedStatus).To(Equal(model.StatusFailure))
		})

		It("records a repeated conflict once", func() {
			for i := 0; i < 3; i++ {
				_, err := reconciler.Reconcile(ctx, notification("TXN1", model.StatusFailure, "499.00"))
				Expect(err).To(MatchError(payment.ErrReconcileConflict))
			}

			reviews, err := store.ListOpenReviews(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(reviews).To(HaveLen(1))
		})
	})

	It("returns NotFound for an unknown transaction and writes nothing", func() {
		_, err := reconciler.Reconcile(ctx, notification("NOPE", model.StatusSuccess, "499.00"))
		Expect(err).To(MatchError(payment.ErrTransactionNotFound))

		Expect(statusOf(store, "TXN1")).To(Equal(model.StatusPending))
		reviews, err := store.ListOpenReviews(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(reviews).To(BeEmpty())
		Expect(publisher.Types()).To(BeEmpty())
	})

	It("maps store failures to ErrStorageUnavailable", func() {
		broken := payment.NewReconciler(failingStore{err: errors.New("connection refused")},
			payment.NewPlanCatalog(map[string]int64{"STARTER": 270}),
			discardLogger())

		_, err := broken.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499.00"))
		Expect(err).To(MatchError(payment.ErrStorageUnavailable))
		Expect(errors.Unwrap(err)).To(MatchError(ContainSubstring("connection refused")))
	})

	It("maps a store timeout to ErrStorageUnavailable", func() {
		broken := payment.NewReconciler(failingStore{err: context.DeadlineExceeded},
			payment.NewPlanCatalog(map[string]int64{"STARTER": 270}),
			discardLogger())

		_, err := broken.Reconcile(ctx, notification("TXN1", model.StatusSuccess, "499.00"))
		Expect(err).To(MatchError(payment.ErrStorageUnavailable))
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})
})
