package payment_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/frahmantamala/credit-payments/internal/core/events"
	"github.com/frahmantamala/credit-payments/internal/payment"
)

var _ = Describe("EventHandler", func() {
	var (
		registry *prometheus.Registry
		handler  *payment.EventHandler
		bus      *events.EventBus
	)

	BeforeEach(func() {
		registry = prometheus.NewRegistry()
		handler = payment.NewEventHandler(payment.NewMetrics(registry), discardLogger())
		bus = events.NewEventBus(discardLogger())
		handler.RegisterEventHandlers(bus)
	})

	It("counts credits from confirmed payments delivered over the bus", func() {
		event := events.NewPaymentConfirmedEvent("TXN1", "user-1", "STARTER", "499.00", 270, "403993715521")
		Expect(bus.Publish(context.Background(), event)).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(bus.Wait(ctx)).To(Succeed())

		expected := `
# HELP credit_payments_accounts_credits_granted_total Credits granted by confirmed payments.
# TYPE credit_payments_accounts_credits_granted_total counter
credit_payments_accounts_credits_granted_total{plan="STARTER"} 270
`
		Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected), "credit_payments_accounts_credits_granted_total")).To(Succeed())
	})

	It("counts every event type it observes", func() {
		ctx := context.Background()
		Expect(bus.PublishSync(ctx, events.NewPaymentFailedEvent("TXN2", "user-1", "499.00", "declined", ""))).To(Succeed())
		Expect(bus.PublishSync(ctx, events.NewPaymentConflictEvent("TXN1", "status_conflict", "success", "failure"))).To(Succeed())

		expected := `
# HELP credit_payments_events_published_total Payment events observed on the bus.
# TYPE credit_payments_events_published_total counter
credit_payments_events_published_total{type="payment.conflict"} 1
credit_payments_events_published_total{type="payment.failed"} 1
`
		Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected), "credit_payments_events_published_total")).To(Succeed())
	})

	It("rejects events of the wrong type", func() {
		err := handler.HandlePaymentConfirmed(context.Background(), events.NewPaymentFailedEvent("TXN2", "user-1", "499.00", "declined", ""))
		Expect(err).To(MatchError(ContainSubstring("expected PaymentConfirmedEvent")))
	})
})
