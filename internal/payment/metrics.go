package payment

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	storeErrorDeadlineExceeded     = "deadline_exceeded"
	storeErrorSerializationFailure = "serialization_failure"
	storeErrorUniqueViolation      = "unique_violation"
	storeErrorDB                   = "db"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	webhookRequests *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	reconcileTotal  *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	creditsGranted  *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "credit_payments",
				Subsystem: "webhook",
				Name:      "requests_total",
				Help:      "Gateway webhook requests by response status.",
			},
			[]string{"status"},
		),
		webhookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "credit_payments",
				Subsystem: "webhook",
				Name:      "request_duration_seconds",
				Help:      "Time spent handling a gateway webhook.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"status"},
		),
		reconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "credit_payments",
				Subsystem: "reconciler",
				Name:      "outcomes_total",
				Help:      "Reconciliation outcomes.",
			},
			[]string{"outcome"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "credit_payments",
				Subsystem: "reconciler",
				Name:      "store_errors_total",
				Help:      "Transient storage failures surfaced as 503.",
			},
			[]string{"type"},
		),
		creditsGranted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "credit_payments",
				Subsystem: "accounts",
				Name:      "credits_granted_total",
				Help:      "Credits granted by confirmed payments.",
			},
			[]string{"plan"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "credit_payments",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Payment events observed on the bus.",
			},
			[]string{"type"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.webhookRequests, m.webhookDuration, m.reconcileTotal, m.storeErrors, m.creditsGranted, m.eventsTotal)
	}
	return m
}

func (m *Metrics) ObserveWebhook(status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.webhookRequests.WithLabelValues(code).Inc()
	m.webhookDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStoreError(err error) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(classifyStoreError(err)).Inc()
}

func (m *Metrics) AddCredits(plan string, credits int64) {
	if m == nil || credits <= 0 {
		return
	}
	m.creditsGranted.WithLabelValues(plan).Add(float64(credits))
}

func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

func classifyStoreError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return storeErrorDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return storeErrorSerializationFailure
		case "23505":
			return storeErrorUniqueViolation
		}
	}
	return storeErrorDB
}
