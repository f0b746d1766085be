package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/credit-payments/internal/auth"
	"github.com/frahmantamala/credit-payments/internal/payment"
	"github.com/frahmantamala/credit-payments/internal/transport/middleware"
	"github.com/frahmantamala/credit-payments/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// LegacyWebhookPath is the path the gateway was originally configured with.
	LegacyWebhookPath = "/functions/v1/handle-payu-webhook"
	WebhookPath       = "/api/v1/payments/payu/webhook"
)

type Dependencies struct {
	DB             Pinger
	AuthHandler    *auth.Handler
	WebhookHandler *payment.WebhookHandler
	AdminHandler   *payment.AdminHandler
	// Gatherer is exposed at MetricsPath when both are set.
	Gatherer       prometheus.Gatherer
	MetricsPath    string
	AllowedOrigins string
	OpenAPIPath    string
	Logger         *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, deps Dependencies) {
	healthHandler := NewHealthHandler(deps.DB)

	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	// gateway fields reach logs only through the webhook's audit record
	router.Use(middleware.LoggingMiddleware(deps.Logger, LegacyWebhookPath, WebhookPath))

	openAPIPath := deps.OpenAPIPath
	if openAPIPath == "" {
		openAPIPath = "./api/openapi.yml"
	}
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, openAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))

	if deps.Gatherer != nil && deps.MetricsPath != "" {
		router.Handle(deps.MetricsPath, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if deps.WebhookHandler != nil {
		// The handler answers OPTIONS and non-POST methods itself.
		router.HandleFunc(LegacyWebhookPath, deps.WebhookHandler.HandlePayUWebhook)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if deps.WebhookHandler != nil {
			r.HandleFunc("/payments/payu/webhook", deps.WebhookHandler.HandlePayUWebhook)
		}

		if deps.AuthHandler != nil && deps.AdminHandler != nil {
			r.Route("/admin", func(ar chi.Router) {
				ar.Use(deps.AuthHandler.RequireOperator)

				ar.Get("/reviews", deps.AdminHandler.ListReviews)
				ar.Post("/reviews/{id}/resolve", deps.AdminHandler.ResolveReview)
				ar.Get("/transactions/{txnID}", deps.AdminHandler.GetTransaction)
			})
		}
	})
}
