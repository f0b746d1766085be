package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/credit-payments/internal"
	"github.com/frahmantamala/credit-payments/internal/paymentgateway"
	"github.com/frahmantamala/credit-payments/internal/transport"
	"github.com/frahmantamala/credit-payments/internal/transport/middleware"
	"github.com/frahmantamala/credit-payments/pkg/logger"
)

const defaultMaxBodyBytes = 1 << 20

// WebhookHandler receives PayU payment callbacks. The gateway retries on any non-2xx,
// so every path through it is safe to repeat.
type WebhookHandler struct {
	*transport.BaseHandler
	verifier     *paymentgateway.Verifier
	reconciler   ReconcilerAPI
	metrics      *Metrics
	maxBodyBytes int64
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, verifier *paymentgateway.Verifier, reconciler ReconcilerAPI, metrics *Metrics, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &WebhookHandler{
		BaseHandler:  baseHandler,
		verifier:     verifier,
		reconciler:   reconciler,
		metrics:      metrics,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *WebhookHandler) HandlePayUWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	defer func() {
		h.metrics.ObserveWebhook(rec.status(), time.Since(start))
	}()

	middleware.SetCORSHeaders(rec, r.Header.Get("Origin"), nil)

	switch r.Method {
	case http.MethodOptions:
		rec.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		rec.Header().Set("Allow", "POST, OPTIONS")
		h.WriteError(rec, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	log := logger.From(r.Context())

	if !h.verifier.Configured() {
		log.Error("payment webhook rejected: merchant salt not configured")
		h.WriteAppError(rec, ErrMissingSecret)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(rec, r.Body, h.maxBodyBytes))
	if err != nil {
		h.reject(r.Context(), rec, log, AuditRecord{}, ErrMalformedPayload.Wrap(err))
		return
	}

	params, err := paymentgateway.Decode(body, r.Header.Get("Content-Type"))
	if err != nil {
		h.reject(r.Context(), rec, log, AuditRecord{}, ErrMalformedPayload.Wrap(err))
		return
	}

	audit := NewAuditRecord(params)
	log.Info("payment webhook received", "audit", audit)

	if !h.verifier.Verify(params) {
		h.reject(r.Context(), rec, log, audit, ErrInvalidSignature)
		return
	}

	notification, err := ParseNotification(params)
	if err != nil {
		h.reject(r.Context(), rec, log, audit, err)
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), notification)
	if err != nil {
		h.reject(r.Context(), rec, log, audit, err)
		return
	}

	message := "Payment status updated successfully"
	if result.Outcome == OutcomeAlreadyApplied {
		message = "Payment already processed"
	}

	log.Info("payment webhook processed",
		"txn_id", result.TxnID,
		"status", result.Status,
		"outcome", result.Outcome,
		"credits_granted", result.CreditsGranted)

	h.WriteJSON(rec, http.StatusOK, WebhookResponse{
		Success: true,
		Message: message,
		TxnID:   result.TxnID,
		Status:  string(result.Status),
	})
}

// reject logs why a callback was refused, with only allow-listed fields, and writes the error body.
func (h *WebhookHandler) reject(ctx context.Context, w http.ResponseWriter, log *slog.Logger, audit AuditRecord, err error) {
	level := slog.LevelWarn
	status := http.StatusInternalServerError
	if appErr, ok := internal.IsAppError(err); ok {
		status = appErr.StatusCode
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusNotFound, status == http.StatusConflict:
		// Forged, unknown or contradictory callbacks need a human to look at them.
		level = slog.LevelError
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	}

	txnID := audit.TxnID
	if txnID == "" {
		txnID = "unknown"
	}
	log.Log(ctx, level, "payment webhook rejected",
		"txn_id", txnID,
		"status_code", status,
		"reason", err.Error(),
		"audit", audit)

	h.WriteAppError(w, err)
}

// statusRecorder remembers the status written so the deferred metric can label it.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}
