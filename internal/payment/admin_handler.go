package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/credit-payments/internal"
	"github.com/frahmantamala/credit-payments/internal/auth"
	"github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/credit-payments/internal/transport"
	"github.com/go-chi/chi"
)

const (
	defaultReviewLimit = 50
	maxReviewLimit     = 500
)

// ReviewStore backs the operator endpoints. It is read-only with respect to transactions.
type ReviewStore interface {
	FindByTxnID(ctx context.Context, txnID string) (*payment.Transaction, error)
	ListOpenReviews(ctx context.Context, limit int) ([]payment.ReconciliationReview, error)
	ResolveReview(ctx context.Context, id int64, resolvedBy, resolution string, at time.Time) error
}

type AdminHandler struct {
	*transport.BaseHandler
	store   ReviewStore
	timeout time.Duration
}

func NewAdminHandler(base *transport.BaseHandler, store ReviewStore, timeout time.Duration) *AdminHandler {
	return &AdminHandler{
		BaseHandler: base,
		store:       store,
		timeout:     timeout,
	}
}

func (h *AdminHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	limit := defaultReviewLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.WriteAppError(w, internal.NewValidationFieldError("limit", "limit must be a positive integer", internal.ErrCodeValidationFailed))
			return
		}
		limit = min(n, maxReviewLimit)
	}

	ctx, cancel := internal.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reviews, err := h.store.ListOpenReviews(ctx, limit)
	if err != nil {
		h.Logger.Error("failed to list reviews", "error", err)
		h.WriteAppError(w, ErrStorageUnavailable.Wrap(err))
		return
	}

	resp := make([]ReviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		resp = append(resp, NewReviewResponse(rv))
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"reviews": resp})
}

func (h *AdminHandler) ResolveReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteAppError(w, internal.NewValidationFieldError("id", "review id must be a positive integer", internal.ErrCodeValidationFailed))
		return
	}

	var req ResolveReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	operator, _ := auth.OperatorFromContext(r.Context())

	ctx, cancel := internal.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.ResolveReview(ctx, id, operator.Subject, req.Resolution, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrReviewNotFound) {
			h.WriteAppError(w, ErrReviewNotFound)
			return
		}
		h.Logger.Error("failed to resolve review", "review_id", id, "error", err)
		h.WriteAppError(w, ErrStorageUnavailable.Wrap(err))
		return
	}

	h.Logger.Info("reconciliation review resolved",
		"review_id", id,
		"resolved_by", operator.Subject)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "txnID")

	ctx, cancel := internal.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	txn, err := h.store.FindByTxnID(ctx, txnID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			h.WriteAppError(w, ErrTransactionNotFound)
			return
		}
		h.Logger.Error("failed to load transaction", "txn_id", txnID, "error", err)
		h.WriteAppError(w, ErrStorageUnavailable.Wrap(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, NewTransactionResponse(txn))
}
