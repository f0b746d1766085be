package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/credit-payments/internal/auth"
	model "github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/credit-payments/internal/payment"
	"github.com/frahmantamala/credit-payments/internal/payment/postgres"
	"github.com/frahmantamala/credit-payments/internal/transport"
)

var _ = Describe("AdminHandler", func() {
	var (
		store  *postgres.Store
		router chi.Router
	)

	BeforeEach(func() {
		store = newTestStore()
		seedPending(store, "TXN1", "user-1", "STARTER", "499.00")

		h := payment.NewAdminHandler(transport.NewBaseHandler(discardLogger()), store, time.Second)
		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := auth.WithOperator(r.Context(), auth.Operator{Subject: "ops@example.com", Role: auth.RoleOperator})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
		router.Get("/admin/reviews", h.ListReviews)
		router.Post("/admin/reviews/{id}/resolve", h.ResolveReview)
		router.Get("/admin/transactions/{txnID}", h.GetTransaction)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	flag := func() int64 {
		review := &model.ReconciliationReview{
			TxnID:          "TXN1",
			Reason:         model.ReviewReasonAmountMismatch,
			ReportedStatus: model.StatusSuccess,
			StoredStatus:   model.StatusPending,
			Detail:         "stored amount 499.00, reported 1.00",
			CreatedAt:      time.Now().UTC(),
		}
		Expect(store.FlagForReview(context.Background(), review)).To(Succeed())
		return review.ID
	}

	It("lists open reviews", func() {
		flag()

		rec := do(http.MethodGet, "/admin/reviews", "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body struct {
			Reviews []payment.ReviewResponse `json:"reviews"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Reviews).To(HaveLen(1))
		Expect(body.Reviews[0].Reason).To(Equal("amount_mismatch"))
	})

	It("rejects a bad limit", func() {
		Expect(do(http.MethodGet, "/admin/reviews?limit=-1", "").Code).To(Equal(http.StatusBadRequest))
	})

	It("resolves a review in the operator's name", func() {
		id := flag()

		rec := do(http.MethodPost, "/admin/reviews/"+strconv.FormatInt(id, 10)+"/resolve", `{"resolution":"refunded at gateway"}`)
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		reviews, err := store.ListOpenReviews(context.Background(), 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(reviews).To(BeEmpty())
	})

	It("requires a resolution", func() {
		id := flag()
		Expect(do(http.MethodPost, "/admin/reviews/"+strconv.FormatInt(id, 10)+"/resolve", `{}`).Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 for an unknown review", func() {
		Expect(do(http.MethodPost, "/admin/reviews/999/resolve", `{"resolution":"done"}`).Code).To(Equal(http.StatusNotFound))
	})

	It("shows a transaction", func() {
		rec := do(http.MethodGet, "/admin/transactions/TXN1", "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body payment.TransactionResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Status).To(Equal("pending"))
		Expect(body.Amount).To(Equal("499.00"))
	})

	It("returns 404 for an unknown transaction", func() {
		Expect(do(http.MethodGet, "/admin/transactions/NOPE", "").Code).To(Equal(http.StatusNotFound))
	})
})
