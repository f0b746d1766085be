package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	model "github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/credit-payments/internal/payment"
	"github.com/frahmantamala/credit-payments/internal/payment/postgres"
	"github.com/frahmantamala/credit-payments/internal/paymentgateway"
	"github.com/frahmantamala/credit-payments/internal/transport"
	"github.com/frahmantamala/credit-payments/pkg/logger"
)

const webhookSalt = "eCwWELxi"

func signedCallback(status string) types.Params {
	return paymentgateway.SignResponse(types.Params{
		types.FieldKey:         "gtKFFx",
		types.FieldTxnID:       "TXN100",
		types.FieldAmount:      "100.00",
		types.FieldProductInfo: "STARTER",
		types.FieldFirstName:   "Asha",
		types.FieldEmail:       "asha@example.com",
		types.FieldStatus:      status,
		types.FieldMihPayID:    "403993715521937565",
		types.FieldMode:        "CC",
		types.FieldCardNum:     "5123456789012346",
		types.FieldNameOnCard:  "Asha Rao",
		"ccvv":                 "123",
	}, webhookSalt)
}

func formRequest(params types.Params) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/webhook", paymentgateway.Encode(params))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body
}

var _ = Describe("WebhookHandler", func() {
	var (
		store   *postgres.Store
		handler *payment.WebhookHandler
		logs    *bytes.Buffer
	)

	newHandler := func(salt string) *payment.WebhookHandler {
		reconciler := payment.NewReconciler(store,
			payment.NewPlanCatalog(map[string]int64{"STARTER": 10}),
			discardLogger())
		return payment.NewWebhookHandler(
			transport.NewBaseHandler(discardLogger()),
			paymentgateway.NewVerifier(salt),
			reconciler,
			nil,
			0)
	}

	// serve runs the handler with a request-scoped logger writing to logs.
	serve := func(h *payment.WebhookHandler, req *http.Request) *httptest.ResponseRecorder {
		lg := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		req = req.WithContext(logger.WithLogger(req.Context(), lg))
		rec := httptest.NewRecorder()
		h.HandlePayUWebhook(rec, req)
		return rec
	}

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		store = newTestStore()
		seedPending(store, "TXN100", "user-100", "STARTER", "100.00")
		handler = newHandler(webhookSalt)
	})

	It("confirms a signed success callback and grants the plan credits", func() {
		rec := serve(handler, formRequest(signedCallback("success")))

		Expect(rec.Code).To(Equal(http.StatusOK))
		body := decodeBody(rec)
		Expect(body).To(HaveKeyWithValue("success", true))
		Expect(body).To(HaveKeyWithValue("txnId", "TXN100"))
		Expect(body).To(HaveKeyWithValue("status", "success"))

		Expect(statusOf(store, "TXN100")).To(Equal(model.StatusSuccess))
		Expect(creditsOf(store, "user-100")).To(Equal(int64(10)))
	})

	It("answers a redelivery with 200 and no second grant", func() {
		Expect(serve(handler, formRequest(signedCallback("success"))).Code).To(Equal(http.StatusOK))

		rec := serve(handler, formRequest(signedCallback("success")))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(rec)).To(HaveKeyWithValue("message", "Payment already processed"))
		Expect(creditsOf(store, "user-100")).To(Equal(int64(10)))
	})

	It("rejects a tampered hash with 401 and leaves state alone", func() {
		params := signedCallback("success")
		hash := []byte(params[types.FieldHash])
		if hash[0] == 'a' {
			hash[0] = 'b'
		} else {
			hash[0] = 'a'
		}
		params[types.FieldHash] = string(hash)

		rec := serve(handler, formRequest(params))

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(decodeBody(rec)).To(HaveKeyWithValue("error", "Invalid hash signature"))
		Expect(statusOf(store, "TXN100")).To(Equal(model.StatusPending))
		Expect(creditsOf(store, "user-100")).To(BeZero())
	})

	It("rejects a tampered amount with 401", func() {
		params := signedCallback("success")
		params[types.FieldAmount] = "1.00"

		rec := serve(handler, formRequest(params))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("never logs the card number, cvv or hash", func() {
		params := signedCallback("success")
		params[types.FieldHash] = strings.Repeat("0", 128)

		serve(handler, formRequest(params))

		out := logs.String()
		Expect(out).To(ContainSubstring("TXN100"))
		Expect(out).To(ContainSubstring("****2346"))
		Expect(out).NotTo(ContainSubstring("5123456789012346"))
		Expect(out).NotTo(ContainSubstring("Asha Rao"))
		Expect(out).NotTo(ContainSubstring(`"ccvv"`))
		Expect(out).NotTo(ContainSubstring(strings.Repeat("0", 128)))
	})

	It("stores the callback without cvv and with a masked card number", func() {
		Expect(serve(handler, formRequest(signedCallback("success"))).Code).To(Equal(http.StatusOK))

		txn, err := store.FindByTxnID(context.Background(), "TXN100")
		Expect(err).NotTo(HaveOccurred())
		raw := string(txn.RawGatewayPayload)
		Expect(raw).To(ContainSubstring("****2346"))
		Expect(raw).NotTo(ContainSubstring("5123456789012346"))
		Expect(raw).NotTo(ContainSubstring("ccvv"))
	})

	It("rejects a pending status after verification", func() {
		rec := serve(handler, formRequest(signedCallback("pending")))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(statusOf(store, "TXN100")).To(Equal(model.StatusPending))
	})

	It("returns 404 for a signed callback about an unknown transaction", func() {
		params := signedCallback("success")
		params[types.FieldTxnID] = "TXN404"
		params = paymentgateway.SignResponse(params, webhookSalt)

		rec := serve(handler, formRequest(params))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("returns 409 when a later failure contradicts a success", func() {
		Expect(serve(handler, formRequest(signedCallback("success"))).Code).To(Equal(http.StatusOK))

		rec := serve(handler, formRequest(signedCallback("failure")))
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(statusOf(store, "TXN100")).To(Equal(model.StatusSuccess))
	})

	It("accepts multipart callbacks", func() {
		body := &bytes.Buffer{}
		writer := newMultipart(body, signedCallback("success"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/webhook", body)
		req.Header.Set("Content-Type", writer)

		rec := serve(handler, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("returns 400 for a body it cannot decode", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/webhook", strings.NewReader(`{"txnid":"TXN100"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := serve(handler, req)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 for an empty body", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/webhook", http.NoBody)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := serve(handler, req)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 401 when the hash is missing", func() {
		params := signedCallback("success")
		delete(params, types.FieldHash)

		rec := serve(handler, formRequest(params))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("fails closed with 500 when no salt is configured", func() {
		rec := serve(newHandler(""), formRequest(signedCallback("success")))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(statusOf(store, "TXN100")).To(Equal(model.StatusPending))
	})

	It("answers preflight with 204 and CORS headers", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments/payu/webhook", nil)
		req.Header.Set("Origin", "https://secure.payu.in")

		rec := serve(handler, req)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).NotTo(BeEmpty())
	})

	It("rejects other methods with 405", func() {
		rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/v1/payments/payu/webhook", nil))

		Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		Expect(decodeBody(rec)).To(HaveKeyWithValue("error", "Method not allowed"))
	})
})

// newMultipart writes params as multipart form fields and returns the content type.
func newMultipart(body *bytes.Buffer, params types.Params) string {
	w := multipart.NewWriter(body)
	for k, v := range params {
		Expect(w.WriteField(k, v)).To(Succeed())
	}
	Expect(w.Close()).To(Succeed())
	return w.FormDataContentType()
}
