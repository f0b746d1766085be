package paymentgateway_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/credit-payments/internal/paymentgateway"
)

var _ = Describe("Simulator", func() {
	var (
		logger   *slog.Logger
		server   *httptest.Server
		mu       sync.Mutex
		received []types.Params
		failures int32
		sim      *paymentgateway.Simulator
		results  chan paymentgateway.CallbackResult
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		received = nil
		atomic.StoreInt32(&failures, 0)
		results = make(chan paymentgateway.CallbackResult, 16)

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&failures, -1) >= 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			body, _ := io.ReadAll(r.Body)
			params, err := paymentgateway.Decode(body, r.Header.Get("Content-Type"))
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			received = append(received, params)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
	})

	AfterEach(func() {
		if sim != nil {
			sim.Shutdown()
		}
		server.Close()
	})

	newSimulator := func() *paymentgateway.Simulator {
		return paymentgateway.NewSimulator(paymentgateway.SimulatorConfig{
			MerchantKey:  "gtKFFx",
			MerchantSalt: testSalt,
			WebhookURL:   server.URL,
			MaxWorkers:   2,
			MaxAttempts:  3,
			RetryBackoff: 5 * time.Millisecond,
			SuccessRate:  1,
		}, logger, func(r paymentgateway.CallbackResult) { results <- r })
	}

	It("posts a signed form callback the verifier accepts", func() {
		sim = newSimulator()

		Expect(sim.Enqueue(paymentgateway.CallbackJob{
			TxnID:       "TXN100",
			Amount:      "499.00",
			ProductInfo: "STARTER",
			FirstName:   "Asha",
			Email:       "asha@example.com",
		})).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(sim.Wait(ctx)).To(Succeed())

		var result paymentgateway.CallbackResult
		Eventually(results).Should(Receive(&result))
		Expect(result.StatusCode).To(Equal(http.StatusOK))
		Expect(result.Err).NotTo(HaveOccurred())

		mu.Lock()
		defer mu.Unlock()
		Expect(received).To(HaveLen(1))
		Expect(received[0].Get("status")).To(Equal("success"))
		Expect(paymentgateway.Verify(received[0], testSalt)).To(BeTrue())
	})

	It("retries 5xx responses until the webhook accepts", func() {
		atomic.StoreInt32(&failures, 2)
		sim = newSimulator()

		Expect(sim.Enqueue(paymentgateway.CallbackJob{TxnID: "TXN101", Amount: "10.00", Status: "failure"})).To(Succeed())

		var result paymentgateway.CallbackResult
		Eventually(results, 5*time.Second).Should(Receive(&result))
		Expect(result.Attempts).To(Equal(3))
		Expect(result.StatusCode).To(Equal(http.StatusOK))
		Expect(result.Status).To(Equal("failure"))
	})

	It("delivers duplicates of the same signed callback", func() {
		sim = newSimulator()

		Expect(sim.Enqueue(paymentgateway.CallbackJob{TxnID: "TXN102", Amount: "10.00", Duplicates: 2})).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(sim.Wait(ctx)).To(Succeed())

		mu.Lock()
		defer mu.Unlock()
		Expect(received).To(HaveLen(3))
		Expect(received[1]).To(Equal(received[0]))
		Expect(received[2]).To(Equal(received[0]))
	})

	It("rejects jobs without a transaction id", func() {
		sim = newSimulator()

		Expect(sim.Enqueue(paymentgateway.CallbackJob{Amount: "10.00"})).NotTo(Succeed())
	})
})
