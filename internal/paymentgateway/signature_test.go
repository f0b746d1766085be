package paymentgateway_test

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/credit-payments/internal/paymentgateway"
)

const testSalt = "eCwWELxi"

func callbackParams() types.Params {
	return types.Params{
		"key":         "gtKFFx",
		"txnid":       "TXN100",
		"amount":      "499.00",
		"productinfo": "STARTER",
		"firstname":   "Asha",
		"email":       "asha@example.com",
		"status":      "success",
		"udf1":        "user-1",
		"mihpayid":    "403993715521937565",
		"cardnum":     "512345XXXXXX2346",
	}
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

var _ = Describe("Signature", func() {
	Describe("ResponseHash", func() {
		It("hashes the reverse field order with five empty placeholders", func() {
			p := callbackParams()
			expected := sha512Hex("eCwWELxi|success||||||||||user-1|asha@example.com|Asha|STARTER|499.00|TXN100|gtKFFx")

			Expect(paymentgateway.ResponseHash(p, testSalt)).To(Equal(expected))
		})

		It("prefixes additionalCharges when present", func() {
			p := callbackParams()
			p["additionalCharges"] = "10.00"
			expected := sha512Hex("10.00|eCwWELxi|success||||||||||user-1|asha@example.com|Asha|STARTER|499.00|TXN100|gtKFFx")

			Expect(paymentgateway.ResponseHash(p, testSalt)).To(Equal(expected))
		})
	})

	Describe("RequestHash", func() {
		It("hashes the forward field order ending in the salt", func() {
			p := callbackParams()
			expected := sha512Hex("gtKFFx|TXN100|499.00|STARTER|Asha|asha@example.com|user-1||||||||||eCwWELxi")

			Expect(paymentgateway.RequestHash(p, testSalt)).To(Equal(expected))
		})
	})

	Describe("Verify", func() {
		var signed types.Params

		BeforeEach(func() {
			signed = paymentgateway.SignResponse(callbackParams(), testSalt)
		})

		It("accepts a correctly signed callback", func() {
			Expect(paymentgateway.Verify(signed, testSalt)).To(BeTrue())
		})

		It("is deterministic", func() {
			for i := 0; i < 5; i++ {
				Expect(paymentgateway.Verify(signed, testSalt)).To(BeTrue())
			}
		})

		It("compares the digest case-insensitively", func() {
			signed["hash"] = strings.ToUpper(signed["hash"])
			Expect(paymentgateway.Verify(signed, testSalt)).To(BeTrue())
		})

		It("does not mutate the input when signing", func() {
			p := callbackParams()
			paymentgateway.SignResponse(p, testSalt)
			Expect(p).NotTo(HaveKey("hash"))
		})

		DescribeTable("flipping any authenticated field fails verification",
			func(field string) {
				signed[field] = signed[field] + "x"
				Expect(paymentgateway.Verify(signed, testSalt)).To(BeFalse())
			},
			Entry("key", "key"),
			Entry("txnid", "txnid"),
			Entry("amount", "amount"),
			Entry("productinfo", "productinfo"),
			Entry("firstname", "firstname"),
			Entry("email", "email"),
			Entry("status", "status"),
			Entry("udf1", "udf1"),
			Entry("udf2", "udf2"),
			Entry("udf5", "udf5"),
			Entry("additionalCharges", "additionalCharges"),
		)

		It("ignores fields outside the digest", func() {
			signed["mihpayid"] = "something-else"
			signed["cardnum"] = "411111XXXXXX1111"
			Expect(paymentgateway.Verify(signed, testSalt)).To(BeTrue())
		})

		It("rejects a digest mutated by one character", func() {
			h := []byte(signed["hash"])
			if h[0] == 'a' {
				h[0] = 'b'
			} else {
				h[0] = 'a'
			}
			signed["hash"] = string(h)
			Expect(paymentgateway.Verify(signed, testSalt)).To(BeFalse())
		})

		It("rejects the wrong salt", func() {
			Expect(paymentgateway.Verify(signed, "other-salt")).To(BeFalse())
		})

		It("rejects an empty salt", func() {
			unsalted := paymentgateway.SignResponse(callbackParams(), "")
			Expect(paymentgateway.Verify(unsalted, "")).To(BeFalse())
			Expect(paymentgateway.Verify(unsalted, "   ")).To(BeFalse())
		})

		DescribeTable("rejects malformed digests",
			func(hash string) {
				signed["hash"] = hash
				Expect(paymentgateway.Verify(signed, testSalt)).To(BeFalse())
			},
			Entry("empty", ""),
			Entry("too short", "abc123"),
			Entry("not hex", strings.Repeat("z", 128)),
			Entry("too long", strings.Repeat("a", 130)),
		)

		DescribeTable("rejects a callback missing a required field",
			func(field string) {
				delete(signed, field)
				Expect(paymentgateway.Verify(signed, testSalt)).To(BeFalse())
			},
			Entry("txnid", "txnid"),
			Entry("amount", "amount"),
			Entry("productinfo", "productinfo"),
			Entry("status", "status"),
			Entry("key", "key"),
			Entry("hash", "hash"),
		)

		It("returns false for nil params", func() {
			Expect(paymentgateway.Verify(nil, testSalt)).To(BeFalse())
		})
	})

	Describe("Verifier", func() {
		It("uses the salt it was built with", func() {
			signed := paymentgateway.SignResponse(callbackParams(), testSalt)

			Expect(paymentgateway.NewVerifier(testSalt).Verify(signed)).To(BeTrue())
			Expect(paymentgateway.NewVerifier("wrong").Verify(signed)).To(BeFalse())
		})

		It("reports whether a salt is configured", func() {
			Expect(paymentgateway.NewVerifier(testSalt).Configured()).To(BeTrue())
			Expect(paymentgateway.NewVerifier(" ").Configured()).To(BeFalse())

			var v *paymentgateway.Verifier
			Expect(v.Configured()).To(BeFalse())
			Expect(v.Verify(callbackParams())).To(BeFalse())
		})
	})
})
