package paymentgateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
)

// sha512HexLen is the length of a hex-encoded SHA-512 digest.
const sha512HexLen = sha512.Size * 2

// Verifier checks PayU callback digests against a merchant salt fixed at construction.
type Verifier struct {
	salt string
}

func NewVerifier(salt string) *Verifier {
	return &Verifier{salt: salt}
}

// Configured reports whether a non-blank salt was supplied.
func (v *Verifier) Configured() bool {
	return v != nil && strings.TrimSpace(v.salt) != ""
}

func (v *Verifier) Verify(params types.Params) bool {
	if v == nil {
		return false
	}
	return Verify(params, v.salt)
}

// Verify reports whether params carries a hash produced by PayU's reverse-hash recipe with salt.
// It never panics: missing fields, a malformed digest or a blank salt all yield false.
func Verify(params types.Params, salt string) bool {
	if strings.TrimSpace(salt) == "" || params == nil {
		return false
	}
	for _, field := range types.RequiredResponseFields {
		if !params.Has(field) {
			return false
		}
	}

	received := strings.ToLower(strings.TrimSpace(params.Get(types.FieldHash)))
	if len(received) != sha512HexLen {
		return false
	}
	if _, err := hex.DecodeString(received); err != nil {
		return false
	}

	expected := ResponseHash(params, salt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// ResponseHash computes the digest PayU attaches to a callback:
//
//	[additionalCharges|]salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key
func ResponseHash(params types.Params, salt string) string {
	parts := make([]string, 0, 18)
	if charges := params.Get(types.FieldAdditionalCharges); charges != "" {
		parts = append(parts, charges)
	}
	parts = append(parts,
		salt,
		params.Get(types.FieldStatus),
		"", "", "", "", "",
		params.Get(types.FieldUDF5),
		params.Get(types.FieldUDF4),
		params.Get(types.FieldUDF3),
		params.Get(types.FieldUDF2),
		params.Get(types.FieldUDF1),
		params.Get(types.FieldEmail),
		params.Get(types.FieldFirstName),
		params.Get(types.FieldProductInfo),
		params.Get(types.FieldAmount),
		params.Get(types.FieldTxnID),
		params.Get(types.FieldKey),
	)
	return digest(parts)
}

// RequestHash computes the digest the checkout form sends to PayU, the same field set in forward order:
//
//	key|txnid|amount|productinfo|firstname|email|udf1|udf2|udf3|udf4|udf5||||||salt
func RequestHash(params types.Params, salt string) string {
	return digest([]string{
		params.Get(types.FieldKey),
		params.Get(types.FieldTxnID),
		params.Get(types.FieldAmount),
		params.Get(types.FieldProductInfo),
		params.Get(types.FieldFirstName),
		params.Get(types.FieldEmail),
		params.Get(types.FieldUDF1),
		params.Get(types.FieldUDF2),
		params.Get(types.FieldUDF3),
		params.Get(types.FieldUDF4),
		params.Get(types.FieldUDF5),
		"", "", "", "", "",
		salt,
	})
}

// SignResponse returns a copy of params with its hash field set for salt.
func SignResponse(params types.Params, salt string) types.Params {
	signed := make(types.Params, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed[types.FieldHash] = ResponseHash(signed, salt)
	return signed
}

func digest(parts []string) string {
	sum := sha512.Sum512([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
