package paymentgateway

import "strings"

// Params is a decoded PayU form body. Values are opaque strings.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[key]
}

// Has reports whether key is present and not blank.
func (p Params) Has(key string) bool {
	return strings.TrimSpace(p[key]) != ""
}

// PayU form field names.
const (
	FieldKey               = "key"
	FieldTxnID             = "txnid"
	FieldAmount            = "amount"
	FieldProductInfo       = "productinfo"
	FieldFirstName         = "firstname"
	FieldEmail             = "email"
	FieldPhone             = "phone"
	FieldStatus            = "status"
	FieldHash              = "hash"
	FieldMihPayID          = "mihpayid"
	FieldMode              = "mode"
	FieldBankCode          = "bankcode"
	FieldBankRefNum        = "bank_ref_num"
	FieldError             = "error"
	FieldErrorMessage      = "error_Message"
	FieldCardType          = "cardtype"
	FieldIssuingBank       = "issuing_bank"
	FieldNameOnCard        = "name_on_card"
	FieldCardNum           = "cardnum"
	FieldCardNumber        = "card_no"
	FieldAdditionalCharges = "additionalCharges"
	FieldUDF1              = "udf1"
	FieldUDF2              = "udf2"
	FieldUDF3              = "udf3"
	FieldUDF4              = "udf4"
	FieldUDF5              = "udf5"
	FieldSURL              = "surl"
	FieldFURL              = "furl"
)

// Status values PayU reports in callbacks.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPending = "pending"
)

// RequiredResponseFields must be present for a callback digest to be checked at all.
var RequiredResponseFields = []string{
	FieldTxnID,
	FieldAmount,
	FieldProductInfo,
	FieldStatus,
	FieldKey,
	FieldHash,
}
