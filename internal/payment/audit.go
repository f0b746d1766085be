package payment

import (
	"encoding/json"
	"log/slog"
	"strings"

	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
	"gorm.io/datatypes"
)

const maskToken = "****"

// MaskedPAN holds at most the last four characters of a card number.
// Construct it with MaskPAN; there is no way to get the full number back out.
type MaskedPAN string

func MaskPAN(raw string) MaskedPAN {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}
	if len(cleaned) <= 4 {
		return maskToken
	}
	return MaskedPAN(maskToken + cleaned[len(cleaned)-4:])
}

// cardNumberFields may carry a PAN, masked by the gateway or not. Keys are
// compared case-insensitively.
var cardNumberFields = []string{types.FieldCardNum, types.FieldCardNumber, "ccnum", "cardnumber", "card_number", "cc_number", "pan"}

func isCardNumberField(key string) bool {
	for _, field := range cardNumberFields {
		if strings.EqualFold(key, field) {
			return true
		}
	}
	return false
}

// cardNumber returns the first card number in params, in cardNumberFields order.
func cardNumber(params types.Params) string {
	for _, field := range cardNumberFields {
		for k, v := range params {
			if v != "" && strings.EqualFold(k, field) {
				return v
			}
		}
	}
	return ""
}

// secretCardFields are never copied anywhere.
var secretCardFields = map[string]struct{}{
	"ccvv":       {},
	"cvv":        {},
	"cvv2":       {},
	"cvc":        {},
	"ccexpmon":   {},
	"ccexpyr":    {},
	"card_token": {},
}

// AuditRecord is the only shape in which callback fields reach the logs.
// Fields not listed here are dropped.
type AuditRecord struct {
	TxnID        string
	Status       string
	Amount       string
	MihPayID     string
	Mode         string
	BankCode     string
	BankRefNum   string
	Error        string
	ErrorMessage string
	CardType     string
	IssuingBank  string
	CardNumber   MaskedPAN
}

func NewAuditRecord(params types.Params) AuditRecord {
	rec := AuditRecord{
		TxnID:        params.Get(types.FieldTxnID),
		Status:       params.Get(types.FieldStatus),
		Amount:       params.Get(types.FieldAmount),
		MihPayID:     params.Get(types.FieldMihPayID),
		Mode:         params.Get(types.FieldMode),
		BankCode:     params.Get(types.FieldBankCode),
		BankRefNum:   params.Get(types.FieldBankRefNum),
		Error:        params.Get(types.FieldError),
		ErrorMessage: params.Get(types.FieldErrorMessage),
		CardType:     params.Get(types.FieldCardType),
		IssuingBank:  params.Get(types.FieldIssuingBank),
	}
	if v := cardNumber(params); v != "" {
		rec.CardNumber = MaskPAN(v)
	}
	return rec
}

func (a AuditRecord) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 12)
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	add("txnid", a.TxnID)
	add("status", a.Status)
	add("amount", a.Amount)
	add("mihpayid", a.MihPayID)
	add("mode", a.Mode)
	add("bankcode", a.BankCode)
	add("bank_ref_num", a.BankRefNum)
	add("error", a.Error)
	add("error_Message", a.ErrorMessage)
	add("cardtype", a.CardType)
	add("issuing_bank", a.IssuingBank)
	add("cardnum", string(a.CardNumber))
	return slog.GroupValue(attrs...)
}

// SanitizePayload renders params as JSON for storage with card numbers masked
// and CVV and expiry fields removed.
func SanitizePayload(params types.Params) (datatypes.JSON, error) {
	clean := make(map[string]string, len(params))
	for k, v := range params {
		if _, secret := secretCardFields[strings.ToLower(k)]; secret {
			continue
		}
		if isCardNumberField(k) {
			v = string(MaskPAN(v))
		}
		clean[k] = v
	}
	raw, err := json.Marshal(clean)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
