package payment

import (
	"sort"
	"strings"
	"time"

	errors "github.com/frahmantamala/credit-payments/internal"
	"github.com/frahmantamala/credit-payments/internal/core/common/validation"
	"github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
)

type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

// Validity is how long a purchase stays valid from checkout.
func (p BillingPeriod) Validity() time.Duration {
	if p == BillingYearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// PlanCatalog maps plan names to the credits a successful payment grants.
// Names are matched case-insensitively.
type PlanCatalog struct {
	credits map[string]int64
}

func NewPlanCatalog(plans map[string]int64) *PlanCatalog {
	credits := make(map[string]int64, len(plans))
	for name, n := range plans {
		credits[normalizePlan(name)] = n
	}
	return &PlanCatalog{credits: credits}
}

func (c *PlanCatalog) Credits(plan string) (int64, bool) {
	n, ok := c.credits[normalizePlan(plan)]
	return n, ok
}

func (c *PlanCatalog) Names() []string {
	names := make([]string, 0, len(c.credits))
	for name := range c.credits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizePlan(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NewPendingTransaction builds the row the checkout step inserts before sending the buyer to PayU.
func (c *PlanCatalog) NewPendingTransaction(txnID, userID, plan string, amount decimal.Decimal, period BillingPeriod, now time.Time) (*payment.Transaction, error) {
	validator := validation.NewValidator()
	validator.Field("txn_id", txnID).Required().MaxLength(64)
	validator.Field("user_id", userID).Required()
	credits, known := c.Credits(plan)
	validator.Field("plan_name", plan).Required().Custom(func(v interface{}) *errors.AppError {
		if !known {
			return errors.NewValidationFieldError("plan_name", "unknown plan "+plan, errors.ErrCodeUnknownPlan)
		}
		return nil
	})
	validator.Field("amount", amount.String()).PositiveDecimal(errors.ErrCodeInvalidAmount)
	validator.Field("billing_period", string(period)).OneOf(errors.ErrCodeValidationFailed, string(BillingMonthly), string(BillingYearly))
	if appErr := validator.Validate(); appErr != nil {
		return nil, appErr
	}

	now = now.UTC()
	return &payment.Transaction{
		TxnID:       txnID,
		UserID:      userID,
		PlanName:    normalizePlan(plan),
		Amount:      amount.Round(2),
		PlanCredits: credits,
		Status:      payment.StatusPending,
		ValidUntil:  now.Add(period.Validity()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
