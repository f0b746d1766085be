package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/frahmantamala/credit-payments/internal/payment"
	"github.com/frahmantamala/credit-payments/internal/payment/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	seedUserID string
	seedPlan   string
	seedAmount string
	seedPeriod string
	seedTxnID  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a pending transaction for local testing",
	Long: `Insert a pending checkout transaction and its owner's account, the state the
checkout step leaves behind before the buyer is sent to PayU.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		amount, err := decimal.NewFromString(seedAmount)
		if err != nil {
			log.Fatalf("invalid --amount %q: %v", seedAmount, err)
		}

		txnID := seedTxnID
		if txnID == "" {
			txnID = "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
		}

		catalog := payment.NewPlanCatalog(cfg.Plans)
		txn, err := catalog.NewPendingTransaction(txnID, seedUserID, seedPlan, amount, payment.BillingPeriod(seedPeriod), time.Now())
		if err != nil {
			log.Fatalf("invalid transaction: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.StoreTimeout)
		defer cancel()

		if err := postgres.NewStore(gdb).CreatePending(ctx, txn); err != nil {
			log.Fatalf("failed to insert transaction: %v", err)
		}

		credits, _ := catalog.Credits(txn.PlanName)
		fmt.Printf("Seeded pending transaction %s for %s: plan %s, amount %s, %d credits on success, valid until %s\n",
			txn.TxnID, txn.UserID, txn.PlanName, txn.Amount.StringFixed(2), credits, txn.ValidUntil.Format(time.RFC3339))
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedUserID, "user", "user-1", "Owning user id")
	seedCmd.Flags().StringVar(&seedPlan, "plan", "STARTER", "Plan name")
	seedCmd.Flags().StringVar(&seedAmount, "amount", "100.00", "Checkout amount")
	seedCmd.Flags().StringVar(&seedPeriod, "period", string(payment.BillingMonthly), "Billing period: monthly or yearly")
	seedCmd.Flags().StringVar(&seedTxnID, "txn", "", "Transaction id (default: generated)")
}
