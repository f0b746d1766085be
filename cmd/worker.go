package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/credit-payments/internal"
	"github.com/frahmantamala/credit-payments/internal/payment/postgres"
	"github.com/frahmantamala/credit-payments/internal/paymentgateway"
	"github.com/frahmantamala/credit-payments/pkg/logger"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Local payment gateway tooling",
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Post signed PayU callbacks to the webhook",
	Long: `Play the gateway side of a checkout: sign PayU-style callbacks with the merchant salt
and post them to the webhook through a worker pool. Without --txn every pending
transaction in the database gets a callback.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSimulator()
	},
}

var (
	simTxnID      string
	simAmount     string
	simProduct    string
	simStatus     string
	simDuplicates int
	simLimit      int
	maxWorkers    int
	jobQueueSize  int
	webhookURL    string
)

func startSimulator() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()
	gw := config.Gateway

	simConfig := paymentgateway.SimulatorConfig{
		MerchantKey:    gw.MerchantKey,
		MerchantSalt:   gw.MerchantSalt,
		WebhookURL:     getStringFlag(webhookURL, gw.WebhookURL),
		MaxWorkers:     getIntFlag(maxWorkers, gw.Simulator.Workers),
		JobQueueSize:   getIntFlag(jobQueueSize, gw.Simulator.QueueSize),
		MaxAttempts:    gw.Simulator.MaxAttempts,
		RequestTimeout: gw.Simulator.RequestTimeout,
		SuccessRate:    gw.Simulator.SuccessRate,
		MaxDelay:       500 * time.Millisecond,
	}
	if simConfig.WebhookURL == "" {
		simConfig.WebhookURL = fmt.Sprintf("http://localhost:%d/api/v1/payments/payu/webhook", config.Server.Port)
	}

	jobs, err := simulatorJobs(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build callbacks: %v\n", err)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		log.Info("nothing to simulate")
		return
	}

	delivered, failed := 0, 0
	results := make(chan paymentgateway.CallbackResult, len(jobs)*(simDuplicates+1))
	sim := paymentgateway.NewSimulator(simConfig, log, func(r paymentgateway.CallbackResult) {
		results <- r
	})

	for _, job := range jobs {
		if err := sim.Enqueue(job); err != nil {
			log.Error("failed to enqueue callback", "txn_id", job.TxnID, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sim.Wait(ctx); err != nil {
		log.Warn("simulation interrupted", "error", err)
	}
	// no callback reports after Shutdown returns
	sim.Shutdown()
	close(results)
	for r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		delivered++
	}

	log.Info("simulation finished",
		"callbacks_delivered", delivered,
		"callbacks_failed", failed)
}

// simulatorJobs builds one job from the flags, or one per pending transaction when --txn is not set.
func simulatorJobs(cfg *internal.Config) ([]paymentgateway.CallbackJob, error) {
	if simTxnID != "" {
		if simAmount == "" {
			return nil, fmt.Errorf("--amount is required with --txn")
		}
		return []paymentgateway.CallbackJob{{
			TxnID:       simTxnID,
			Amount:      simAmount,
			ProductInfo: simProduct,
			FirstName:   "Test",
			Email:       "test@example.com",
			Status:      simStatus,
			Duplicates:  simDuplicates,
		}}, nil
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	gdb, err := initGorm(db)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.StoreTimeout)
	defer cancel()

	pending, err := postgres.NewStore(gdb).ListPending(ctx, simLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}

	jobs := make([]paymentgateway.CallbackJob, 0, len(pending))
	for _, txn := range pending {
		jobs = append(jobs, paymentgateway.CallbackJob{
			TxnID:       txn.TxnID,
			Amount:      txn.Amount.StringFixed(2),
			ProductInfo: txn.PlanName,
			FirstName:   "Test",
			Email:       "test@example.com",
			Status:      simStatus,
			Duplicates:  simDuplicates,
		})
	}
	return jobs, nil
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	simulateCmd.Flags().StringVar(&simTxnID, "txn", "", "Transaction id to confirm (default: every pending transaction)")
	simulateCmd.Flags().StringVar(&simAmount, "amount", "", "Amount reported for --txn")
	simulateCmd.Flags().StringVar(&simProduct, "product", "STARTER", "productinfo reported for --txn")
	simulateCmd.Flags().StringVar(&simStatus, "status", "", "Force success or failure (default: draw from success_rate)")
	simulateCmd.Flags().IntVar(&simDuplicates, "duplicates", 0, "Extra identical deliveries per callback")
	simulateCmd.Flags().IntVar(&simLimit, "limit", 50, "Maximum pending transactions to confirm")
	simulateCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	simulateCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	simulateCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Webhook callback URL (overrides config)")

	gatewayCmd.AddCommand(simulateCmd)
}
