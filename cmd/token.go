package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/frahmantamala/credit-payments/internal/auth"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token for the admin API",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		ttl := cfg.Security.AdminTokenDuration
		if tokenTTL > 0 {
			ttl = tokenTTL
		}

		token, expiresAt, err := auth.NewTokenManager(cfg.Security.AdminTokenSecret, ttl).Issue(tokenSubject, auth.RoleOperator)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}

		fmt.Println(token)
		fmt.Printf("expires at %s\n", expiresAt.Format(time.RFC3339))
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator identity recorded on resolved reviews")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (overrides config)")
	_ = tokenCmd.MarkFlagRequired("subject")
}
