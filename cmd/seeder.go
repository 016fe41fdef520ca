package cmd

import (
	"context"
	stderrors "errors"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-hub/internal/gateways/bitcoin"
	"github.com/frahmantamala/payment-hub/internal/gateways/sandbox"
	"github.com/frahmantamala/payment-hub/internal/gateways/stripe"
	"github.com/frahmantamala/payment-hub/internal/payment"
)

// seedSystems are development payment systems. Stripe ships disabled with
// placeholder keys until real ones are set through the API.
var seedSystems = []payment.SystemInput{
	{
		Code:        "sandbox_main",
		GatewayType: sandbox.Alias,
		Name:        "Sandbox",
		Description: "Simulated settlement",
		IsEnabled:   true,
		MinPay:      decimal.NewFromInt(1),
		PayTimeout:  30,
		Options:     map[string]any{"callback_token": "sandbox-dev-token"},
	},
	{
		Code:        "bitcoin_main",
		GatewayType: bitcoin.Alias,
		Name:        "Bitcoin",
		Description: "On-chain payments",
		IsEnabled:   true,
		MinPay:      decimal.NewFromInt(10),
		PayTimeout:  120,
		Options:     map[string]any{"cash": "bc1qdevwalletxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", "max_confirmations": 3},
	},
	{
		Code:        "stripe_main",
		GatewayType: stripe.Alias,
		Name:        "Card (Stripe)",
		IsEnabled:   false,
		PayTimeout:  60,
		Options: map[string]any{
			"secret_key":     "sk_test_replace_me",
			"webhook_secret": "whsec_replace_me",
			"currency":       "usd",
		},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with development payment systems.`,
	Run: func(cmd *cobra.Command, args []string) {
		deps, err := initializeDependencies(dependencyOptions{database: true})
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		ctx := context.Background()

		if clearData {
			if err := deps.Gorm.WithContext(ctx).Exec(
				"TRUNCATE payment_logs, payment_items, payments, payment_systems RESTART IDENTITY CASCADE").Error; err != nil {
				log.Fatalf("failed to clear payment data: %v", err)
			}
			deps.Logger.Info("cleared payment data")
		}

		for _, in := range seedSystems {
			sys, err := deps.Systems.Create(ctx, in)
			switch {
			case err == nil:
				deps.Logger.Info("seeded payment system", "code", sys.Code, "gateway_type", sys.GatewayType)
			case stderrors.Is(err, payment.ErrSystemCodeTaken):
				deps.Logger.Info("payment system already exists", "code", in.Code)
			default:
				log.Fatalf("failed to seed payment system %s: %v", in.Code, err)
			}
		}
	},
}
