package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-hub/internal/payment"
	paymentPostgres "github.com/frahmantamala/payment-hub/internal/payment/postgres"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that drive payments without an HTTP request.`,
}

var sweepWorkerCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Cancel payments past their deadline",
	Long:  `Periodically cancel active payments whose cancel deadline has passed.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweepWorker()
	},
}

var (
	sweepOnce      bool
	sweepBatchSize int
)

func startSweepWorker() {
	deps, err := initializeDependencies(dependencyOptions{database: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	cfg := deps.Config.Payment
	sweeper := payment.NewSweeper(paymentPostgres.NewOverdueScanner(deps.DB), deps.Manager,
		cfg.SweepInterval, getIntFlag(sweepBatchSize, cfg.SweepBatchSize), deps.Logger.With("component", "sweeper"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sweepOnce {
		n, err := sweeper.SweepOnce(ctx)
		if err != nil {
			deps.Logger.Error("sweep failed", "error", err)
			return
		}
		deps.Logger.Info("sweep finished", "cancelled", n)
		return
	}

	deps.Logger.Info("sweep worker is running. Press Ctrl+C to stop.")
	_ = sweeper.Run(ctx)
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	sweepWorkerCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep and exit")
	sweepWorkerCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 0, "Payments cancelled per sweep (overrides config)")

	workerCmd.AddCommand(sweepWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
