package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-hub/internal/auth"
	"github.com/frahmantamala/payment-hub/internal/payment"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List registered gateway and item kinds",
	Run: func(cmd *cobra.Command, args []string) {
		deps, err := initializeDependencies(dependencyOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
			os.Exit(1)
		}
		defer deps.Close()

		out := map[string][]payment.KindInfo{
			"gateways": payment.DescribeGatewayKinds(deps.Gateways),
			"items":    payment.DescribeItemKinds(deps.Items),
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode kinds: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	tokenEmail       string
	tokenPermissions string
)

// tokenCmd mints an operator token for local use of the back-office API.
var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Issue a back-office access token",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || userID <= 0 {
			fmt.Fprintln(os.Stderr, "user-id must be a positive integer")
			os.Exit(1)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}

		var perms []string
		for _, p := range strings.Split(tokenPermissions, ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, p)
			}
		}

		tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AccessTokenTTL)
		signed, err := tokens.GenerateAccessToken(userID, tokenEmail, perms)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().StringVar(&tokenPermissions, "permissions", auth.PermissionManagePayments, "comma separated permissions")

	rootCmd.AddCommand(kindsCmd)
	rootCmd.AddCommand(tokenCmd)
}
