package main

import (
	"os"

	"github.com/spf13/cobra"
)

// clientFlags are shared by the commands that talk to a running instance
type clientFlags struct {
	apiURL   string
	username string
	password string
	code     string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.apiURL, "api-url", envOr("AUTOBUY_API_URL", "http://localhost:8080"), "base URL of a running autobuy API")
	cmd.Flags().StringVar(&f.username, "username", envOr("ADMIN_USERNAME", "admin"), "dashboard username")
	cmd.Flags().StringVar(&f.password, "password", os.Getenv("ADMIN_PASSWORD"), "dashboard password")
	cmd.Flags().StringVar(&f.code, "code", "", "TOTP code when two-factor login is enabled")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autobuy",
		Short: "Recurring crypto purchases with order tracking",
		Long: `autobuy buys a fixed fiat amount of one product on a daily, weekly or
monthly schedule, then polls the exchange until each order is filled,
cancelled or expired.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newBuyNowCmd(),
		newShowConfigCmd(),
		newStatusCmd(),
		newHistoryCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
