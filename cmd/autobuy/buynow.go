package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

func newBuyNowCmd() *cobra.Command {
	var amount string

	cmd := &cobra.Command{
		Use:   "buy-now",
		Short: "Place one buy immediately and exit",
		Long: `buy-now runs a single purchase with the configured settings, records it
in the ledger sinks and exits without scheduling anything. The placed
order is not tracked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var override *decimal.Decimal
			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return errors.WrapInvalidConfiguration(err, "--amount")
				}
				override = &d
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Close()

			a, err := newApp(cmd.Context(), cfg, log, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			tx, err := a.engine.BuyNow(cmd.Context(), override)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !tx.IsSuccess() {
				fmt.Fprintf(out, "Buy failed: %s\n", tx.Error)
				return errors.Newf("buy %s failed", tx.ID)
			}
			fmt.Fprintf(out, "Order %s placed: %s %s at %s\n",
				tx.OrderID, tx.Amount.String(), tx.ProductID, tx.Price.Decimal.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "fiat amount overriding the configured AMOUNT")
	return cmd
}
