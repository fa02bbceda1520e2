package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/pkg/client"
)

const requestTimeout = 30 * time.Second

func (f *clientFlags) connect(ctx context.Context) (*client.Client, error) {
	c, err := client.NewClient(f.apiURL)
	if err != nil {
		return nil, err
	}
	if f.password == "" {
		return nil, errors.WithHint(
			errors.InvalidConfigurationf("a dashboard password is required"),
			"pass --password or set ADMIN_PASSWORD")
	}
	if _, err := c.Login(ctx, f.username, f.password, f.code); err != nil {
		return nil, errors.Wrap(err, "login")
	}
	return c, nil
}

func newStatusCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			c, err := flags.connect(ctx)
			if err != nil {
				return err
			}
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(st); err != nil {
				return errors.Wrap(err, "encode status")
			}
			return enc.Close()
		},
	}
	flags.register(cmd)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		flags   clientFlags
		limit   int
		journal string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent buy attempts, newest first",
		Long: `history asks a running instance for its transaction history. With
--journal it reads the SQLite journal directly instead, which also
covers attempts from earlier runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			if journal == "" && cmd.Flags().Changed("journal") {
				return errors.InvalidConfigurationf("--journal needs a path")
			}
			if journal != "" {
				return historyFromJournal(ctx, cmd.OutOrStdout(), journal, limit)
			}

			c, err := flags.connect(ctx)
			if err != nil {
				return err
			}
			txs, err := c.Transactions(ctx, limit)
			if err != nil {
				return err
			}
			rows := make([]historyRow, 0, len(txs))
			for _, tx := range txs {
				rows = append(rows, historyRow{
					at: tx.Timestamp, product: tx.ProductID, amount: tx.Amount.String(),
					price:  priceString(tx.Price.Valid, tx.Price.Decimal.String()),
					status: tx.Status, orderID: tx.OrderID, manual: tx.Manual, err: tx.Error,
				})
			}
			return writeHistory(cmd.OutOrStdout(), rows)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	cmd.Flags().StringVar(&journal, "journal", "", "read this SQLite journal instead of the API")
	return cmd
}

func historyFromJournal(ctx context.Context, w io.Writer, path string, limit int) error {
	j, err := ledger.OpenJournal(ctx, path)
	if err != nil {
		return err
	}
	defer j.Close()

	txs, err := j.List(ctx, limit)
	if err != nil {
		return err
	}
	rows := make([]historyRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, historyRow{
			at: tx.Timestamp, product: tx.ProductID, amount: tx.Amount.String(),
			price:  priceString(tx.Price.Valid, tx.Price.Decimal.String()),
			status: string(tx.Status), orderID: tx.OrderID, manual: tx.Manual, err: tx.Error,
		})
	}
	return writeHistory(w, rows)
}

type historyRow struct {
	at      time.Time
	product string
	amount  string
	price   string
	status  string
	orderID string
	manual  bool
	err     string
}

func priceString(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}

func writeHistory(w io.Writer, rows []historyRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No transactions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPRODUCT\tAMOUNT\tPRICE\tSTATUS\tORDER\tTRIGGER")
	for _, r := range rows {
		trigger := "schedule"
		if r.manual {
			trigger = "manual"
		}
		status := r.status
		if r.err != "" {
			status += " (" + r.err + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.at.UTC().Format(time.RFC3339), r.product, r.amount, r.price, status, r.orderID, trigger)
	}
	return tw.Flush()
}
