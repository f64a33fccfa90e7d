package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cloudbill/internal/paywatch"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		apiURL    string
		token     string
		invoiceID string
		interval  time.Duration
		maxWait   time.Duration
	)

	cmd := &cobra.Command{
		Use:     "paywatch",
		Short:   "Wait for an invoice payment to settle",
		Version: Version,
		Long: `Polls POST /invoices/:id/check-payment until the payment is paid,
the QR intent times out, or the invoice is cancelled.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("PAYWATCH_TOKEN")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if maxWait > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, maxWait)
				defer cancel()
			}

			poller, err := paywatch.NewPoller(paywatch.Config{
				BaseURL:  apiURL,
				Token:    token,
				Interval: interval,
				Logger:   slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res, err := poller.Watch(ctx, invoiceID, func(r paywatch.Result) {
				fmt.Fprintf(out, "[%d] %s: %s\n", r.Attempt, r.Status, r.Message)
			})
			if err != nil {
				return err
			}
			if res.Status != paywatch.StatusPaid {
				return fmt.Errorf("invoice %s was not paid: %s", invoiceID, res.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:4000", "Billing API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (defaults to $PAYWATCH_TOKEN)")
	cmd.Flags().StringVarP(&invoiceID, "invoice", "i", "", "Invoice id to watch")
	cmd.Flags().DurationVar(&interval, "interval", paywatch.DefaultInterval, "Polling interval")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "Give up after this long (0 waits until a final status)")
	_ = cmd.MarkFlagRequired("invoice")

	return cmd
}
