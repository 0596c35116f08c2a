package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"invofox/internal/domain"
)

func newInvoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Look up invoices",
	}
	cmd.AddCommand(newInvoiceShowCmd())
	cmd.AddCommand(newInvoiceListCmd())
	return cmd
}

func newInvoiceShowCmd() *cobra.Command {
	var customerID string

	cmd := &cobra.Command{
		Use:   "show <invoice-number>",
		Short: "Show an invoice and its balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			inv, err := a.Ledger.GetInvoiceByNumber(cmd.Context(), args[0], customerID)
			if err != nil {
				return err
			}
			if inv == nil {
				return fmt.Errorf("invoice %s: %w", args[0], domain.ErrNotFound)
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderInvoice(inv))
			return nil
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "restrict the lookup to one customer")
	return cmd
}

func newInvoiceListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list <customer-id>",
		Short: "List a customer's invoices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps := domain.PaymentStatus(status)
			if status != "" && !ps.Valid() {
				return fmt.Errorf("unknown payment status %q", status)
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			invoices, err := a.Ledger.ListInvoices(cmd.Context(), args[0], ps, limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderInvoiceList(args[0], invoices))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by payment status (unpaid, partial, paid)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of invoices")
	return cmd
}
