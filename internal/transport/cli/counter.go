package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"invofox/internal/domain"
)

func newCounterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Inspect and allocate document numbers",
	}
	cmd.AddCommand(newCounterPeekCmd())
	cmd.AddCommand(newCounterAllocateCmd())
	return cmd
}

func newCounterPeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peek <customer-id> <year> <type>",
		Short: "Show the last allocated number without allocating",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[1])
			}
			docType, err := domain.ParseDocumentType(args[2])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			value, err := a.Ledger.PeekCounter(cmd.Context(), args[0], year, docType)
			if err != nil {
				return err
			}
			if value == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no numbers issued"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), field("Last issued", domain.FormatDocumentNumber(docType, year, value)))
			return nil
		},
	}
}

func newCounterAllocateCmd() *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "allocate <customer-id> <type>",
		Short: "Allocate the next document number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docType, err := domain.ParseDocumentType(args[1])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var y *int
			if cmd.Flags().Changed("year") {
				y = &year
			}
			number, err := a.Ledger.AllocateDocumentNumber(cmd.Context(), args[0], docType, y)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), number)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "counter year (defaults to the current year)")
	return cmd
}
