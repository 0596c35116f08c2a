package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Rendered document files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <document-id>",
		Short: "Show the render and upload state of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Ledger.DocumentStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderDocumentStatus(st))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry [document-id]",
		Short: "Render and upload a document again, or every pending one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Documents == nil {
				return errors.New("document pipeline is disabled")
			}

			if len(args) == 1 {
				if _, err := a.Ledger.RetryDocument(cmd.Context(), args[0]); err != nil {
					return err
				}
				a.Documents.Wait()
				st, err := a.Ledger.DocumentStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), RenderDocumentStatus(st))
				return nil
			}

			done, err := a.Documents.RetryPending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d document(s) uploaded\n", done)
			return nil
		},
	})

	return cmd
}
